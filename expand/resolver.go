// Package expand turns claimed sources (channels, playlists, single videos)
// into individual video task rows.
package expand

import "context"

// ResolvedVideo is one video discovered under a source URL.
type ResolvedVideo struct {
	URL      string
	Duration int64 // seconds, 0 = unknown
}

// Resolver lists the videos behind a source URL. Implementations must return
// errors whose text carries the underlying tool's diagnostics, since that
// text feeds the fatal-error classification downstream.
type Resolver interface {
	Resolve(ctx context.Context, url string) ([]ResolvedVideo, error)
}
