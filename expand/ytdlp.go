package expand

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// YTDLPResolver resolves source URLs by shelling out to yt-dlp in flat
// playlist mode. The flat listing avoids fetching per-video metadata pages,
// at the cost of durations sometimes being absent.
type YTDLPResolver struct {
	// Binary overrides the yt-dlp executable name, for tests.
	Binary string
}

// NewYTDLPResolver returns a resolver driving the yt-dlp found on PATH.
func NewYTDLPResolver() *YTDLPResolver {
	return &YTDLPResolver{Binary: "yt-dlp"}
}

// Resolve runs yt-dlp against url and decodes its JSON dump. Failures embed
// yt-dlp's stderr so messages like "Private video" survive into the error
// text.
func (r *YTDLPResolver) Resolve(ctx context.Context, url string) ([]ResolvedVideo, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("source URL is empty")
	}

	cmd := exec.CommandContext(ctx, r.Binary, "--flat-playlist", "-J", "--no-warnings", url)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed for %s: %w: %s", url, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty output for %s", url)
	}

	return ParseDump(stdout.Bytes())
}

// ytdlpDump is the subset of yt-dlp's -J output the resolver reads. A
// playlist dump carries entries; a single-video dump carries the video
// fields at the top level.
type ytdlpDump struct {
	Entries  []ytdlpEntry `json:"entries"`
	URL      string       `json:"url"`
	Webpage  string       `json:"webpage_url"`
	ID       string       `json:"id"`
	Duration float64      `json:"duration"`
}

type ytdlpEntry struct {
	URL      string  `json:"url"`
	Webpage  string  `json:"webpage_url"`
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
}

// ParseDump decodes a yt-dlp -J dump into resolved videos. Entries with no
// usable URL are skipped.
func ParseDump(data []byte) ([]ResolvedVideo, error) {
	var dump ytdlpDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}

	if dump.Entries == nil {
		video, ok := entryVideo(ytdlpEntry{
			URL: dump.URL, Webpage: dump.Webpage, ID: dump.ID, Duration: dump.Duration,
		})
		if !ok {
			return nil, fmt.Errorf("yt-dlp output carries no video URL")
		}
		return []ResolvedVideo{video}, nil
	}

	videos := make([]ResolvedVideo, 0, len(dump.Entries))
	for _, entry := range dump.Entries {
		if video, ok := entryVideo(entry); ok {
			videos = append(videos, video)
		}
	}
	return videos, nil
}

func entryVideo(entry ytdlpEntry) (ResolvedVideo, bool) {
	url := entry.Webpage
	if url == "" {
		url = entry.URL
	}
	if url == "" && entry.ID != "" {
		url = "https://www.youtube.com/watch?v=" + entry.ID
	}
	if url == "" {
		return ResolvedVideo{}, false
	}
	return ResolvedVideo{URL: url, Duration: int64(entry.Duration)}, true
}
