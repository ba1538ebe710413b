// Package storage provides the object storage abstraction used to archive
// promoted result files, with S3 and local filesystem adapters.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// ErrObjectNotFound is returned when a requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage is the archive surface the results manager writes to.
type ObjectStorage interface {
	Put(ctx context.Context, key string, reader io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Open builds the archive storage from the configuration. An empty bucket
// means archiving is disabled and Open returns (nil, nil).
func Open(ctx context.Context, cfg *config.Config, obs *observability.Provider) (ObjectStorage, error) {
	if cfg.Archive.Bucket == "" {
		return nil, nil
	}

	store, err := NewS3Storage(ctx, &cfg.Archive, obs)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive storage: %w", err)
	}
	return store, nil
}
