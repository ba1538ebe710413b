// Package results manages downloaded artifacts on disk: promoting curated
// files from the working results directory into the selected directory, with
// optional upload to the archive bucket.
package results

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/storage"
)

// Manager moves result files between the configured directories.
type Manager struct {
	cfg     *config.Config
	archive storage.ObjectStorage // nil when archiving is disabled
	logger  observability.Logger
	metrics observability.Metrics
}

// NewManager builds a results manager. archive may be nil.
func NewManager(cfg *config.Config, archive storage.ObjectStorage, obs *observability.Provider) *Manager {
	logger, metrics := obs.MustComponents("results")
	return &Manager{cfg: cfg, archive: archive, logger: logger, metrics: metrics}
}

// PromoteSelected moves files from the results directory into the selected
// directory, flattened. With a non-empty sourceID only the
// results_dir/<sourceID>/ subtree moves. Name collisions in the destination
// get a numeric suffix before the extension. When an archive is configured
// each moved file is also uploaded; upload failures are logged but do not
// undo the move. Returns the destination file names.
func (m *Manager) PromoteSelected(ctx context.Context, sourceID string) ([]string, error) {
	src := m.cfg.Results.ResultsDir
	if sourceID != "" {
		src = filepath.Join(src, sourceID)
	}
	dst := m.cfg.Results.SelectedDir

	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil, nil
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create selected directory: %w", err)
	}

	var files []string
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan results directory: %w", err)
	}

	var moved []string
	for _, path := range files {
		name, err := m.promoteFile(ctx, path, dst)
		if err != nil {
			return moved, err
		}
		moved = append(moved, name)
	}

	m.logger.Info("results promoted", "source_id", sourceID, "moved", len(moved))
	m.metrics.IncrementCounter("results.promotions", nil)
	m.metrics.RecordHistogram("results.files_moved", float64(len(moved)), nil)
	return moved, nil
}

func (m *Manager) promoteFile(ctx context.Context, path, dst string) (string, error) {
	name := uniqueName(dst, filepath.Base(path))
	target := filepath.Join(dst, name)

	if err := moveFile(path, target); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", path, err)
	}

	if m.archive != nil {
		if err := m.uploadToArchive(ctx, target, name); err != nil {
			// The local move already happened; archiving is best effort.
			m.logger.Error("failed to archive promoted file", "file", name, "error", err)
			m.metrics.IncrementCounter("results.archive_failures", nil)
		}
	}

	return name, nil
}

func (m *Manager) uploadToArchive(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.archive.Put(ctx, key, f)
}

// uniqueName returns base, or base with a numeric suffix before the
// extension when the destination already has a file of that name
// (name.ext, name.1.ext, name.2.ext, ...).
func uniqueName(dir, base string) string {
	if _, err := os.Stat(filepath.Join(dir, base)); os.IsNotExist(err) {
		return base
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%d%s", stem, n, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}

// moveFile renames src to dst, falling back to copy+remove for cross-device
// moves.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
