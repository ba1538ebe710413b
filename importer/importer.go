// Package importer feeds the Sources table from a pipe-delimited text file,
// gated by a content hash so unchanged files are not re-read against the
// store on every pass.
package importer

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/store"
)

// metaColumns maps the positional fields after the URL onto source columns.
// Line format: URL|Name|Gender|Accent|ContentType|Type|MultispeakerPercentage.
var metaColumns = []string{
	model.ColName,
	model.ColGender,
	model.ColAccent,
	model.ColContentType,
	model.ColType,
	model.ColMultispeakerPercentage,
}

// Importer loads new sources from the configured file into the store.
type Importer struct {
	store   store.TableStore
	cfg     *config.Config
	logger  observability.Logger
	metrics observability.Metrics
}

// NewImporter builds an importer over the configured sources file.
func NewImporter(st store.TableStore, cfg *config.Config, obs *observability.Provider) *Importer {
	logger, metrics := obs.MustComponents("importer")
	return &Importer{store: st, cfg: cfg, logger: logger, metrics: metrics}
}

// ImportIfChanged imports the sources file when its content hash differs
// from the recorded one. URLs already present in the Sources table are
// skipped. The hash is written back only after a full pass, so a failed run
// is retried whole on the next call. Returns counts of added and skipped
// lines.
func (i *Importer) ImportIfChanged(ctx context.Context) (added, skipped int, err error) {
	path := i.cfg.Sources.FilePath
	if path == "" {
		return 0, 0, nil
	}

	if err := ensureFile(path); err != nil {
		return 0, 0, fmt.Errorf("failed to prepare sources file: %w", err)
	}

	hash, err := fileHash(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to hash sources file: %w", err)
	}

	lastHash, err := i.readLastHash()
	if err != nil {
		return 0, 0, err
	}
	if hash == lastHash {
		i.logger.Debug("sources file unchanged, skipping import", "path", path)
		return 0, 0, nil
	}

	i.logger.Info("sources file changed, importing", "path", path)

	existing, err := i.existingURLs(ctx)
	if err != nil {
		return 0, 0, err
	}

	added, skipped, err = i.importFile(ctx, path, existing)
	if err != nil {
		return added, skipped, err
	}

	if err := i.writeHash(hash); err != nil {
		return added, skipped, fmt.Errorf("failed to record sources file hash: %w", err)
	}

	i.logger.Info("import complete", "added", added, "skipped", skipped)
	i.metrics.IncrementCounter("importer.runs", nil)
	i.metrics.RecordHistogram("importer.sources_added", float64(added), nil)
	return added, skipped, nil
}

func (i *Importer) importFile(ctx context.Context, path string, existing map[string]bool) (added, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open sources file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		row, url, ok := i.parseLine(line)
		if !ok {
			i.logger.Warn("skipping line with no URL", "line", lineNum)
			continue
		}

		if existing[url] {
			skipped++
			continue
		}

		if _, err := i.store.AppendRows(ctx, i.cfg.Tables.Sources, []store.Row{row}); err != nil {
			return added, skipped, fmt.Errorf("failed to add source %s: %w", url, err)
		}
		existing[url] = true
		added++
	}
	if err := scanner.Err(); err != nil {
		return added, skipped, fmt.Errorf("failed to read sources file: %w", err)
	}

	return added, skipped, nil
}

// parseLine splits a pipe-delimited source line into a pending row. Lines
// with fewer fields than the full format are tolerated; missing fields stay
// empty.
func (i *Importer) parseLine(line string) (store.Row, string, bool) {
	parts := strings.Split(line, "|")
	url := strings.TrimSpace(parts[0])
	if url == "" {
		return nil, "", false
	}

	meta := make(map[string]string, len(metaColumns))
	for n, col := range metaColumns {
		if n+1 >= len(parts) {
			break
		}
		meta[col] = strings.TrimSpace(parts[n+1])
	}

	row := model.NewSourceRow(url, meta)
	row[model.ColStatus] = i.cfg.Statuses.Pending
	return row, url, true
}

func (i *Importer) existingURLs(ctx context.Context) (map[string]bool, error) {
	rows, err := i.store.ListRows(ctx, i.cfg.Tables.Sources, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list existing sources: %w", err)
	}

	urls := make(map[string]bool, len(rows))
	for _, row := range rows {
		if url := strings.TrimSpace(row[model.ColURL]); url != "" {
			urls[url] = true
		}
	}
	return urls, nil
}

func (i *Importer) readLastHash() (string, error) {
	data, err := os.ReadFile(i.cfg.Sources.HashFile)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read hash file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (i *Importer) writeHash(hash string) error {
	if err := os.MkdirAll(filepath.Dir(i.cfg.Sources.HashFile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(i.cfg.Sources.HashFile, []byte(hash), 0o644)
}

// ensureFile creates path (and its directory) as empty when missing, so a
// fresh deployment starts with a file operators can edit in place.
func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
