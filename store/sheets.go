package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// SheetsStore implements TableStore on a Google spreadsheet, one worksheet
// per table. The header row defines the column set; rows are addressed by
// their ID cell. Conditional updates are read-compare-write: the remote API
// has no compare-and-swap, so the claim protocol's verification read remains
// the real guard.
type SheetsStore struct {
	service       *sheets.Service
	spreadsheetID string
	logger        observability.Logger
	metrics       observability.Metrics

	mu       sync.Mutex
	headers  map[string][]string
	sheetIDs map[string]int64
}

// NewSheetsStore authenticates with a service-account credentials file and
// verifies the spreadsheet is reachable.
func NewSheetsStore(ctx context.Context, cfg *config.SheetsConfig, logger observability.Logger, metrics observability.Metrics) (*SheetsStore, error) {
	service, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	s := &SheetsStore{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		logger:        logger,
		metrics:       metrics,
		headers:       make(map[string][]string),
		sheetIDs:      make(map[string]int64),
	}

	// Resolve worksheet IDs up front; this doubles as a reachability and
	// permission check, which must fail at startup rather than mid-claim.
	if err := s.loadSheetIDs(ctx); err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet %s: %w", cfg.SpreadsheetID, err)
	}

	logger.Info("connected to spreadsheet", "spreadsheet_id", cfg.SpreadsheetID)
	return s, nil
}

func (s *SheetsStore) loadSheetIDs(ctx context.Context) error {
	meta, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil {
			s.sheetIDs[sheet.Properties.Title] = sheet.Properties.SheetId
		}
	}
	return nil
}

// sheetEntry pairs a decoded row with its 1-based sheet row number.
type sheetEntry struct {
	rowNum int64
	row    Row
}

// fetch reads the whole worksheet: header row plus data rows with their
// positions. The sheet is the source of truth; nothing here is cached
// between calls except the header.
func (s *SheetsStore) fetch(ctx context.Context, table string) ([]string, []sheetEntry, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, quoteTitle(table)).Context(ctx).Do()
	if err != nil {
		return nil, nil, err
	}

	if len(resp.Values) == 0 {
		return nil, nil, permanentErr("fetch", table, fmt.Errorf("worksheet has no header row"))
	}

	headers := make([]string, len(resp.Values[0]))
	for i, cell := range resp.Values[0] {
		headers[i] = fmt.Sprint(cell)
	}

	s.mu.Lock()
	s.headers[table] = headers
	s.mu.Unlock()

	entries := make([]sheetEntry, 0, len(resp.Values)-1)
	for i, values := range resp.Values[1:] {
		row := make(Row, len(headers))
		for j, header := range headers {
			if j < len(values) {
				row[header] = fmt.Sprint(values[j])
			} else {
				row[header] = ""
			}
		}
		entries = append(entries, sheetEntry{rowNum: int64(i + 2), row: row})
	}

	return headers, entries, nil
}

func (s *SheetsStore) ListRows(ctx context.Context, table string, filter Filter) ([]Row, error) {
	start := time.Now()

	_, entries, err := s.fetch(ctx, table)
	if err != nil {
		s.metrics.IncrementCounter("store.list.errors", map[string]string{"table": table})
		return nil, s.classify("list", table, err)
	}

	var rows []Row
	for _, entry := range entries {
		if filter.Matches(entry.row) {
			rows = append(rows, entry.row)
		}
	}

	s.metrics.RecordHistogram("store.list.duration",
		time.Since(start).Seconds(), map[string]string{"table": table})
	return rows, nil
}

func (s *SheetsStore) UpdateRow(ctx context.Context, table, keyColumn, keyValue string, set Row, expect Row) (bool, error) {
	// Cells missing from a short row read as empty, so an empty key would
	// address the first row with a blank cell instead of no row at all.
	if keyValue == "" {
		return false, nil
	}

	headers, entries, err := s.fetch(ctx, table)
	if err != nil {
		s.metrics.IncrementCounter("store.update.errors", map[string]string{"table": table})
		return false, s.classify("update", table, err)
	}

	var target *sheetEntry
	for i := range entries {
		if entries[i].row[keyColumn] == keyValue {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return false, nil
	}

	for k, v := range expect {
		if target.row[k] != v {
			return false, nil
		}
	}

	// Write the whole row in one Values.Update call so every listed column
	// lands together.
	updated := target.row.Clone()
	for k, v := range set {
		updated[k] = v
	}

	values := make([]interface{}, len(headers))
	for i, header := range headers {
		values[i] = updated[header]
	}

	writeRange := fmt.Sprintf("%s!A%d", quoteTitle(table), target.rowNum)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, writeRange, &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		s.metrics.IncrementCounter("store.update.errors", map[string]string{"table": table})
		return false, s.classify("update", table, err)
	}

	s.metrics.IncrementCounter("store.update.success", map[string]string{"table": table})
	return true, nil
}

func (s *SheetsStore) AppendRows(ctx context.Context, table string, rows []Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	headers, err := s.headersFor(ctx, table)
	if err != nil {
		return nil, s.classify("append", table, err)
	}

	ids := make([]string, len(rows))
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		stored := row.Clone()
		if v, ok := stored["ID"]; ok && v == "" {
			stored["ID"] = uuid.NewString()
		}
		ids[i] = stored["ID"]

		cells := make([]interface{}, len(headers))
		for j, header := range headers {
			cells[j] = stored[header]
		}
		values[i] = cells
	}

	_, err = s.service.Spreadsheets.Values.Append(s.spreadsheetID, quoteTitle(table), &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		s.metrics.IncrementCounter("store.append.errors", map[string]string{"table": table})
		return nil, s.classify("append", table, err)
	}

	s.logger.Info("appended rows", "table", table, "count", len(rows))
	s.metrics.IncrementCounter("store.append.success", map[string]string{"table": table})
	return ids, nil
}

func (s *SheetsStore) DeleteRow(ctx context.Context, table, id string) (bool, error) {
	_, entries, err := s.fetch(ctx, table)
	if err != nil {
		s.metrics.IncrementCounter("store.delete.errors", map[string]string{"table": table})
		return false, s.classify("delete", table, err)
	}

	var target *sheetEntry
	for i := range entries {
		if entries[i].row["ID"] == id {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return false, nil
	}

	s.mu.Lock()
	sheetID, ok := s.sheetIDs[table]
	s.mu.Unlock()
	if !ok {
		return false, permanentErr("delete", table, fmt.Errorf("worksheet %q not found in spreadsheet", table))
	}

	_, err = s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: target.rowNum - 1,
					EndIndex:   target.rowNum,
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		s.metrics.IncrementCounter("store.delete.errors", map[string]string{"table": table})
		return false, s.classify("delete", table, err)
	}

	s.metrics.IncrementCounter("store.delete.success", map[string]string{"table": table})
	return true, nil
}

// headersFor returns the cached header row for table, fetching it when not
// yet seen.
func (s *SheetsStore) headersFor(ctx context.Context, table string) ([]string, error) {
	s.mu.Lock()
	headers, ok := s.headers[table]
	s.mu.Unlock()
	if ok {
		return headers, nil
	}

	headers, _, err := s.fetch(ctx, table)
	return headers, err
}

// classify wraps an API error as transient or permanent. Rate limiting and
// server-side failures are retryable; auth and not-found are not. Anything
// that is not a structured API error is assumed to be connectivity trouble.
func (s *SheetsStore) classify(op, table string, err error) error {
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if gerr, ok := err.(*googleapi.Error); ok {
		switch gerr.Code {
		case 429, 500, 502, 503:
			return transientErr(op, table, err)
		default:
			return permanentErr(op, table, err)
		}
	}
	return transientErr(op, table, err)
}

// quoteTitle quotes a worksheet title for use in an A1 range reference.
func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
