package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/config"
	"github.com/AndreKoraleski/Youtube-Download-Coordinator/observability"
)

// PostgresStore implements TableStore on PostgreSQL, one SQL table per
// logical table. Every cell is TEXT and columns carry the exact header
// names (quoted identifiers), so rows round-trip unchanged between
// backends. Unlike the sheets backend, UpdateRow here is a true
// compare-and-swap.
type PostgresStore struct {
	db      *sqlx.DB
	logger  observability.Logger
	metrics observability.Metrics
	qb      squirrel.StatementBuilderType
}

// NewPostgresStore connects to PostgreSQL and verifies the connection.
func NewPostgresStore(cfg *config.PostgresConfig, logger observability.Logger, metrics observability.Metrics) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("connected to postgres", "host", cfg.Host, "database", cfg.Database)

	return &PostgresStore{
		db:      db,
		logger:  logger,
		metrics: metrics,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// EnsureTable creates the backing SQL table if it does not exist, with a
// TEXT column per header. Open runs it once per logical table at startup.
func (p *PostgresStore) EnsureTable(ctx context.Context, table string, columns []string) error {
	if _, err := p.db.ExecContext(ctx, createTableSQL(table, columns)); err != nil {
		return p.classify("ensure", table, err)
	}
	return nil
}

// createTableSQL renders the CREATE TABLE statement for a logical table.
// Every cell is TEXT so rows round-trip unchanged against the other
// backends.
func createTableSQL(table string, columns []string) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = fmt.Sprintf("%s TEXT NOT NULL DEFAULT ''", quoteIdent(col))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(sqlTableName(table)), strings.Join(defs, ", "))
}

func (p *PostgresStore) ListRows(ctx context.Context, table string, filter Filter) ([]Row, error) {
	start := time.Now()

	// Order by the leading column: row tables lead with ID, and tables
	// without one (Workers) still get a stable order.
	query := p.qb.
		Select("*").
		From(quoteIdent(sqlTableName(table))).
		OrderBy("1")
	for k, v := range filter.Equals {
		query = query.Where(squirrel.Eq{quoteIdent(k): v})
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, permanentErr("list", table, fmt.Errorf("build query: %w", err))
	}

	dbRows, err := p.db.QueryxContext(ctx, sqlQuery, args...)
	if err != nil {
		p.metrics.IncrementCounter("store.list.errors", map[string]string{"table": table})
		return nil, p.classify("list", table, err)
	}
	defer dbRows.Close()

	var rows []Row
	for dbRows.Next() {
		raw := make(map[string]interface{})
		if err := dbRows.MapScan(raw); err != nil {
			return nil, p.classify("list", table, err)
		}

		row := make(Row, len(raw))
		for k, v := range raw {
			row[k] = cellString(v)
		}
		rows = append(rows, row)
	}
	if err := dbRows.Err(); err != nil {
		return nil, p.classify("list", table, err)
	}

	p.metrics.RecordHistogram("store.list.duration",
		time.Since(start).Seconds(), map[string]string{"table": table})
	return rows, nil
}

func (p *PostgresStore) UpdateRow(ctx context.Context, table, keyColumn, keyValue string, set Row, expect Row) (bool, error) {
	if keyValue == "" {
		return false, nil
	}

	query := p.qb.
		Update(quoteIdent(sqlTableName(table))).
		Where(squirrel.Eq{quoteIdent(keyColumn): keyValue})
	for k, v := range set {
		query = query.Set(quoteIdent(k), v)
	}
	for k, v := range expect {
		query = query.Where(squirrel.Eq{quoteIdent(k): v})
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return false, permanentErr("update", table, fmt.Errorf("build query: %w", err))
	}

	result, err := p.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		p.metrics.IncrementCounter("store.update.errors", map[string]string{"table": table})
		return false, p.classify("update", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, p.classify("update", table, err)
	}

	p.metrics.IncrementCounter("store.update.success", map[string]string{"table": table})
	return affected > 0, nil
}

func (p *PostgresStore) AppendRows(ctx context.Context, table string, rows []Row) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		stored := row.Clone()
		// Worker rows have no ID cell; inserting one would reference a
		// column the table does not have.
		if v, ok := stored["ID"]; ok && v == "" {
			stored["ID"] = uuid.NewString()
		}
		ids[i] = stored["ID"]

		columns := make([]string, 0, len(stored))
		values := make([]interface{}, 0, len(stored))
		for k, v := range stored {
			columns = append(columns, quoteIdent(k))
			values = append(values, v)
		}

		sqlQuery, args, err := p.qb.
			Insert(quoteIdent(sqlTableName(table))).
			Columns(columns...).
			Values(values...).
			ToSql()
		if err != nil {
			return nil, permanentErr("append", table, fmt.Errorf("build query: %w", err))
		}

		if _, err := p.db.ExecContext(ctx, sqlQuery, args...); err != nil {
			p.metrics.IncrementCounter("store.append.errors", map[string]string{"table": table})
			return nil, p.classify("append", table, err)
		}
	}

	p.metrics.IncrementCounter("store.append.success", map[string]string{"table": table})
	return ids, nil
}

func (p *PostgresStore) DeleteRow(ctx context.Context, table, id string) (bool, error) {
	sqlQuery, args, err := p.qb.
		Delete(quoteIdent(sqlTableName(table))).
		Where(squirrel.Eq{`"ID"`: id}).
		ToSql()
	if err != nil {
		return false, permanentErr("delete", table, fmt.Errorf("build query: %w", err))
	}

	result, err := p.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		p.metrics.IncrementCounter("store.delete.errors", map[string]string{"table": table})
		return false, p.classify("delete", table, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, p.classify("delete", table, err)
	}

	return affected > 0, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// classify wraps a driver error as transient or permanent. Connectivity
// failures retry; SQL and schema errors do not.
func (p *PostgresStore) classify(op, table string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if errors.Is(err, driver.ErrBadConn) {
		return transientErr(op, table, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return transientErr(op, table, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exceptions, class 53 insufficient resources
		// and 57P03 means the server is starting up.
		class := string(pqErr.Code.Class())
		if class == "08" || class == "53" || pqErr.Code == "57P03" {
			return transientErr(op, table, err)
		}
		return permanentErr(op, table, err)
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "connection reset") {
		return transientErr(op, table, err)
	}

	return permanentErr(op, table, err)
}

// sqlTableName maps a worksheet-style table name onto a SQL identifier:
// "Dead-Letter Sources" -> "dead_letter_sources".
func sqlTableName(table string) string {
	name := strings.ToLower(table)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// cellString renders a scanned value back into its cell form.
func cellString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
