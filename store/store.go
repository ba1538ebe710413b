// Package store provides uniform access to named tables of string-typed
// rows. The remote table (a spreadsheet, a SQL table) is the only shared
// state between workers; all coordination above this package is built on
// ListRows plus conditional UpdateRow.
package store

import "context"

// Row is one table row: column name to cell value. Cells are strings; the
// backing stores have no richer types.
type Row map[string]string

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Filter selects rows by exact column equality. An empty filter matches
// every row.
type Filter struct {
	Equals map[string]string
}

// Matches reports whether the row satisfies every equality in the filter.
func (f Filter) Matches(row Row) bool {
	for k, v := range f.Equals {
		if row[k] != v {
			return false
		}
	}
	return true
}

// Eq builds a single-column equality filter.
func Eq(column, value string) Filter {
	return Filter{Equals: map[string]string{column: value}}
}

// TableStore is the coordination contract over the remote tabular store.
//
// Operations may fail transiently (rate limit, network) or permanently
// (auth, missing table); see Error. Decorated instances retry transient
// failures internally with backoff.
type TableStore interface {
	// ListRows returns the rows of table matching filter, in the store's
	// stable order (ascending ID for row tables).
	ListRows(ctx context.Context, table string, filter Filter) ([]Row, error)

	// UpdateRow writes the columns of set on the first row whose keyColumn
	// cell equals keyValue, provided every column of expect still holds its
	// expected value. It returns false with a nil error when no row matches
	// or the expectation fails: that is a lost race, not a failure. An empty
	// keyValue matches nothing; absent cells read as empty on some backends,
	// so an empty key would silently address the wrong row. All columns of
	// set apply together, to the extent the backing store allows.
	UpdateRow(ctx context.Context, table, keyColumn, keyValue string, set Row, expect Row) (bool, error)

	// AppendRows appends rows to the table and returns their assigned IDs,
	// in order. Rows carrying an empty ID cell are assigned one by the
	// store; rows without an ID cell at all (the Workers table has none)
	// are stored as given and report an empty ID.
	AppendRows(ctx context.Context, table string, rows []Row) ([]string, error)

	// DeleteRow removes the row with the given ID. It returns false with a
	// nil error when the row does not exist.
	DeleteRow(ctx context.Context, table, id string) (bool, error)
}
