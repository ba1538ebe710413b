package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory TableStore with true conditional
// updates and deterministic sequential IDs. It backs tests and local runs.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][]Row
	nextID int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string][]Row),
		nextID: 1,
	}
}

func (m *MemoryStore) ListRows(ctx context.Context, table string, filter Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Row
	for _, row := range m.tables[table] {
		if filter.Matches(row) {
			result = append(result, row.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return lessID(result[i]["ID"], result[j]["ID"])
	})

	return result, nil
}

func (m *MemoryStore) UpdateRow(ctx context.Context, table, keyColumn, keyValue string, set Row, expect Row) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if keyValue == "" {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.tables[table] {
		if row[keyColumn] != keyValue {
			continue
		}

		for k, v := range expect {
			if row[k] != v {
				return false, nil
			}
		}

		for k, v := range set {
			row[k] = v
		}
		return true, nil
	}

	return false, nil
}

func (m *MemoryStore) AppendRows(ctx context.Context, table string, rows []Row) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		stored := row.Clone()
		// Only rows that carry an ID cell get one assigned; worker rows
		// have no ID column and must not grow a phantom one.
		if v, ok := stored["ID"]; ok && v == "" {
			stored["ID"] = strconv.Itoa(m.nextID)
			m.nextID++
		}
		m.tables[table] = append(m.tables[table], stored)
		ids = append(ids, stored["ID"])
	}

	return ids, nil
}

func (m *MemoryStore) DeleteRow(ctx context.Context, table, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[table]
	for i, row := range rows {
		if row["ID"] == id {
			m.tables[table] = append(rows[:i], rows[i+1:]...)
			return true, nil
		}
	}

	return false, nil
}

// lessID orders IDs numerically when both parse as integers, else
// lexically, so sequential IDs sort the way a spreadsheet reads.
func lessID(a, b string) bool {
	ai, aerr := strconv.Atoi(a)
	bi, berr := strconv.Atoi(b)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
