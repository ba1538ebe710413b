package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAppendAssignsSequentialIDs(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	ids, err := m.AppendRows(ctx, "Sources", []Row{
		{"ID": "", "URL": "https://a"},
		{"ID": "", "URL": "https://b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)

	ids, err = m.AppendRows(ctx, "Sources", []Row{{"ID": "custom", "URL": "https://c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"custom"}, ids)
}

func TestMemoryStoreAppendLeavesRowsWithoutIDCellAlone(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	// Worker-style rows carry no ID cell and must not grow one.
	ids, err := m.AppendRows(ctx, "Workers", []Row{
		{"Hostname": "worker-a", "Status": "active"},
	})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Empty(t, ids[0])

	rows, err := m.ListRows(ctx, "Workers", Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	_, hasID := rows[0]["ID"]
	assert.False(t, hasID)
}

func TestMemoryStoreListFiltersAndCopies(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.AppendRows(ctx, "Sources", []Row{
		{"ID": "", "URL": "https://a", "Status": "pending"},
		{"ID": "", "URL": "https://b", "Status": "done"},
	})
	require.NoError(t, err)

	rows, err := m.ListRows(ctx, "Sources", Eq("Status", "pending"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://a", rows[0]["URL"])

	// Mutating a listed row must not leak into the store.
	rows[0]["Status"] = "done"
	rows, err = m.ListRows(ctx, "Sources", Eq("Status", "pending"))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMemoryStoreConditionalUpdate(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	ids, err := m.AppendRows(ctx, "Video Tasks", []Row{{"ID": "", "Status": "pending"}})
	require.NoError(t, err)
	id := ids[0]

	ok, err := m.UpdateRow(ctx, "Video Tasks", "ID", id,
		Row{"Status": "in-progress", "ClaimedBy": "worker-a"},
		Row{"Status": "pending"})
	require.NoError(t, err)
	assert.True(t, ok)

	// Second conditional update expecting pending must lose.
	ok, err = m.UpdateRow(ctx, "Video Tasks", "ID", id,
		Row{"Status": "in-progress", "ClaimedBy": "worker-b"},
		Row{"Status": "pending"})
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := m.ListRows(ctx, "Video Tasks", Filter{})
	require.NoError(t, err)
	assert.Equal(t, "worker-a", rows[0]["ClaimedBy"])
}

func TestMemoryStoreUpdateByNonIDColumn(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.AppendRows(ctx, "Workers", []Row{
		{"Hostname": "worker-a", "Status": "active"},
		{"Hostname": "worker-b", "Status": "active"},
	})
	require.NoError(t, err)

	ok, err := m.UpdateRow(ctx, "Workers", "Hostname", "worker-b", Row{"Status": "idle"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	rows, err := m.ListRows(ctx, "Workers", Eq("Hostname", "worker-a"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "active", rows[0]["Status"])

	rows, err = m.ListRows(ctx, "Workers", Eq("Hostname", "worker-b"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "idle", rows[0]["Status"])
}

func TestMemoryStoreUpdateEmptyKeyMatchesNothing(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	// Rows without the key column read as empty; an empty key value must not
	// address them.
	_, err := m.AppendRows(ctx, "Workers", []Row{{"Hostname": "worker-a", "Status": "active"}})
	require.NoError(t, err)

	ok, err := m.UpdateRow(ctx, "Workers", "ID", "", Row{"Status": "idle"}, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := m.ListRows(ctx, "Workers", Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "active", rows[0]["Status"])
}

func TestMemoryStoreUpdateMissingRow(t *testing.T) {
	m := NewMemoryStore()

	ok, err := m.UpdateRow(context.Background(), "Video Tasks", "ID", "404", Row{"Status": "done"}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreDeleteRow(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	ids, err := m.AppendRows(ctx, "Sources", []Row{{"ID": "", "URL": "https://a"}})
	require.NoError(t, err)

	ok, err := m.DeleteRow(ctx, "Sources", ids[0])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.DeleteRow(ctx, "Sources", ids[0])
	require.NoError(t, err)
	assert.False(t, ok)

	rows, err := m.ListRows(ctx, "Sources", Filter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMemoryStoreOrdersNumerically(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.AppendRows(ctx, "T", []Row{
		{"ID": "10"}, {"ID": "2"}, {"ID": "1"},
	})
	require.NoError(t, err)

	rows, err := m.ListRows(ctx, "T", Filter{})
	require.NoError(t, err)
	assert.Equal(t, "1", rows[0]["ID"])
	assert.Equal(t, "2", rows[1]["ID"])
	assert.Equal(t, "10", rows[2]["ID"])
}
