package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "ai-trading-floor/internal/store"
	"ai-trading-floor/internal/types"
)

func sampleRecord() types.AccountRecord {
	ts := time.Date(2024, 5, 1, 14, 30, 0, 0, time.UTC)
	return types.AccountRecord{
		Name:     "alice",
		Balance:  decimal.RequireFromString("8999.5"),
		Strategy: "momentum",
		Holdings: map[string]int64{"AAPL": 10},
		Transactions: []types.Transaction{
			{ID: "t-1", Symbol: "AAPL", Quantity: 10, Price: decimal.RequireFromString("100.05"), Timestamp: ts, Rationale: "breakout"},
		},
		Valuations: []types.ValuationSample{
			{Timestamp: ts.Add(time.Minute), Value: decimal.RequireFromString("9999.5")},
		},
	}
}

func assertRecord(t *testing.T, want, got types.AccountRecord) {
	t.Helper()
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Strategy, got.Strategy)
	assert.True(t, want.Balance.Equal(got.Balance), "balance %s != %s", want.Balance, got.Balance)
	assert.Equal(t, want.Holdings, got.Holdings)
	require.Len(t, got.Transactions, len(want.Transactions))
	for i := range want.Transactions {
		assert.Equal(t, want.Transactions[i].ID, got.Transactions[i].ID)
		assert.Equal(t, want.Transactions[i].Quantity, got.Transactions[i].Quantity)
		assert.True(t, want.Transactions[i].Price.Equal(got.Transactions[i].Price))
		assert.True(t, want.Transactions[i].Timestamp.Equal(got.Transactions[i].Timestamp))
	}
	require.Len(t, got.Valuations, len(want.Valuations))
	for i := range want.Valuations {
		assert.True(t, want.Valuations[i].Value.Equal(got.Valuations[i].Value))
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, found, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)

	rec := sampleRecord()
	require.NoError(t, m.Put(ctx, "alice", rec))

	// stored copy is detached from the caller's maps
	rec.Holdings["AAPL"] = 1

	got, found, err := m.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(10), got.Holdings["AAPL"])
	assert.Equal(t, []string{"alice"}, m.Names())
}

func TestMemoryHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewMemory().Put(ctx, "a", sampleRecord()), context.Canceled)
}

func TestFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, found, err := f.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, found)

	want := sampleRecord()
	require.NoError(t, f.Put(ctx, "alice", want))
	got, found, err := f.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, found)
	assertRecord(t, want, got)

	// overwrite replaces the document and leaves no temp files behind
	want.Balance = decimal.RequireFromString("1")
	require.NoError(t, f.Put(ctx, "alice", want))
	got, _, err = f.Get(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(1)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice.json", entries[0].Name())
}

func TestFileSanitizesNames(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)

	require.NoError(t, f.Put(context.Background(), "../evil name", sampleRecord()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, strings.Contains(entries[0].Name(), "/"))

	_, found, err := f.Get(context.Background(), "../evil name")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestFileCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bob.json"), []byte("{not json"), 0o644))

	_, _, err = f.Get(context.Background(), "bob")
	assert.Error(t, err)
}

func TestNewFileRequiresDir(t *testing.T) {
	_, err := NewFile("")
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	tests := []struct {
		name string
		opt  PostgresOption
		want string
	}{
		{"defaults", PostgresOption{}, "postgres://localhost:5432?sslmode=disable"},
		{"full", PostgresOption{Host: "db", Port: 6543, User: "floor", Password: "s3cret", Database: "trading", SSLMode: "require"},
			"postgres://floor:s3cret@db:6543/trading?sslmode=require"},
		{"conn string wins", PostgresOption{Host: "ignored", ConnString: "host=x dbname=y"}, "host=x dbname=y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.opt.dsn())
		})
	}
}

func TestToRow(t *testing.T) {
	row, err := toRow("alice", sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, "alice", row.Name)
	assert.Equal(t, "momentum", row.Strategy)
	assert.Equal(t, "8999.500000", row.Balance)
	assert.Contains(t, row.Record, `"AAPL":10`)
	assert.Equal(t, "accounts", row.TableName())
}

func TestNewSelectsDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Persistence.Driver = "MEMORY"
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	cfg.Persistence.Driver = "FILE"
	cfg.Persistence.Path = t.TempDir()
	s, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	cfg.Persistence.Driver = "SQLITE"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestFileKeepsSanitizedNamesDistinct(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	ctx := context.Background()

	spaced, underscored := sampleRecord(), sampleRecord()
	spaced.Balance = decimal.NewFromInt(1)
	underscored.Balance = decimal.NewFromInt(2)
	require.NoError(t, f.Put(ctx, "a b", spaced))
	require.NoError(t, f.Put(ctx, "a_b", underscored))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	got, found, err := f.Get(ctx, "a b")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(1)))

	got, found, err = f.Get(ctx, "a_b")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(2)))

	_, err = os.Stat(filepath.Join(dir, "a_b.json"))
	assert.NoError(t, err, "safe names keep their plain file name")
}
