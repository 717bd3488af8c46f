package archive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := OpenInMemoryLedger()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedger_PutGetDelete(t *testing.T) {
	l := newTestLedger(t)
	entry := &Entry{
		ID:          "id-1",
		Instrument:  "btcusdt",
		SegmentPath: "/data/btcusdt_2024-01-01_10.jsonl",
		Parts: []PartState{
			{Index: 1, Total: 2, Path: "/data/btcusdt_2024-01-01_10_part1.zip", Uploaded: true},
			{Index: 2, Total: 2, Path: "/data/btcusdt_2024-01-01_10_part2.zip"},
		},
		CreatedAt: time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC),
	}
	require.NoError(t, l.Put(entry))

	got, found, err := l.Get(entry.SegmentPath)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry, got)
	assert.Equal(t, 1, got.Pending())

	require.NoError(t, l.Delete(entry.SegmentPath))
	_, found, err = l.Get(entry.SegmentPath)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedger_PendingOrder(t *testing.T) {
	l := newTestLedger(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Put(&Entry{ID: "2", SegmentPath: "b.jsonl", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, l.Put(&Entry{ID: "1", SegmentPath: "a.jsonl", CreatedAt: base}))

	entries, err := l.Pending()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1", entries[0].ID)
	assert.Equal(t, "2", entries[1].ID)
}
