package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spooky-finn/go-depth-recorder/domain"
	promclient "github.com/spooky-finn/go-depth-recorder/infrastructure/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type closedSegments struct {
	mu       sync.Mutex
	segments []Segment
}

func (c *closedSegments) add(s Segment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segments = append(c.segments, s)
}

func record(id int64) domain.Record {
	return domain.NewUpdateRecord("btcusdt", domain.DepthEvent{EventTime: id, FirstUpdateId: id, FinalUpdateId: id})
}

func readLines(t *testing.T, path string) []domain.Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var records []domain.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var r domain.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		records = append(records, r)
	}
	require.NoError(t, scanner.Err())
	return records
}

func newTestWriter(t *testing.T, instrument string, clock *fakeClock, closed *closedSegments) (*SegmentWriter, *promclient.Metrics, string) {
	dir := t.TempDir()
	metrics := promclient.NewMetrics()
	w := NewSegmentWriter(instrument, WriterOptions{
		Dir:           dir,
		FlushInterval: time.Hour,
		MaxBatchSize:  500,
		Now:           clock.Now,
		OnClose:       closed.add,
	}, metrics, zap.NewNop())
	return w, metrics, dir
}

func TestSegmentWriter_BatchesUpToMaxSize(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	w, _, _ := newTestWriter(t, "btcusdt", clock, &closedSegments{})

	in := make(chan domain.Record, 1000)
	for i := int64(1); i <= 501; i++ {
		in <- record(i)
	}

	start := time.Now()
	first, err := w.nextBatch(context.Background(), in)
	require.NoError(t, err)
	second, err := w.nextBatch(context.Background(), in)
	require.NoError(t, err)

	assert.Len(t, first, 500)
	assert.Len(t, second, 1)
	assert.Equal(t, int64(501), second[0].LastUpdateId)
	assert.Less(t, time.Since(start), time.Minute, "no batch waited for the flush interval")
}

func TestSegmentWriter_EmptyPollCycle(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	w, _, _ := newTestWriter(t, "btcusdt", clock, &closedSegments{})
	w.opts.FlushInterval = 10 * time.Millisecond

	batch, err := w.nextBatch(context.Background(), make(chan domain.Record))
	assert.NoError(t, err)
	assert.Empty(t, batch)
}

func TestSegmentWriter_WritesJsonLines(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)}
	w, metrics, dir := newTestWriter(t, "btcusdt", clock, &closedSegments{})

	require.NoError(t, w.WriteBatch([]domain.Record{record(1), record(2)}))
	require.NoError(t, w.WriteBatch([]domain.Record{record(3)}))
	require.NoError(t, w.Close())

	records := readLines(t, filepath.Join(dir, "btcusdt_2024-01-01_10.jsonl"))
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, domain.RecordUpdate, r.Kind)
		assert.Equal(t, int64(i+1), r.Update.FinalUpdateId)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RecordsWritten.WithLabelValues("btcusdt")))
}

func TestSegmentWriter_RotatesOncePerHour(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 59, 59, 0, time.UTC)}
	closed := &closedSegments{}

	btc, _, btcDir := newTestWriter(t, "btcusdt", clock, closed)
	eth, _, _ := newTestWriter(t, "ethusdt", clock, closed)

	require.NoError(t, btc.WriteBatch([]domain.Record{record(1)}))
	require.NoError(t, eth.WriteBatch([]domain.Record{record(1)}))
	assert.Empty(t, closed.segments)

	clock.Set(time.Date(2024, 1, 1, 11, 0, 0, 1, time.UTC))
	require.NoError(t, btc.WriteBatch([]domain.Record{record(2)}))
	require.NoError(t, eth.WriteBatch([]domain.Record{record(2)}))
	require.NoError(t, btc.WriteBatch([]domain.Record{record(3)}))
	require.NoError(t, eth.WriteBatch([]domain.Record{record(3)}))

	require.Len(t, closed.segments, 2)
	assert.Equal(t, "btcusdt", closed.segments[0].Instrument)
	assert.Equal(t, "ethusdt", closed.segments[1].Instrument)
	assert.Equal(t, filepath.Join(btcDir, "btcusdt_2024-01-01_10.jsonl"), closed.segments[0].Path)

	assert.Len(t, readLines(t, filepath.Join(btcDir, "btcusdt_2024-01-01_10.jsonl")), 1)
	assert.Len(t, readLines(t, filepath.Join(btcDir, "btcusdt_2024-01-01_11.jsonl")), 2)
}

func TestSegmentWriter_RecoversAfterWriteError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	w, metrics, dir := newTestWriter(t, "btcusdt", clock, &closedSegments{})

	// a file where the directory should be makes every open fail
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, nil, 0o644))
	w.opts.Dir = blocked

	assert.Error(t, w.WriteBatch([]domain.Record{record(1)}))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.WriteErrors.WithLabelValues("btcusdt")))

	w.opts.Dir = dir
	require.NoError(t, w.WriteBatch([]domain.Record{record(2)}))
	require.NoError(t, w.Close())
	assert.Len(t, readLines(t, filepath.Join(dir, "btcusdt_2024-01-01_10.jsonl")), 1)
}

func TestSegmentWriter_RunDrainsOnShutdown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	closed := &closedSegments{}
	w, _, dir := newTestWriter(t, "btcusdt", clock, closed)

	in := make(chan domain.Record, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := int64(1); i <= 5; i++ {
		in <- record(i)
	}

	err := w.Run(ctx, in)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Len(t, readLines(t, filepath.Join(dir, "btcusdt_2024-01-01_10.jsonl")), 5)
	assert.Empty(t, closed.segments, "shutdown does not archive the open segment")
	assert.Nil(t, w.file)
}
