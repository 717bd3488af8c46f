package usecase

import (
	"context"
	"time"

	"github.com/spooky-finn/go-depth-recorder/domain"
	"github.com/spooky-finn/go-depth-recorder/helpers"
	promclient "github.com/spooky-finn/go-depth-recorder/infrastructure/prometheus"
	"go.uber.org/zap"
)

type SnapshotFetcher interface {
	OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol) (*domain.Snapshot, error)
}

// StatusReporter is told whenever an instrument gains or loses sync.
type StatusReporter interface {
	SetSynced(instrument string, synced bool)
}

// OrderbookMaintainer keeps one instrument's book in sequence with the diff
// stream and turns every accepted event into a record for storage.
type OrderbookMaintainer struct {
	symbol  *domain.MarketSymbol
	mode    domain.PersistMode
	fetcher SnapshotFetcher
	status  StatusReporter
	backoff time.Duration
	metrics *promclient.Metrics
	logger  *zap.Logger

	book *domain.BookState
	out  chan<- domain.Record
}

func NewOrderbookMaintainer(
	symbol *domain.MarketSymbol,
	mode domain.PersistMode,
	fetcher SnapshotFetcher,
	status StatusReporter,
	backoff time.Duration,
	out chan<- domain.Record,
	metrics *promclient.Metrics,
	logger *zap.Logger,
) *OrderbookMaintainer {
	return &OrderbookMaintainer{
		symbol:  symbol,
		mode:    mode,
		fetcher: fetcher,
		status:  status,
		backoff: backoff,
		metrics: metrics,
		logger:  logger.Named("sync").With(zap.String("symbol", symbol.Instrument())),
		book:    domain.NewBookState(),
		out:     out,
	}
}

// Run consumes events in delivery order until ctx is cancelled.
func (m *OrderbookMaintainer) Run(ctx context.Context, in <-chan domain.DepthEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-in:
			if err := m.Handle(ctx, e); err != nil {
				return err
			}
		}
	}
}

// Handle runs one event through the state machine. The only error it returns
// is a context error; bad events are dropped.
func (m *OrderbookMaintainer) Handle(ctx context.Context, e domain.DepthEvent) error {
	instrument := m.symbol.Instrument()

	if err := e.Validate(); err != nil {
		m.logger.Warn("dropping malformed event", zap.Error(err))
		m.metrics.EventsDropped.WithLabelValues(instrument, "malformed").Inc()
		return nil
	}

	if !domain.IsUsable(m.book, &e) {
		if err := m.resync(ctx, &e); err != nil {
			return err
		}
	}

	if !domain.IsApplicable(m.book, &e) {
		m.metrics.EventsDropped.WithLabelValues(instrument, "stale").Inc()
		return nil
	}

	var record domain.Record
	switch m.mode {
	case domain.FullConstructed:
		if err := m.book.Apply(&e); err != nil {
			m.logger.Warn("dropping unmergeable event", zap.Error(err))
			m.metrics.EventsDropped.WithLabelValues(instrument, "malformed").Inc()
			return nil
		}
		record = domain.NewBookRecord(instrument, m.book)
	default:
		m.book.Advance(&e)
		record = domain.NewUpdateRecord(instrument, e)
	}

	m.metrics.LastUpdateID.WithLabelValues(instrument).Set(float64(m.book.LastUpdateID))
	return m.emit(ctx, record)
}

// resync fetches snapshots until one covers e. A snapshot that is already
// behind e is replaced by a fresh one after the backoff.
func (m *OrderbookMaintainer) resync(ctx context.Context, e *domain.DepthEvent) error {
	instrument := m.symbol.Instrument()
	if m.book.Synced() {
		m.logger.Warn("sequence gap, resyncing",
			zap.Int64("lastUpdateId", m.book.LastUpdateID),
			zap.Int64("U", e.FirstUpdateId),
		)
	} else {
		m.logger.Info("book is not synced, fetching snapshot", zap.Int64("U", e.FirstUpdateId))
	}
	m.status.SetSynced(instrument, false)
	m.book.Reset()

	var adopted *domain.Snapshot
	for attempt := 0; !domain.IsUsable(m.book, e); attempt++ {
		if attempt > 0 {
			m.logger.Info("snapshot is behind the stream, retrying",
				zap.Int64("lastUpdateId", m.book.LastUpdateID),
				zap.Int64("U", e.FirstUpdateId),
			)
			if err := helpers.SleepContext(ctx, m.backoff); err != nil {
				return err
			}
		}

		snapshot, err := m.fetcher.OrderBookSnapshot(ctx, m.symbol)
		if err != nil {
			return err
		}
		if err := m.book.Adopt(snapshot); err != nil {
			m.logger.Warn("rejecting snapshot", zap.Error(err))
			m.book.Reset()
			continue
		}
		adopted = snapshot
		m.metrics.Resyncs.WithLabelValues(instrument).Inc()
	}

	m.logger.Info("book synced", zap.Int64("lastUpdateId", m.book.LastUpdateID))
	m.status.SetSynced(instrument, true)

	if m.mode == domain.EssentialUpdates {
		return m.emit(ctx, domain.NewSnapshotRecord(instrument, adopted))
	}
	return nil
}

func (m *OrderbookMaintainer) emit(ctx context.Context, record domain.Record) error {
	select {
	case m.out <- record:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
