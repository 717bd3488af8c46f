package usecase

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/domain"
	promclient "github.com/spooky-finn/go-depth-recorder/infrastructure/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const queueSampleInterval = time.Second

type DepthStream interface {
	Stream(ctx context.Context, symbol *domain.MarketSymbol, out chan<- domain.DepthEvent) error
}

type RecordSink interface {
	Run(ctx context.Context, in <-chan domain.Record) error
}

// Pipeline wires ingestor -> synchronizer -> writer for a single instrument
// through two bounded queues. A full queue blocks its producer.
type Pipeline struct {
	symbol     *domain.MarketSymbol
	stream     DepthStream
	maintainer *OrderbookMaintainer
	sink       RecordSink
	metrics    *promclient.Metrics

	events  chan domain.DepthEvent
	records chan domain.Record
}

type PipelineDeps struct {
	Stream  DepthStream
	Fetcher SnapshotFetcher
	Status  StatusReporter
	// NewSink builds the writer for this instrument.
	NewSink func(symbol *domain.MarketSymbol) RecordSink
}

type PipelineOptions struct {
	Mode         domain.PersistMode
	QueueMaxSize int
	RetryBackoff time.Duration
}

func NewPipeline(symbol *domain.MarketSymbol, deps PipelineDeps, opts PipelineOptions, metrics *promclient.Metrics, logger *zap.Logger) *Pipeline {
	events := make(chan domain.DepthEvent, opts.QueueMaxSize)
	records := make(chan domain.Record, opts.QueueMaxSize)

	return &Pipeline{
		symbol:     symbol,
		stream:     deps.Stream,
		maintainer: NewOrderbookMaintainer(symbol, opts.Mode, deps.Fetcher, deps.Status, opts.RetryBackoff, records, metrics, logger),
		sink:       deps.NewSink(symbol),
		metrics:    metrics,
		events:     events,
		records:    records,
	}
}

// Run blocks until ctx is cancelled and all three stages have returned.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(p.stream.Stream(gctx, p.symbol, p.events))
	})
	g.Go(func() error {
		return ignoreCanceled(p.maintainer.Run(gctx, p.events))
	})
	g.Go(func() error {
		return ignoreCanceled(p.sink.Run(gctx, p.records))
	})
	g.Go(func() error {
		p.sampleQueues(gctx)
		return nil
	})

	return g.Wait()
}

func (p *Pipeline) sampleQueues(ctx context.Context) {
	instrument := p.symbol.Instrument()
	events := p.metrics.QueueLength.WithLabelValues(instrument, "events")
	records := p.metrics.QueueLength.WithLabelValues(instrument, "records")

	ticker := time.NewTicker(queueSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			events.Set(float64(len(p.events)))
			records.Set(float64(len(p.records)))
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
