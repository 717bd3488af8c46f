package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/domain"
	promclient "github.com/spooky-finn/go-depth-recorder/infrastructure/prometheus"
	"go.uber.org/zap"
)

type WriterOptions struct {
	Dir           string
	FlushInterval time.Duration
	MaxBatchSize  int
	// Now is the wall clock used for hour buckets. Defaults to time.Now.
	Now func() time.Time
	// OnClose receives every segment closed by an hour change.
	OnClose func(Segment)
}

// SegmentWriter appends one instrument's records to hourly segment files.
// The open file handle is owned by Run and never shared.
type SegmentWriter struct {
	instrument string
	opts       WriterOptions
	metrics    *promclient.Metrics
	logger     *zap.Logger

	current Segment
	file    *os.File
}

func NewSegmentWriter(instrument string, opts WriterOptions, metrics *promclient.Metrics, logger *zap.Logger) *SegmentWriter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SegmentWriter{
		instrument: instrument,
		opts:       opts,
		metrics:    metrics,
		logger:     logger.Named("writer").With(zap.String("symbol", instrument)),
	}
}

// Run writes batches until ctx is cancelled, then writes whatever is still
// queued and closes the open segment.
func (w *SegmentWriter) Run(ctx context.Context, in <-chan domain.Record) error {
	for {
		batch, err := w.nextBatch(ctx, in)
		if err != nil {
			w.shutdown(in)
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if err := w.WriteBatch(batch); err != nil {
			w.logger.Error("failed to write batch", zap.Int("records", len(batch)), zap.Error(err))
		}
	}
}

// nextBatch waits up to the flush interval for a record and then takes
// whatever else is already queued, up to the batch size.
func (w *SegmentWriter) nextBatch(ctx context.Context, in <-chan domain.Record) ([]domain.Record, error) {
	timer := time.NewTimer(w.opts.FlushInterval)
	defer timer.Stop()

	var first domain.Record
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case first = <-in:
	}

	batch := make([]domain.Record, 1, w.opts.MaxBatchSize)
	batch[0] = first
	for len(batch) < w.opts.MaxBatchSize {
		select {
		case r := <-in:
			batch = append(batch, r)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

func (w *SegmentWriter) shutdown(in <-chan domain.Record) {
	for {
		var batch []domain.Record
	drain:
		for len(batch) < w.opts.MaxBatchSize {
			select {
			case r := <-in:
				batch = append(batch, r)
			default:
				break drain
			}
		}
		if len(batch) == 0 {
			break
		}
		if err := w.WriteBatch(batch); err != nil {
			w.logger.Error("failed to write batch on shutdown", zap.Int("records", len(batch)), zap.Error(err))
			break
		}
	}

	if err := w.Close(); err != nil {
		w.logger.Error("failed to close segment", zap.Error(err))
	}
}

// WriteBatch appends the records to the segment of the current hour and
// syncs the file. A failed file handle is dropped so the next batch reopens it.
func (w *SegmentWriter) WriteBatch(records []domain.Record) error {
	err := w.writeBatch(records)
	if err != nil {
		w.metrics.WriteErrors.WithLabelValues(w.instrument).Inc()
		if w.file != nil {
			_ = w.file.Close()
			w.file = nil
		}
		return err
	}
	w.metrics.RecordsWritten.WithLabelValues(w.instrument).Add(float64(len(records)))
	return nil
}

func (w *SegmentWriter) writeBatch(records []domain.Record) error {
	if err := w.rotate(w.opts.Now()); err != nil {
		return err
	}

	buf := bufio.NewWriterSize(w.file, 64*1024)
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "encode record")
		}
		if _, err := buf.Write(line); err != nil {
			return errors.Wrap(err, "write record")
		}
		if err := buf.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "write record")
		}
	}
	if err := buf.Flush(); err != nil {
		return errors.Wrap(err, "flush segment")
	}
	return errors.Wrap(w.file.Sync(), "sync segment")
}

// rotate makes sure the segment for now's hour is open, closing and handing
// off the previous one when the hour has changed.
func (w *SegmentWriter) rotate(now time.Time) error {
	next := NewSegment(w.opts.Dir, w.instrument, now)

	if w.current.Path != "" && !w.current.Hour.Equal(next.Hour) {
		closed := w.current
		if err := w.Close(); err != nil {
			w.logger.Error("failed to close segment", zap.String("path", closed.Path), zap.Error(err))
		}
		w.current = Segment{}

		w.logger.Info("segment closed", zap.String("path", closed.Path))
		w.metrics.SegmentsRotated.WithLabelValues(w.instrument).Inc()
		if w.opts.OnClose != nil {
			w.opts.OnClose(closed)
		}
	}

	if w.file != nil {
		return nil
	}

	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return errors.Wrap(err, "create segment dir")
	}
	file, err := os.OpenFile(next.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open segment")
	}
	if w.current.Path == "" {
		w.logger.Info("segment opened", zap.String("path", next.Path))
	}
	w.current = next
	w.file = file
	return nil
}

// Close closes the open segment without handing it off for archival.
func (w *SegmentWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return errors.Wrap(err, "close segment")
}
