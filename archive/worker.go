package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/helpers"
	promclient "github.com/spooky-finn/go-depth-recorder/infrastructure/prometheus"
	"github.com/spooky-finn/go-depth-recorder/storage"
	"go.uber.org/zap"
)

// Uploader delivers one file to the archive sink. A nil error is a
// confirmed upload.
type Uploader interface {
	SendDocument(ctx context.Context, chatID, fileName string, file io.Reader, caption string) error
}

type WorkerOptions struct {
	ChatID        string
	MaxPartSize   int64
	UploadDelay   time.Duration
	RetryInterval time.Duration
	Now           func() time.Time
}

// Worker is the single archival consumer shared by every instrument.
type Worker struct {
	queue    *Queue
	ledger   *Ledger
	uploader Uploader
	opts     WorkerOptions
	metrics  *promclient.Metrics
	logger   *zap.Logger

	uploaded bool
}

func NewWorker(queue *Queue, ledger *Ledger, uploader Uploader, opts WorkerOptions, metrics *promclient.Metrics, logger *zap.Logger) *Worker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Worker{
		queue:    queue,
		ledger:   ledger,
		uploader: uploader,
		opts:     opts,
		metrics:  metrics,
		logger:   logger.Named("archive"),
	}
}

// Enqueue is the hook handed to the segment writers.
func (w *Worker) Enqueue(segment storage.Segment) {
	w.queue.Push(Job{ID: uuid.NewString(), Segment: segment})
}

// Run retries what the ledger holds, then serves the queue until ctx is
// cancelled. Uploads in flight at cancellation are abandoned.
func (w *Worker) Run(ctx context.Context) error {
	w.RetryPending(ctx)

	var retry <-chan time.Time
	if w.opts.RetryInterval > 0 {
		ticker := time.NewTicker(w.opts.RetryInterval)
		defer ticker.Stop()
		retry = ticker.C
	}

	for {
		for job, ok := w.queue.TryPop(); ok; job, ok = w.queue.TryPop() {
			w.Process(ctx, job)
			if ctx.Err() != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-w.queue.Ready():
		case <-retry:
			w.RetryPending(ctx)
		}
	}
}

// Process splits a closed segment into parts, records them in the ledger
// and uploads them. A segment already in the ledger is never split again.
func (w *Worker) Process(ctx context.Context, job Job) {
	log := w.logger.With(zap.String("symbol", job.Segment.Instrument), zap.String("segment", job.Segment.Path))

	entry, found, err := w.ledger.Get(job.Segment.Path)
	if err != nil {
		log.Error("failed to read archive ledger", zap.Error(err))
		return
	}

	if !found {
		parts, err := Split(job.Segment, filepath.Dir(job.Segment.Path), w.opts.MaxPartSize)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Warn("segment is gone, skipping")
				return
			}
			log.Error("failed to split segment", zap.Error(err))
			return
		}

		if len(parts) == 0 {
			log.Info("segment is empty, removing")
			w.removeSegment(job.Segment.Path, log)
			return
		}

		entry = newEntry(job, parts, w.opts.Now())
		if err := w.ledger.Put(entry); err != nil {
			log.Error("failed to record archive parts", zap.Error(err))
			removeParts(parts)
			return
		}
		log.Info("segment split", zap.Int("parts", len(parts)))
	}

	w.upload(ctx, entry, log)
}

// RetryPending uploads the outstanding parts of every ledger entry.
func (w *Worker) RetryPending(ctx context.Context) {
	entries, err := w.ledger.Pending()
	if err != nil {
		w.logger.Error("failed to list pending archives", zap.Error(err))
		return
	}

	for i := range entries {
		if ctx.Err() != nil {
			return
		}
		entry := &entries[i]
		log := w.logger.With(zap.String("symbol", entry.Instrument), zap.String("segment", entry.SegmentPath))
		log.Info("retrying archive", zap.Int("pending", entry.Pending()))
		w.upload(ctx, entry, log)
	}
}

// RecoverSegments queues closed segments left in dir from earlier hours,
// skipping those the ledger already tracks.
func (w *Worker) RecoverSegments(dir string, now time.Time) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "list segments")
	}

	current := storage.HourBucket(now)
	recovered := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		segment, ok := storage.ParseSegmentPath(filepath.Join(dir, f.Name()))
		if !ok || !segment.Hour.Before(current) {
			continue
		}
		if _, found, err := w.ledger.Get(segment.Path); err != nil || found {
			continue
		}

		w.logger.Info("recovering closed segment", zap.String("segment", segment.Path))
		w.Enqueue(segment)
		recovered++
	}
	return recovered, nil
}

func (w *Worker) upload(ctx context.Context, entry *Entry, log *zap.Logger) {
	base := storage.Segment{Path: entry.SegmentPath}.BaseName()

	for i := range entry.Parts {
		part := &entry.Parts[i]
		if part.Uploaded {
			continue
		}

		if w.uploaded {
			if err := helpers.SleepContext(ctx, w.opts.UploadDelay); err != nil {
				return
			}
		}
		w.uploaded = true

		err := w.uploadPart(ctx, base, part)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, os.ErrNotExist) {
			log.Error("archive part is missing, dropping ledger entry", zap.String("part", part.Path))
			if err := w.ledger.Delete(entry.SegmentPath); err != nil {
				log.Error("failed to drop ledger entry", zap.Error(err))
			}
			return
		}
		if err != nil {
			w.metrics.PartsFailed.Inc()
			log.Error("failed to upload archive part",
				zap.Int("part", part.Index),
				zap.Int("total", part.Total),
				zap.Error(err),
			)
			continue
		}

		part.Uploaded = true
		w.metrics.PartsUploaded.Inc()
		log.Info("archive part uploaded", zap.Int("part", part.Index), zap.Int("total", part.Total))
		if err := os.Remove(part.Path); err != nil {
			log.Warn("failed to remove uploaded part", zap.String("part", part.Path), zap.Error(err))
		}
		if err := w.ledger.Put(entry); err != nil {
			log.Error("failed to update archive ledger", zap.Error(err))
		}
	}

	if pending := entry.Pending(); pending > 0 {
		log.Warn("segment kept until every part is uploaded", zap.Int("pending", pending))
		return
	}

	w.removeSegment(entry.SegmentPath, log)
	if err := w.ledger.Delete(entry.SegmentPath); err != nil {
		log.Error("failed to drop ledger entry", zap.Error(err))
	}
	w.metrics.SegmentsArchived.Inc()
	log.Info("segment archived", zap.Int("parts", len(entry.Parts)))
}

func (w *Worker) uploadPart(ctx context.Context, base string, part *PartState) error {
	f, err := os.Open(part.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	caption := fmt.Sprintf("%s part %d/%d", base, part.Index, part.Total)
	return w.uploader.SendDocument(ctx, w.opts.ChatID, filepath.Base(part.Path), f, caption)
}

func (w *Worker) removeSegment(path string, log *zap.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Error("failed to remove segment", zap.Error(err))
	}
}

func newEntry(job Job, parts []Part, now time.Time) *Entry {
	states := make([]PartState, len(parts))
	for i, p := range parts {
		states[i] = PartState{Index: p.Index, Total: p.Total, Path: p.Path}
	}
	return &Entry{
		ID:          job.ID,
		Instrument:  job.Segment.Instrument,
		SegmentPath: job.Segment.Path,
		Parts:       states,
		CreatedAt:   now,
	}
}
