package promclient

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Metrics struct {
	Registry *prometheus.Registry

	EventsReceived  *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	Resyncs         *prometheus.CounterVec
	LastUpdateID    *prometheus.GaugeVec
	QueueLength     *prometheus.GaugeVec
	StreamReconnect *prometheus.CounterVec

	RecordsWritten   *prometheus.CounterVec
	WriteErrors      *prometheus.CounterVec
	SegmentsRotated  *prometheus.CounterVec
	PartsUploaded    prometheus.Counter
	PartsFailed      prometheus.Counter
	SegmentsArchived prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depth_events_received_total",
			Help: "depth diff events read from the stream",
		}, []string{"symbol"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depth_events_dropped_total",
			Help: "depth diff events discarded, by reason",
		}, []string{"symbol", "reason"}),
		Resyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depth_resyncs_total",
			Help: "snapshots adopted by the synchronizer",
		}, []string{"symbol"}),
		LastUpdateID: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depth_last_update_id",
			Help: "last update id covered by the book",
		}, []string{"symbol"}),
		QueueLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depth_queue_length",
			Help: "items waiting in a relay queue",
		}, []string{"symbol", "queue"}),
		StreamReconnect: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depth_stream_reconnects_total",
			Help: "websocket reconnects after a connection failure",
		}, []string{"symbol"}),

		RecordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depth_records_written_total",
			Help: "records appended to segments",
		}, []string{"symbol"}),
		WriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depth_write_errors_total",
			Help: "failed batch writes",
		}, []string{"symbol"}),
		SegmentsRotated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "depth_segments_rotated_total",
			Help: "segments closed on an hour change",
		}, []string{"symbol"}),
		PartsUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "archive_parts_uploaded_total",
			Help: "archive parts confirmed by the sink",
		}),
		PartsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "archive_parts_failed_total",
			Help: "archive part uploads that failed",
		}),
		SegmentsArchived: factory.NewCounter(prometheus.CounterOpts{
			Name: "archive_segments_completed_total",
			Help: "segments with every part uploaded",
		}),
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("prometheus server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
