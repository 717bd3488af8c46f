package binance

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/domain"
	"github.com/spooky-finn/go-depth-recorder/helpers"
	promclient "github.com/spooky-finn/go-depth-recorder/infrastructure/prometheus"
	"go.uber.org/zap"
)

const pingWriteTimeout = 10 * time.Second

// StreamClient reads the depth diff stream of one instrument per call to
// Stream and reconnects on any connection failure.
type StreamClient struct {
	endpoint    string
	backoff     time.Duration
	readTimeout time.Duration
	dialer      *websocket.Dialer
	metrics     *promclient.Metrics
	logger      *zap.Logger
}

func NewStreamClient(endpoint string, backoff, readTimeout time.Duration, metrics *promclient.Metrics, logger *zap.Logger) *StreamClient {
	return &StreamClient{
		endpoint:    strings.TrimRight(endpoint, "/"),
		backoff:     backoff,
		readTimeout: readTimeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 5 * time.Second,
		},
		metrics: metrics,
		logger:  logger.Named("binance.stream"),
	}
}

func (c *StreamClient) topicURL(symbol *domain.MarketSymbol) string {
	return c.endpoint + "/" + symbol.Instrument() + "@depth"
}

// Stream pushes every valid event into out until ctx is cancelled. Sends
// block while out is full. Malformed messages are dropped and the connection
// is kept; connection errors lead to a reconnect after the backoff.
func (c *StreamClient) Stream(ctx context.Context, symbol *domain.MarketSymbol, out chan<- domain.DepthEvent) error {
	url := c.topicURL(symbol)
	log := c.logger.With(zap.String("symbol", symbol.Instrument()))

	for {
		err := c.session(ctx, url, symbol, out, log)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		log.Warn("stream connection lost, reconnecting", zap.Error(err), zap.Duration("backoff", c.backoff))
		c.metrics.StreamReconnect.WithLabelValues(symbol.Instrument()).Inc()
		if err := helpers.SleepContext(ctx, c.backoff); err != nil {
			return err
		}
	}
}

func (c *StreamClient) session(ctx context.Context, url string, symbol *domain.MarketSymbol, out chan<- domain.DepthEvent, log *zap.Logger) error {
	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrap(err, "dial")
	}
	log.Info("connected", zap.String("url", url))

	// Closing the socket is what unblocks ReadMessage on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	conn.SetPingHandler(func(data string) error {
		c.extendDeadline(conn)
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(pingWriteTimeout))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	instrument := symbol.Instrument()
	for {
		c.extendDeadline(conn)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read")
		}

		event, err := domain.DecodeDepthEvent(msg)
		if err != nil {
			log.Warn("dropping malformed message", zap.Error(err), zap.String("message", helpers.Truncate(string(msg), 256)))
			c.metrics.EventsDropped.WithLabelValues(instrument, "malformed").Inc()
			continue
		}
		c.metrics.EventsReceived.WithLabelValues(instrument).Inc()

		select {
		case out <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *StreamClient) extendDeadline(conn *websocket.Conn) {
	if c.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
}
