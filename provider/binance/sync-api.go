package binance

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/domain"
	"github.com/spooky-finn/go-depth-recorder/helpers"
	"go.uber.org/zap"
)

const depthPath = "/api/v3/depth"

// SyncAPI fetches order book snapshots from the REST depth endpoint.
type SyncAPI struct {
	client *resty.Client
	limit  int
	retry  helpers.RetryPolicy
	logger *zap.Logger
}

func NewSyncAPI(endpoint string, limit int, backoff time.Duration, logger *zap.Logger) *SyncAPI {
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	return &SyncAPI{
		client: client,
		limit:  limit,
		retry:  helpers.RetryPolicy{Backoff: backoff},
		logger: logger.Named("binance.sync"),
	}
}

// OrderBookSnapshot keeps asking for a snapshot until one arrives intact.
// It only fails when ctx is cancelled.
func (api *SyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol) (*domain.Snapshot, error) {
	var snapshot *domain.Snapshot

	err := api.retry.Do(ctx, func(int) error {
		s, err := api.fetch(ctx, symbol)
		if err != nil {
			return err
		}
		snapshot = s
		return nil
	}, func(attempt int, err error) {
		api.logger.Warn("snapshot request failed",
			zap.String("symbol", symbol.Instrument()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (api *SyncAPI) fetch(ctx context.Context, symbol *domain.MarketSymbol) (*domain.Snapshot, error) {
	resp, err := api.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol.RestSymbol(),
			"limit":  strconv.Itoa(api.limit),
		}).
		Get(depthPath)
	if err != nil {
		return nil, errors.Wrap(err, "depth request")
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, errors.Errorf("depth request: status %d: %s", resp.StatusCode(), helpers.Truncate(resp.String(), 200))
	}
	return domain.DecodeSnapshot(resp.Body())
}
