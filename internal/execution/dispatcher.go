package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"token_sniper/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultDispatchTimeout = 10 * time.Second

// TradeDispatcher forwards triggered assets to the downstream trade endpoint.
// Each trigger is a single POST: no retry, no queue.
type TradeDispatcher struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time
}

// NewTradeDispatcher creates a dispatcher. An empty endpoint disables delivery.
func NewTradeDispatcher(endpoint string, timeout time.Duration) *TradeDispatcher {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &TradeDispatcher{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{},
		logger:   slog.Default().With("module", "dispatcher"),
		now:      time.Now,
	}
}

// Send posts the asset with its trigger price and gain. Failures are reported
// in the result and logged; they never reach the caller as an error.
func (d *TradeDispatcher) Send(ctx context.Context, asset *domain.TrackedAsset, triggerPrice decimal.Decimal) domain.DispatchResult {
	result := domain.DispatchResult{AlertID: uuid.NewString()}

	if d.endpoint == "" {
		result.Skipped = true
		d.logger.Info("Trade endpoint not configured, alert skipped",
			slog.String("asset", asset.ID),
			slog.String("alert_id", result.AlertID))
		return result
	}

	gain, _ := asset.GainPct(triggerPrice)
	payload := domain.TradePayload{
		TrackedAsset: *asset,
		CurrentPrice: triggerPrice,
		GainPct:      gain,
		AlertID:      result.AlertID,
		TriggeredAt:  d.now(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		result.Err = fmt.Errorf("%w: marshal payload: %v", domain.ErrDispatchFailed, err)
		d.logFailure(asset, result)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		result.Err = fmt.Errorf("%w: create request: %v", domain.ErrDispatchFailed, err)
		d.logFailure(asset, result)
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", result.AlertID)

	resp, err := d.client.Do(req)
	if err != nil {
		result.Err = fmt.Errorf("%w: send request: %v", domain.ErrDispatchFailed, err)
		d.logFailure(asset, result)
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		result.Err = fmt.Errorf("%w: unexpected status %d: %s", domain.ErrDispatchFailed, resp.StatusCode, string(respBody))
		d.logFailure(asset, result)
		return result
	}

	result.Delivered = true
	d.logger.Info("🚀 Trade alert delivered",
		slog.String("asset", asset.ID),
		slog.String("name", asset.Name),
		slog.String("price", triggerPrice.String()),
		slog.String("gain_pct", gain.StringFixed(2)),
		slog.String("alert_id", result.AlertID))
	return result
}

func (d *TradeDispatcher) logFailure(asset *domain.TrackedAsset, result domain.DispatchResult) {
	d.logger.Warn("Trade alert not delivered",
		slog.String("asset", asset.ID),
		slog.String("alert_id", result.AlertID),
		slog.Int("status", result.StatusCode),
		slog.Any("error", result.Err))
}

var _ domain.Dispatcher = (*TradeDispatcher)(nil)
