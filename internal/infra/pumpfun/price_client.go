package pumpfun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"token_sniper/internal/domain"
	"token_sniper/internal/infra"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultPriceBaseURL = "https://frontend-api.pump.fun"
	defaultPriceTimeout = 15 * time.Second
	maxResponseBytes    = 1 << 20
	mintLength          = 32
)

// coinResponse is the subset of the pump.fun coin endpoint we read.
// market_cap is SOL denominated, the same unit as marketCapSol on the source feed.
type coinResponse struct {
	Mint         string          `json:"mint"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	MarketCap    decimal.Decimal `json:"market_cap"`
	USDMarketCap decimal.Decimal `json:"usd_market_cap"`
	Complete     bool            `json:"complete"`
}

// PriceClient fetches the current price of a token from the pump.fun coin API.
type PriceClient struct {
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
	now        func() time.Time
}

// NewPriceClient creates a price client. ratePerSec paces requests across the
// whole tracking cycle; timeout bounds each request.
func NewPriceClient(baseURL string, timeout time.Duration, ratePerSec float64) *PriceClient {
	if baseURL == "" {
		baseURL = DefaultPriceBaseURL
	}
	if timeout <= 0 {
		timeout = defaultPriceTimeout
	}
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &PriceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: &http.Client{Transport: transport},
		now:        time.Now,
	}
}

// FetchPrice returns the price of mint derived from its market cap.
// Every failure wraps domain.ErrPriceUnavailable.
func (c *PriceClient) FetchPrice(ctx context.Context, mint string) (domain.PriceSample, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.PriceSample{}, domain.NewPriceError("rate_wait", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/coins/" + url.PathEscape(mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PriceSample{}, domain.NewPriceError("build_request", err)
	}
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PriceSample{}, domain.NewPriceError("fetch_price", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.PriceSample{}, domain.NewPriceError("fetch_price",
			fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.PriceSample{}, domain.NewPriceError("read_body", err)
	}

	var coin coinResponse
	if err := json.Unmarshal(body, &coin); err != nil {
		return domain.PriceSample{}, domain.NewPriceError("decode", err)
	}

	sample := domain.PriceSample{
		Price:      domain.PriceFromMarketCap(coin.MarketCap),
		ObservedAt: c.now(),
	}
	if !sample.Valid() {
		return domain.PriceSample{}, domain.NewPriceError("fetch_price",
			fmt.Errorf("non-positive market cap %s for %s", coin.MarketCap, mint))
	}
	return sample, nil
}

// ValidateMint checks that id is a base58 encoded 32 byte Solana public key.
func ValidateMint(id string) error {
	raw, err := base58.Decode(id)
	if err != nil {
		return fmt.Errorf("%w: %q is not base58: %v", domain.ErrMalformedRecord, id, err)
	}
	if len(raw) != mintLength {
		return fmt.Errorf("%w: %q decodes to %d bytes, want %d", domain.ErrMalformedRecord, id, len(raw), mintLength)
	}
	return nil
}

var _ domain.PriceFeed = (*PriceClient)(nil)
