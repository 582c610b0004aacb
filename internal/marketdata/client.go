// client.go implements the HTTP tier of the market-data chain.
//
// Both the primary and fallback APIs speak the same wire shape:
//   - GET /v1/daily/{symbol}   — trailing daily closes/volumes plus live quote
//   - GET /v1/company/{symbol} — market cap, sector, ETF flag
//
// Requests are rate-limited via a shared TokenBucket and retried on
// transport errors, 429, and 5xx responses.
package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"paper-trader/pkg/types"
)

// dailyResponse is the wire format of GET /v1/daily/{symbol}.
type dailyResponse struct {
	Symbol  string    `json:"symbol"`
	Closes  []float64 `json:"closes"`
	Volumes []float64 `json:"volumes"`
	Price   float64   `json:"price"`
	Volume  float64   `json:"volume"`
}

// companyResponse is the wire format of GET /v1/company/{symbol}.
type companyResponse struct {
	Symbol    string  `json:"symbol"`
	MarketCap float64 `json:"market_cap"`
	Sector    string  `json:"sector"`
	ETF       bool    `json:"etf"`
}

// Client fetches bars and quotes from one HTTP market-data API.
// It wraps a resty client with rate limiting and retry and tags every
// snapshot with its tier name so outcomes show where data came from.
type Client struct {
	http   *resty.Client
	rl     *TokenBucket
	tag    string // "primary" or "fallback"
	logger *slog.Logger
}

// NewClient creates an HTTP market-data client for one API endpoint.
func NewClient(baseURL, tag string, timeout time.Duration, ratePerSec float64, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		}).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		rl:     NewTokenBucket(ratePerSec*2, ratePerSec),
		tag:    tag,
		logger: logger.With("component", "marketdata", "tier", tag),
	}
}

// Tag returns the tier name snapshots from this client carry.
func (c *Client) Tag() string {
	return c.tag
}

// Fetch retrieves trailing daily bars and the current quote for a symbol.
func (c *Client) Fetch(ctx context.Context, symbol string) (types.Snapshot, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return types.Snapshot{}, err
	}

	var result dailyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v1/daily/" + symbol)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("%s daily %s: %w", c.tag, symbol, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Snapshot{}, fmt.Errorf("%s daily %s: status %d: %s", c.tag, symbol, resp.StatusCode(), resp.String())
	}
	if len(result.Closes) == 0 {
		return types.Snapshot{}, fmt.Errorf("%s daily %s: empty history", c.tag, symbol)
	}
	if len(result.Volumes) != len(result.Closes) {
		return types.Snapshot{}, fmt.Errorf("%s daily %s: %d closes but %d volumes", c.tag, symbol, len(result.Closes), len(result.Volumes))
	}

	return types.Snapshot{
		Symbol:        symbol,
		Closes:        result.Closes,
		Volumes:       result.Volumes,
		CurrentPrice:  result.Price,
		CurrentVolume: result.Volume,
		Source:        c.tag,
		FetchedAt:     time.Now().UTC(),
	}, nil
}

// Details retrieves company metadata for the classifier. A failed lookup
// is reported to the caller, which degrades to unknown rather than failing
// the candidate.
func (c *Client) Details(ctx context.Context, symbol string) (Details, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return Details{}, err
	}

	var result companyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v1/company/" + symbol)
	if err != nil {
		return Details{}, fmt.Errorf("%s company %s: %w", c.tag, symbol, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Details{}, fmt.Errorf("%s company %s: status %d", c.tag, symbol, resp.StatusCode())
	}

	return Details{
		MarketCap: result.MarketCap,
		Sector:    result.Sector,
		IsETF:     result.ETF,
	}, nil
}
