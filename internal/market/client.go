// Package market fetches candles and the ranked symbol universe from
// exchange REST APIs. All calls are rate limited, retried with exponential
// backoff and bounded by the caller's context.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Alias1177/Screener/models"
)

const (
	fapiBaseURL  = "https://fapi.binance.com"
	spotBaseURL  = "https://api.binance.com"
	bybitBaseURL = "https://api.bybit.com"
)

// Client talks to the exchange REST APIs with rate limiting.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient creates an exchange API client. The timeout bounds every single
// HTTP request; retries are separately capped.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 5), // 5 requests per second
		logger:     log.With().Str("component", "market_client").Logger(),
	}
}

// SpotSymbol maps a futures ticker to its spot equivalent. Low-priced coins
// trade on futures under a 1000-multiplied ticker (1000PEPEUSDT) that does
// not exist on spot.
func SpotSymbol(symbol string) string {
	if strings.HasPrefix(symbol, "1000") && len(symbol) > 4 {
		return symbol[4:]
	}
	return symbol
}

// GetClosedCandles returns the most recent count closed candles, oldest
// first. The still-forming candle is always excluded, so the last element is
// settled data. Symbols missing from futures fall back to the spot market.
func (c *Client) GetClosedCandles(ctx context.Context, symbol string, tf models.Timeframe, count int) ([]models.Candle, error) {
	// One extra candle requested so the forming one can be dropped.
	candles, err := c.klines(ctx, fapiBaseURL+"/fapi/v1/klines", symbol, tf, count+1)
	if err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Msg("futures klines failed, trying spot")
		candles, err = c.klines(ctx, spotBaseURL+"/api/v3/klines", SpotSymbol(symbol), tf, count+1)
		if err != nil {
			return nil, fmt.Errorf("klines for %s %s: %w", symbol, tf, err)
		}
	}
	return dropForming(candles, time.Now()), nil
}

func (c *Client) klines(ctx context.Context, baseURL, symbol string, tf models.Timeframe, limit int) ([]models.Candle, error) {
	url := fmt.Sprintf("%s?symbol=%s&interval=%s&limit=%d", baseURL, symbol, tf, limit)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing klines JSON: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty kline data for %s", symbol)
	}

	candles := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("parsing kline for %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// get performs one rate-limited GET with exponential-backoff retries.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	var body []byte
	operation := func() error {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("non-200 status code: %d", resp.StatusCode)
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response body: %w", err)
		}
		return nil
	}

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = 20 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		return nil, fmt.Errorf("after retries: %w", err)
	}
	return body, nil
}

// parseKline decodes one Binance kline array:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume, ...].
func parseKline(k []json.RawMessage) (models.Candle, error) {
	if len(k) < 8 {
		return models.Candle{}, fmt.Errorf("kline array too short: %d fields", len(k))
	}
	var openMs, closeMs int64
	if err := json.Unmarshal(k[0], &openMs); err != nil {
		return models.Candle{}, err
	}
	if err := json.Unmarshal(k[6], &closeMs); err != nil {
		return models.Candle{}, err
	}

	nums := make([]float64, 6)
	for i, idx := range []int{1, 2, 3, 4, 5, 7} {
		var s string
		if err := json.Unmarshal(k[idx], &s); err != nil {
			return models.Candle{}, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, err
		}
		nums[i] = v
	}

	return models.Candle{
		OpenTime:    time.UnixMilli(openMs),
		Open:        nums[0],
		High:        nums[1],
		Low:         nums[2],
		Close:       nums[3],
		Volume:      nums[4],
		CloseTime:   time.UnixMilli(closeMs),
		QuoteVolume: nums[5],
	}, nil
}

// dropForming strips the trailing candle when its bucket has not elapsed yet.
// Evaluating indicators against an in-progress candle produces signals that
// flap as the candle develops.
func dropForming(candles []models.Candle, now time.Time) []models.Candle {
	if n := len(candles); n > 0 && candles[n-1].CloseTime.After(now) {
		return candles[:n-1]
	}
	return candles
}
