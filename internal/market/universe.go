package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// universeTTL is how long a fetched symbol ranking stays fresh. Rankings by
// trailing volume move slowly; five minutes of staleness is acceptable.
const universeTTL = 5 * time.Minute

type rankedSymbol struct {
	Symbol      string
	QuoteVolume float64
}

// source is one exchange endpoint that can produce a volume-ranked list.
type source struct {
	name  string
	fetch func(ctx context.Context) ([]rankedSymbol, error)
}

// Universe serves the ranked USDT-pair symbol list with a TTL cache, trying
// Binance futures, then Bybit linear, then Binance spot until one answers.
type Universe struct {
	client  *Client
	sources []source
	logger  zerolog.Logger

	mu        sync.Mutex
	symbols   []string
	fetchedAt time.Time
}

// NewUniverse creates the symbol-universe provider over the given client.
func NewUniverse(client *Client) *Universe {
	u := &Universe{
		client: client,
		logger: log.With().Str("component", "universe").Logger(),
	}
	u.sources = []source{
		{name: "binance_futures", fetch: u.fetchBinance(fapiBaseURL + "/fapi/v1/ticker/24hr")},
		{name: "bybit", fetch: u.fetchBybit},
		{name: "binance_spot", fetch: u.fetchBinance(spotBaseURL + "/api/v3/ticker/24hr")},
	}
	return u
}

// GetRankedSymbols returns up to limit symbols ranked by 24h quote volume.
func (u *Universe) GetRankedSymbols(ctx context.Context, limit int) ([]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if time.Since(u.fetchedAt) < universeTTL && len(u.symbols) > 0 {
		return head(u.symbols, limit), nil
	}

	var lastErr error
	for _, src := range u.sources {
		ranked, err := src.fetch(ctx)
		if err != nil {
			u.logger.Warn().Err(err).Str("source", src.name).Msg("symbol source failed")
			lastErr = err
			continue
		}
		u.symbols = rankSymbols(ranked)
		u.fetchedAt = time.Now()
		u.logger.Debug().Str("source", src.name).Int("count", len(u.symbols)).Msg("refreshed symbol universe")
		return head(u.symbols, limit), nil
	}

	// Every source failed; a stale ranking beats no ranking.
	if len(u.symbols) > 0 {
		u.logger.Warn().Msg("all symbol sources failed, serving stale universe")
		return head(u.symbols, limit), nil
	}
	return nil, fmt.Errorf("all symbol sources failed: %w", lastErr)
}

func rankSymbols(ranked []rankedSymbol) []string {
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].QuoteVolume > ranked[j].QuoteVolume
	})
	seen := make(map[string]bool, len(ranked))
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		if !strings.HasSuffix(r.Symbol, "USDT") {
			continue
		}
		if seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true
		out = append(out, r.Symbol)
	}
	return out
}

func head(symbols []string, limit int) []string {
	if limit <= 0 || limit >= len(symbols) {
		return append([]string(nil), symbols...)
	}
	return append([]string(nil), symbols[:limit]...)
}

func (u *Universe) fetchBinance(url string) func(ctx context.Context) ([]rankedSymbol, error) {
	return func(ctx context.Context) ([]rankedSymbol, error) {
		body, err := u.client.get(ctx, url)
		if err != nil {
			return nil, err
		}
		var tickers []struct {
			Symbol      string `json:"symbol"`
			QuoteVolume string `json:"quoteVolume"`
		}
		if err := json.Unmarshal(body, &tickers); err != nil {
			return nil, fmt.Errorf("parsing ticker JSON: %w", err)
		}
		ranked := make([]rankedSymbol, 0, len(tickers))
		for _, t := range tickers {
			vol, _ := strconv.ParseFloat(t.QuoteVolume, 64)
			ranked = append(ranked, rankedSymbol{Symbol: t.Symbol, QuoteVolume: vol})
		}
		return ranked, nil
	}
}

func (u *Universe) fetchBybit(ctx context.Context) ([]rankedSymbol, error) {
	body, err := u.client.get(ctx, bybitBaseURL+"/v5/market/tickers?category=linear")
	if err != nil {
		return nil, err
	}
	var resp struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				Symbol      string `json:"symbol"`
				Turnover24h string `json:"turnover24h"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing bybit JSON: %w", err)
	}
	if resp.RetCode != 0 {
		return nil, fmt.Errorf("bybit error code %d", resp.RetCode)
	}
	ranked := make([]rankedSymbol, 0, len(resp.Result.List))
	for _, t := range resp.Result.List {
		vol, _ := strconv.ParseFloat(t.Turnover24h, 64)
		ranked = append(ranked, rankedSymbol{Symbol: t.Symbol, QuoteVolume: vol})
	}
	return ranked, nil
}
