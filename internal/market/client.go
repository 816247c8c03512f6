// Package market looks up token listings and trading pairs from a
// DexScreener-compatible market data API. Responses are cached briefly
// so repeated lookups inside an agent loop do not hammer the provider.
package market

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kibankit/kiban-agent-kit/internal/cache"
	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
	"github.com/kibankit/kiban-agent-kit/internal/httpx"
	"github.com/kibankit/kiban-agent-kit/internal/model"
)

const (
	defaultAPIBase = "https://api.dexscreener.com"

	// CacheTTL is how long a market response is served without refetch.
	CacheTTL = 60 * time.Second
	// CacheMaxStale bounds how old a cached response may be when the
	// provider is unreachable and the kit falls back to stale data.
	CacheMaxStale = 10 * time.Minute

	// searchLimit caps how many pairs a ticker search returns, best
	// liquidity-weighted volume first.
	searchLimit = 3
)

type Client struct {
	http    *httpx.Client
	apiBase string
	store   *cache.Store
	log     *zap.Logger
	now     func() time.Time
}

// New builds a market client. store may be nil, which disables caching.
func New(httpClient *httpx.Client, apiBase string, store *cache.Store, log *zap.Logger) *Client {
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:    httpClient,
		apiBase: apiBase,
		store:   store,
		log:     log,
		now:     time.Now,
	}
}

// Wire shapes of the DexScreener pair payload; only the fields the kit
// surfaces are decoded.
type pairsResp struct {
	Pairs []pairResp `json:"pairs"`
}

type pairResp struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD string `json:"priceUsd"`
	Volume   struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
}

// TokenPairs returns every listed pair for a token contract address,
// sorted by 24h volume.
func (c *Client) TokenPairs(ctx context.Context, address string) ([]model.TokenPair, model.CacheStatus, error) {
	endpoint := c.apiBase + "/latest/dex/tokens/" + url.PathEscape(address)
	var resp pairsResp
	status, err := c.fetchCached(ctx, endpoint, &resp)
	if err != nil {
		return nil, status, err
	}
	pairs := c.convert(resp.Pairs, 0)
	if len(pairs) == 0 {
		return nil, status, kiterr.New(kiterr.CodeUnavailable, "no market listings found for "+address)
	}
	return pairs, status, nil
}

// SearchByTicker searches listings by ticker symbol and returns the top
// matches by 24h volume.
func (c *Client) SearchByTicker(ctx context.Context, ticker string) ([]model.TokenPair, model.CacheStatus, error) {
	if ticker == "" {
		return nil, model.CacheStatus{}, kiterr.New(kiterr.CodeUsage, "ticker is required")
	}
	endpoint := c.apiBase + "/latest/dex/search?q=" + url.QueryEscape(ticker)
	var resp pairsResp
	status, err := c.fetchCached(ctx, endpoint, &resp)
	if err != nil {
		return nil, status, err
	}
	pairs := c.convert(resp.Pairs, searchLimit)
	if len(pairs) == 0 {
		return nil, status, kiterr.New(kiterr.CodeUnavailable, "no market listings found for ticker "+ticker)
	}
	return pairs, status, nil
}

func (c *Client) convert(pairs []pairResp, limit int) []model.TokenPair {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Volume.H24 > pairs[j].Volume.H24
	})
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	fetchedAt := c.now().UTC().Format(time.RFC3339)
	out := make([]model.TokenPair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, model.TokenPair{
			Name:         p.BaseToken.Name,
			Symbol:       p.BaseToken.Symbol,
			Address:      p.BaseToken.Address,
			PairAddress:  p.PairAddress,
			DexID:        p.DexID,
			PriceUSD:     p.PriceUSD,
			Volume24hUSD: p.Volume.H24,
			LiquidityUSD: p.Liquidity.USD,
			SourceURL:    p.URL,
			FetchedAt:    fetchedAt,
		})
	}
	return out
}

// fetchCached serves the endpoint from cache when fresh, refetches when
// stale or missing, and falls back to a bounded-stale cached copy when
// the provider is unreachable.
func (c *Client) fetchCached(ctx context.Context, endpoint string, out any) (model.CacheStatus, error) {
	key := cacheKey(endpoint)
	if c.store != nil {
		cached, err := c.store.Get(key)
		if err == nil && cached.Hit && !cached.Stale {
			if jsonErr := json.Unmarshal(cached.Value, out); jsonErr == nil {
				return model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds()}, nil
			}
		}
	}

	var body json.RawMessage
	_, fetchErr := httpx.DoGetJSON(ctx, c.http, endpoint, nil, &body)
	if fetchErr != nil {
		if c.store != nil {
			cached, err := c.store.Get(key)
			if err == nil && cached.Hit && !cached.TooStale {
				if jsonErr := json.Unmarshal(cached.Value, out); jsonErr == nil {
					c.log.Warn("market provider unreachable, serving stale cache",
						zap.String("endpoint", endpoint),
						zap.Duration("age", cached.Age),
					)
					return model.CacheStatus{Status: "stale", AgeMS: cached.Age.Milliseconds(), Stale: true}, nil
				}
			}
		}
		return model.CacheStatus{Status: "miss"}, fetchErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return model.CacheStatus{Status: "miss"}, kiterr.Wrap(kiterr.CodeUnavailable, "decode market response", err)
	}
	if c.store != nil {
		if err := c.store.Set(key, body); err != nil {
			c.log.Warn("market cache write failed", zap.Error(err))
		}
	}
	return model.CacheStatus{Status: "miss"}, nil
}

func cacheKey(endpoint string) string {
	sum := sha1.Sum([]byte(endpoint))
	return "market:" + hex.EncodeToString(sum[:])
}
