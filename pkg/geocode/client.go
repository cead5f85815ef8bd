// Package geocode provides address geocoding via Census Geocoder (primary)
// and Google (fallback), with an optional store-backed result cache.
package geocode

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/civic-gis/gis-cli/internal/store"
)

// Client geocodes addresses.
type Client interface {
	// Geocode geocodes a single address.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// BatchGeocode geocodes multiple addresses.
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// AddressInput represents an address to geocode.
type AddressInput struct {
	ID      string // Optional identifier for batch correlation
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude  float64
	Longitude float64
	Source    string // "census", "google", or "cache"
	Quality   string // "rooftop", "range", "centroid", "approximate"
	Matched   bool
}

// Cache persists geocode results keyed by normalized-address hash. The
// store's SQLite and Postgres backends both satisfy it.
type Cache interface {
	GetCachedGeocode(ctx context.Context, addressHash string) (*store.GeocodeEntry, error)
	SetCachedGeocode(ctx context.Context, entry store.GeocodeEntry, ttl time.Duration) error
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for upstream calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	}
}

// WithCache enables caching of results, including non-matches, for ttl.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(g *geocoder) {
		g.cache = c
		g.cacheTTL = ttl
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
	cache      Cache
	cacheTTL   time.Duration
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(50, 50), // Census default: 50 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Geocode geocodes a single address, trying the cache, then Census, then
// Google if configured. An unmatched address is not an error.
func (g *geocoder) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := cacheKey(addr)

	if cached := g.checkCache(ctx, key); cached != nil {
		return cached, nil
	}

	result, censusErr := g.geocodeCensus(ctx, addr)
	if censusErr == nil && result.Matched {
		g.storeCache(ctx, key, addr, result)
		return result, nil
	}

	if g.googleKey != "" {
		googleResult, googleErr := g.geocodeGoogle(ctx, addr)
		if googleErr == nil && googleResult.Matched {
			g.storeCache(ctx, key, addr, googleResult)
			return googleResult, nil
		}
	}

	miss := &Result{Matched: false}
	if censusErr == nil {
		// Only cache a definitive non-match, not a provider outage.
		g.storeCache(ctx, key, addr, miss)
	}
	return miss, nil
}

// BatchGeocode geocodes multiple addresses using the Census batch API,
// falling back to Google for individual unmatched addresses.
func (g *geocoder) BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error) {
	if len(addrs) == 0 {
		return nil, nil
	}

	for i := range addrs {
		if addrs[i].ID == "" {
			addrs[i].ID = fmt.Sprintf("%d", i)
		}
	}

	results, err := g.batchGeocodeCensus(ctx, addrs)
	if err != nil {
		// Fall back to individual geocoding.
		results = make([]Result, len(addrs))
		for i, addr := range addrs {
			r, geocodeErr := g.Geocode(ctx, addr)
			if geocodeErr != nil {
				results[i] = Result{Matched: false}
				continue
			}
			results[i] = *r
		}
		return results, nil
	}

	if g.googleKey != "" {
		for i, r := range results {
			if !r.Matched {
				googleResult, googleErr := g.geocodeGoogle(ctx, addrs[i])
				if googleErr == nil && googleResult.Matched {
					results[i] = *googleResult
				}
			}
		}
	}

	for i, r := range results {
		if r.Matched {
			g.storeCache(ctx, cacheKey(addrs[i]), addrs[i], &results[i])
		}
	}

	return results, nil
}

// storeCache records a result in the cache when caching is enabled. Cache
// write failures are logged, not returned.
func (g *geocoder) storeCache(ctx context.Context, key string, addr AddressInput, result *Result) {
	if g.cache == nil {
		return
	}
	entry := store.GeocodeEntry{
		AddressHash: key,
		Address:     formatOneLine(addr),
		Lon:         result.Longitude,
		Lat:         result.Latitude,
		Matched:     result.Matched,
		Source:      result.Source,
	}
	if entry.Source == "" {
		entry.Source = "census"
	}
	if err := g.cache.SetCachedGeocode(ctx, entry, g.cacheTTL); err != nil {
		zap.L().Warn("geocode cache write failed", zap.Error(err))
	}
}

// checkCache returns a cached result, including cached non-matches, or nil.
func (g *geocoder) checkCache(ctx context.Context, key string) *Result {
	if g.cache == nil {
		return nil
	}
	entry, err := g.cache.GetCachedGeocode(ctx, key)
	if err != nil {
		zap.L().Warn("geocode cache read failed", zap.Error(err))
		return nil
	}
	if entry == nil {
		return nil
	}

	keyPrefix := key
	if len(keyPrefix) > 12 {
		keyPrefix = keyPrefix[:12]
	}
	zap.L().Debug("geocode cache hit", zap.String("key", keyPrefix), zap.Bool("matched", entry.Matched))

	return &Result{
		Latitude:  entry.Lat,
		Longitude: entry.Lon,
		Source:    "cache",
		Matched:   entry.Matched,
	}
}
