package geocode

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/civic-gis/gis-cli/internal/store"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient creates an HTTP client that rewrites requests matching the
// target prefix to a test server URL.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:     http.DefaultTransport,
			rewrites: map[string]string{targetPrefix: testServerURL},
		},
	}
}

// rewriteTransport rewrites URLs based on a prefix map.
type rewriteTransport struct {
	base     http.RoundTripper
	rewrites map[string]string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	for prefix, testURL := range t.rewrites {
		if strings.HasPrefix(origURL, prefix) {
			newReq := req.Clone(req.Context())
			parsed, err := req.URL.Parse(testURL + origURL[len(prefix):])
			if err != nil {
				return nil, err
			}
			newReq.URL = parsed
			newReq.Host = parsed.Host
			return t.base.RoundTrip(newReq)
		}
	}
	return t.base.RoundTrip(req)
}

// memCache is an in-memory Cache for tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string]store.GeocodeEntry
	sets    int
}

func newMemCache() *memCache {
	return &memCache{entries: map[string]store.GeocodeEntry{}}
}

func (c *memCache) GetCachedGeocode(_ context.Context, addressHash string) (*store.GeocodeEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[addressHash]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (c *memCache) SetCachedGeocode(_ context.Context, entry store.GeocodeEntry, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.AddressHash] = entry
	c.sets++
	return nil
}
