package transport

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"dsync-go/internal/dsync"
)

// ProbeCache remembers locators that answered a probe successfully so
// repeated verification runs do not re-probe them until the TTL expires.
// Failures are never cached. Fetches pass through.
type ProbeCache struct {
	dsync.Transport
	cache    *cache.Cache
	locators *cache.Cache // message id -> last known locator
}

// NewProbeCache wraps next with a probe cache of the given TTL.
func NewProbeCache(next dsync.Transport, ttl time.Duration) *ProbeCache {
	return &ProbeCache{
		Transport: next,
		cache:     cache.New(ttl, ttl*2),
		locators:  cache.New(cache.NoExpiration, 0),
	}
}

func (p *ProbeCache) Upload(ctx context.Context, endpoint string, data []byte, name string) (*dsync.RemoteBlob, error) {
	blob, err := p.Transport.Upload(ctx, endpoint, data, name)
	if err == nil && blob != nil {
		p.remember(blob)
	}
	return blob, err
}

func (p *ProbeCache) Probe(ctx context.Context, locator string) error {
	if _, ok := p.cache.Get(locator); ok {
		return nil
	}
	if err := p.Transport.Probe(ctx, locator); err != nil {
		return err
	}
	p.cache.Set(locator, struct{}{}, cache.DefaultExpiration)
	return nil
}

// Patch invalidates the cached probes for both the locator the message had
// before the edit, when it went through this cache, and the one it has now.
func (p *ProbeCache) Patch(ctx context.Context, endpoint, messageID string, data []byte, name string) (*dsync.RemoteBlob, error) {
	blob, err := p.Transport.Patch(ctx, endpoint, messageID, data, name)
	if err != nil || blob == nil {
		return blob, err
	}
	p.forget(messageID)
	p.cache.Delete(blob.Locator)
	p.remember(blob)
	return blob, nil
}

func (p *ProbeCache) Delete(ctx context.Context, endpoint, messageID string) error {
	if err := p.Transport.Delete(ctx, endpoint, messageID); err != nil {
		return err
	}
	p.forget(messageID)
	return nil
}

func (p *ProbeCache) remember(blob *dsync.RemoteBlob) {
	if blob.MessageID != "" && blob.Locator != "" {
		p.locators.Set(blob.MessageID, blob.Locator, cache.NoExpiration)
	}
}

// forget drops the message's recorded locator and any cached probe of it.
func (p *ProbeCache) forget(messageID string) {
	if prev, ok := p.locators.Get(messageID); ok {
		p.cache.Delete(prev.(string))
		p.locators.Delete(messageID)
	}
}

// Len reports how many locators are currently cached.
func (p *ProbeCache) Len() int {
	return p.cache.ItemCount()
}

var _ dsync.Transport = (*ProbeCache)(nil)
