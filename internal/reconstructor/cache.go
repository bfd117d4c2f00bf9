package reconstructor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

type cachedService struct {
	next  Service
	cache *cache.Cache
}

// WithCache remembers complete (OK) replies for ttl, keyed by the request with
// the client clock reduced to its date. A hit reports zero usage.
// Clarification replies are never cached.
func WithCache(svc Service, ttl time.Duration) Service {
	return &cachedService{next: svc, cache: cache.New(ttl, 2*ttl)}
}

func (c *cachedService) Reconstruct(ctx context.Context, req Request) (*Response, error) {
	key, err := cacheKey(req)
	if err != nil {
		return nil, err
	}

	if v, ok := c.cache.Get(key); ok {
		var resp Response
		if err := json.Unmarshal(v.([]byte), &resp); err == nil {
			zap.L().Debug("reconstructor: cache hit", zap.String("key", key[:12]))
			return &resp, nil
		}
		c.cache.Delete(key)
	}

	resp, err := c.next.Reconstruct(ctx, req)
	if err != nil || resp == nil || resp.Status != StatusOK {
		return resp, err
	}

	stored := *resp
	stored.Usage.InputTokens, stored.Usage.OutputTokens = 0, 0
	stored.Usage.CacheCreationTokens, stored.Usage.CacheReadTokens = 0, 0
	stored.Usage.CostUSD = 0
	if data, err := json.Marshal(stored); err == nil {
		c.cache.SetDefault(key, data)
	}
	return resp, nil
}

func cacheKey(req Request) (string, error) {
	if len(req.Client.NowISO) > 10 {
		req.Client.NowISO = req.Client.NowISO[:10]
	}
	data, err := encodeRequest(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
