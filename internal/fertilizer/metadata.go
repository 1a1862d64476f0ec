// Package fertilizer implements the prediction pipeline: metadata loading,
// input validation, result tracking and the session that ties them together.
package fertilizer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	apperrors "fertismart/internal/common/errors"
	"fertismart/internal/common/logger"
	"fertismart/internal/common/metrics"
	"fertismart/internal/models"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	metadataFlightKey = "metadata"

	// DefaultMetadataKey is the Redis key used when none is configured.
	DefaultMetadataKey = "fertismart:metadata"
)

// MetadataFetcher retrieves metadata from the inference service.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context) (*models.Metadata, error)
}

// MetadataCache holds the fetched metadata. Load reports a miss with false;
// implementations never fail a lookup.
type MetadataCache interface {
	Load(ctx context.Context) (*models.Metadata, bool)
	Store(ctx context.Context, meta *models.Metadata) error
	Backend() string
}

// MemoryCache keeps metadata for the lifetime of the process.
type MemoryCache struct {
	mu   sync.RWMutex
	meta *models.Metadata
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Load(_ context.Context) (*models.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta, c.meta != nil
}

func (c *MemoryCache) Store(_ context.Context, meta *models.Metadata) error {
	c.mu.Lock()
	c.meta = meta
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Backend() string { return "memory" }

// RedisCache shares metadata between worker replicas. Entries expire after
// ttl so a redeployed model is eventually picked up.
type RedisCache struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisCache(client redis.Cmdable, key string, ttl time.Duration, log logger.Logger) *RedisCache {
	if key == "" {
		key = DefaultMetadataKey
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &RedisCache{client: client, key: key, ttl: ttl, logger: log}
}

func (c *RedisCache) Load(ctx context.Context) (*models.Metadata, bool) {
	val, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("metadata cache read failed", map[string]interface{}{
				"key":   c.key,
				"error": err.Error(),
			})
		}
		return nil, false
	}

	var meta models.Metadata
	if err := json.Unmarshal(val, &meta); err != nil {
		c.logger.Warn("ignoring corrupt metadata cache entry", map[string]interface{}{
			"key":   c.key,
			"error": err.Error(),
		})
		return nil, false
	}
	return &meta, true
}

func (c *RedisCache) Store(ctx context.Context, meta *models.Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, data, c.ttl).Err()
}

func (c *RedisCache) Backend() string { return "redis" }

// DefaultFetchTimeout bounds a metadata fetch when no timeout is configured.
const DefaultFetchTimeout = 10 * time.Second

// MetadataProvider fetches metadata once and serves it from cache
// afterwards. Concurrent callers share a single in-flight fetch.
type MetadataProvider struct {
	fetcher      MetadataFetcher
	cache        MetadataCache
	logger       logger.Logger
	fetchTimeout time.Duration
	group        singleflight.Group

	mu       sync.Mutex
	inflight *flight
}

// flight is the context a shared fetch runs on. It outlives any single
// caller and is cancelled once no caller is waiting for it.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type ProviderOption func(*MetadataProvider)

// WithFetchTimeout bounds each fetch independently of the callers'
// deadlines.
func WithFetchTimeout(d time.Duration) ProviderOption {
	return func(p *MetadataProvider) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

func NewMetadataProvider(fetcher MetadataFetcher, cache MetadataCache, log logger.Logger, opts ...ProviderOption) *MetadataProvider {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	p := &MetadataProvider{
		fetcher:      fetcher,
		cache:        cache,
		logger:       log.WithFields(map[string]interface{}{"component": "metadata", "cache": cache.Backend()}),
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Get returns the cached metadata, fetching it on first use. Each caller
// waits only as long as its own ctx allows; the fetch itself is bounded by
// the fetch timeout and abandoned, storing nothing, when every caller has
// gone.
func (p *MetadataProvider) Get(ctx context.Context) (*models.Metadata, error) {
	if meta, ok := p.lookup(ctx); ok {
		return meta, nil
	}

	f := p.join(ctx)
	defer p.leave(f)

	for attempt := 0; ; attempt++ {
		ch := p.group.DoChan(metadataFlightKey, func() (interface{}, error) {
			return p.fetchAndStore(f.ctx)
		})

		select {
		case <-ctx.Done():
			return nil, callerDone(ctx)
		case res := <-ch:
			if res.Err != nil {
				// Joined a fetch that was abandoned by its own callers.
				if res.Shared && attempt == 0 && apperrors.IsCancelled(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return res.Val.(*models.Metadata), nil
		}
	}
}

func (p *MetadataProvider) join(ctx context.Context) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inflight == nil || p.inflight.ctx.Err() != nil {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.fetchTimeout)
		p.inflight = &flight{ctx: fctx, cancel: cancel}
	}
	p.inflight.waiters++
	return p.inflight
}

func (p *MetadataProvider) leave(f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if p.inflight == f {
		p.inflight = nil
	}
}

// callerDone reports why a caller stopped waiting. A deadline is a timeout
// like any other; only cancellation is benign.
func callerDone(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.NewNetworkError(ctx.Err())
	}
	return apperrors.NewCancelledError("metadata fetch")
}

// Cached returns the metadata if it has already been loaded.
func (p *MetadataProvider) Cached(ctx context.Context) (*models.Metadata, bool) {
	return p.cache.Load(ctx)
}

func (p *MetadataProvider) lookup(ctx context.Context) (*models.Metadata, bool) {
	meta, ok := p.cache.Load(ctx)
	result := "miss"
	if ok {
		result = "hit"
	}
	metrics.MetadataCacheLookups.WithLabelValues(p.cache.Backend(), result).Inc()
	return meta, ok
}

func (p *MetadataProvider) fetchAndStore(ctx context.Context) (*models.Metadata, error) {
	if meta, ok := p.cache.Load(ctx); ok {
		return meta, nil
	}

	meta, err := p.fetcher.FetchMetadata(ctx)
	if err != nil {
		if !apperrors.IsCancelled(err) && errors.Is(ctx.Err(), context.Canceled) {
			err = apperrors.NewCancelledError("metadata fetch")
		}
		return nil, err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		// every caller has gone
		return nil, apperrors.NewCancelledError("metadata fetch")
	}

	if err := p.cache.Store(ctx, meta); err != nil {
		p.logger.Warn("failed to cache metadata", map[string]interface{}{"error": err.Error()})
	}
	p.logger.Info("metadata loaded", map[string]interface{}{
		"crops":  len(meta.Crops),
		"labels": len(meta.LabelMapping),
	})
	return meta, nil
}
