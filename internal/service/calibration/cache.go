package calibration

import (
	"context"
	"sync"
	"time"

	"SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	pkgcache "SynthCast/pkg/cache"
	"SynthCast/pkg/logger"
)

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the staleness threshold (default 6h).
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithWindow sets the trailing returns window passed to the market-data
// collaborator (default 48h).
func WithWindow(w time.Duration) Option {
	return func(c *Cache) { c.window = w }
}

// WithFetchTimeout bounds each refresh call (default 5s).
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

// WithMirror enables a write-through mirror so replicas share entries.
func WithMirror(mirror pkgcache.Service) Option {
	return func(c *Cache) { c.mirror = mirror }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache holds per-asset volatility/drift statistics with a TTL refresh
// policy. Entries are created on first request, refreshed in place when
// stale, and never deleted.
type Cache struct {
	market       domrepo.MarketData
	metrics      domrepo.Metrics
	log          *logger.Logger
	ttl          time.Duration
	window       time.Duration
	fetchTimeout time.Duration
	mirror       pkgcache.Service
	now          func() time.Time

	mu     sync.Mutex
	assets map[string]*assetState
}

type assetState struct {
	mu    sync.Mutex
	entry *models.CalibrationEntry
}

// New creates a calibration cache backed by the given market-data source.
func New(market domrepo.MarketData, metrics domrepo.Metrics, log *logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		market:       market,
		metrics:      metrics,
		log:          log,
		ttl:          6 * time.Hour,
		window:       48 * time.Hour,
		fetchTimeout: 5 * time.Second,
		now:          time.Now,
		assets:       make(map[string]*assetState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureCalibrated returns the current entry for the asset, refreshing it
// first if stale or missing. The second return reports a degraded condition:
// the refresh failed and a stale (or no) entry is being reused. A nil entry
// with degraded=true means no statistics are available at all; callers fall
// back to their configured parameters.
func (c *Cache) EnsureCalibrated(ctx context.Context, asset string) (*models.CalibrationEntry, bool, error) {
	state := c.state(asset)

	// Per-asset lock: concurrent requests for one asset never trigger
	// duplicate refresh calls.
	state.mu.Lock()
	defer state.mu.Unlock()

	now := c.now()

	if state.entry == nil && c.mirror != nil {
		c.adoptFromMirror(ctx, asset, state)
	}

	if state.entry != nil && state.entry.Age(now) <= c.ttl {
		entry := *state.entry
		return &entry, false, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	vol, drift, err := c.market.GetRecentReturns(fetchCtx, asset, c.window)
	if err != nil {
		c.metrics.RecordCalibration(asset, "error")
		if state.entry != nil {
			// Prior entry stays valid until a successful refresh.
			c.metrics.RecordCalibrationStaleReuse(asset)
			c.log.Warn("calibration refresh failed, reusing stale entry",
				logger.String("asset", asset),
				logger.Error(err),
				logger.Duration("age", state.entry.Age(now)),
			)
			entry := *state.entry
			return &entry, true, nil
		}
		c.log.Warn("calibration unavailable, no prior entry",
			logger.String("asset", asset),
			logger.Error(err),
		)
		return nil, true, nil
	}

	state.entry = &models.CalibrationEntry{
		Asset:          asset,
		Volatility:     vol,
		Drift:          drift,
		LastCalibrated: now,
	}
	c.metrics.RecordCalibration(asset, "ok")
	c.log.Info("calibration refreshed",
		logger.String("asset", asset),
		logger.Any("volatility", vol),
		logger.Any("drift", drift),
	)

	if c.mirror != nil {
		if err := c.mirror.Set(ctx, mirrorKey(asset), state.entry, 0); err != nil {
			c.log.Warn("calibration mirror write failed",
				logger.String("asset", asset),
				logger.Error(err),
			)
		}
	}

	entry := *state.entry
	return &entry, false, nil
}

// Entry returns the cached entry without refreshing, or nil.
func (c *Cache) Entry(asset string) *models.CalibrationEntry {
	state := c.state(asset)
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.entry == nil {
		return nil
	}
	entry := *state.entry
	return &entry
}

func (c *Cache) state(asset string) *assetState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.assets[asset]
	if !ok {
		s = &assetState{}
		c.assets[asset] = s
	}
	return s
}

// adoptFromMirror seeds a fresh process with an entry calibrated by another
// replica. Caller holds the asset lock.
func (c *Cache) adoptFromMirror(ctx context.Context, asset string, state *assetState) {
	var entry models.CalibrationEntry
	if err := c.mirror.Get(ctx, mirrorKey(asset), &entry); err != nil {
		return
	}
	if entry.Asset != asset || entry.LastCalibrated.IsZero() {
		return
	}
	state.entry = &entry
	c.log.Debug("calibration adopted from mirror", logger.String("asset", asset))
}

func mirrorKey(asset string) string {
	return "calibration:" + asset
}
