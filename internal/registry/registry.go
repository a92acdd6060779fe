package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"liqfeed/config"
	liq "liqfeed/internal/channel/liq"
	"liqfeed/internal/dedup"
	"liqfeed/internal/health"
	"liqfeed/internal/models"
	"liqfeed/logger"
)

// ErrCycleTimeout marks vaults abandoned when the polling phase ran out of time.
var ErrCycleTimeout = errors.New("polling phase timed out")

// Discoverer resolves the current vault set.
type Discoverer interface {
	Discover(ctx context.Context) ([]models.VaultAddress, error)
}

// Poller fetches the recent fills of one vault.
type Poller interface {
	Poll(ctx context.Context, vault models.VaultAddress) ([]models.TradeRecord, error)
}

// Registry coordinates discovery, polling, merging and publishing.
type Registry struct {
	cfg        config.RegistryConfig
	discoverer Discoverer
	poller     Poller
	cache      *dedup.Cache
	health     *health.Tracker
	trades     *liq.Channels
	now        func() time.Time
	log        *logger.Log

	state    atomic.Int32
	snapshot atomic.Pointer[models.Snapshot]
	refresh  chan struct{}

	// guarded by cycleMu; only the running cycle touches these
	cycleMu   sync.Mutex
	vaults    []models.VaultAddress
	discovery models.DiscoveryStatus
	sequence  uint64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock used by the registry, its cache and its tracker.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Log) Option {
	return func(r *Registry) {
		r.log = log
	}
}

// WithTradeChannel streams every newly admitted trade into ch.
func WithTradeChannel(ch *liq.Channels) Option {
	return func(r *Registry) {
		r.trades = ch
	}
}

// New builds a registry. The returned registry already holds an empty
// snapshot, so Snapshot never returns nil.
func New(cfg config.RegistryConfig, discoverer Discoverer, poller Poller, opts ...Option) *Registry {
	r := &Registry{
		cfg:        withDefaults(cfg),
		discoverer: discoverer,
		poller:     poller,
		now:        time.Now,
		log:        logger.GetLogger(),
		refresh:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.cache = dedup.New(dedup.Config{MaxAge: r.cfg.Retention, MaxRecords: r.cfg.MaxRecords},
		dedup.WithClock(r.now), dedup.WithLogger(r.log))
	r.health = health.NewTracker(health.WithClock(r.now), health.WithLogger(r.log))

	r.snapshot.Store(&models.Snapshot{
		PublishedAt:    r.now(),
		Trades:         []models.TradeRecord{},
		Vaults:         map[models.VaultAddress]models.VaultHealth{},
		StaleThreshold: r.cfg.StaleThreshold,
		StaleVaults:    []models.VaultAddress{},
		AllStale:       true,
	})
	return r
}

func withDefaults(cfg config.RegistryConfig) config.RegistryConfig {
	def := config.Default().Registry
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = def.CycleInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = def.CycleTimeout
	}
	if cfg.DiscoveryTimeout <= 0 {
		cfg.DiscoveryTimeout = def.DiscoveryTimeout
	}
	if cfg.PollTimeout <= 0 || cfg.PollTimeout > cfg.CycleTimeout {
		cfg.PollTimeout = cfg.CycleTimeout
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = health.DefaultStaleThreshold
	}
	if cfg.Retention <= 0 && cfg.MaxRecords <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.Retry.BackoffMultiplier < 1 {
		cfg.Retry.BackoffMultiplier = 1
	}
	return cfg
}

// Snapshot returns the latest published snapshot. It never blocks on a
// running cycle.
func (r *Registry) Snapshot() *models.Snapshot {
	return r.snapshot.Load()
}

// State returns the current cycle state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

func (r *Registry) setState(s State) {
	r.state.Store(int32(s))
}

// Cache exposes the merge cache for read access.
func (r *Registry) Cache() *dedup.Cache {
	return r.cache
}

// Refresh asks the running loop to start a cycle now. Requests made while a
// cycle is pending are coalesced.
func (r *Registry) Refresh() {
	select {
	case r.refresh <- struct{}{}:
	default:
	}
}

// Start runs a cycle immediately and then one every cycle interval until
// ctx is cancelled or Stop is called.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("registry already running")
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	r.log.WithComponent("registry").WithFields(logger.Fields{
		"cycle_interval":  r.cfg.CycleInterval.String(),
		"cycle_timeout":   r.cfg.CycleTimeout.String(),
		"poll_timeout":    r.cfg.PollTimeout.String(),
		"stale_threshold": r.cfg.StaleThreshold.String(),
	}).Info("registry started")

	go r.run(ctx, done)
	return nil
}

// Stop cancels the loop and waits for the current cycle to finish or for
// ctx to expire.
func (r *Registry) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		r.log.WithComponent("registry").Info("registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleTimeout) {
			r.log.WithComponent("registry").WithError(err).Warn("registry cycle failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.refresh:
			r.log.WithComponent("registry").Debug("forced refresh")
		}
	}
}
