package window

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// ErrNoOverrideStore is returned by SetSharedOverride when no shared
// override collaborator was configured.
var ErrNoOverrideStore = errors.New("no shared override store configured")

// OverrideStore reads and writes the shared dev-mode override. Reads
// default to false on error; writes may be rejected for unprivileged
// callers.
type OverrideStore interface {
	GetDevMode(ctx context.Context) (bool, error)
	SetDevMode(ctx context.Context, enabled bool) error
}

// Controller is the single source of truth for whether the board is
// open and how long until the next transition. It recomputes state on
// a fixed tick and on override changes; the shared override is cached
// and refreshed only on init and change notifications, never per tick.
type Controller struct {
	schedule Schedule
	now      func() time.Time
	interval time.Duration
	source   OverrideStore

	mu            sync.Mutex
	localOverride bool
	sharedCache   bool
	subs          map[int]chan State
	nextSubID     int

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock injects the time source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTickInterval overrides the 1-second recompute interval.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.interval = d }
}

// WithOverrideStore attaches the shared override collaborator. Without
// one the shared override is permanently false.
func WithOverrideStore(store OverrideStore) Option {
	return func(c *Controller) { c.source = store }
}

// WithLocalOverride seeds the client-local override flag.
func WithLocalOverride(enabled bool) Option {
	return func(c *Controller) { c.localOverride = enabled }
}

func NewController(schedule Schedule, opts ...Option) *Controller {
	c := &Controller{
		schedule: schedule,
		now:      time.Now,
		interval: time.Second,
		subs:     make(map[int]chan State),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the tick loop and the initial shared-override fetch.
// The fetch is fire-and-forget: state computation never waits on it.
func (c *Controller) Start() {
	if c.source != nil {
		go c.refreshShared()
	}
	go c.loop()
}

// Close stops the tick loop. Subscriber channels stop receiving but
// are not closed; callers release their own subscriptions.
func (c *Controller) Close() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Controller) loop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.broadcast(c.State())
		}
	}
}

// State computes the current window state from the captured clock and
// cached override flags. Side-effect free.
func (c *Controller) State() State {
	c.mu.Lock()
	override := c.localOverride || c.sharedCache
	c.mu.Unlock()
	return c.schedule.Compute(c.now(), override)
}

// Subscribe registers a listener for every tick and override change.
// The returned release func must be called on teardown; leaking it
// leaves a dead channel in the broadcast set.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = ch
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
	return ch, release
}

func (c *Controller) broadcast(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- state:
		default:
			// Subscriber is lagging; drop the tick rather than block.
		}
	}
}

// SetLocalOverride flips the client-local override and notifies
// subscribers immediately.
func (c *Controller) SetLocalOverride(enabled bool) {
	c.mu.Lock()
	c.localOverride = enabled
	c.mu.Unlock()
	c.broadcast(c.State())
}

// LocalOverride reports the client-local override flag.
func (c *Controller) LocalOverride() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localOverride
}

// SharedOverride reports the cached shared override flag.
func (c *Controller) SharedOverride() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sharedCache
}

// SetSharedOverride writes the shared override through the collaborator.
// On rejection the cache is left unchanged and the error surfaces to
// the caller; on success the cache updates and subscribers are
// notified without waiting for the next fetch.
func (c *Controller) SetSharedOverride(ctx context.Context, enabled bool) error {
	if c.source == nil {
		return ErrNoOverrideStore
	}
	if err := c.source.SetDevMode(ctx, enabled); err != nil {
		return err
	}
	c.mu.Lock()
	c.sharedCache = enabled
	c.mu.Unlock()
	c.broadcast(c.State())
	return nil
}

// Notify signals that the shared override may have changed elsewhere
// (the in-process devModeChange equivalent); the cache is re-read
// asynchronously.
func (c *Controller) Notify() {
	if c.source == nil {
		return
	}
	go c.refreshShared()
}

func (c *Controller) refreshShared() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	enabled, err := c.source.GetDevMode(ctx)
	if err != nil {
		// Non-fatal: local clock computation stays the source of truth.
		log.Printf("window: shared override fetch failed, defaulting to off: %v", err)
		enabled = false
	}
	c.mu.Lock()
	changed := c.sharedCache != enabled
	c.sharedCache = enabled
	c.mu.Unlock()
	if changed {
		c.broadcast(c.State())
	}
}
