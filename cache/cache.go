package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const DefaultRefreshInterval = 60 * time.Second

var ErrNoFetcher = errors.New("no fetcher registered for key")

var tracer = otel.Tracer("shopdash-cache")

// Fetcher loads the value of one key from its source.
type Fetcher func(ctx context.Context) (any, error)

// Entry is a snapshot of one key.
type Entry struct {
	Key       Key
	Data      any
	Err       error
	Loading   bool
	FetchedAt time.Time
}

type entry struct {
	data      any
	err       error
	loading   int
	fetchedAt time.Time

	// stale is set by invalidation; gen counts invalidations so a fetch that
	// started before one cannot mark the entry fresh again.
	stale bool
	gen   uint64
	// seq of the fetch whose result is stored; older results are dropped.
	seq uint64

	fetch Fetcher
	subs  map[*Subscription]struct{}
	stop  chan struct{}
}

// Cache is the keyed, revalidating store in front of the query builder.
// Concurrent fetches of one key share a single backend call.
type Cache struct {
	interval  time.Duration
	mirror    Mirror
	mirrorTTL time.Duration
	logger    *logrus.Logger
	now       func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[Key]*entry
	seq     uint64
}

type Option func(*Cache)

// WithRefreshInterval sets how long an entry stays fresh and how often subscribed keys refresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMirror shares fetched entries and invalidations with other instances.
func WithMirror(m Mirror, ttl time.Duration) Option {
	return func(c *Cache) {
		c.mirror = m
		c.mirrorTTL = ttl
	}
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

func New(opts ...Option) *Cache {
	c := &Cache{
		interval:  DefaultRefreshInterval,
		mirrorTTL: DefaultRefreshInterval,
		logger:    config.GetLogger(),
		now:       time.Now,
		entries:   make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the entry for key, fetching it when it is missing, stale, expired or failed.
// The null key returns an empty entry without fetching.
func (c *Cache) Get(ctx context.Context, key Key, fetch Fetcher) Entry {
	if key.IsNull() {
		return Entry{}
	}
	c.mu.Lock()
	e := c.lookup(key)
	if fetch != nil {
		e.fetch = fetch
	}
	if c.fresh(e) {
		snap := e.snapshot(key)
		c.mu.Unlock()
		return snap
	}
	c.mu.Unlock()
	return c.revalidate(ctx, key)
}

// Peek returns the current entry without fetching.
func (c *Cache) Peek(key Key) Entry {
	if key.IsNull() {
		return Entry{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry{Key: key}
	}
	return e.snapshot(key)
}

// IsFresh reports whether key holds a value that Get would serve without fetching.
func (c *Cache) IsFresh(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && c.fresh(e)
}

func (c *Cache) revalidate(ctx context.Context, key Key) Entry {
	c.mu.Lock()
	e := c.lookup(key)
	fetch := e.fetch
	c.mu.Unlock()
	if fetch == nil {
		return Entry{Key: key, Err: ErrNoFetcher}
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		c.mu.Lock()
		c.seq++
		seq, gen := c.seq, e.gen
		e.loading++
		c.mu.Unlock()

		fctx, span := tracer.Start(context.WithoutCancel(ctx), "cache.fetch", trace.WithAttributes(attribute.String("key", key.String())))
		data, err := fetch(fctx)
		span.End()

		c.mu.Lock()
		e.loading--
		c.store(key, e, seq, gen, data, err)
		c.mu.Unlock()
		return data, err
	})

	c.mu.Lock()
	fetchedAt := e.fetchedAt
	c.mu.Unlock()
	return Entry{Key: key, Data: v, Err: err, FetchedAt: fetchedAt}
}

// store records a fetch result. Caller holds c.mu.
func (c *Cache) store(key Key, e *entry, seq uint64, gen uint64, data any, err error) {
	if seq < e.seq {
		return
	}
	e.seq = seq
	if err != nil {
		// the previous value stays, but a failed entry is never fresh
		e.err = err
	} else {
		e.data = data
		e.err = nil
		e.fetchedAt = c.now()
		e.stale = gen != e.gen
	}
	snap := e.snapshot(key)
	for sub := range e.subs {
		sub.push(snap)
	}
}

func (c *Cache) fresh(e *entry) bool {
	return !e.fetchedAt.IsZero() && e.err == nil && !e.stale && c.now().Sub(e.fetchedAt) < c.interval
}

// lookup returns the entry for key, creating it. Caller holds c.mu.
func (c *Cache) lookup(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

func (c *Cache) generation(key Key) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.gen
	}
	return 0
}

// invalidated reports whether key was invalidated since its last stored fetch.
func (c *Cache) invalidated(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.stale
}

func (e *entry) snapshot(key Key) Entry {
	return Entry{Key: key, Data: e.data, Err: e.err, Loading: e.loading > 0, FetchedAt: e.fetchedAt}
}

// Invalidate forces the next access to each key to re-fetch.
func (c *Cache) Invalidate(ctx context.Context, keys ...Key) {
	c.Apply(ctx, Invalidation{Keys: keys})
}

// InvalidateResource drops every key (lists, details, composites) of the resources.
func (c *Cache) InvalidateResource(ctx context.Context, resources ...string) {
	c.Apply(ctx, Invalidation{Resources: resources})
}

// InvalidateLists drops every list key of the resources, whatever their options.
func (c *Cache) InvalidateLists(ctx context.Context, resources ...string) {
	c.Apply(ctx, Invalidation{Lists: resources})
}

// Apply invalidates the mirror first, so a refresh it triggers cannot read a mirrored stale copy.
func (c *Cache) Apply(ctx context.Context, inv Invalidation) {
	if inv.IsEmpty() {
		return
	}
	if c.mirror != nil {
		if err := c.mirror.Invalidate(ctx, inv); err != nil {
			c.logger.WithFields(logrus.Fields{"module": "cache", "funcName": "Apply"}).Warn("mirror invalidation failed: " + err.Error())
		}
	}
	c.invalidateLocal(inv)
}

func (c *Cache) invalidateLocal(inv Invalidation) {
	var refresh []Key
	c.mu.Lock()
	for key, e := range c.entries {
		if !inv.Matches(key) {
			continue
		}
		e.stale = true
		e.gen++
		c.group.Forget(key.String())
		if len(e.subs) > 0 {
			refresh = append(refresh, key)
		}
	}
	c.mu.Unlock()

	for _, key := range refresh {
		go c.refresh(context.Background(), key)
	}
}

func (c *Cache) refresh(ctx context.Context, key Key) {
	if e := c.revalidate(ctx, key); e.Err != nil {
		config.LogError(c.logger, "cache", "refresh", key.String(), nil, e.Err)
	}
}

// ListenRemote applies invalidations published by other instances until ctx is done.
func (c *Cache) ListenRemote(ctx context.Context) error {
	l, ok := c.mirror.(RemoteListener)
	if !ok {
		return nil
	}
	return l.Listen(ctx, c.invalidateLocal)
}

// Subscribe keeps key refreshed every interval until the last subscription closes.
func (c *Cache) Subscribe(ctx context.Context, key Key, fetch Fetcher) *Subscription {
	sub := &Subscription{c: c, key: key, updates: make(chan Entry, 1)}
	if key.IsNull() {
		return sub
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookup(key)
	if fetch != nil {
		e.fetch = fetch
	}
	if e.subs == nil {
		e.subs = make(map[*Subscription]struct{})
	}
	e.subs[sub] = struct{}{}
	if len(e.subs) == 1 {
		e.stop = make(chan struct{})
		go c.refreshLoop(context.WithoutCancel(ctx), key, e.stop)
	}
	return sub
}

func (c *Cache) refreshLoop(ctx context.Context, key Key, stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.refresh(ctx, key)
		}
	}
}

// Subscription is one consumer depending on a key's background refresh.
type Subscription struct {
	c       *Cache
	key     Key
	updates chan Entry
	once    sync.Once
}

func (s *Subscription) Key() Key {
	return s.key
}

// Updates delivers the latest entry after every fetch; intermediate ones may be skipped.
func (s *Subscription) Updates() <-chan Entry {
	return s.updates
}

// Close stops depending on the key. The refresh stops with the last subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.key.IsNull() {
			return
		}
		c := s.c
		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[s.key]
		if !ok {
			return
		}
		delete(e.subs, s)
		if len(e.subs) == 0 && e.stop != nil {
			close(e.stop)
			e.stop = nil
		}
	})
}

// push replaces any undelivered update with e. Caller holds c.mu.
func (s *Subscription) push(e Entry) {
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- e:
	default:
	}
}
