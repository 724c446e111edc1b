package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fleetmetrics/internal/models"
	"fleetmetrics/internal/payload"
)

// FetchFunc retrieves the raw payload for one KPI over one range. The result
// may be any JSON-decoded value; the coordinator normalizes it before use.
type FetchFunc func(ctx context.Context, kpi string, r models.Range) (interface{}, error)

// Options tunes the coordinator. Zero values fall back to the defaults.
type Options struct {
	Freshness  time.Duration // serve cached data without refetching for this long
	RetryMax   int           // automatic retries after a failed fetch
	RetryDelay time.Duration // fixed delay between retries
}

const (
	defaultFreshness  = 30 * time.Second
	defaultRetryMax   = 2
	defaultRetryDelay = 5 * time.Second
)

// Snapshot is the consumer-facing view of one cache entry. Payload may be
// stale while Err is set; a widget shows the last good value plus a warning.
type Snapshot struct {
	Payload    *models.SafePayload
	Loading    bool // fetch in flight with no prior payload
	Validating bool // fetch in flight behind an existing payload
	Err        error
	FetchedAt  time.Time
}

// entry is the shared per-key cache record. All fields are guarded by the
// coordinator mutex; at most one fetch operation owns the current token.
type entry struct {
	key       models.Key
	payload   *models.SafePayload
	fetchedAt time.Time
	err       error
	token     uint64
	inflight  bool
	manual    bool // current operation was started by a manual refresh
	failures  int
	done      chan struct{}
	subs      map[*Subscription]struct{}
}

// Coordinator is a keyed, deduplicated, revalidating cache of SafePayloads.
// Subscribers to the same (kpi, range) share one entry and one in-flight
// fetch; entries are never evicted.
type Coordinator struct {
	mu      sync.Mutex
	fetch   FetchFunc
	logger  *logrus.Logger
	opts    Options
	entries map[models.Key]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	now     func() time.Time
}

// New constructs a Coordinator around the injected fetch function.
func New(fetch FetchFunc, logger *logrus.Logger, opts Options) *Coordinator {
	if opts.Freshness <= 0 {
		opts.Freshness = defaultFreshness
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		fetch:   fetch,
		logger:  logger,
		opts:    opts,
		entries: make(map[models.Key]*entry),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// Close stops all background fetch activity.
func (c *Coordinator) Close() {
	c.cancel()
}

// Subscription delivers snapshots of one cache entry to one observer.
type Subscription struct {
	c      *Coordinator
	key    models.Key
	ch     chan Snapshot
	closed bool
}

// Updates returns the snapshot channel. Delivery is latest-wins: a slow
// reader only ever misses intermediate states, never the newest one.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.ch
}

// Snapshot reads the current shared entry state.
func (s *Subscription) Snapshot() Snapshot {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	return s.c.snapshotLocked(s.c.entries[s.key])
}

// Refresh forces a fetch for the subscription's key.
func (s *Subscription) Refresh(ctx context.Context) error {
	return s.c.Refresh(ctx, s.key)
}

// Close stops delivery to this observer. The entry and any in-flight fetch
// survive; remaining subscribers are unaffected.
func (s *Subscription) Close() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if e, ok := s.c.entries[s.key]; ok {
		delete(e.subs, s)
	}
	close(s.ch)
}

// Subscribe registers an observer for key, creating the entry on first use.
// A fetch starts when the entry has no payload or its data has aged past the
// freshness window; a fetch already in flight is shared, never duplicated.
// The current snapshot is delivered immediately on the returned channel.
func (c *Coordinator) Subscribe(key models.Key) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key)
	sub := &Subscription{c: c, key: key, ch: make(chan Snapshot, 1)}
	e.subs[sub] = struct{}{}

	if !e.inflight && c.staleLocked(e) {
		c.startFetchLocked(e, false)
	}
	select {
	case <-sub.ch:
	default:
	}
	sub.ch <- c.snapshotLocked(e)
	return sub
}

// Refresh forces a fetch for key regardless of freshness and waits for it to
// settle. A manual refresh already in flight is joined rather than repeated;
// an automatic revalidation in flight is superseded by a fresh request and
// its late response discarded.
func (c *Coordinator) Refresh(ctx context.Context, key models.Key) error {
	c.mu.Lock()
	e := c.entryLocked(key)
	if !e.inflight || !e.manual {
		c.startFetchLocked(e, true)
	}
	for e.inflight {
		done := e.done
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}
		c.mu.Lock()
	}
	err := e.err
	c.mu.Unlock()
	return err
}

// Invalidate marks every cached range of a KPI stale. Entries with live
// subscribers revalidate immediately; idle entries refetch on next use.
func (c *Coordinator) Invalidate(kpi string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		if key.KPI != kpi {
			continue
		}
		e.fetchedAt = time.Time{}
		if len(e.subs) > 0 && !e.inflight {
			c.startFetchLocked(e, false)
		}
	}
}

func (c *Coordinator) entryLocked(key models.Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key, subs: make(map[*Subscription]struct{})}
		c.entries[key] = e
	}
	return e
}

func (c *Coordinator) staleLocked(e *entry) bool {
	if e.payload == nil {
		return true
	}
	return c.now().Sub(e.fetchedAt) > c.opts.Freshness
}

func (c *Coordinator) snapshotLocked(e *entry) Snapshot {
	if e == nil {
		return Snapshot{}
	}
	return Snapshot{
		Payload:    e.payload,
		Loading:    e.inflight && e.payload == nil,
		Validating: e.inflight && e.payload != nil,
		Err:        e.err,
		FetchedAt:  e.fetchedAt,
	}
}

// startFetchLocked begins a new fetch operation, superseding any previous
// one: the token bump makes late responses from older operations no-ops.
func (c *Coordinator) startFetchLocked(e *entry, manual bool) {
	e.token++
	if e.done != nil && e.inflight {
		close(e.done) // wake waiters of the superseded operation
	}
	e.inflight = true
	e.manual = manual
	e.failures = 0
	e.done = make(chan struct{})
	tok := e.token
	c.broadcastLocked(e)
	go c.attempt(e.key, tok, 1)
}

// attempt performs one fetch try for the operation identified by tok.
func (c *Coordinator) attempt(key models.Key, tok uint64, try int) {
	raw, err := c.fetch(c.ctx, key.KPI, key.Range)

	var sp *models.SafePayload
	if err == nil {
		sp, err = payload.Normalize(raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil || tok != e.token {
		c.logger.Debugf("Discarding superseded response for %s", key)
		return
	}

	if err == nil {
		e.payload = sp
		e.fetchedAt = c.now()
		e.err = nil
		e.failures = 0
		c.settleLocked(e)
		c.logger.Debugf("Fetched payload for %s", key)
		return
	}

	e.failures++
	c.logger.Warnf("Fetch attempt %d for %s failed: %v", try, key, err)
	if try <= c.opts.RetryMax {
		time.AfterFunc(c.opts.RetryDelay, func() {
			c.mu.Lock()
			stale := c.entries[key] == nil || tok != c.entries[key].token
			c.mu.Unlock()
			if stale {
				return
			}
			c.attempt(key, tok, try+1)
		})
		return
	}

	// Retries exhausted: surface the error, keep the last good payload.
	e.err = err
	c.settleLocked(e)
	c.logger.Errorf("Fetch for %s failed after %d attempts: %v", key, try, err)
}

func (c *Coordinator) settleLocked(e *entry) {
	e.inflight = false
	e.manual = false
	close(e.done)
	c.broadcastLocked(e)
}

// broadcastLocked pushes the current snapshot to every subscriber of an
// entry, replacing any undelivered older snapshot.
func (c *Coordinator) broadcastLocked(e *entry) {
	snap := c.snapshotLocked(e)
	for sub := range e.subs {
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}
