package cooldown

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the controller's position in the idle/syncing/cooldown cycle.
type State string

const (
	StateIdle     State = "idle"
	StateSyncing  State = "syncing"
	StateCooldown State = "cooldown"
)

// DefaultWindow is the cooldown applied after every manual sync.
const DefaultWindow = 60 * time.Second

// RejectedError reports a sync request refused because the controller is
// busy or cooling down.
type RejectedError struct {
	State     State
	Remaining time.Duration
}

func (e *RejectedError) Error() string {
	if e.State == StateSyncing {
		return "sync already in progress"
	}
	return fmt.Sprintf("cooldown active, try again in %ds", int(e.Remaining.Seconds()+0.5))
}

// Controller throttles manual refreshes for one rendered widget instance.
// Two widgets showing the same KPI key each carry their own controller even
// though they share a cache entry underneath.
type Controller struct {
	mu       sync.Mutex
	state    State
	deadline time.Time
	window   time.Duration
	now      func() time.Time
}

// New constructs an idle Controller. A non-positive window falls back to
// DefaultWindow.
func New(window time.Duration) *Controller {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Controller{state: StateIdle, window: window, now: time.Now}
}

// Sync runs refresh if the controller is idle, then enters cooldown whether
// the refresh succeeded or failed. While syncing or cooling down the request
// is rejected with a RejectedError carrying the remaining wait.
func (c *Controller) Sync(ctx context.Context, refresh func(context.Context) error) error {
	c.mu.Lock()
	c.expireLocked()
	if c.state != StateIdle {
		rej := &RejectedError{State: c.state, Remaining: c.remainingLocked()}
		c.mu.Unlock()
		return rej
	}
	c.state = StateSyncing
	c.mu.Unlock()

	err := refresh(ctx)

	c.mu.Lock()
	c.state = StateCooldown
	c.deadline = c.now().Add(c.window)
	c.mu.Unlock()
	time.AfterFunc(c.window, c.expire)
	return err
}

// CanSync reports whether a sync request would be accepted right now.
func (c *Controller) CanSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	return c.state == StateIdle
}

// Remaining returns the time left until the cooldown window elapses; zero
// when idle or still syncing.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	return c.remainingLocked()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
	return c.state
}

func (c *Controller) expire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked()
}

// expireLocked flips cooldown back to idle once the deadline has passed.
// The timer normally does this, but checking lazily keeps observers exact
// at the window boundary.
func (c *Controller) expireLocked() {
	if c.state == StateCooldown && !c.now().Before(c.deadline) {
		c.state = StateIdle
	}
}

func (c *Controller) remainingLocked() time.Duration {
	if c.state != StateCooldown {
		return 0
	}
	rem := c.deadline.Sub(c.now())
	if rem < 0 {
		return 0
	}
	return rem
}
