package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Clock is the host timer facility.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers firings at a fixed period. Its channel holds at most one
// undelivered firing; later ones are dropped until it is read.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (t systemTicker) C() <-chan time.Time { return t.t.C }
func (t systemTicker) Stop()               { t.t.Stop() }

// ManualClock is a Clock that only moves when Advance is called.
// Tickers fire synchronously inside Advance.
type ManualClock struct {
	now     time.Time
	tickers []*manualTicker
	fired   int
	mu      sync.Mutex
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTicker{
		clock:  c,
		period: d,
		next:   c.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by d, firing every ticker deadline that
// falls inside the interval in time order.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		due := c.due(target)
		if len(due) == 0 {
			break
		}
		at := due[0].next
		c.now = at
		for _, t := range due {
			if !t.next.Equal(at) {
				break
			}
			t.fire(at)
		}
	}
	c.now = target
}

// due returns active tickers with deadlines at or before target, earliest first.
func (c *ManualClock) due(target time.Time) []*manualTicker {
	var out []*manualTicker
	for _, t := range c.tickers {
		if !t.stopped && !t.next.After(target) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].next.Before(out[j].next) })
	return out
}

// Tickers reports how many tickers were created and not stopped.
func (c *ManualClock) Tickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Fired reports how many firings were delivered to ticker channels.
// Firings dropped because a channel was full are not counted.
func (c *ManualClock) Fired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired
}

type manualTicker struct {
	next    time.Time
	clock   *ManualClock
	ch      chan time.Time
	period  time.Duration
	stopped bool
}

// fire must be called with the clock lock held.
func (t *manualTicker) fire(at time.Time) {
	select {
	case t.ch <- at:
		t.clock.fired++
	default:
	}
	t.next = t.next.Add(t.period)
}

func (t *manualTicker) C() <-chan time.Time {
	return t.ch
}

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

var (
	_ Clock = SystemClock{}
	_ Clock = (*ManualClock)(nil)
)
