// Package carousel tracks which image of a product card is on display.
package carousel

import (
	"context"
	"strings"
	"sync"
	"time"

	"finitefield.org/storefront/internal/catalog"
)

// Mode selects what drives the carousel.
type Mode string

const (
	// Timer rotates through every image on a fixed interval (hero card).
	Timer Mode = "timer"
	// Hover shows the second image while the card is hovered or focused.
	Hover Mode = "hover"
)

// DefaultInterval is the hero rotation period.
const DefaultInterval = 2 * time.Second

// Event is emitted whenever the displayed index changes.
type Event struct {
	Key   string           `json:"key"`
	Index int              `json:"index"`
	Image catalog.ImageRef `json:"image"`
}

// TickerFunc creates a ticker. stop must release all resources held by the ticker.
type TickerFunc func(d time.Duration) (ticks <-chan time.Time, stop func())

// Option customises a Carousel.
type Option func(*Carousel)

// WithInterval overrides the timer period.
func WithInterval(d time.Duration) Option {
	return func(c *Carousel) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTicker replaces the ticker source, mainly for tests.
func WithTicker(fn TickerFunc) Option {
	return func(c *Carousel) {
		if fn != nil {
			c.newTicker = fn
		}
	}
}

// OnChange registers the observer for index changes. The observer runs with the carousel
// locked and must not call back into it.
func OnChange(fn func(Event)) Option {
	return func(c *Carousel) {
		c.onChange = fn
	}
}

// Carousel is the state of one rendered product card. It is never shared between cards.
type Carousel struct {
	key       string
	mode      Mode
	interval  time.Duration
	newTicker TickerFunc
	onChange  func(Event)

	mu       sync.Mutex
	images   []catalog.ImageRef
	identity string
	index    int
	hovering bool
	stopped  bool
	parent   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// New returns a carousel positioned on the first image.
func New(key string, images []catalog.ImageRef, mode Mode, opts ...Option) *Carousel {
	if mode != Timer {
		mode = Hover
	}
	c := &Carousel{
		key:       key,
		mode:      mode,
		interval:  DefaultInterval,
		newTicker: stdTicker,
		images:    append([]catalog.ImageRef(nil), images...),
		identity:  sequenceIdentity(images),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func stdTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Key identifies the card the carousel belongs to.
func (c *Carousel) Key() string { return c.key }

// Mode reports what drives the carousel.
func (c *Carousel) Mode() Mode { return c.mode }

// Len returns the number of images.
func (c *Carousel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images)
}

// Index returns the displayed index. It is always 0 for an empty carousel.
func (c *Carousel) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Hovering reports whether the hover/focus condition currently holds.
func (c *Carousel) Hovering() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hovering
}

// Current returns the displayed image; false when there is nothing to render.
func (c *Carousel) Current() (catalog.ImageRef, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.images) == 0 {
		return catalog.ImageRef{}, false
	}
	return c.images[c.index], true
}

// Tick advances a timer carousel by one image, wrapping at the end.
func (c *Carousel) Tick() {
	c.mu.Lock()
	if c.mode != Timer || c.stopped || len(c.images) <= 1 {
		c.mu.Unlock()
		return
	}
	c.setIndexLocked((c.index + 1) % len(c.images))
}

// SetHover updates the hover/focus condition of a hover carousel.
func (c *Carousel) SetHover(active bool) {
	c.mu.Lock()
	if c.mode != Hover || c.stopped {
		c.mu.Unlock()
		return
	}
	c.hovering = active
	next := 0
	if active && len(c.images) >= 2 {
		next = 1
	}
	c.setIndexLocked(next)
}

// Reset swaps the image sequence. The index returns to 0 only when the sequence identity
// changes, so re-rendering the same product keeps its position.
func (c *Carousel) Reset(images []catalog.ImageRef) {
	id := sequenceIdentity(images)
	c.mu.Lock()
	if id == c.identity {
		c.mu.Unlock()
		return
	}
	c.images = append([]catalog.ImageRef(nil), images...)
	c.identity = id
	c.hovering = false
	// a started carousel that now has something to rotate gets its ticker
	c.armLocked()
	if c.index == 0 || len(c.images) == 0 || c.stopped {
		c.index = 0
		c.mu.Unlock()
		return
	}
	c.setIndexLocked(0)
}

// setIndexLocked must be called with c.mu held; it releases the lock.
func (c *Carousel) setIndexLocked(next int) {
	if next == c.index {
		c.mu.Unlock()
		return
	}
	c.index = next
	ev := Event{Key: c.key, Index: next, Image: c.images[next]}
	fn := c.onChange
	if fn == nil {
		c.mu.Unlock()
		return
	}
	// deliver while holding the lock so Stop cannot return between the state change and
	// its notification
	defer c.mu.Unlock()
	fn(ev)
}

// Start runs the rotation of a timer carousel until ctx ends or Stop is called. Hover
// carousels do not schedule anything. A timer carousel with fewer than two images starts
// rotating once Reset gives it a longer sequence.
func (c *Carousel) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Timer || c.stopped || c.parent != nil {
		return
	}
	c.parent = ctx
	c.armLocked()
}

// armLocked starts the ticker goroutine of a started timer carousel. Caller holds c.mu.
func (c *Carousel) armLocked() {
	if c.mode != Timer || c.stopped || c.parent == nil || c.done != nil || len(c.images) <= 1 {
		return
	}
	if c.parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.parent)
	c.cancel = cancel
	c.done = make(chan struct{})
	ticks, stopTicker := c.newTicker(c.interval)
	go c.run(ctx, ticks, stopTicker, c.done)
}

func (c *Carousel) run(ctx context.Context, ticks <-chan time.Time, stopTicker func(), done chan struct{}) {
	defer close(done)
	defer stopTicker()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			c.Tick()
		}
	}
}

// Stop unmounts the carousel. After Stop returns no further events are emitted.
func (c *Carousel) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func sequenceIdentity(images []catalog.ImageRef) string {
	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.Identity())
	}
	return strings.Join(ids, "\x1f")
}
