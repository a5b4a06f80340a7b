// Package viewport classifies device widths into layout modes and tracks the mode of a
// mounted page.
package viewport

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// Mode is the coarse layout variant selected from the viewport width.
type Mode string

const (
	Mobile  Mode = "mobile"
	Desktop Mode = "desktop"
)

// Breakpoint is the widest viewport, in CSS pixels, still rendered as mobile.
const Breakpoint = 700

// CookieName is written by the client script with the last measured width.
const CookieName = "vw"

// Classify maps a width to its layout mode.
func Classify(widthPx int) Mode {
	if widthPx <= Breakpoint {
		return Mobile
	}
	return Desktop
}

// Classifier owns the viewport mode of one mounted page. It is the only writer of that mode;
// everything else reads it through Mode or a subscription.
type Classifier struct {
	// notifyMu orders transitions and their fan-out, so subscribers see modes in the
	// order they were recorded
	notifyMu sync.Mutex

	mu       sync.Mutex
	width    int
	measured bool
	mode     Mode
	subs     map[int]*subscriber
	nextID   int
}

type subscriber struct {
	mu     sync.Mutex
	fn     func(Mode)
	active bool
}

// NewClassifier returns an unmeasured classifier, which reports Desktop.
func NewClassifier() *Classifier {
	return &Classifier{mode: Desktop, subs: map[int]*subscriber{}}
}

// NewClassifierFromHint seeds the classifier with an optional measurement.
func NewClassifierFromHint(widthPx int, ok bool) *Classifier {
	c := NewClassifier()
	if ok {
		c.width = widthPx
		c.measured = true
		c.mode = Classify(widthPx)
	}
	return c
}

// Mode returns the current classification.
func (c *Classifier) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Width returns the last measured width and whether one is known.
func (c *Classifier) Width() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.width, c.measured
}

// Observe records a new measurement. Subscribers hear about it only when the mode flips.
func (c *Classifier) Observe(widthPx int) {
	c.set(widthPx, true)
}

// Unmeasured records that the viewport can no longer be measured.
func (c *Classifier) Unmeasured() {
	c.set(0, false)
}

func (c *Classifier) set(widthPx int, measured bool) {
	next := Desktop
	if measured {
		next = Classify(widthPx)
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	c.width = widthPx
	c.measured = measured
	if next == c.mode {
		c.mu.Unlock()
		return
	}
	c.mode = next
	subs := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.notify(next)
	}
}

// Subscribe calls onChange immediately with the current mode and again on every transition.
// The returned function unsubscribes; once it returns, onChange is not called again.
// onChange must not call Observe or Unmeasured.
func (c *Classifier) Subscribe(onChange func(Mode)) (unsubscribe func()) {
	if onChange == nil {
		return func() {}
	}
	s := &subscriber{fn: onChange, active: true}

	c.notifyMu.Lock()
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = s
	current := c.mode
	c.mu.Unlock()
	s.notify(current)
	c.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		})
	}
}

func (s *subscriber) notify(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.fn(m)
	}
}

// FromRequest extracts a width hint from client hints or the viewport cookie.
func FromRequest(r *http.Request) (int, bool) {
	if r == nil {
		return 0, false
	}
	for _, h := range []string{"Sec-CH-Viewport-Width", "Viewport-Width"} {
		if w, ok := ParseWidth(r.Header.Get(h)); ok {
			return w, true
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return ParseWidth(c.Value)
	}
	return 0, false
}

// ParseWidth parses a CSS pixel width. Fractional widths are rounded down.
func ParseWidth(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return int(math.Floor(f)), true
}
