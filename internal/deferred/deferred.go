// Package deferred resolves slow page content concurrently while letting dependent content
// wait for its dependencies to settle before it is rendered.
package deferred

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State is the lifecycle position of a slot.
type State int

const (
	Pending State = iota
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrAbandoned is returned once the resolver has been closed.
	ErrAbandoned = errors.New("deferred: resolution abandoned")
	// ErrUnknownSlot is returned for names that were never declared.
	ErrUnknownSlot = errors.New("deferred: unknown slot")
	// ErrDuplicateSlot is returned when a name is declared twice.
	ErrDuplicateSlot = errors.New("deferred: duplicate slot")
)

// Fetch produces the value of a slot.
type Fetch func(ctx context.Context) (any, error)

// Slot is a named unit of asynchronously resolved content.
type Slot struct {
	name      string
	dependsOn []*Slot
	done      chan struct{}

	mu    sync.Mutex
	state State
	value any
	err   error
}

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// DependsOn lists the names of the direct dependencies.
func (s *Slot) DependsOn() []string {
	out := make([]string, 0, len(s.dependsOn))
	for _, d := range s.dependsOn {
		out = append(out, d.name)
	}
	return out
}

// State reports the current state without blocking.
func (s *Slot) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the slot has settled.
func (s *Slot) Done() <-chan struct{} { return s.done }

func (s *Slot) settle(v any, err error) {
	s.mu.Lock()
	if s.state != Pending {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.state = Failed
		s.err = err
	} else {
		s.state = Resolved
		s.value = v
	}
	s.mu.Unlock()
	close(s.done)
}

func (s *Slot) outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Outcome{State: s.state, Value: s.value, Err: s.err}
}

// Outcome is the settled result of a slot.
type Outcome struct {
	State State
	Value any
	Err   error
}

// Settled maps slot names of a settled chain to their outcomes.
type Settled map[string]Outcome

// Lookup returns the typed value of a resolved slot. Failed, missing or mistyped slots are
// reported as absent.
func Lookup[T any](r Settled, name string) (T, bool) {
	var zero T
	o, ok := r[name]
	if !ok || o.State != Resolved {
		return zero, false
	}
	v, ok := o.Value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Failures lists the slots of the chain that failed.
func (r Settled) Failures() []string {
	var out []string
	for name, o := range r {
		if o.State == Failed {
			out = append(out, name)
		}
	}
	return out
}

// Resolver owns the deferred slots of one page render.
type Resolver struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	slots  map[string]*Slot
	order  []string
	closed bool

	// renderMu serialises render callbacks against Close
	renderMu sync.Mutex
}

// NewResolver creates a resolver whose fetches are bound to ctx.
func NewResolver(ctx context.Context, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Resolver{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		slots:  map[string]*Slot{},
	}
}

// Defer declares a slot and starts its fetch right away. Dependencies must already be
// declared, which keeps the slot graph acyclic.
func (r *Resolver) Defer(name string, fetch Fetch, dependsOn ...string) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrAbandoned
	}
	if _, exists := r.slots[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSlot, name)
	}
	s := &Slot{name: name, done: make(chan struct{})}
	for _, dep := range dependsOn {
		d, ok := r.slots[dep]
		if !ok {
			return nil, fmt.Errorf("%w: %s (dependency of %s)", ErrUnknownSlot, dep, name)
		}
		s.dependsOn = append(s.dependsOn, d)
	}
	r.slots[name] = s
	r.order = append(r.order, name)

	r.wg.Add(1)
	go r.run(s, fetch)
	return s, nil
}

func (r *Resolver) run(s *Slot, fetch Fetch) {
	defer r.wg.Done()
	var (
		v   any
		err error
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("deferred: slot %s panicked: %v", s.name, rec)
			}
		}()
		if fetch == nil {
			err = fmt.Errorf("deferred: slot %s has no fetch", s.name)
			return
		}
		v, err = fetch(r.ctx)
	}()
	if err != nil && r.ctx.Err() == nil {
		r.logger.Warn("deferred slot failed", zap.String("slot", s.name), zap.Error(err))
	}
	s.settle(v, err)
}

// Slot returns a declared slot.
func (r *Resolver) Slot(name string) (*Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[name]
	return s, ok
}

// Names lists slot names in declaration order.
func (r *Resolver) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Await blocks until the named slot and all of its transitive dependencies have settled.
// Dependencies are waited for first, so a dependent is never observed ahead of them.
func (r *Resolver) Await(ctx context.Context, name string) (Settled, error) {
	s, ok := r.Slot(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, name)
	}
	chain := closure(s)
	for _, c := range chain {
		select {
		case <-c.done:
		case <-ctx.Done():
			return nil, ErrAbandoned
		case <-r.ctx.Done():
			return nil, ErrAbandoned
		}
	}
	if r.isClosed() {
		return nil, ErrAbandoned
	}
	out := make(Settled, len(chain))
	for _, c := range chain {
		out[c.name] = c.outcome()
	}
	return out, nil
}

// Render waits for the chain of name and hands the settled values to fn. fn is never
// invoked once Close has returned.
func (r *Resolver) Render(ctx context.Context, name string, fn func(Settled)) error {
	res, err := r.Await(ctx, name)
	if err != nil {
		return err
	}
	r.renderMu.Lock()
	defer r.renderMu.Unlock()
	if r.isClosed() || ctx.Err() != nil {
		return ErrAbandoned
	}
	fn(res)
	return nil
}

// Close abandons every pending resolution and cancels in-flight fetches. It waits for a
// render already in progress to finish.
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	// wait out a render that passed its closed check before we flipped the flag
	r.renderMu.Lock()
	r.renderMu.Unlock()
}

// Wait blocks until every fetch goroutine has returned.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func (r *Resolver) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// closure returns s and its transitive dependencies, dependencies first.
func closure(s *Slot) []*Slot {
	var out []*Slot
	seen := map[*Slot]bool{}
	var visit func(*Slot)
	visit = func(n *Slot) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, d := range n.dependsOn {
			visit(d)
		}
		out = append(out, n)
	}
	visit(s)
	return out
}
