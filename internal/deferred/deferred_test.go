package deferred

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// gate is a fetch that blocks until released.
type gate struct {
	started chan struct{}
	release chan struct{}
	value   any
	err     error
}

func newGate(v any, err error) *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{}), value: v, err: err}
}

func (g *gate) fetch(ctx context.Context) (any, error) {
	close(g.started)
	select {
	case <-g.release:
		return g.value, g.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func waitStarted(t *testing.T, g *gate) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(time.Second):
		t.Fatal("fetch was not started")
	}
}

func declareChain(t *testing.T, r *Resolver, footer, support, mobile *gate) {
	t.Helper()
	_, err := r.Defer("footer", footer.fetch)
	require.NoError(t, err)
	_, err = r.Defer("supportMenu", support.fetch, "footer")
	require.NoError(t, err)
	_, err = r.Defer("mobileMenu", mobile.fetch, "supportMenu")
	require.NoError(t, err)
}

func TestFetchesStartConcurrently(t *testing.T) {
	t.Parallel()

	r := NewResolver(context.Background(), nil)
	defer r.Close()
	footer, support, mobile := newGate("f", nil), newGate("s", nil), newGate("m", nil)
	declareChain(t, r, footer, support, mobile)

	// the dependent fetches begin before their dependencies finish
	waitStarted(t, footer)
	waitStarted(t, support)
	waitStarted(t, mobile)

	close(footer.release)
	close(support.release)
	close(mobile.release)
}

func TestDependentNeverObservesPendingDependency(t *testing.T) {
	t.Parallel()

	r := NewResolver(context.Background(), nil)
	defer r.Close()
	footer, support, mobile := newGate("footer-menu", nil), newGate("support-menu", nil), newGate("mobile-menu", nil)
	declareChain(t, r, footer, support, mobile)

	// the dependent resolves first
	close(mobile.release)

	rendered := make(chan Settled, 1)
	go func() {
		_ = r.Render(context.Background(), "mobileMenu", func(res Settled) { rendered <- res })
	}()

	select {
	case <-rendered:
		t.Fatal("mobile menu rendered before its dependencies settled")
	case <-time.After(30 * time.Millisecond):
	}
	close(support.release)
	select {
	case <-rendered:
		t.Fatal("mobile menu rendered before footer settled")
	case <-time.After(30 * time.Millisecond):
	}
	close(footer.release)

	select {
	case res := <-rendered:
		for name, o := range res {
			assert.NotEqualf(t, Pending, o.State, "slot %s pending at render", name)
		}
		v, ok := Lookup[string](res, "footer")
		require.True(t, ok)
		assert.Equal(t, "footer-menu", v)
		v, ok = Lookup[string](res, "supportMenu")
		require.True(t, ok)
		assert.Equal(t, "support-menu", v)
		v, ok = Lookup[string](res, "mobileMenu")
		require.True(t, ok)
		assert.Equal(t, "mobile-menu", v)
	case <-time.After(time.Second):
		t.Fatal("mobile menu never rendered")
	}
}

func TestFailedDependencyRendersAsAbsent(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(context.Background(), zap.New(core))
	defer r.Close()

	footer, support, mobile := newGate("f", nil), newGate(nil, errors.New("menu api down")), newGate("m", nil)
	declareChain(t, r, footer, support, mobile)
	close(footer.release)
	close(support.release)
	close(mobile.release)

	var got Settled
	err := r.Render(context.Background(), "mobileMenu", func(res Settled) { got = res })
	require.NoError(t, err)

	_, ok := Lookup[string](got, "supportMenu")
	assert.False(t, ok, "failed slot must read as absent")
	m, ok := Lookup[string](got, "mobileMenu")
	require.True(t, ok)
	assert.Equal(t, "m", m)
	assert.Equal(t, []string{"supportMenu"}, got.Failures())
	assert.Equal(t, Failed, got["supportMenu"].State)

	entries := logs.FilterMessage("deferred slot failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "supportMenu", entries[0].ContextMap()["slot"])
}

func TestIndependentSlotUnaffectedByChainFailure(t *testing.T) {
	t.Parallel()

	r := NewResolver(context.Background(), nil)
	defer r.Close()
	_, err := r.Defer("footer", func(context.Context) (any, error) { return nil, errors.New("boom") })
	require.NoError(t, err)
	_, err = r.Defer("cart", func(context.Context) (any, error) { return 3, nil })
	require.NoError(t, err)

	res, err := r.Await(context.Background(), "cart")
	require.NoError(t, err)
	assert.Len(t, res, 1)
	n, ok := Lookup[int](res, "cart")
	require.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestCloseAbandonsPendingRenders(t *testing.T) {
	t.Parallel()

	r := NewResolver(context.Background(), nil)
	footer, support, mobile := newGate("f", nil), newGate("s", nil), newGate("m", nil)
	declareChain(t, r, footer, support, mobile)

	var calls atomic.Int32
	errc := make(chan error, 1)
	go func() {
		errc <- r.Render(context.Background(), "mobileMenu", func(Settled) { calls.Add(1) })
	}()

	r.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrAbandoned)
	case <-time.After(time.Second):
		t.Fatal("render did not return after Close")
	}
	r.Wait()
	assert.Equal(t, int32(0), calls.Load())

	err := r.Render(context.Background(), "footer", func(Settled) { calls.Add(1) })
	assert.ErrorIs(t, err, ErrAbandoned)
	_, err = r.Defer("late", func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Equal(t, int32(0), calls.Load())
}

func TestCallerContextAbandonsAwait(t *testing.T) {
	t.Parallel()

	r := NewResolver(context.Background(), nil)
	defer r.Close()
	g := newGate("f", nil)
	_, err := r.Defer("footer", g.fetch)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = r.Await(ctx, "footer")
	assert.ErrorIs(t, err, ErrAbandoned)
	close(g.release)
}

func TestDeclarationErrors(t *testing.T) {
	t.Parallel()

	r := NewResolver(context.Background(), nil)
	defer r.Close()
	noop := func(context.Context) (any, error) { return nil, nil }

	_, err := r.Defer("mobileMenu", noop, "supportMenu")
	assert.ErrorIs(t, err, ErrUnknownSlot)

	_, err = r.Defer("footer", noop)
	require.NoError(t, err)
	_, err = r.Defer("footer", noop)
	assert.ErrorIs(t, err, ErrDuplicateSlot)

	_, err = r.Await(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownSlot)

	s, ok := r.Slot("footer")
	require.True(t, ok)
	assert.Empty(t, s.DependsOn())
	assert.Equal(t, []string{"footer"}, r.Names())
}

func TestPanickingFetchFails(t *testing.T) {
	t.Parallel()

	r := NewResolver(context.Background(), nil)
	defer r.Close()
	_, err := r.Defer("footer", func(context.Context) (any, error) { panic("kaboom") })
	require.NoError(t, err)
	res, err := r.Await(context.Background(), "footer")
	require.NoError(t, err)
	assert.Equal(t, Failed, res["footer"].State)
	assert.Equal(t, "failed", res["footer"].State.String())
}

func TestRenderCallbackRunsOnceEach(t *testing.T) {
	t.Parallel()

	r := NewResolver(context.Background(), nil)
	defer r.Close()
	_, err := r.Defer("footer", func(context.Context) (any, error) { return "f", nil })
	require.NoError(t, err)

	var wg sync.WaitGroup
	var calls atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Render(context.Background(), "footer", func(Settled) { calls.Add(1) })
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(4), calls.Load())
	s, _ := r.Slot("footer")
	assert.Equal(t, Resolved, s.State())
}
