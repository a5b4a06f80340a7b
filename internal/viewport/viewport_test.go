package viewport

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyBoundary(t *testing.T) {
	t.Parallel()

	for w := -5; w <= 1400; w++ {
		want := Desktop
		if w <= Breakpoint {
			want = Mobile
		}
		if got := Classify(w); got != want {
			t.Fatalf("Classify(%d) = %s, want %s", w, got, want)
		}
	}
	assert.Equal(t, Mobile, Classify(700))
	assert.Equal(t, Desktop, Classify(701))
}

func TestSubscribeReportsCurrentModeImmediately(t *testing.T) {
	t.Parallel()

	c := NewClassifierFromHint(375, true)
	var got []Mode
	unsub := c.Subscribe(func(m Mode) { got = append(got, m) })
	defer unsub()

	require.Equal(t, []Mode{Mobile}, got)
}

func TestSubscribeNotifiesOncePerTransition(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	var got []Mode
	unsub := c.Subscribe(func(m Mode) { got = append(got, m) })

	for _, w := range []int{1200, 1100, 701, 700, 650, 320, 699, 900, 1024} {
		c.Observe(w)
	}
	assert.Equal(t, []Mode{Desktop, Mobile, Desktop}, got)

	unsub()
	unsub()
	c.Observe(300)
	assert.Len(t, got, 3, "no callbacks after unsubscribe")
	assert.Equal(t, Mobile, c.Mode())
}

func TestConcurrentObserversLeaveSubscriberCurrent(t *testing.T) {
	t.Parallel()

	c := NewClassifier()
	var (
		mu   sync.Mutex
		last Mode
	)
	unsubscribe := c.Subscribe(func(m Mode) {
		mu.Lock()
		last = m
		mu.Unlock()
	})
	defer unsubscribe()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for k := 0; k < 200; k++ {
				if (g+k)%2 == 0 {
					c.Observe(390)
				} else {
					c.Observe(1280)
				}
			}
		}(g)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, c.Mode(), last)
}

func TestUnmeasuredDefaultsToDesktop(t *testing.T) {
	t.Parallel()

	c := NewClassifierFromHint(0, false)
	assert.Equal(t, Desktop, c.Mode())
	_, ok := c.Width()
	assert.False(t, ok)

	c.Observe(500)
	var got []Mode
	unsub := c.Subscribe(func(m Mode) { got = append(got, m) })
	defer unsub()
	c.Unmeasured()
	assert.Equal(t, []Mode{Mobile, Desktop}, got)
}

func TestFromRequest(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := FromRequest(req)
	assert.False(t, ok)

	req.Header.Set("Sec-CH-Viewport-Width", "412.7")
	w, ok := FromRequest(req)
	require.True(t, ok)
	assert.Equal(t, 412, w)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "1280"})
	w, ok = FromRequest(req)
	require.True(t, ok)
	assert.Equal(t, 1280, w)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Viewport-Width", "wide")
	_, ok = FromRequest(req)
	assert.False(t, ok)
}
