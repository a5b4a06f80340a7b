package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/config"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/testutil"
	"finitefield.org/storefront/internal/viewport"
)

// newTestApp builds the full router over the bundled fixture catalog.
func newTestApp(t *testing.T, extra map[string]string) http.Handler {
	t.Helper()
	values := map[string]string{
		"STOREFRONT_TEMPLATES_DIR":       "../../templates",
		"STOREFRONT_PUBLIC_DIR":          "../../public",
		"STOREFRONT_LOCALES_DIR":         "../../locales",
		"STOREFRONT_CONTENT_DIR":         "../../content",
		"STOREFRONT_SESSION_SIGNING_KEY": "test-signing-key",
	}
	for k, v := range extra {
		values[k] = v
	}
	cfg, err := config.Load(context.Background(), config.WithEnvFile(""), config.WithoutSystemEnv(), config.WithEnvMap(values))
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a.routes()
}

func get(t *testing.T, h http.Handler, target string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func withWidth(px string) func(*http.Request) {
	return func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: viewport.CookieName, Value: px})
	}
}

func withCustomer(r *http.Request) {
	r.Header.Set("Authorization", "Bearer debug:customer-token")
}

func TestHealthzOK(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", strings.TrimSpace(rec.Body.String()))
}

func TestReadyzReportsComponents(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var summary struct {
		State      string
		Components []struct{ Name, Status string }
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "operational", summary.State)
	var names []string
	for _, c := range summary.Components {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"commerce", "content", "templates"}, names)
}

func TestHomeDesktopPlan(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/", withWidth("1280"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, "desktop", doc.Find("main.home").AttrOr("data-mode", ""))

	var kinds []string
	doc.Find("main.home section[data-section]").Each(func(_ int, s *goquery.Selection) {
		kinds = append(kinds, s.AttrOr("data-section", ""))
	})
	assert.Equal(t, []string{"new-arrivals", "featured-products", "categories"}, kinds)

	featured := doc.Find(`section[data-section="featured-products"] article.card`)
	assert.Equal(t, 6, featured.Length())
	featured.Each(func(_ int, s *goquery.Selection) {
		assert.True(t, s.HasClass("card--standard"))
		assert.Equal(t, "hover", s.AttrOr("data-carousel", ""))
	})
	assert.Equal(t, "Featured Products", strings.TrimSpace(doc.Find(`section[data-section="featured-products"] h2`).Text()))

	arrivals := doc.Find(`section[data-section="new-arrivals"]`)
	assert.True(t, arrivals.HasClass("new-arrivals--desktop"))
	assert.Contains(t, arrivals.Find(".prose").Text(), "sustainably sourced")
	assert.Equal(t, "/collections/new-arrivals", arrivals.Find("a.btn").AttrOr("href", ""))

	assert.Contains(t, doc.Find(`section[data-section="categories"]`).Text(), "Shop Wood")
	assert.Equal(t, 3, doc.Find(`script[type="application/ld+json"]`).Length(), "organization, website and item list")
}

func TestHomeMobilePlan(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/", withWidth("390"))
	require.Equal(t, http.StatusOK, rec.Code)

	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, "mobile", doc.Find("main.home").AttrOr("data-mode", ""))
	cards := doc.Find(`section[data-section="featured-products"] article.card`)
	require.Equal(t, 9, cards.Length())

	hero := cards.First()
	assert.True(t, hero.HasClass("card--primary"))
	assert.Equal(t, "timer", hero.AttrOr("data-carousel", ""))
	assert.Greater(t, hero.Find("img[data-index]").Length(), 1)
	assert.Equal(t, 1, hero.Find("img[data-index]:not([hidden])").Length(), "only the first hero image is visible")
	cards.Slice(1, 9).Each(func(_ int, s *goquery.Selection) {
		assert.Equal(t, "hover", s.AttrOr("data-carousel", ""))
	})
	assert.True(t, doc.Find(`section[data-section="new-arrivals"]`).HasClass("new-arrivals--mobile"))
}

func TestHomeUnmeasuredViewportFallsBackToDesktop(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/", withWidth("NaN"))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, "desktop", doc.Find("main.home").AttrOr("data-mode", ""))
}

func TestHomeStreamsDeferredSlots(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/", withWidth("1280"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	// slots stream after the page content and before the document closes
	mainEnd := strings.Index(body, "</main>")
	firstSlot := strings.Index(body, "<template data-slot=")
	require.Positive(t, mainEnd)
	require.Greater(t, firstSlot, mainEnd)
	assert.Less(t, strings.LastIndex(body, "</template>"), strings.Index(body, "</body>"))

	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	order := testutil.SlotOrder(doc)
	assert.ElementsMatch(t, []string{"footer", "supportMenu", "mobileMenu", "cart", "recommended"}, order)

	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	assert.Less(t, pos["footer"], pos["supportMenu"], "support menu waits for the footer")
	assert.Less(t, pos["supportMenu"], pos["mobileMenu"], "mobile menu waits for the support menu")

	assert.Contains(t, testutil.Slot(doc, "footer").Text(), "Stockists")
	assert.Contains(t, testutil.Slot(doc, "supportMenu").Text(), "Shipping")
	assert.Contains(t, testutil.Slot(doc, "cart").Text(), "Your cart is empty.")
	assert.Equal(t, 4, testutil.Slot(doc, "recommended").Find("article.card").Length())

	for _, target := range []string{"footer", "supportMenu", "mobileMenu", "cart", "recommended"} {
		assert.Equal(t, 1, doc.Find(`[data-slot-target="`+target+`"]`).Length(), target)
	}
}

func TestHomeCartFromCookie(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: mw.CartCookieName, Value: "demo"})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	cart := testutil.Slot(doc, "cart")
	assert.Equal(t, 2, cart.Find(".cart__line").Length())
	assert.Equal(t, "https://hanko-field.example.com/cart/c/demo", cart.Find("a.btn").AttrOr("href", ""))
}

func TestHomeLocalizedJA(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/?hl=ja", withWidth("1280"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ja", rec.Header().Get("Content-Language"))

	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, "ja", doc.Find("html").AttrOr("lang", ""))
	assert.Equal(t, "おすすめ商品", strings.TrimSpace(doc.Find(`section[data-section="featured-products"] h2`).Text()))
}

func TestHomeWithoutLiveChannel(t *testing.T) {
	srv := newTestApp(t, map[string]string{"STOREFRONT_LIVE": "false"})
	rec := get(t, srv, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	_, live := doc.Find("body").Attr("data-live")
	assert.False(t, live)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/live/home").Code)
}

func TestAccountRequiresSignIn(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/account/orders")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")

	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, "401", doc.Find("main.error").AttrOr("data-status", ""))
	assert.Equal(t, "Sign in required", strings.TrimSpace(doc.Find("main.error h1").Text()))
}

func TestAccountRedirectsToOrders(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/account", withCustomer)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/account/orders", rec.Header().Get("Location"))
}

func TestAccountOrders(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/account/orders", withCustomer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, "Welcome, Aiko", strings.TrimSpace(doc.Find("main.account h1").Text()))
	rows := doc.Find("tr.order")
	require.Equal(t, 2, rows.Length())
	assert.Contains(t, rows.First().Text(), "#1001")
	assert.Contains(t, rows.Last().Text(), "pending")
	assert.Equal(t, "/account/orders", doc.Find(`.account__nav a[aria-current="page"]`).AttrOr("href", ""))

	var session bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == mw.SessionCookieName {
			session = true
		}
	}
	assert.True(t, session, "account pages commit the session")
}

func TestAccountAddresses(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/account/addresses", withCustomer)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, 2, doc.Find("address").Length())
	assert.Equal(t, 1, doc.Find("address.address--default").Length())
}

func TestLogoutRequiresCSRF(t *testing.T) {
	srv := newTestApp(t, nil)

	// First, GET / to receive the CSRF and session cookies
	rec1 := get(t, srv, "/")
	require.Equal(t, http.StatusOK, rec1.Code)
	var csrfCookie, sessCookie string
	for _, c := range rec1.Result().Cookies() {
		switch c.Name {
		case "csrf_token":
			csrfCookie = c.Value
		case mw.SessionCookieName:
			sessCookie = c.Value
		}
	}
	require.NotEmpty(t, csrfCookie, "missing csrf_token cookie from GET /")
	require.NotEmpty(t, sessCookie, "missing session cookie from GET /")

	// htmx POST without a token is rejected with a JSON body
	req2 := httptest.NewRequest(http.MethodPost, "/account/logout", nil)
	req2.Header.Set("HX-Request", "true")
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusForbidden, rec2.Code)
	assert.Contains(t, rec2.Header().Get("Content-Type"), "application/json")

	req3 := httptest.NewRequest(http.MethodPost, "/account/logout", nil)
	req3.Header.Set("HX-Request", "true")
	req3.Header.Set("X-CSRF-Token", csrfCookie)
	req3.Header.Set("Cookie", "csrf_token="+csrfCookie+"; "+mw.SessionCookieName+"="+sessCookie)
	rec3 := httptest.NewRecorder()
	srv.ServeHTTP(rec3, req3)
	require.Equal(t, http.StatusNoContent, rec3.Code)
	assert.Equal(t, "/", rec3.Header().Get("HX-Redirect"))
}

func TestLogoutRedirectsHome(t *testing.T) {
	srv := newTestApp(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/account/logout", nil)
	withCustomer(req)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestSearchEchoesQuery(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/search?q=maple")
	require.Equal(t, http.StatusOK, rec.Code)
	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, "maple", doc.Find(`input[name="q"]`).AttrOr("value", ""))
	assert.Contains(t, doc.Find(".search__results").Text(), `"maple"`)
	assert.Equal(t, 0, testutil.Slot(doc, "recommended").Length())
}

func TestNotFound(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/no/such/page")
	require.Equal(t, http.StatusNotFound, rec.Code)
	doc := testutil.ParseHTML(t, rec.Body.Bytes())
	assert.Equal(t, "404", doc.Find("main.error").AttrOr("data-status", ""))
	assert.NotEmpty(t, testutil.Slot(doc, "footer").Nodes, "error pages keep the layout slots")
}

func TestAssetsServed(t *testing.T) {
	srv := newTestApp(t, nil)
	rec := get(t, srv, "/assets/app.js")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec2 := get(t, srv, "/assets/app.js", func(r *http.Request) {
		r.Header.Set("If-None-Match", etag)
	})
	assert.Equal(t, http.StatusNotModified, rec2.Code)
}

func TestPlanCommand(t *testing.T) {
	t.Setenv("STOREFRONT_STORE_DOMAIN", "")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"plan", "--env-file", "", "--width", "390", "--json"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	var plan planOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &plan))
	assert.Equal(t, viewport.Mobile, plan.Mode)
	require.Len(t, plan.Sections, 3)
	featured := plan.Sections[1]
	assert.Equal(t, "featured-products", featured.Kind)
	require.Len(t, featured.Entries, 9)
	assert.Equal(t, "primary", featured.Entries[0].Variant)
	assert.Equal(t, "timer", featured.Entries[0].Carousel)
}

func TestPlanCommandUnmeasuredYAML(t *testing.T) {
	t.Setenv("STOREFRONT_STORE_DOMAIN", "")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"plan", "--env-file", ""})
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	assert.True(t, strings.HasPrefix(out.String(), "mode: desktop\n"), out.String())
}
