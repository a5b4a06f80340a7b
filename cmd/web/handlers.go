package main

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/commerce"
	"finitefield.org/storefront/internal/handlers"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/observability"
	"finitefield.org/storefront/internal/sections"
	"finitefield.org/storefront/internal/seo"
)

// HomeHandler renders the landing page. The header is required; collections are not,
// and a catalog outage degrades the page to its layout.
func (a *app) HomeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	lang := mw.Lang(r)

	header, ok := a.loadHeader(w, r)
	if !ok {
		return
	}
	cols, err := a.services.Storefront.Collections(ctx, lang)
	if err != nil {
		logger.Warn("home: load collections", zap.Error(err))
		cols = nil
	}
	home := catalog.SplitHomepage(cols)

	pd := a.newPage(r, header)
	plan := sections.Assemble(home.Featured, home.NewArrivals, home.Rest, pd.Viewport)

	var arrivals *cms.ContentPage
	page, err := a.content.GetContentPage(ctx, "home", "new-arrivals", lang)
	switch {
	case err == nil:
		arrivals = &page
	case !errors.Is(err, cms.ErrNotFound):
		logger.Warn("home: load new arrivals copy", zap.Error(err))
	}

	hd := handlers.BuildHomeData(plan, lang, a.bundle, arrivals)
	hd.HeroIntervalMS = a.cfg.Live.HeroInterval.Milliseconds()
	pd.Home = &hd

	base := header.Shop.PrimaryDomainURL
	pd.AddJSONLD(seo.WebSite(header.Shop.Name, base, strings.TrimRight(base, "/")+"/search?q="))
	if home.Featured != nil {
		pd.AddJSONLD(seo.ItemList(*home.Featured, base))
	}
	a.streamPage(w, r, http.StatusOK, pd, "page_home", true)
}

// SearchHandler renders the search page shell.
func (a *app) SearchHandler(w http.ResponseWriter, r *http.Request) {
	header, ok := a.loadHeader(w, r)
	if !ok {
		return
	}
	pd := a.newPage(r, header)
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	pd.Search = &handlers.SearchData{Query: q}
	pd.Title = a.bundle.T(pd.Lang, "search.title")
	a.streamPage(w, r, http.StatusOK, pd, "page_search", false)
}

// AccountHandler renders the signed-in customer's account subpages.
func (a *app) AccountHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimRight(r.URL.Path, "/")
	if path == "/account" {
		http.Redirect(w, r, "/account/orders", http.StatusFound)
		return
	}
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	header, ok := a.loadHeader(w, r)
	if !ok {
		return
	}
	sess := mw.GetSession(r)
	if !sess.LoggedIn() {
		a.renderError(w, r, http.StatusUnauthorized, header, "error.unauthorized.title", "error.unauthorized.body")
		return
	}
	customer, err := a.services.Customers.Customer(ctx, sess.CustomerToken)
	if errors.Is(err, commerce.ErrCustomerNotFound) {
		logger.Warn("account: customer not found for session")
		a.renderError(w, r, http.StatusUnauthorized, header, "error.unauthorized.title", "error.unauthorized.body")
		return
	}
	if err != nil {
		logger.Error("account: load customer", zap.Error(err))
		a.renderError(w, r, http.StatusBadGateway, header, "error.generic.title", "error.generic.body")
		return
	}
	// keep the session alive while the customer is browsing their account
	sess.Commit()

	pd := a.newPage(r, header)
	ad := handlers.BuildAccountData(customer, path, pd.Lang)
	pd.Account = &ad
	pd.Title = ad.Heading
	a.streamPage(w, r, http.StatusOK, pd, "page_account", false)
}

// LogoutHandler clears the customer token and returns home.
func (a *app) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	mw.GetSession(r).SignOut()
	if mw.IsHTMX(r.Context()) {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// NotFoundHandler renders the 404 page.
func (a *app) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	header, err := a.services.Storefront.Header(r.Context(), mw.Lang(r))
	if err != nil {
		observability.FromContext(r.Context()).Warn("not found: load header", zap.Error(err))
		header = catalog.Header{}
	}
	a.renderError(w, r, http.StatusNotFound, header, "error.not_found.title", "error.not_found.body")
}

// loadHeader fetches the layout header or answers with a 502 page.
func (a *app) loadHeader(w http.ResponseWriter, r *http.Request) (catalog.Header, bool) {
	header, err := a.services.Storefront.Header(r.Context(), mw.Lang(r))
	if err != nil {
		observability.FromContext(r.Context()).Error("load header", zap.Error(err), zap.String("path", r.URL.Path))
		a.renderError(w, r, http.StatusBadGateway, catalog.Header{}, "error.generic.title", "error.generic.body")
		return catalog.Header{}, false
	}
	return header, true
}
