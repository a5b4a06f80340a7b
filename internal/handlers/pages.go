package handlers

import (
	"html/template"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/nav"
	"finitefield.org/storefront/internal/seo"
	"finitefield.org/storefront/internal/viewport"
)

// PageData is the view model shared by every page rendered inside the layout.
type PageData struct {
	Title     string
	Lang      string
	SEO       seo.Meta
	JSONLD    []template.JS
	Analytics Analytics

	// Common layout fields
	Path        string
	Nav         []nav.RenderedItem
	Breadcrumbs []nav.Crumb
	Shop        catalog.Shop
	LoggedIn    bool
	CSRFToken   string
	Viewport    viewport.Mode
	Live        LiveData

	// MobileMenu is only drawn when the header menu and the primary domain both exist.
	MobileMenu bool

	// Per-page payloads; at most one is set.
	Home    *HomeData
	Account *AccountData
	Search  *SearchData
	Error   *ErrorData
}

// LiveData points the client script at the live channel.
type LiveData struct {
	Enabled bool
	URL     string
}

// SearchData is the search page payload.
type SearchData struct {
	Query string
}

// ErrorData describes a page-level failure.
type ErrorData struct {
	Status   int
	TitleKey string
	BodyKey  string
}

// NewPageData fills the layout fields from the header query result.
func NewPageData(lang, path string, header catalog.Header) PageData {
	shop := header.Shop
	pd := PageData{
		Title:       shop.Name,
		Lang:        lang,
		SEO:         seo.ForShop(shop.Name, shop.Description, canonical(shop.PrimaryDomainURL, path)),
		Path:        path,
		Nav:         nav.FromMenu(header.Menu, path, shop.PrimaryDomainURL),
		Breadcrumbs: nav.Breadcrumbs(path),
		Shop:        shop,
		Viewport:    viewport.Desktop,
		MobileMenu:  header.Menu != nil && shop.PrimaryDomainURL != "",
	}
	pd.AddJSONLD(seo.Organization(shop.Name, shop.PrimaryDomainURL, ""))
	return pd
}

// AddJSONLD appends a structured data block.
func (p *PageData) AddJSONLD(v any) {
	if s := seo.JSON(v); s != "" {
		p.JSONLD = append(p.JSONLD, template.JS(s))
	}
}

func canonical(base, path string) string {
	if base == "" {
		return ""
	}
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}
