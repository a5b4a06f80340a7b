package nav

import (
	"net/url"
	"path"
	"strings"

	"finitefield.org/storefront/internal/catalog"
)

// Item represents a static navigation item.
type Item struct {
	Path     string // e.g. "/account/orders"
	LabelKey string // i18n key, e.g. "account.nav.orders"
}

// RenderedItem is a view model for templates.
type RenderedItem struct {
	Href     string
	Label    string
	LabelKey string
	Active   bool
	Children []RenderedItem
}

// Crumb represents a breadcrumb entry. If LabelKey is empty, use Label.
type Crumb struct {
	Href     string
	LabelKey string
	Label    string
	Active   bool
}

// Account is the account area navigation.
var Account = []Item{
	{Path: "/account/orders", LabelKey: "account.nav.orders"},
	{Path: "/account/profile", LabelKey: "account.nav.profile"},
	{Path: "/account/addresses", LabelKey: "account.nav.addresses"},
}

// AccountNav renders the account links with the active entry for currentPath.
func AccountNav(currentPath string) []RenderedItem {
	items := make([]RenderedItem, 0, len(Account))
	for _, it := range Account {
		items = append(items, RenderedItem{
			Href:     it.Path,
			LabelKey: it.LabelKey,
			Active:   isActive(it.Path, currentPath),
		})
	}
	return items
}

// FromMenu renders a commerce menu. Links pointing at the shop's own domains become
// site-relative so navigation stays on the storefront.
func FromMenu(menu *catalog.Menu, currentPath string, ownHosts ...string) []RenderedItem {
	if menu == nil {
		return nil
	}
	return renderMenuItems(menu.Items, currentPath, ownHosts)
}

func renderMenuItems(items []catalog.MenuItem, currentPath string, ownHosts []string) []RenderedItem {
	out := make([]RenderedItem, 0, len(items))
	for _, it := range items {
		href := Relative(it.URL, ownHosts...)
		out = append(out, RenderedItem{
			Href:     href,
			Label:    it.Title,
			Active:   strings.HasPrefix(href, "/") && isActive(href, currentPath),
			Children: renderMenuItems(it.Items, currentPath, ownHosts),
		})
	}
	return out
}

// Relative strips scheme and host from raw when the host is one of ownHosts.
func Relative(raw string, ownHosts ...string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	for _, h := range ownHosts {
		if h == "" {
			continue
		}
		if hu, err := url.Parse(h); err == nil && hu.Host != "" {
			h = hu.Host
		}
		if strings.EqualFold(u.Host, h) {
			rel := u.EscapedPath()
			if rel == "" {
				rel = "/"
			}
			if u.RawQuery != "" {
				rel += "?" + u.RawQuery
			}
			return rel
		}
	}
	return raw
}

func isActive(itemPath, currentPath string) bool {
	if itemPath == "/" {
		return currentPath == "/"
	}
	// match exact or prefix boundary: "/shop" or "/shop/..."
	if currentPath == itemPath {
		return true
	}
	return strings.HasPrefix(currentPath, itemPath+"/")
}

// Breadcrumbs builds breadcrumb entries from the current path.
// Rules:
// - Always start with Home
// - Account pages use the account label keys
// - Other segments use a prettified segment label
func Breadcrumbs(currentPath string) []Crumb {
	if currentPath == "" {
		currentPath = "/"
	}
	crumbs := []Crumb{{Href: "/", LabelKey: "nav.home", Active: currentPath == "/"}}
	if currentPath == "/" {
		return crumbs
	}

	clean := path.Clean(currentPath)
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	href := ""
	for i, seg := range parts {
		if seg == "" {
			continue
		}
		href += "/" + seg
		c := Crumb{Href: href, Label: titleFromSegment(seg), Active: i == len(parts)-1}
		if href == "/account" {
			c.LabelKey = "nav.account"
		}
		for _, it := range Account {
			if it.Path == href {
				c.LabelKey = it.LabelKey
			}
		}
		crumbs = append(crumbs, c)
	}
	return crumbs
}

func titleFromSegment(seg string) string {
	s := strings.ReplaceAll(seg, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	// ASCII only is sufficient for slugs here
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}
