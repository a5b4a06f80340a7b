// Package sections assembles the homepage render plan from catalog collections and the
// current viewport mode.
package sections

import (
	"finitefield.org/storefront/internal/carousel"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/viewport"
)

// Kind names a homepage block.
type Kind string

const (
	KindNewArrivals Kind = "new-arrivals"
	KindFeatured    Kind = "featured-products"
	KindCategories  Kind = "categories"
)

// Variant selects how a section or entry is drawn.
type Variant string

const (
	VariantMobile   Variant = "mobile"
	VariantDesktop  Variant = "desktop"
	VariantPrimary  Variant = "primary"
	VariantStandard Variant = "standard"
)

// Featured grid sizes per viewport mode.
const (
	FeaturedLimitMobile  = 9
	FeaturedLimitDesktop = 6
)

// Entry is one card within a section.
type Entry struct {
	Variant    Variant
	Carousel   carousel.Mode
	Product    *catalog.ProductSummary
	Collection *catalog.ContentCollection
}

// Key identifies the entry for carousel wiring and DOM ids.
func (e Entry) Key() string {
	switch {
	case e.Product != nil:
		return e.Product.ID
	case e.Collection != nil:
		return e.Collection.Handle
	}
	return ""
}

// Section is one block of the plan.
type Section struct {
	Kind       Kind
	Variant    Variant
	Title      string
	Collection *catalog.ContentCollection
	Entries    []Entry
}

// Plan is the ordered, render-ready list of sections for one render pass.
type Plan struct {
	Mode     viewport.Mode
	Sections []Section
}

// Section returns the first section of the given kind.
func (p Plan) Section(kind Kind) (Section, bool) {
	for _, s := range p.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

// Primary returns the hero entry of the featured section, if the plan has one.
func (p Plan) Primary() (Entry, bool) {
	s, ok := p.Section(KindFeatured)
	if !ok {
		return Entry{}, false
	}
	for _, e := range s.Entries {
		if e.Variant == VariantPrimary {
			return e, true
		}
	}
	return Entry{}, false
}

// Assemble builds the plan. A missing featured collection degrades the page to the
// categories section alone; a missing new-arrivals collection is simply omitted.
func Assemble(featured, newArrivals *catalog.ContentCollection, rest []catalog.ContentCollection, mode viewport.Mode) Plan {
	if mode != viewport.Mobile {
		mode = viewport.Desktop
	}
	plan := Plan{Mode: mode}
	if featured != nil {
		if newArrivals != nil {
			plan.Sections = append(plan.Sections, newArrivalsSection(newArrivals, mode))
		}
		plan.Sections = append(plan.Sections, featuredSection(featured, mode))
	}
	plan.Sections = append(plan.Sections, categoriesSection(rest))
	return plan
}

func newArrivalsSection(c *catalog.ContentCollection, mode viewport.Mode) Section {
	variant := VariantDesktop
	if mode == viewport.Mobile {
		variant = VariantMobile
	}
	col := *c
	return Section{
		Kind:       KindNewArrivals,
		Variant:    variant,
		Title:      col.Title,
		Collection: &col,
	}
}

func featuredSection(c *catalog.ContentCollection, mode viewport.Mode) Section {
	limit := FeaturedLimitDesktop
	if mode == viewport.Mobile {
		limit = FeaturedLimitMobile
	}
	products := c.Products
	if len(products) > limit {
		products = products[:limit]
	}
	entries := make([]Entry, 0, len(products))
	for i := range products {
		p := products[i]
		e := Entry{Variant: VariantStandard, Carousel: carousel.Hover, Product: &p}
		if i == 0 && mode == viewport.Mobile {
			e.Variant = VariantPrimary
			e.Carousel = carousel.Timer
		}
		entries = append(entries, e)
	}
	col := *c
	return Section{
		Kind:       KindFeatured,
		Variant:    VariantStandard,
		Title:      "Featured Products",
		Collection: &col,
		Entries:    entries,
	}
}

func categoriesSection(rest []catalog.ContentCollection) Section {
	entries := make([]Entry, 0, len(rest))
	for i := range rest {
		c := rest[i]
		entries = append(entries, Entry{Variant: VariantStandard, Collection: &c})
	}
	return Section{
		Kind:    KindCategories,
		Variant: VariantStandard,
		Title:   "Categories",
		Entries: entries,
	}
}
