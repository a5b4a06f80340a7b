package handlers

import (
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/format"
	"finitefield.org/storefront/internal/sections"
	"finitefield.org/storefront/internal/viewport"
)

// Translator is the subset of the i18n bundle the view builders need.
type Translator interface {
	T(lang, key string) string
	Tf(lang, key string, args ...any) string
}

// HomeData is the view model for the home page.
type HomeData struct {
	Mode           viewport.Mode
	Sections       []SectionView
	HeroIntervalMS int64
}

// SectionView is one rendered homepage block.
type SectionView struct {
	Kind    string
	Variant string
	Title   string
	Href    string
	Image   *catalog.ImageRef
	Copy    *cms.ContentPage
	Cards   []CardView
}

// CardView is a product or collection card. Image is nil when there is nothing to show;
// the card itself is still rendered.
type CardView struct {
	Key      string
	Variant  string
	Carousel string
	Title    string
	Href     string
	Label    string
	Price    string
	Image    *catalog.ImageRef
	Images   []catalog.ImageRef
}

// BuildHomeData turns an assembled plan into template sections.
func BuildHomeData(plan sections.Plan, lang string, tr Translator, arrivals *cms.ContentPage) HomeData {
	hd := HomeData{Mode: plan.Mode}
	for _, s := range plan.Sections {
		sv := SectionView{Kind: string(s.Kind), Variant: string(s.Variant), Title: s.Title}
		switch s.Kind {
		case sections.KindNewArrivals:
			if s.Collection != nil {
				sv.Href = s.Collection.URL()
				if s.Collection.HasImage() {
					img := *s.Collection.Image
					sv.Image = &img
				}
			}
			if arrivals != nil {
				sv.Copy = arrivals
				if arrivals.Title != "" {
					sv.Title = arrivals.Title
				}
				if arrivals.LinkURL != "" {
					sv.Href = arrivals.LinkURL
				}
			}
		case sections.KindFeatured:
			sv.Title = tr.T(lang, "home.featured.title")
		case sections.KindCategories:
			sv.Title = tr.T(lang, "home.categories.title")
		}
		for _, e := range s.Entries {
			sv.Cards = append(sv.Cards, cardFromEntry(e, lang, tr))
		}
		hd.Sections = append(hd.Sections, sv)
	}
	return hd
}

func cardFromEntry(e sections.Entry, lang string, tr Translator) CardView {
	card := CardView{Key: e.Key(), Variant: string(e.Variant), Carousel: string(e.Carousel)}
	switch {
	case e.Product != nil:
		return productCard(*e.Product, card, lang)
	case e.Collection != nil:
		c := e.Collection
		card.Title = c.Title
		card.Href = c.URL()
		card.Label = tr.Tf(lang, "home.categories.shop", c.Title)
		if c.HasImage() {
			img := *c.Image
			card.Image = &img
		}
	}
	return card
}

func productCard(p catalog.ProductSummary, card CardView, lang string) CardView {
	card.Title = p.Title
	card.Href = p.URL()
	card.Price = format.Money(p.Price, lang)
	if imgs := p.DisplayImages(); len(imgs) > 0 {
		card.Images = imgs
	}
	if len(card.Images) > 0 {
		img := card.Images[0]
		card.Image = &img
	}
	return card
}
