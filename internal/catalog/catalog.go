// Package catalog holds the read-only snapshots the storefront receives from the commerce
// platform for a single page load.
package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ImageRef references a displayable image owned by the catalog.
type ImageRef struct {
	ID      string `json:"id" yaml:"id"`
	URL     string `json:"url" yaml:"url"`
	AltText string `json:"altText,omitempty" yaml:"alt"`
	Width   int    `json:"width,omitempty" yaml:"width"`
	Height  int    `json:"height,omitempty" yaml:"height"`
}

// IsZero reports whether the reference points at nothing renderable.
func (i ImageRef) IsZero() bool {
	return strings.TrimSpace(i.URL) == ""
}

// Identity is the stable identifier used to compare image sequences.
func (i ImageRef) Identity() string {
	if i.ID != "" {
		return i.ID
	}
	return i.URL
}

// Money is a price in a given ISO 4217 currency.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// ProductSummary is the subset of product data rendered in grids and carousels.
type ProductSummary struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Handle      string     `json:"handle"`
	Description string     `json:"description,omitempty"`
	Price       Money      `json:"price"`
	Images      []ImageRef `json:"images,omitempty"`
}

// URL returns the storefront path of the product.
func (p ProductSummary) URL() string {
	return "/products/" + p.Handle
}

// DisplayImages returns the renderable images in order. Carousel indexes refer to this
// list on both the server and the page.
func (p ProductSummary) DisplayImages() []ImageRef {
	out := make([]ImageRef, 0, len(p.Images))
	for _, img := range p.Images {
		if !img.IsZero() {
			out = append(out, img)
		}
	}
	return out
}

// FirstImage returns the lead image, if any.
func (p ProductSummary) FirstImage() (ImageRef, bool) {
	imgs := p.DisplayImages()
	if len(imgs) == 0 {
		return ImageRef{}, false
	}
	return imgs[0], true
}

// ContentCollection is a titled group of products, optionally illustrated.
type ContentCollection struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	Description string           `json:"description,omitempty"`
	Image       *ImageRef        `json:"image,omitempty"`
	Products    []ProductSummary `json:"products,omitempty"`
}

// URL returns the storefront path of the collection.
func (c ContentCollection) URL() string {
	return "/collections/" + c.Handle
}

// HasImage reports whether the collection carries a renderable image.
func (c ContentCollection) HasImage() bool {
	return c.Image != nil && !c.Image.IsZero()
}

// Homepage groups the collections loaded for the landing page. The first collection is the
// featured one, the second is new arrivals, the remainder are rendered as categories.
type Homepage struct {
	Featured    *ContentCollection
	NewArrivals *ContentCollection
	Rest        []ContentCollection
}

// SplitHomepage partitions an ordered collection list the way the homepage expects.
func SplitHomepage(collections []ContentCollection) Homepage {
	var hp Homepage
	if len(collections) > 0 {
		c := collections[0]
		hp.Featured = &c
	}
	if len(collections) > 1 {
		c := collections[1]
		hp.NewArrivals = &c
	}
	if len(collections) > 2 {
		hp.Rest = append([]ContentCollection(nil), collections[2:]...)
	}
	return hp
}

// MenuItem is a navigation entry as configured in the commerce admin.
type MenuItem struct {
	ID    string     `json:"id" yaml:"id"`
	Title string     `json:"title" yaml:"title"`
	URL   string     `json:"url" yaml:"url"`
	Items []MenuItem `json:"items,omitempty" yaml:"items"`
}

// Menu is a named navigation tree.
type Menu struct {
	ID     string     `json:"id" yaml:"id"`
	Handle string     `json:"handle" yaml:"handle"`
	Items  []MenuItem `json:"items" yaml:"items"`
}

// Shop carries store-wide metadata used by the layout.
type Shop struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Description      string `json:"description,omitempty" yaml:"description"`
	PrimaryDomainURL string `json:"primaryDomainUrl,omitempty" yaml:"primary_domain_url"`
}

// Header is the synchronously loaded layout data.
type Header struct {
	Shop Shop  `json:"shop"`
	Menu *Menu `json:"menu,omitempty"`
}

// CartLine is a single cart entry.
type CartLine struct {
	ID       string         `json:"id"`
	Quantity int            `json:"quantity"`
	Title    string         `json:"title"`
	Product  ProductSummary `json:"product"`
	Cost     Money          `json:"cost"`
}

// Cart is the read-only cart snapshot shown in the cart aside.
type Cart struct {
	ID            string     `json:"id"`
	CheckoutURL   string     `json:"checkoutUrl,omitempty"`
	TotalQuantity int        `json:"totalQuantity"`
	Subtotal      Money      `json:"subtotal"`
	Lines         []CartLine `json:"lines,omitempty"`
}

// Address is a customer postal address.
type Address struct {
	ID        string   `json:"id"`
	Formatted []string `json:"formatted,omitempty"`
	Default   bool     `json:"default,omitempty"`
}

// Order is a past order summary.
type Order struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	ProcessedAt string `json:"processedAt,omitempty"`
	Status      string `json:"financialStatus,omitempty"`
	Total       Money  `json:"total"`
}

// Customer is the account record returned by the customer account API.
type Customer struct {
	ID          string    `json:"id"`
	FirstName   string    `json:"firstName,omitempty"`
	LastName    string    `json:"lastName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Addresses   []Address `json:"addresses,omitempty"`
	Orders      []Order   `json:"orders,omitempty"`
	DefaultAddr string    `json:"defaultAddressId,omitempty"`
}

// Heading returns the greeting shown at the top of the account section.
func (c *Customer) Heading() string {
	if c == nil {
		return "Account Details"
	}
	if strings.TrimSpace(c.FirstName) != "" {
		return "Welcome, " + strings.TrimSpace(c.FirstName)
	}
	return "ACCOUNT"
}
