package commerce

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"finitefield.org/storefront/internal/catalog"
)

//go:embed fixtures/catalog.yaml
var embeddedCatalog []byte

const embeddedSource = "embedded:fixtures/catalog.yaml"

// Fixtures serves a static catalog so the storefront runs without a store.
type Fixtures struct {
	shop        catalog.Shop
	headerMenu  string
	menus       map[string]catalog.Menu
	collections []catalog.ContentCollection
	recommended []catalog.ProductSummary
	customer    *catalog.Customer
	cart        *catalog.Cart
	latency     time.Duration
}

type fixtureFile struct {
	Shop        catalog.Shop        `yaml:"shop"`
	HeaderMenu  string              `yaml:"header_menu"`
	Latency     string              `yaml:"latency"`
	Menus       []catalog.Menu      `yaml:"menus"`
	Products    []fixtureProduct    `yaml:"products"`
	Collections []fixtureCollection `yaml:"collections"`
	Recommended []string            `yaml:"recommended"`
	Customer    *fixtureCustomer    `yaml:"customer"`
	Cart        *fixtureCart        `yaml:"cart"`
}

type fixtureProduct struct {
	ID          string             `yaml:"id"`
	Title       string             `yaml:"title"`
	Handle      string             `yaml:"handle"`
	Description string             `yaml:"description"`
	Price       string             `yaml:"price"`
	Currency    string             `yaml:"currency"`
	Images      []catalog.ImageRef `yaml:"images"`
}

type fixtureCollection struct {
	ID          string            `yaml:"id"`
	Title       string            `yaml:"title"`
	Handle      string            `yaml:"handle"`
	Description string            `yaml:"description"`
	Image       *catalog.ImageRef `yaml:"image"`
	Products    []string          `yaml:"products"`
}

type fixtureCustomer struct {
	ID        string `yaml:"id"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Email     string `yaml:"email"`
	Phone     string `yaml:"phone"`
	Addresses []struct {
		ID        string   `yaml:"id"`
		Formatted []string `yaml:"formatted"`
		Default   bool     `yaml:"default"`
	} `yaml:"addresses"`
	Orders []struct {
		ID          string `yaml:"id"`
		Number      string `yaml:"number"`
		ProcessedAt string `yaml:"processed_at"`
		Status      string `yaml:"status"`
		Total       string `yaml:"total"`
		Currency    string `yaml:"currency"`
	} `yaml:"orders"`
}

type fixtureCart struct {
	ID          string `yaml:"id"`
	CheckoutURL string `yaml:"checkout_url"`
	Lines       []struct {
		Product  string `yaml:"product"`
		Quantity int    `yaml:"quantity"`
	} `yaml:"lines"`
}

// LoadFixtures parses the fixture catalog at path, or the embedded one when path is empty.
func LoadFixtures(path string) (*Fixtures, error) {
	raw := embeddedCatalog
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("commerce: read fixtures: %w", err)
		}
		raw = b
	}
	return ParseFixtures(raw)
}

// ParseFixtures builds a fixture catalog from YAML.
func ParseFixtures(raw []byte) (*Fixtures, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("commerce: parse fixtures: %w", err)
	}

	fx := &Fixtures{
		shop:       file.Shop,
		headerMenu: firstNonEmpty(file.HeaderMenu, defaultHeaderMenu),
		menus:      map[string]catalog.Menu{},
	}
	if file.Latency != "" {
		d, err := time.ParseDuration(file.Latency)
		if err != nil {
			return nil, fmt.Errorf("commerce: fixture latency: %w", err)
		}
		fx.latency = d
	}
	for _, m := range file.Menus {
		fx.menus[m.Handle] = m
	}

	products := map[string]catalog.ProductSummary{}
	for _, p := range file.Products {
		price, err := parseAmount(p.Price)
		if err != nil {
			return nil, fmt.Errorf("commerce: fixture product %s: %w", p.Handle, err)
		}
		products[p.Handle] = catalog.ProductSummary{
			ID:          p.ID,
			Title:       p.Title,
			Handle:      p.Handle,
			Description: p.Description,
			Price:       catalog.Money{Amount: price, CurrencyCode: p.Currency},
			Images:      p.Images,
		}
	}
	lookup := func(handle string) (catalog.ProductSummary, error) {
		p, ok := products[handle]
		if !ok {
			return catalog.ProductSummary{}, fmt.Errorf("commerce: fixture references unknown product %q", handle)
		}
		return p, nil
	}

	for _, c := range file.Collections {
		col := catalog.ContentCollection{
			ID:          c.ID,
			Title:       c.Title,
			Handle:      c.Handle,
			Description: c.Description,
			Image:       c.Image,
		}
		for _, h := range c.Products {
			p, err := lookup(h)
			if err != nil {
				return nil, err
			}
			col.Products = append(col.Products, p)
		}
		fx.collections = append(fx.collections, col)
	}
	for _, h := range file.Recommended {
		p, err := lookup(h)
		if err != nil {
			return nil, err
		}
		fx.recommended = append(fx.recommended, p)
	}

	if fc := file.Customer; fc != nil {
		cust := &catalog.Customer{
			ID:        fc.ID,
			FirstName: fc.FirstName,
			LastName:  fc.LastName,
			Email:     fc.Email,
			Phone:     fc.Phone,
		}
		for _, a := range fc.Addresses {
			cust.Addresses = append(cust.Addresses, catalog.Address{ID: a.ID, Formatted: a.Formatted, Default: a.Default})
			if a.Default {
				cust.DefaultAddr = a.ID
			}
		}
		for _, o := range fc.Orders {
			total, err := parseAmount(o.Total)
			if err != nil {
				return nil, fmt.Errorf("commerce: fixture order %s: %w", o.Number, err)
			}
			cust.Orders = append(cust.Orders, catalog.Order{
				ID:          o.ID,
				Number:      o.Number,
				ProcessedAt: o.ProcessedAt,
				Status:      o.Status,
				Total:       catalog.Money{Amount: total, CurrencyCode: o.Currency},
			})
		}
		fx.customer = cust
	}

	if fc := file.Cart; fc != nil {
		cart := &catalog.Cart{ID: fc.ID, CheckoutURL: fc.CheckoutURL}
		subtotal := decimal.Zero
		for i, l := range fc.Lines {
			p, err := lookup(l.Product)
			if err != nil {
				return nil, err
			}
			cost := p.Price.Amount.Mul(decimal.NewFromInt(int64(l.Quantity)))
			subtotal = subtotal.Add(cost)
			cart.TotalQuantity += l.Quantity
			cart.Subtotal.CurrencyCode = p.Price.CurrencyCode
			cart.Lines = append(cart.Lines, catalog.CartLine{
				ID:       fmt.Sprintf("%s-line-%d", fc.ID, i+1),
				Quantity: l.Quantity,
				Title:    p.Title,
				Product:  p,
				Cost:     catalog.Money{Amount: cost, CurrencyCode: p.Price.CurrencyCode},
			})
		}
		cart.Subtotal.Amount = subtotal
		fx.cart = cart
	}
	return fx, nil
}

// Collections returns the fixture collections in file order.
func (f *Fixtures) Collections(ctx context.Context, _ string) ([]catalog.ContentCollection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]catalog.ContentCollection(nil), f.collections...), nil
}

func (f *Fixtures) Recommended(ctx context.Context, _ string) ([]catalog.ProductSummary, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return append([]catalog.ProductSummary(nil), f.recommended...), nil
}

func (f *Fixtures) Header(ctx context.Context, lang string) (catalog.Header, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Header{}, err
	}
	h := catalog.Header{Shop: f.shop}
	if m, ok := f.menus[f.headerMenu]; ok {
		h.Menu = &m
	}
	return h, nil
}

func (f *Fixtures) Menu(ctx context.Context, handle, _ string) (*catalog.Menu, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	m, ok := f.menus[strings.TrimSpace(handle)]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

// Cart returns the fixture cart for any non-empty cart id.
func (f *Fixtures) Cart(ctx context.Context, cartID string) (*catalog.Cart, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cartID) == "" || f.cart == nil {
		return nil, ErrNotFound
	}
	cp := *f.cart
	cp.Lines = append([]catalog.CartLine(nil), f.cart.Lines...)
	return &cp, nil
}

// Customer returns the fixture customer for any non-empty access token.
func (f *Fixtures) Customer(ctx context.Context, accessToken string) (*catalog.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(accessToken) == "" || f.customer == nil {
		return nil, ErrCustomerNotFound
	}
	cp := *f.customer
	return &cp, nil
}

// wait simulates API latency for the deferred queries.
func (f *Fixtures) wait(ctx context.Context) error {
	if f.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(f.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseAmount(v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v)
}

func fixtureSource(path string) string {
	if strings.TrimSpace(path) == "" {
		return embeddedSource
	}
	return path
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
