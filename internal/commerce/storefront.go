package commerce

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"finitefield.org/storefront/internal/catalog"
)

const imageFields = `id url altText width height`

const featuredCollectionsQuery = `#graphql
  fragment FeaturedCollection on Collection {
    id
    title
    handle
    description
    image { ` + imageFields + ` }
    products(first: 9) {
      nodes {
        id
        title
        handle
        description
        priceRange { minVariantPrice { amount currencyCode } }
        images(first: 4) { nodes { ` + imageFields + ` } }
      }
    }
  }
  query FeaturedCollection($language: LanguageCode) @inContext(language: $language) {
    collections(first: 6, sortKey: ID) {
      nodes { ...FeaturedCollection }
    }
  }
`

const recommendedProductsQuery = `#graphql
  query RecommendedProducts($language: LanguageCode) @inContext(language: $language) {
    products(first: 4, sortKey: UPDATED_AT, reverse: true) {
      nodes {
        id
        title
        handle
        priceRange { minVariantPrice { amount currencyCode } }
        images(first: 1) { nodes { ` + imageFields + ` } }
      }
    }
  }
`

const menuFields = `
    id
    handle
    items {
      id title url
      items { id title url }
    }
`

const headerQuery = `#graphql
  query Header($headerMenuHandle: String!, $language: LanguageCode) @inContext(language: $language) {
    shop {
      id
      name
      description
      primaryDomain { url }
    }
    menu(handle: $headerMenuHandle) {` + menuFields + `}
  }
`

const menuQuery = `#graphql
  query Menu($handle: String!, $language: LanguageCode) @inContext(language: $language) {
    menu(handle: $handle) {` + menuFields + `}
  }
`

const cartQuery = `#graphql
  query CartQuery($cartId: ID!) {
    cart(id: $cartId) {
      id
      checkoutUrl
      totalQuantity
      cost { subtotalAmount { amount currencyCode } }
      lines(first: 100) {
        nodes {
          id
          quantity
          cost { totalAmount { amount currencyCode } }
          merchandise {
            ... on ProductVariant {
              title
              image { ` + imageFields + ` }
              product { id title handle }
            }
          }
        }
      }
    }
  }
`

type moneyNode struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

func (m moneyNode) toMoney() catalog.Money {
	return catalog.Money{Amount: m.Amount, CurrencyCode: m.CurrencyCode}
}

type productNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	Description string `json:"description"`
	PriceRange  struct {
		MinVariantPrice moneyNode `json:"minVariantPrice"`
	} `json:"priceRange"`
	Images struct {
		Nodes []catalog.ImageRef `json:"nodes"`
	} `json:"images"`
}

func (p productNode) toSummary() catalog.ProductSummary {
	return catalog.ProductSummary{
		ID:          p.ID,
		Title:       p.Title,
		Handle:      p.Handle,
		Description: p.Description,
		Price:       p.PriceRange.MinVariantPrice.toMoney(),
		Images:      p.Images.Nodes,
	}
}

type collectionNode struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Handle      string            `json:"handle"`
	Description string            `json:"description"`
	Image       *catalog.ImageRef `json:"image"`
	Products    struct {
		Nodes []productNode `json:"nodes"`
	} `json:"products"`
}

type menuNode struct {
	ID     string             `json:"id"`
	Handle string             `json:"handle"`
	Items  []catalog.MenuItem `json:"items"`
}

func (m *menuNode) toMenu() *catalog.Menu {
	if m == nil {
		return nil
	}
	return &catalog.Menu{ID: m.ID, Handle: m.Handle, Items: m.Items}
}

// Collections returns the homepage collections in API order.
func (c *Client) Collections(ctx context.Context, lang string) ([]catalog.ContentCollection, error) {
	var out struct {
		Collections struct {
			Nodes []collectionNode `json:"nodes"`
		} `json:"collections"`
	}
	vars := map[string]any{"language": languageCode(lang)}
	if err := c.cachedQuery(ctx, "FeaturedCollection", featuredCollectionsQuery, vars, &out); err != nil {
		return nil, err
	}
	cols := make([]catalog.ContentCollection, 0, len(out.Collections.Nodes))
	for _, n := range out.Collections.Nodes {
		col := catalog.ContentCollection{
			ID:          n.ID,
			Title:       n.Title,
			Handle:      n.Handle,
			Description: n.Description,
			Image:       n.Image,
		}
		for _, p := range n.Products.Nodes {
			col.Products = append(col.Products, p.toSummary())
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// Recommended returns the most recently updated products.
func (c *Client) Recommended(ctx context.Context, lang string) ([]catalog.ProductSummary, error) {
	var out struct {
		Products struct {
			Nodes []productNode `json:"nodes"`
		} `json:"products"`
	}
	vars := map[string]any{"language": languageCode(lang)}
	if err := c.cachedQuery(ctx, "RecommendedProducts", recommendedProductsQuery, vars, &out); err != nil {
		return nil, err
	}
	products := make([]catalog.ProductSummary, 0, len(out.Products.Nodes))
	for _, p := range out.Products.Nodes {
		products = append(products, p.toSummary())
	}
	return products, nil
}

// Header loads the shop identity and the header menu.
func (c *Client) Header(ctx context.Context, lang string) (catalog.Header, error) {
	var out struct {
		Shop struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Description   string `json:"description"`
			PrimaryDomain struct {
				URL string `json:"url"`
			} `json:"primaryDomain"`
		} `json:"shop"`
		Menu *menuNode `json:"menu"`
	}
	vars := map[string]any{"headerMenuHandle": c.headerMenu, "language": languageCode(lang)}
	if err := c.cachedQuery(ctx, "Header", headerQuery, vars, &out); err != nil {
		return catalog.Header{}, err
	}
	return catalog.Header{
		Shop: catalog.Shop{
			ID:               out.Shop.ID,
			Name:             out.Shop.Name,
			Description:      out.Shop.Description,
			PrimaryDomainURL: out.Shop.PrimaryDomain.URL,
		},
		Menu: out.Menu.toMenu(),
	}, nil
}

// Menu loads a navigation menu by handle. An unknown handle yields ErrNotFound.
func (c *Client) Menu(ctx context.Context, handle, lang string) (*catalog.Menu, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, ErrNotFound
	}
	var out struct {
		Menu *menuNode `json:"menu"`
	}
	vars := map[string]any{"handle": handle, "language": languageCode(lang)}
	if err := c.cachedQuery(ctx, "Menu", menuQuery, vars, &out); err != nil {
		return nil, err
	}
	if out.Menu == nil {
		return nil, ErrNotFound
	}
	return out.Menu.toMenu(), nil
}

// Cart loads the cart with the given id. Carts are never cached.
func (c *Client) Cart(ctx context.Context, cartID string) (*catalog.Cart, error) {
	cartID = strings.TrimSpace(cartID)
	if cartID == "" {
		return nil, ErrNotFound
	}
	var out struct {
		Cart *struct {
			ID            string `json:"id"`
			CheckoutURL   string `json:"checkoutUrl"`
			TotalQuantity int    `json:"totalQuantity"`
			Cost          struct {
				SubtotalAmount moneyNode `json:"subtotalAmount"`
			} `json:"cost"`
			Lines struct {
				Nodes []struct {
					ID       string `json:"id"`
					Quantity int    `json:"quantity"`
					Cost     struct {
						TotalAmount moneyNode `json:"totalAmount"`
					} `json:"cost"`
					Merchandise struct {
						Title   string            `json:"title"`
						Image   *catalog.ImageRef `json:"image"`
						Product struct {
							ID     string `json:"id"`
							Title  string `json:"title"`
							Handle string `json:"handle"`
						} `json:"product"`
					} `json:"merchandise"`
				} `json:"nodes"`
			} `json:"lines"`
		} `json:"cart"`
	}
	if err := c.query(ctx, "CartQuery", cartQuery, map[string]any{"cartId": cartID}, &out); err != nil {
		return nil, err
	}
	if out.Cart == nil {
		return nil, ErrNotFound
	}
	cart := &catalog.Cart{
		ID:            out.Cart.ID,
		CheckoutURL:   out.Cart.CheckoutURL,
		TotalQuantity: out.Cart.TotalQuantity,
		Subtotal:      out.Cart.Cost.SubtotalAmount.toMoney(),
	}
	for _, l := range out.Cart.Lines.Nodes {
		line := catalog.CartLine{
			ID:       l.ID,
			Quantity: l.Quantity,
			Title:    l.Merchandise.Title,
			Cost:     l.Cost.TotalAmount.toMoney(),
			Product: catalog.ProductSummary{
				ID:     l.Merchandise.Product.ID,
				Title:  l.Merchandise.Product.Title,
				Handle: l.Merchandise.Product.Handle,
			},
		}
		if l.Merchandise.Image != nil {
			line.Product.Images = []catalog.ImageRef{*l.Merchandise.Image}
		}
		cart.Lines = append(cart.Lines, line)
	}
	return cart, nil
}
