package commerce

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/config"
)

func TestEmbeddedFixturesShapeTheHomepage(t *testing.T) {
	fx, err := LoadFixtures("")
	require.NoError(t, err)
	ctx := context.Background()

	cols, err := fx.Collections(ctx, "en")
	require.NoError(t, err)
	hp := catalog.SplitHomepage(cols)
	require.NotNil(t, hp.Featured)
	require.NotNil(t, hp.NewArrivals)
	assert.Len(t, hp.Featured.Products, 9)
	assert.NotEmpty(t, hp.Rest)

	rec, err := fx.Recommended(ctx, "en")
	require.NoError(t, err)
	assert.Len(t, rec, 4)

	h, err := fx.Header(ctx, "en")
	require.NoError(t, err)
	require.NotNil(t, h.Menu)
	assert.NotEmpty(t, h.Shop.PrimaryDomainURL)

	for _, handle := range []string{"footer", "support-menu", "mobile-menu"} {
		m, err := fx.Menu(ctx, handle, "en")
		require.NoError(t, err, handle)
		assert.NotEmpty(t, m.Items, handle)
	}
	_, err = fx.Menu(ctx, "nope", "en")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFixtureCartAndCustomer(t *testing.T) {
	fx, err := LoadFixtures("")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fx.Cart(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	cart, err := fx.Cart(ctx, "any")
	require.NoError(t, err)
	assert.Equal(t, 3, cart.TotalQuantity)
	assert.Equal(t, "7200", cart.Subtotal.Amount.String())

	_, err = fx.Customer(ctx, "")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	cust, err := fx.Customer(ctx, "dev-token")
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Aiko", cust.Heading())
	assert.Equal(t, "gid://shopify/CustomerAddress/71", cust.DefaultAddr)
}

func TestFixturesFromFileAndLatency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
latency: 200ms
products:
  - {id: p1, title: One, handle: one, price: "10", currency: USD}
collections:
  - {id: c1, title: Only, handle: only, products: [one]}
menus:
  - {id: m1, handle: footer, items: [{id: i1, title: About, url: /pages/about}]}
`), 0o600))

	fx, err := LoadFixtures(path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = fx.Menu(ctx, "footer", "en")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = ParseFixtures([]byte("collections:\n  - {handle: x, products: [missing]}\n"))
	assert.ErrorContains(t, err, "unknown product")
}

func TestNewSelectsFixturesWithoutDomain(t *testing.T) {
	svc, err := New(config.CommerceConfig{}, nil, 0, nil)
	require.NoError(t, err)
	assert.True(t, svc.Fixtures)
	_, ok := svc.Storefront.(*Fixtures)
	assert.True(t, ok)

	svc, err = New(config.CommerceConfig{StoreDomain: "shop.example.com", PublicToken: "t", CustomerAccountURL: "https://shopify.com/1/account/customer/api/2024-04/graphql"}, nil, 0, nil)
	require.NoError(t, err)
	assert.False(t, svc.Fixtures)
	client, ok := svc.Storefront.(*Client)
	require.True(t, ok)
	assert.Equal(t, "https://shop.example.com/api/2024-04/graphql.json", client.Endpoint())
}
