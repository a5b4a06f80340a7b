package commerce

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerLoadsRecord(t *testing.T) {
	srv := newGraphQLServer(t, http.StatusOK, `{"data":{"customer":{
      "id":"cust-1","firstName":"Aiko","lastName":"Tanaka",
      "emailAddress":{"emailAddress":"aiko@example.com"},
      "defaultAddress":{"id":"a1"},
      "addresses":{"nodes":[{"id":"a1","formatted":["Tokyo"]},{"id":"a2","formatted":["Osaka"]}]},
      "orders":{"nodes":[{"id":"o1","number":1001,"processedAt":"2024-03-09T10:00:00Z","financialStatus":"PAID","totalPrice":{"amount":"9800","currencyCode":"JPY"}}]}}}}`)
	c, err := NewCustomerClient(srv.URL, time.Second)
	require.NoError(t, err)

	cust, err := c.Customer(context.Background(), "shcat_token")
	require.NoError(t, err)
	assert.Equal(t, "Welcome, Aiko", cust.Heading())
	assert.Equal(t, "aiko@example.com", cust.Email)
	require.Len(t, cust.Addresses, 2)
	assert.True(t, cust.Addresses[0].Default)
	assert.False(t, cust.Addresses[1].Default)
	require.Len(t, cust.Orders, 1)
	assert.Equal(t, "#1001", cust.Orders[0].Number)

	srv.mu.Lock()
	assert.Equal(t, "shcat_token", srv.headers.Get("Authorization"))
	srv.mu.Unlock()
}

func TestCustomerNotFound(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"null customer":  {http.StatusOK, `{"data":{"customer":null}}`},
		"graphql errors": {http.StatusOK, `{"data":null,"errors":[{"message":"invalid token"}]}`},
		"unauthorized":   {http.StatusUnauthorized, `{}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newGraphQLServer(t, tc.status, tc.body)
			c, err := NewCustomerClient(srv.URL, time.Second)
			require.NoError(t, err)
			_, err = c.Customer(context.Background(), "token")
			assert.ErrorIs(t, err, ErrCustomerNotFound)
		})
	}

	c, err := NewCustomerClient("https://unused.test/graphql", time.Second)
	require.NoError(t, err)
	_, err = c.Customer(context.Background(), "")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestCustomerGraphQLErrorIsInspectable(t *testing.T) {
	srv := newGraphQLServer(t, http.StatusOK, `{"errors":[{"message":"expired"}]}`)
	c, err := NewCustomerClient(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = c.Customer(context.Background(), "token")
	var gerr *GraphQLError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, []string{"expired"}, gerr.Messages)
}

func TestCustomerClientKeepsSessionCookies(t *testing.T) {
	var (
		mu      sync.Mutex
		cookies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		cookies = append(cookies, r.Header.Get("Cookie"))
		mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "_customer_session", Value: "s-1", Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"customer":{"id":"cust-1","firstName":"Aiko"}}}`)
	}))
	t.Cleanup(srv.Close)

	c, err := NewCustomerClient(srv.URL, time.Second)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := c.Customer(context.Background(), "token")
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, cookies, 2)
	assert.Empty(t, cookies[0])
	assert.Equal(t, "_customer_session=s-1", cookies[1])
}
