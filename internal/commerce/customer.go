package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/observability"
)

const customerDetailsQuery = `#graphql
  query CustomerDetails {
    customer {
      id
      firstName
      lastName
      emailAddress { emailAddress }
      phoneNumber { phoneNumber }
      defaultAddress { id }
      addresses(first: 6) { nodes { id formatted } }
      orders(first: 20, sortKey: PROCESSED_AT, reverse: true) {
        nodes {
          id
          number
          processedAt
          financialStatus
          totalPrice { amount currencyCode }
        }
      }
    }
  }
`

// CustomerClient queries the customer account API with a customer's access token.
type CustomerClient struct {
	endpoint string
	http     *http.Client
}

// NewCustomerClient constructs a customer account client. The client keeps the API's
// session cookies, scoped by the public suffix list.
func NewCustomerClient(endpoint string, timeout time.Duration) (*CustomerClient, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("commerce: cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CustomerClient{
		endpoint: strings.TrimSpace(endpoint),
		http:     &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

// Customer loads the account record. Any GraphQL error or missing customer is reported as
// ErrCustomerNotFound; transport failures are returned as is.
func (c *CustomerClient) Customer(ctx context.Context, accessToken string) (*catalog.Customer, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" || c.endpoint == "" {
		return nil, ErrCustomerNotFound
	}

	ctx, span := observability.Tracer().Start(ctx, "commerce.CustomerDetails")
	defer span.End()

	payload, err := json.Marshal(gqlRequest{Query: customerDetailsQuery})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("commerce: CustomerDetails: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrCustomerNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("commerce: CustomerDetails status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var body struct {
		Data struct {
			Customer *customerNode `json:"customer"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("commerce: CustomerDetails: decode response: %w", err)
	}
	if len(body.Errors) > 0 {
		gerr := &GraphQLError{Operation: "CustomerDetails"}
		for _, e := range body.Errors {
			gerr.Messages = append(gerr.Messages, e.Message)
		}
		return nil, errors.Join(ErrCustomerNotFound, gerr)
	}
	if body.Data.Customer == nil {
		return nil, ErrCustomerNotFound
	}
	return body.Data.Customer.toCustomer(), nil
}

type customerNode struct {
	ID           string `json:"id"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	EmailAddress *struct {
		EmailAddress string `json:"emailAddress"`
	} `json:"emailAddress"`
	PhoneNumber *struct {
		PhoneNumber string `json:"phoneNumber"`
	} `json:"phoneNumber"`
	DefaultAddress *struct {
		ID string `json:"id"`
	} `json:"defaultAddress"`
	Addresses struct {
		Nodes []struct {
			ID        string   `json:"id"`
			Formatted []string `json:"formatted"`
		} `json:"nodes"`
	} `json:"addresses"`
	Orders struct {
		Nodes []struct {
			ID              string    `json:"id"`
			Number          int       `json:"number"`
			ProcessedAt     string    `json:"processedAt"`
			FinancialStatus string    `json:"financialStatus"`
			TotalPrice      moneyNode `json:"totalPrice"`
		} `json:"nodes"`
	} `json:"orders"`
}

func (n customerNode) toCustomer() *catalog.Customer {
	c := &catalog.Customer{
		ID:        n.ID,
		FirstName: n.FirstName,
		LastName:  n.LastName,
	}
	if n.EmailAddress != nil {
		c.Email = n.EmailAddress.EmailAddress
	}
	if n.PhoneNumber != nil {
		c.Phone = n.PhoneNumber.PhoneNumber
	}
	if n.DefaultAddress != nil {
		c.DefaultAddr = n.DefaultAddress.ID
	}
	for _, a := range n.Addresses.Nodes {
		c.Addresses = append(c.Addresses, catalog.Address{
			ID:        a.ID,
			Formatted: a.Formatted,
			Default:   a.ID != "" && a.ID == c.DefaultAddr,
		})
	}
	for _, o := range n.Orders.Nodes {
		c.Orders = append(c.Orders, catalog.Order{
			ID:          o.ID,
			Number:      fmt.Sprintf("#%d", o.Number),
			ProcessedAt: o.ProcessedAt,
			Status:      o.FinancialStatus,
			Total:       o.TotalPrice.toMoney(),
		})
	}
	return c
}
