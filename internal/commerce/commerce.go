// Package commerce reads catalog, layout and customer data from the commerce platform's
// GraphQL APIs, or from a bundled fixture catalog when no store is configured.
package commerce

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cache"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/config"
)

var (
	// ErrNotFound is returned when a requested object does not exist.
	ErrNotFound = errors.New("commerce: not found")
	// ErrCustomerNotFound is returned when the customer record cannot be loaded for the
	// session's access token.
	ErrCustomerNotFound = errors.New("commerce: customer not found")
)

// GraphQLError carries the error messages returned in a GraphQL response body.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return "commerce: " + e.Operation + ": " + strings.Join(e.Messages, "; ")
}

// Storefront is the read side of the public storefront API used by pages.
type Storefront interface {
	Collections(ctx context.Context, lang string) ([]catalog.ContentCollection, error)
	Recommended(ctx context.Context, lang string) ([]catalog.ProductSummary, error)
	Header(ctx context.Context, lang string) (catalog.Header, error)
	Menu(ctx context.Context, handle, lang string) (*catalog.Menu, error)
	Cart(ctx context.Context, cartID string) (*catalog.Cart, error)
}

// Customers loads the signed-in customer's account record.
type Customers interface {
	Customer(ctx context.Context, accessToken string) (*catalog.Customer, error)
}

// Services bundles the commerce backends selected by configuration.
type Services struct {
	Storefront Storefront
	Customers  Customers
	Fixtures   bool
}

// New selects the live API clients or the fixture catalog based on cfg.
func New(cfg config.CommerceConfig, store cache.Cache, ttl time.Duration, logger *zap.Logger) (Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UsesFixtures() {
		fx, err := LoadFixtures(cfg.FixturesPath)
		if err != nil {
			return Services{}, err
		}
		logger.Info("serving fixture catalog", zap.String("path", fixtureSource(cfg.FixturesPath)))
		return Services{Storefront: fx, Customers: fx, Fixtures: true}, nil
	}

	sf := NewClient(ClientOptions{
		StoreDomain: cfg.StoreDomain,
		APIVersion:  cfg.APIVersion,
		PublicToken: cfg.PublicToken,
		HeaderMenu:  cfg.HeaderMenu,
		Timeout:     cfg.Timeout,
		Cache:       store,
		CacheTTL:    ttl,
		Logger:      logger,
	})
	customers, err := NewCustomerClient(cfg.CustomerAccountURL, cfg.Timeout)
	if err != nil {
		return Services{}, err
	}
	return Services{Storefront: sf, Customers: customers}, nil
}

// languageCode maps a site locale to the API's LanguageCode enum.
func languageCode(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return "EN"
	}
	if base, _, ok := strings.Cut(lang, "-"); ok {
		lang = base
	}
	return strings.ToUpper(lang)
}
