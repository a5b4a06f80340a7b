package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"finitefield.org/storefront/internal/cache"
	"finitefield.org/storefront/internal/observability"
)

const (
	defaultTimeout    = 8 * time.Second
	defaultAPIVersion = "2024-04"
	defaultHeaderMenu = "main-menu"
	tokenHeader       = "X-Shopify-Storefront-Access-Token"
)

// ClientOptions configures the storefront API client.
type ClientOptions struct {
	StoreDomain string
	APIVersion  string
	PublicToken string
	HeaderMenu  string
	Timeout     time.Duration
	// Endpoint overrides the URL derived from StoreDomain and APIVersion.
	Endpoint   string
	HTTPClient *http.Client
	Cache      cache.Cache
	CacheTTL   time.Duration
	Logger     *zap.Logger
}

// Client issues GraphQL queries against the public storefront API.
type Client struct {
	endpoint   string
	token      string
	headerMenu string
	http       *http.Client
	cache      cache.Cache
	ttl        time.Duration
	logger     *zap.Logger
	group      singleflight.Group
}

// NewClient constructs a storefront API client.
func NewClient(opts ClientOptions) *Client {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		version := strings.TrimSpace(opts.APIVersion)
		if version == "" {
			version = defaultAPIVersion
		}
		domain := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(opts.StoreDomain), "https://"), "/")
		endpoint = fmt.Sprintf("https://%s/api/%s/graphql.json", domain, version)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	headerMenu := strings.TrimSpace(opts.HeaderMenu)
	if headerMenu == "" {
		headerMenu = defaultHeaderMenu
	}
	return &Client{
		endpoint:   endpoint,
		token:      opts.PublicToken,
		headerMenu: headerMenu,
		http:       httpClient,
		cache:      opts.Cache,
		ttl:        opts.CacheTTL,
		logger:     logger,
	}
}

// Endpoint returns the GraphQL URL queried by the client.
func (c *Client) Endpoint() string { return c.endpoint }

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// cachedQuery serves query from cache when possible. Concurrent identical queries share a
// single round trip.
func (c *Client) cachedQuery(ctx context.Context, operation, query string, vars map[string]any, out any) error {
	key, err := cacheKey(operation, vars)
	if err != nil {
		return err
	}
	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("catalog cache read failed", zap.String("operation", operation), zap.Error(err))
		} else if ok {
			return json.Unmarshal(data, out)
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		data, err := c.do(ctx, operation, query, vars)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			if err := c.cache.Set(ctx, key, data, c.ttl); err != nil {
				c.logger.Warn("catalog cache write failed", zap.String("operation", operation), zap.Error(err))
			}
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(v.([]byte), out)
}

// query runs an uncached operation.
func (c *Client) query(ctx context.Context, operation, query string, vars map[string]any, out any) error {
	data, err := c.do(ctx, operation, query, vars)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *Client) do(ctx context.Context, operation, query string, vars map[string]any) ([]byte, error) {
	ctx, span := observability.Tracer().Start(ctx, "commerce."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("graphql.operation.name", operation))

	data, err := c.post(ctx, operation, query, vars)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, operation, query string, vars map[string]any) ([]byte, error) {
	payload, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("commerce: %s: %w", operation, err)
	}
	defer resp.Body.Close()
	observability.FromContext(ctx).Debug("storefront query",
		zap.String("operation", operation),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("commerce: %s status %d: %s", operation, resp.StatusCode, drainError(resp.Body))
	}

	var body gqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("commerce: %s: decode response: %w", operation, err)
	}
	if len(body.Errors) > 0 {
		gerr := &GraphQLError{Operation: operation}
		for _, e := range body.Errors {
			gerr.Messages = append(gerr.Messages, e.Message)
		}
		return nil, gerr
	}
	if len(body.Data) == 0 || string(body.Data) == "null" {
		return nil, fmt.Errorf("commerce: %s: empty data", operation)
	}
	return body.Data, nil
}

func cacheKey(operation string, vars map[string]any) (string, error) {
	// json.Marshal sorts map keys, so equal variables give equal keys
	b, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	return cache.Key(operation, string(b)), nil
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}
