package supplier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

const (
	defaultCallInterval = 1200 * time.Millisecond
	defaultHTTPTimeout  = 30 * time.Second

	tokenHeader = "CJ-Access-Token"
)

// TokenSource provides the bearer credential for authenticated calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client wraps all outbound supplier-API calls behind the token cache and a
// per-operation minimum-interval throttle.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	throttle   *throttle
	log        func(ctx context.Context, event string, fields map[string]any)
}

// ClientOption customises Client construction.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for supplier calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithCallInterval overrides the minimum spacing between calls of one operation.
func WithCallInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval > 0 {
			c.throttle = newThrottle(interval, c.throttle.now)
		}
	}
}

// WithClientClock injects a custom clock for the throttle, primarily for tests.
func WithClientClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.throttle = newThrottle(c.throttle.interval, clock)
		}
	}
}

// WithClientLogger sets the structured logging hook.
func WithClientLogger(log func(ctx context.Context, event string, fields map[string]any)) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient builds a supplier API client rooted at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("supplier client: parse base url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, errors.New("supplier client: base url must be absolute")
	}
	if tokens == nil {
		return nil, errors.New("supplier client: token source is required")
	}

	client := &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		tokens:     tokens,
		throttle:   newThrottle(defaultCallInterval, time.Now),
		log:        func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SearchFilter narrows a catalog search by an extra query field, such as a
// category id or SKU prefix.
type SearchFilter struct {
	Field string
	Value string
}

// SearchProducts runs a paginated catalog search.
func (c *Client) SearchProducts(ctx context.Context, keyword string, page, size int, filters ...SearchFilter) (ProductSearchResult, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	query := url.Values{}
	query.Set("pageNum", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(size))
	if keyword != "" {
		query.Set("productNameEn", keyword)
	}
	for _, filter := range filters {
		field := strings.TrimSpace(filter.Field)
		if field == "" {
			continue
		}
		query.Set(field, filter.Value)
	}

	var result ProductSearchResult
	if err := c.call(ctx, "product.search", http.MethodGet, "product/list", query, nil, &result); err != nil {
		return ProductSearchResult{}, err
	}
	return result, nil
}

// GetProductDetails fetches a single product's full detail including variants.
// Optional feature flags request extra detail sections from the supplier.
func (c *Client) GetProductDetails(ctx context.Context, productID string, features ...string) (ProductDetail, error) {
	if strings.TrimSpace(productID) == "" {
		return ProductDetail{}, errors.New("supplier client: product id is required")
	}
	query := url.Values{}
	query.Set("pid", productID)
	for _, feature := range features {
		if feature = strings.TrimSpace(feature); feature != "" {
			query.Add("features", feature)
		}
	}

	var detail ProductDetail
	if err := c.call(ctx, "product.query", http.MethodGet, "product/query", query, nil, &detail); err != nil {
		return ProductDetail{}, err
	}
	return detail, nil
}

// CalculateFreight returns shipping-option quotes for the given items.
func (c *Client) CalculateFreight(ctx context.Context, req FreightRequest) ([]FreightOption, error) {
	if len(req.Products) == 0 {
		return nil, errors.New("supplier client: freight request needs at least one product")
	}

	var options []FreightOption
	if err := c.call(ctx, "freight.calculate", http.MethodPost, "logistic/freightCalculate", nil, req, &options); err != nil {
		return nil, err
	}
	return options, nil
}

// CreateOrder places a supplier purchase order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	if len(req.Products) == 0 {
		return CreateOrderResult{}, errors.New("supplier client: order needs at least one product")
	}

	var result CreateOrderResult
	if err := c.call(ctx, "order.create", http.MethodPost, "shopping/order/createOrderV2", nil, req, &result); err != nil {
		return CreateOrderResult{}, err
	}
	return result, nil
}

// GetOrderDetails fetches the supplier-side view of a purchase order.
func (c *Client) GetOrderDetails(ctx context.Context, supplierOrderID string) (OrderDetail, error) {
	if strings.TrimSpace(supplierOrderID) == "" {
		return OrderDetail{}, errors.New("supplier client: supplier order id is required")
	}
	query := url.Values{}
	query.Set("orderId", supplierOrderID)

	var detail OrderDetail
	if err := c.call(ctx, "order.detail", http.MethodGet, "shopping/order/getOrderDetail", query, nil, &detail); err != nil {
		return OrderDetail{}, err
	}
	return detail, nil
}

// ConfirmOrder confirms a created purchase order for fulfilment.
func (c *Client) ConfirmOrder(ctx context.Context, supplierOrderID string) error {
	if strings.TrimSpace(supplierOrderID) == "" {
		return errors.New("supplier client: supplier order id is required")
	}
	body := map[string]string{"orderId": supplierOrderID}
	return c.call(ctx, "order.confirm", http.MethodPatch, "shopping/order/confirmOrder", nil, body, nil)
}

// GetTrackingInfo fetches logistics history for the given tracking numbers.
func (c *Client) GetTrackingInfo(ctx context.Context, trackingNumbers []string) ([]TrackingInfo, error) {
	if len(trackingNumbers) == 0 {
		return nil, errors.New("supplier client: at least one tracking number is required")
	}
	query := url.Values{}
	query.Set("trackNumber", strings.Join(trackingNumbers, ","))

	var info []TrackingInfo
	if err := c.call(ctx, "logistics.track", http.MethodGet, "logistic/getTrackInfo", query, nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

// SetWebhookConfig registers a callback URL for supplier pushes.
func (c *Client) SetWebhookConfig(ctx context.Context, cfg WebhookConfig) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return errors.New("supplier client: webhook url is required")
	}
	return c.call(ctx, "webhook.set", http.MethodPost, "webhook/set", nil, cfg, nil)
}

// call runs one throttled, authenticated supplier request and decodes the
// `{code, message, data}` envelope. Code 200 is the only success signal.
func (c *Client) call(ctx context.Context, op, method, endpoint string, query url.Values, body, out any) error {
	if err := c.throttle.wait(ctx, op); err != nil {
		return err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	target := *c.baseURL
	target.Path = path.Join(target.Path, endpoint)
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("supplier %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("supplier %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tokenHeader, token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supplier %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %s", ErrRateLimited, op)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("supplier %s: read response: %w", op, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("supplier %s: decode envelope (http %d): %w", op, resp.StatusCode, err)
	}

	if env.Code != 200 {
		return c.translateError(op, env)
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("supplier %s: decode data: %w", op, err)
		}
	}
	return nil
}

func (c *Client) translateError(op string, env envelope) error {
	message := strings.ToLower(env.Message)
	switch {
	case env.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, env.Message)
	case env.Code == http.StatusNotFound,
		strings.Contains(message, "not found"),
		strings.Contains(message, "not exist"):
		return fmt.Errorf("%w: %s", ErrNotFound, env.Message)
	case env.Code == http.StatusUnauthorized:
		c.tokens.Invalidate()
		return fmt.Errorf("%w: %s", ErrAuthFailed, env.Message)
	default:
		return &APIError{Op: op, Code: env.Code, Message: env.Message}
	}
}

// AuthAPI performs the supplier's unauthenticated credential calls. The static
// API key travels in the JSON body of the issuance call, never in a header.
type AuthAPI struct {
	baseURL    *url.URL
	httpClient *http.Client
	email      string
	apiKey     string
}

// NewAuthAPI builds the credential client.
func NewAuthAPI(baseURL, email, apiKey string, httpClient *http.Client) (*AuthAPI, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("supplier auth: parse base url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, errors.New("supplier auth: base url must be absolute")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &AuthAPI{
		baseURL:    parsed,
		httpClient: httpClient,
		email:      email,
		apiKey:     apiKey,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// IssueToken mints a fresh access token using the static API key.
func (a *AuthAPI) IssueToken(ctx context.Context) (string, error) {
	body := map[string]string{"email": a.email, "password": a.apiKey}
	return a.authCall(ctx, "authentication/getAccessToken", body)
}

// RefreshToken exchanges an expired token for a new one. The refresh endpoint
// tolerates a higher call frequency than issuance.
func (a *AuthAPI) RefreshToken(ctx context.Context, oldToken string) (string, error) {
	if strings.TrimSpace(oldToken) == "" {
		return "", errors.New("supplier auth: old token is required")
	}
	body := map[string]string{"refreshToken": oldToken}
	return a.authCall(ctx, "authentication/refreshAccessToken", body)
}

func (a *AuthAPI) authCall(ctx context.Context, endpoint string, body map[string]string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("supplier auth: encode request: %w", err)
	}

	target := *a.baseURL
	target.Path = path.Join(target.Path, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("supplier auth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("supplier auth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s", ErrRateLimited, endpoint)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("supplier auth: read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("supplier auth: decode envelope (http %d): %w", resp.StatusCode, err)
	}
	if env.Code != 200 {
		return "", fmt.Errorf("%w: code %d: %s", ErrAuthFailed, env.Code, env.Message)
	}

	var data tokenResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("supplier auth: decode data: %w", err)
	}
	if data.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}
	return data.AccessToken, nil
}
