package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"

	"storefront/internal/types"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// metadataProductIDKey is the metadata key used to correlate a checkout
// session with the product being sold. The completion webhook reads the same
// key back out of the event.
const metadataProductIDKey = "productId"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
	BaseURL    string // Override for testing; defaults to stripeAPIBase
	Logger     *slog.Logger
}

// StripeClient implements CheckoutService by making direct HTTP calls to the
// Stripe REST API through BaseClient. This routes all requests through the
// service's resilience infrastructure (circuit breaker, retries, error
// mapping) and makes testing with httptest straightforward.
type StripeClient struct {
	base       *BaseClient
	secretKey  string
	successURL string
	cancelURL  string
	baseURL    string
	logger     *slog.Logger
}

// NewStripeClient creates a new StripeClient. The httpClient timeout should be
// short (seconds, not minutes); checkout session creation happens on the
// critical path of a user request.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		DefaultRetryPolicy(),
		"Storefront/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration (e.g., no-sleep retries).
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:       base,
		secretKey:  cfg.SecretKey,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// CreateCheckoutSession creates a one-off payment session for the product.
// The session is created with inline price_data built from the product (no
// pre-registered Stripe Price objects) and metadata[productId] set so the
// checkout.session.completed webhook can settle the right product.
func (s *StripeClient) CreateCheckoutSession(ctx context.Context, product *types.Product) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("mode", "payment")
	params.Set("success_url", s.successURL)
	params.Set("cancel_url", s.cancelURL)
	params.Set("metadata["+metadataProductIDKey+"]", strconv.FormatInt(product.ID, 10))
	params.Set("line_items[0][price_data][currency]", "usd")
	params.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(product.PriceCents, 10))
	params.Set("line_items[0][price_data][product_data][name]", product.Name)
	if product.Description != "" {
		params.Set("line_items[0][price_data][product_data][description]", product.Description)
	}
	params.Set("line_items[0][quantity]", "1")

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	s.logger.InfoContext(ctx, "checkout session created",
		"session_id", session.ID,
		"product_id", product.ID,
	)

	return &types.CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// doPost performs an authenticated POST request to the Stripe API with
// form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)

	return s.base.Do(req)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
}

// handleErrorResponse reads a Stripe error response and maps it to a types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case resp.StatusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Error.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, stripeErr.Error.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// If it's already an AppError from BaseClient (circuit breaker, retries
	// exhausted), return it as-is since it already has the right error code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// stripeCheckoutSession is the minimal response shape for a created session.
type stripeCheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ---------------------------------------------------------------------------
// Webhook Verification
// ---------------------------------------------------------------------------

// StripeVerifier implements WebhookVerifier using stripe-go's webhook
// signature verification. This provides HMAC-SHA256 signature checking
// with timestamp tolerance.
type StripeVerifier struct{}

// Verify validates a Stripe webhook payload against the signature header
// and signing secret. Uses stripe-go's ValidatePayload which checks both
// the HMAC signature and the timestamp tolerance window.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
