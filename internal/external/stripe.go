package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"subsync/internal/config"
	"subsync/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// resourceMissingCode is the Stripe error code for a resource that does not
// exist (or is not visible yet). For customers this is the retryable
// condition: subscription events can arrive before the customer object is
// readable through the API.
const resourceMissingCode = "resource_missing"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	UserAgent string
	Logger    types.Logger
}

// StripeClient implements SubscriptionService by making direct HTTP calls to
// the Stripe REST API through BaseClient. The API key is resolved through a
// CredentialSource per request, never held as plaintext on the struct.
type StripeClient struct {
	base    *BaseClient
	creds   config.CredentialSource
	baseURL string
	logger  types.Logger
}

// NewStripeClient creates a StripeClient. The httpClient timeout bounds each
// individual lookup; the invocation-level budget is enforced by Lambda.
func NewStripeClient(httpClient *http.Client, creds config.CredentialSource, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "SubSync/1.0"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &StripeClient{
		base:    NewBaseClient(httpClient, "stripe", userAgent),
		creds:   creds,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. Useful for tests that control the breaker.
func NewStripeClientWithBase(base *BaseClient, creds config.CredentialSource, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = types.NopLogger{}
	}

	return &StripeClient{
		base:    base,
		creds:   creds,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// ---------------------------------------------------------------------------
// SubscriptionService Implementation
// ---------------------------------------------------------------------------

// RetrieveSubscription fetches the subscription snapshot by identifier.
func (s *StripeClient) RetrieveSubscription(ctx context.Context, id string) (*types.SubscriptionRecord, error) {
	resp, err := s.doGet(ctx, "/v1/subscriptions/"+id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "RetrieveSubscription", false)
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeLookupFailed,
			"failed to decode Stripe subscription response",
			err,
		)
	}

	s.logger.Info("retrieved subscription", "subscription_id", id)
	return mapStripeSubscription(&sub), nil
}

// RetrieveCustomer fetches the customer snapshot by identifier. A 404 with
// the resource_missing code maps to ErrCodeCustomerNotFound so the upserter
// can distinguish "not visible yet" from hard failures.
func (s *StripeClient) RetrieveCustomer(ctx context.Context, id string) (*types.CustomerRecord, error) {
	resp, err := s.doGet(ctx, "/v1/customers/"+id)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "RetrieveCustomer", true)
	}

	var cust stripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&cust); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeLookupFailed,
			"failed to decode Stripe customer response",
			err,
		)
	}

	s.logger.Info("retrieved customer", "customer_id", id)
	return mapStripeCustomer(&cust), nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	key, err := s.creds.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key.Unmask())
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

// handleErrorResponse reads a Stripe error response and maps it to a
// types.AppError. When notFoundIsRetryable is set, a resource_missing 404 is
// reported as ErrCodeCustomerNotFound instead of a plain lookup failure.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string, notFoundIsRetryable bool) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeLookupFailed,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeLookupFailed,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	e := &stripeErr.Error

	if notFoundIsRetryable && resp.StatusCode == http.StatusNotFound && e.Code == resourceMissingCode {
		return types.NewAppErrorWithDetails(
			types.ErrCodeCustomerNotFound,
			fmt.Sprintf("%s: %s", operation, e.Message),
			nil,
			map[string]any{"stripe_code": e.Code},
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
			fmt.Sprintf("%s: Stripe server error: %s", operation, e.Message),
			nil,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeLookupFailed,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, resp.StatusCode, e.Message),
			nil,
			map[string]any{"stripe_code": e.Code, "stripe_type": e.Type},
		)
	}
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripeSubscription struct {
	ID         string      `json:"id"`
	Customer   string      `json:"customer"`
	Status     string      `json:"status"`
	StartDate  int64       `json:"start_date"`
	CanceledAt *int64      `json:"canceled_at"`
	Plan       *stripePlan `json:"plan"`
}

type stripePlan struct {
	ID     string `json:"id"`
	Amount *int64 `json:"amount"`
}

type stripeCustomer struct {
	ID      string         `json:"id"`
	Email   string         `json:"email"`
	Name    string         `json:"name"`
	Address *stripeAddress `json:"address"`
}

type stripeAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// ---------------------------------------------------------------------------
// Mapping Functions
// ---------------------------------------------------------------------------

// mapStripeSubscription converts a Stripe subscription to a domain
// SubscriptionRecord.
func mapStripeSubscription(sub *stripeSubscription) *types.SubscriptionRecord {
	rec := &types.SubscriptionRecord{
		ID:         sub.ID,
		CustomerID: sub.Customer,
		Status:     sub.Status,
		StartDate:  sub.StartDate,
		CanceledAt: sub.CanceledAt,
	}

	if sub.Plan != nil {
		planID := sub.Plan.ID
		rec.PlanID = &planID
		rec.AmountCents = sub.Plan.Amount
	}

	return rec
}

// mapStripeCustomer converts a Stripe customer to a domain CustomerRecord.
func mapStripeCustomer(cust *stripeCustomer) *types.CustomerRecord {
	rec := &types.CustomerRecord{
		ID:    cust.ID,
		Email: cust.Email,
		Name:  cust.Name,
	}

	if cust.Address != nil {
		rec.Address = &types.CustomerAddress{
			Line1:      cust.Address.Line1,
			Line2:      cust.Address.Line2,
			City:       cust.Address.City,
			State:      cust.Address.State,
			PostalCode: cust.Address.PostalCode,
			Country:    cust.Address.Country,
		}
	}

	return rec
}

// Compile-time assertion that StripeClient implements SubscriptionService.
var _ SubscriptionService = (*StripeClient)(nil)
