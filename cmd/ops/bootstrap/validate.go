package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds the outcome of a validation check. It provides
// both a boolean pass/fail signal and a human-readable message suitable
// for display in the bootstrap CLI.
type ValidationResult struct {
	// Valid is true if the input passed all validation checks.
	Valid bool

	// Message is a human-readable description of the result.
	// On success, it describes what was validated.
	// On failure, it describes why validation failed.
	Message string
}

// HTTPClient is the interface used by validators that make outbound HTTP
// calls. It enables injecting mock transports for testing without making
// real network calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Validator encapsulates the dependencies needed by input validation
// functions.
type Validator struct {
	httpClient HTTPClient
}

// NewValidator creates a Validator with a real HTTP client.
func NewValidator() *Validator {
	return &Validator{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewValidatorWithDeps creates a Validator with an injected HTTP client for
// testing.
func NewValidatorWithDeps(httpClient HTTPClient) *Validator {
	return &Validator{httpClient: httpClient}
}

// validateTimeout is the per-probe timeout for active validation calls. An
// outer bound covering DNS resolution and TLS handshake in addition to the
// HTTP client timeout.
const validateTimeout = 15 * time.Second

// stripeKeyRegex validates the format of a Stripe secret key:
// sk_(test|live)_ followed by 24+ alphanumeric characters.
var stripeKeyRegex = regexp.MustCompile(`^sk_(test|live)_[0-9a-zA-Z]{24,}$`)

// tableNameRegex matches DynamoDB's table naming rules: 3-255 characters
// from [a-zA-Z0-9_.-].
var tableNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,255}$`)

// ValidateStripeKey validates a Stripe secret key by:
//  1. Checking the key format matches sk_(test|live)_[a-zA-Z0-9]{24+}.
//  2. Making a lightweight GET request to https://api.stripe.com/v1/account
//     to verify the key is functional.
//
// The /v1/account endpoint returns the connected account details and is the
// lightest-weight endpoint that verifies key validity without side effects.
func (v *Validator) ValidateStripeKey(ctx context.Context, key string) ValidationResult {
	key = strings.TrimSpace(key)
	if key == "" {
		return ValidationResult{Valid: false, Message: "Stripe secret key must not be empty"}
	}

	if !stripeKeyRegex.MatchString(key) {
		return ValidationResult{
			Valid:   false,
			Message: "Stripe secret key must match format sk_(test|live)_[alphanumeric 24+ chars]",
		}
	}

	// Active probe: GET /v1/account
	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, "https://api.stripe.com/v1/account", nil)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "SubSync-Bootstrap/1.0")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Stripe API probe failed: %v", err),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusUnauthorized {
		return ValidationResult{
			Valid:   false,
			Message: "Stripe API returned 401 Unauthorized: key is invalid or revoked",
		}
	}

	if resp.StatusCode != http.StatusOK {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("Stripe API returned HTTP %d: %s", resp.StatusCode, truncateBody(body, 200)),
		}
	}

	// Extract the account display name for operator feedback.
	var account struct {
		ID              string `json:"id"`
		BusinessProfile struct {
			Name string `json:"name"`
		} `json:"business_profile"`
	}
	displayInfo := ""
	if err := json.Unmarshal(body, &account); err == nil {
		if account.BusinessProfile.Name != "" {
			displayInfo = fmt.Sprintf(" (account: %s, name: %s)", account.ID, account.BusinessProfile.Name)
		} else if account.ID != "" {
			displayInfo = fmt.Sprintf(" (account: %s)", account.ID)
		}
	}

	// Detect test vs live mode from the key prefix.
	mode := "test"
	if strings.HasPrefix(key, "sk_live_") {
		mode = "live"
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("Stripe key verified [%s mode]%s", mode, displayInfo),
	}
}

// ValidateTableName validates a DynamoDB table name against the service's
// naming rules. A format check only; existence is probed separately.
func (v *Validator) ValidateTableName(_ context.Context, name string) ValidationResult {
	name = strings.TrimSpace(name)
	if name == "" {
		return ValidationResult{Valid: false, Message: "table name must not be empty"}
	}

	if !tableNameRegex.MatchString(name) {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("table name must match [a-zA-Z0-9_.-]{3,255} (got %q)", name),
		}
	}

	return ValidationResult{
		Valid:   true,
		Message: fmt.Sprintf("table name format validated (%s)", name),
	}
}

// truncateBody returns the first n bytes of body as a string, appending
// "..." if truncation occurred. Used for including partial API response
// bodies in error messages without overwhelming the operator.
func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
