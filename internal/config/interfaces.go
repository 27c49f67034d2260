package config

import (
	"context"

	"subsync/internal/types"
)

// SecretProvider abstracts batch retrieval of configuration values to support
// both AWS SSM Parameter Store (deployed environments) and environment
// variables (local development). Used by the cold-start loader to resolve
// _SSM_PARAM pointer variables.
type SecretProvider interface {
	// GetParametersBatch retrieves multiple values in batches to avoid
	// throttling. The keys slice contains the SSM parameter paths (or
	// equivalent identifiers) to resolve. Returns a map of key -> plaintext
	// value for all successfully resolved parameters.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// ParameterSource resolves a single named parameter at invocation time.
// The upsert handler uses it to look up the subscribers table name on every
// invocation; a failure aborts the invocation with a configuration error.
type ParameterSource interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// SecretSource resolves a named secret at invocation time. The Stripe API
// key secret is a JSON object with an "api_key" field.
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// CredentialSource yields the Stripe API key. The Stripe client resolves the
// key through this interface per request rather than holding the plaintext,
// so a rotated secret takes effect without a cold start.
type CredentialSource interface {
	APIKey(ctx context.Context) (types.SecretString, error)
}
