// Package config defines the static configuration for the subscription event
// pipeline Lambdas and the runtime sources that resolve the subscribers table
// name and the Stripe API key per invocation.
//
// Static values are loaded once at cold start and are immutable thereafter,
// resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format fails the cold start
// immediately (fail fast). The table-name parameter and the Stripe secret are
// deliberately NOT part of the static config: the upsert handler resolves
// them through collaborator lookups on every invocation, mirroring the
// orchestrator contract.
package config

import (
	"time"
)

// Config is the top-level static configuration for the pipeline binaries.
// It is populated once during cold start and never modified. Components
// receive only the subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" default:"dev" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"subsync"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	AWS           AWSConfig
	Stripe        StripeConfig
	Table         TableConfig
	Lookup        LookupConfig
	Observability ObservabilityConfig
}

// AWSConfig holds regional configuration for the AWS SDK clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// EndpointURL overrides the AWS endpoint for LocalStack. Empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// StripeConfig names the Secrets Manager secret holding the Stripe API key
// and allows overriding the API base URL in tests.
type StripeConfig struct {
	APIKeySecretName string        `envconfig:"STRIPE_API_KEY_SECRET_NAME" default:"/stripe/api/sandbox/api_key" validate:"required"`
	APIBaseURL       string        `envconfig:"STRIPE_API_BASE_URL"`
	RequestTimeout   time.Duration `envconfig:"STRIPE_REQUEST_TIMEOUT" default:"20s"`
}

// TableConfig names the SSM parameter that holds the subscribers table name.
// The table name itself is resolved per invocation, not at cold start, so a
// table rename rolls out without redeploying the Lambda.
type TableConfig struct {
	NameParam string `envconfig:"SUBSCRIBERS_TABLE_NAME_PARAM" default:"/stripe/subscribers_table_name" validate:"required"`
}

// LookupConfig tunes the customer resolution retry schedule. Defaults match
// the documented policy: 5 attempts, 5s base doubling, up to 10% jitter.
type LookupConfig struct {
	MaxAttempts int           `envconfig:"CUSTOMER_LOOKUP_MAX_ATTEMPTS" default:"5" validate:"min=1"`
	BaseDelay   time.Duration `envconfig:"CUSTOMER_LOOKUP_BASE_DELAY" default:"5s"`
	JitterFrac  float64       `envconfig:"CUSTOMER_LOOKUP_JITTER_FRACTION" default:"0.1" validate:"gte=0,lt=1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"SubSync"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching values from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
