// Package main is the entrypoint for the Subscriber Upsert Lambda function.
//
// Subscriber Upsert is the terminal worker of the subscription event state
// machine. It receives a routed lifecycle event wrapped in the state
// machine's Payload envelope, resolves the subscription and customer
// snapshots from Stripe, derives a flattened subscriber record, and applies
// it to the DynamoDB subscribers table keyed by customer email.
//
// Cold Start (main):
//  1. Initialize structured logger.
//  2. Load static configuration (env -> dotenv -> SSM priority chain).
//  3. Initialize SSM parameter source (table name, per invocation).
//  4. Initialize Secrets Manager credential source (Stripe API key).
//  5. Initialize the Stripe REST client behind a circuit breaker.
//  6. Initialize the DynamoDB store and CloudWatch metrics.
//  7. Build the Upserter and call lambda.Start.
//
// Handler flow per invocation:
//  1. Tag the context with a fresh invocation ID.
//  2. Resolve the table name and verify the Stripe credential.
//  3. Retrieve the subscription (not retried).
//  4. Retrieve the customer, retrying only while Stripe reports it missing.
//  5. Validate, derive the subscriber item, dispatch on event type.
//  6. Return the result payload to the state machine.
//
// Invocation-level retries belong to the orchestrator; errors surface as
// typed codes it can classify.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"subsync/internal/backoff"
	"subsync/internal/config"
	"subsync/internal/external"
	"subsync/internal/pipeline"
	"subsync/internal/store"
	"subsync/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly, but With returns
// *slog.Logger rather than types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Handler holds the dependencies for the subscriber-upsert Lambda handler.
type Handler struct {
	upserter *pipeline.Upserter
}

// Handle processes one routed lifecycle event.
func (h *Handler) Handle(ctx context.Context, input types.TaskInput) (*types.UpsertResult, error) {
	ctx = types.WithInvocationID(ctx, uuid.NewString())
	return h.upserter.Handle(ctx, input)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Subscriber Upsert Lambda initializing (cold start)")

	typedLogger := &slogAdapter{logger: logger}

	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-1"
	}

	// Load static configuration. The SSM provider doubles as the resolver
	// for _SSM_PARAM pointer variables during the load.
	ssmProvider := config.NewSSMProvider(region)
	cfg, err := config.LoadConfig(ssmProvider)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		logger.Error("Failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	// Credential source: Stripe API key from Secrets Manager, cached per
	// container.
	creds := config.NewSecretsManagerSource(cfg.AWS.Region, cfg.Stripe.APIKeySecretName)

	// Stripe REST client behind the circuit breaker.
	stripeClient := external.NewStripeClient(
		&http.Client{Timeout: cfg.Stripe.RequestTimeout},
		creds,
		external.StripeClientConfig{
			BaseURL: cfg.Stripe.APIBaseURL,
			Logger:  typedLogger,
		},
	)

	// Storage and telemetry.
	subscriberStore := store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), typedLogger)
	metrics := pipeline.NewCloudWatchMetrics(
		cloudwatch.NewFromConfig(awsCfg),
		cfg.Observability.MetricNamespace,
		typedLogger,
	)

	retrier := backoff.NewRetrier(backoff.Policy{
		MaxAttempts: cfg.Lookup.MaxAttempts,
		BaseDelay:   cfg.Lookup.BaseDelay,
		Factor:      2.0,
		JitterFrac:  cfg.Lookup.JitterFrac,
	})

	upserter := pipeline.NewUpserter(
		cfg.Table.NameParam,
		ssmProvider,
		creds,
		stripeClient,
		subscriberStore,
		typedLogger,
		pipeline.WithRetrier(retrier),
		pipeline.WithMetrics(metrics),
	)

	logger.Info("Subscriber Upsert Lambda initialized",
		"environment", cfg.Environment,
		"region", cfg.AWS.Region,
		"table_name_param", cfg.Table.NameParam,
		"api_key_secret", cfg.Stripe.APIKeySecretName,
		"metric_namespace", cfg.Observability.MetricNamespace,
		"lookup_max_attempts", cfg.Lookup.MaxAttempts,
	)

	lambda.Start((&Handler{upserter: upserter}).Handle)
}

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)
