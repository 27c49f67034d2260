package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// stripeSecretName is the Secrets Manager secret the upsert Lambda reads the
// Stripe API key from. The secret body is a JSON object: {"api_key": "sk_..."}.
const stripeSecretName = "/stripe/api/sandbox/api_key"

// SecretsClient defines the subset of the Secrets Manager API required by
// the bootstrap tool.
type SecretsClient interface {
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
}

// SecretsManagerWriter provisions the Stripe API key secret.
type SecretsManagerWriter struct {
	client SecretsClient
	logger *slog.Logger
}

// secretsOperationTimeout bounds each Secrets Manager API call.
const secretsOperationTimeout = 15 * time.Second

// NewSecretsManagerWriter creates a SecretsManagerWriter from the
// BootstrapContext.
func NewSecretsManagerWriter(bctx *BootstrapContext) *SecretsManagerWriter {
	return &SecretsManagerWriter{
		client: secretsmanager.NewFromConfig(bctx.AWSConfig),
		logger: bctx.Logger,
	}
}

// NewSecretsManagerWriterWithClient creates a SecretsManagerWriter with an
// injected client. Intended for testing.
func NewSecretsManagerWriterWithClient(client SecretsClient, logger *slog.Logger) *SecretsManagerWriter {
	return &SecretsManagerWriter{
		client: client,
		logger: logger,
	}
}

// SecretExists reports whether the named secret already exists.
func (w *SecretsManagerWriter) SecretExists(ctx context.Context, name string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, secretsOperationTimeout)
	defer cancel()

	_, err := w.client.DescribeSecret(opCtx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *smtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking secret %q: %w", name, err)
	}

	return true, nil
}

// WriteAPIKey stores the Stripe API key under the given secret name as
// {"api_key": key}, creating the secret if it does not exist and adding a
// new version otherwise.
//
// The key is never logged; only the secret name and the encoded length are.
func (w *SecretsManagerWriter) WriteAPIKey(ctx context.Context, name, key string) error {
	if key == "" {
		return fmt.Errorf("API key must not be empty for secret %q", name)
	}

	body, err := json.Marshal(map[string]string{"api_key": key})
	if err != nil {
		return fmt.Errorf("encoding secret body for %q: %w", name, err)
	}

	exists, err := w.SecretExists(ctx, name)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, secretsOperationTimeout)
	defer cancel()

	if exists {
		_, err = w.client.PutSecretValue(opCtx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(name),
			SecretString: aws.String(string(body)),
		})
		if err != nil {
			return fmt.Errorf("updating secret %q: %w", name, err)
		}
	} else {
		_, err = w.client.CreateSecret(opCtx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(string(body)),
			Description:  aws.String("Stripe API key for the subscription event pipeline"),
		})
		if err != nil {
			return fmt.Errorf("creating secret %q: %w", name, err)
		}
	}

	w.logger.Info("Stripe API key secret written",
		"secret", name,
		"created", !exists,
		"value_length", len(key),
	)
	return nil
}
