package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"subsync/internal/types"
)

// apiKeyField is the JSON field inside the Stripe secret holding the key.
const apiKeyField = "api_key"

// secretsClient is the subset of the Secrets Manager SDK client used by
// SecretsManagerSource. The interface enables testing with a mock client.
type secretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerSource implements SecretSource and CredentialSource by
// fetching JSON secrets from AWS Secrets Manager. The Stripe API key secret
// is stored as {"api_key": "sk_..."} and is fetched per invocation so a
// rotated key takes effect without a cold start.
type SecretsManagerSource struct {
	region     string
	secretName string

	// client is the Secrets Manager API client. If nil, a client is
	// created lazily using the configured region.
	client secretsClient

	// mu guards the cached API key. The upsert handler verifies the
	// credential at the start of every invocation and the Stripe client
	// resolves it again per request; the cache collapses those into one
	// fetch per container lifetime.
	mu     sync.Mutex
	apiKey types.SecretString
}

// NewSecretsManagerSource creates a SecretsManagerSource for the given
// region and default secret name.
func NewSecretsManagerSource(region, secretName string) *SecretsManagerSource {
	return &SecretsManagerSource{
		region:     region,
		secretName: secretName,
	}
}

// NewSecretsManagerSourceWithClient creates a SecretsManagerSource with an
// injected client. Used by tests.
func NewSecretsManagerSourceWithClient(region, secretName string, client secretsClient) *SecretsManagerSource {
	return &SecretsManagerSource{
		region:     region,
		secretName: secretName,
		client:     client,
	}
}

// ensureClient initializes the Secrets Manager client if needed.
func (s *SecretsManagerSource) ensureClient(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.region),
	)
	if err != nil {
		return fmt.Errorf("loading AWS config for Secrets Manager (region=%s): %w", s.region, err)
	}

	s.client = secretsmanager.NewFromConfig(cfg)
	return nil
}

// GetSecret fetches the named secret and decodes its JSON object body into a
// string map. Failures are returned as configuration errors so the
// orchestrator sees a stable error code.
func (s *SecretsManagerSource) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	if err := s.ensureClient(ctx); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigSecret,
			fmt.Sprintf("initializing Secrets Manager client for secret %q", name), err)
	}

	output, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigSecret,
			fmt.Sprintf("fetching secret %q", name), err)
	}
	if output.SecretString == nil {
		return nil, types.NewAppError(types.ErrCodeConfigSecret,
			fmt.Sprintf("secret %q has no string value", name), nil)
	}

	var secret map[string]string
	if err := json.Unmarshal([]byte(*output.SecretString), &secret); err != nil {
		return nil, types.NewAppError(types.ErrCodeConfigSecret,
			fmt.Sprintf("secret %q is not a JSON object of strings", name), err)
	}

	return secret, nil
}

// APIKey resolves the Stripe API key from the default secret, caching it for
// the container lifetime. Returns a configuration error if the secret is
// unreachable or the api_key field is absent or empty.
func (s *SecretsManagerSource) APIKey(ctx context.Context) (types.SecretString, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.apiKey != "" {
		return s.apiKey, nil
	}

	secret, err := s.GetSecret(ctx, s.secretName)
	if err != nil {
		return "", err
	}

	key := secret[apiKeyField]
	if key == "" {
		return "", types.NewAppError(types.ErrCodeConfigSecret,
			fmt.Sprintf("secret %q does not contain an %q field", s.secretName, apiKeyField), nil)
	}

	s.apiKey = types.SecretString(key)
	return s.apiKey, nil
}

// Compile-time assertions.
var (
	_ SecretSource     = (*SecretsManagerSource)(nil)
	_ CredentialSource = (*SecretsManagerSource)(nil)
)
