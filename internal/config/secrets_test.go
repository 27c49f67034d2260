package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"subsync/internal/types"
)

// mockSecretsClient serves a canned secret string and counts fetches.
type mockSecretsClient struct {
	secretString *string
	err          error
	calls        int
}

func (m *mockSecretsClient) GetSecretValue(_ context.Context, _ *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: m.secretString}, nil
}

func TestSecretsManagerSource_GetSecret(t *testing.T) {
	client := &mockSecretsClient{secretString: aws.String(`{"api_key":"sk_test_abc123"}`)}
	source := NewSecretsManagerSourceWithClient("us-east-1", "/stripe/api/sandbox/api_key", client)

	secret, err := source.GetSecret(context.Background(), "/stripe/api/sandbox/api_key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secret["api_key"] != "sk_test_abc123" {
		t.Errorf("api_key = %q", secret["api_key"])
	}
}

func TestSecretsManagerSource_GetSecretNonJSON(t *testing.T) {
	client := &mockSecretsClient{secretString: aws.String("not-json")}
	source := NewSecretsManagerSourceWithClient("us-east-1", "/stripe/api/sandbox/api_key", client)

	_, err := source.GetSecret(context.Background(), "/stripe/api/sandbox/api_key")
	assertConfigSecretError(t, err)
}

func TestSecretsManagerSource_GetSecretFetchFailure(t *testing.T) {
	client := &mockSecretsClient{err: errors.New("AccessDeniedException")}
	source := NewSecretsManagerSourceWithClient("us-east-1", "/stripe/api/sandbox/api_key", client)

	_, err := source.GetSecret(context.Background(), "/stripe/api/sandbox/api_key")
	assertConfigSecretError(t, err)
}

func TestSecretsManagerSource_APIKeyCachesPerContainer(t *testing.T) {
	client := &mockSecretsClient{secretString: aws.String(`{"api_key":"sk_test_abc123"}`)}
	source := NewSecretsManagerSourceWithClient("us-east-1", "/stripe/api/sandbox/api_key", client)

	for i := 0; i < 3; i++ {
		key, err := source.APIKey(context.Background())
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
		if key.Unmask() != "sk_test_abc123" {
			t.Errorf("key = %q", key.Unmask())
		}
	}

	if client.calls != 1 {
		t.Errorf("expected 1 Secrets Manager fetch, got %d", client.calls)
	}
}

func TestSecretsManagerSource_APIKeyMissingField(t *testing.T) {
	client := &mockSecretsClient{secretString: aws.String(`{"other":"value"}`)}
	source := NewSecretsManagerSourceWithClient("us-east-1", "/stripe/api/sandbox/api_key", client)

	_, err := source.APIKey(context.Background())
	assertConfigSecretError(t, err)
}

func assertConfigSecretError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeConfigSecret {
		t.Errorf("code = %s, want %s", appErr.Code, types.ErrCodeConfigSecret)
	}
}
