package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"subsync/internal/types"
)

// ssmMaxBatchSize is the maximum number of parameters that can be retrieved
// in a single SSM GetParameters API call. This is an AWS service limit.
const ssmMaxBatchSize = 10

// ssmClient is the subset of the SSM SDK client used by this package.
// The interface enables testing with a mock client.
type ssmClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider implements SecretProvider and ParameterSource by resolving
// values from AWS Systems Manager Parameter Store. Parameters are assumed to
// exist in the same region as the running Lambda.
//
// Batch retrieval performs GetParameters calls with decryption, respecting
// the SSM limit of 10 parameters per request, and checks context
// cancellation between batches for clean Lambda timeout handling.
type SSMProvider struct {
	region string

	// client is the SSM API client. If nil, a client is created lazily
	// using the configured region.
	client ssmClient
}

// NewSSMProvider creates an SSMProvider for the specified AWS region.
func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{
		region: region,
	}
}

// NewSSMProviderWithClient creates an SSMProvider with an injected SSM
// client. Used by tests and by callers that share a client.
func NewSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{
		region: region,
		client: client,
	}
}

// ensureClient initializes the SSM client if it has not been created yet.
func (p *SSMProvider) ensureClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.region),
	)
	if err != nil {
		return fmt.Errorf("loading AWS config for SSM (region=%s): %w", p.region, err)
	}

	p.client = ssm.NewFromConfig(cfg)
	return nil
}

// GetParameter resolves a single parameter with decryption. This is the
// per-invocation path used to resolve the subscribers table name; failures
// are returned as configuration errors so the orchestrator sees a stable
// error code.
func (p *SSMProvider) GetParameter(ctx context.Context, name string) (string, error) {
	if err := p.ensureClient(ctx); err != nil {
		return "", types.NewAppError(types.ErrCodeConfigParameter,
			fmt.Sprintf("initializing SSM client for parameter %q", name), err)
	}

	output, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeConfigParameter,
			fmt.Sprintf("fetching SSM parameter %q", name), err)
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", types.NewAppError(types.ErrCodeConfigParameter,
			fmt.Sprintf("SSM parameter %q has no value", name), nil)
	}

	return aws.ToString(output.Parameter.Value), nil
}

// GetParametersBatch retrieves multiple values from SSM Parameter Store in
// batches of at most ssmMaxBatchSize. Returns a map of parameter path ->
// decrypted plaintext value, and reports any parameters SSM flagged as
// invalid (not found).
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return make(map[string]string), nil
	}

	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	result := make(map[string]string, len(keys))

	for i := 0; i < len(keys); i += ssmMaxBatchSize {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during SSM parameter retrieval: %w", ctx.Err())
		default:
		}

		end := i + ssmMaxBatchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[i:end]

		output, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          batch,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("SSM GetParameters failed (batch %d-%d of %d): %w",
				i, end-1, len(keys), err)
		}

		for _, param := range output.Parameters {
			if param.Name != nil && param.Value != nil {
				result[*param.Name] = *param.Value
			}
		}

		if len(output.InvalidParameters) > 0 {
			return nil, fmt.Errorf("SSM parameters not found: %v", output.InvalidParameters)
		}
	}

	return result, nil
}

// Compile-time assertions.
var (
	_ SecretProvider  = (*SSMProvider)(nil)
	_ ParameterSource = (*SSMProvider)(nil)
)
