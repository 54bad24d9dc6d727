package secrets

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// AWSSecretsManagerProvider resolves secrets from AWS Secrets Manager,
// treating each Resolve(name) call as a lookup of the secret whose ID
// is name directly (one secret per DSN, rather than one JSON blob).
type AWSSecretsManagerProvider struct {
	client *secretsmanager.Client
}

// NewAWSSecretsManagerProvider loads the default AWS credential chain
// scoped to region.
func NewAWSSecretsManagerProvider(ctx context.Context, region string) (*AWSSecretsManagerProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("secrets: aws config: %w", err)
	}
	return &AWSSecretsManagerProvider{client: secretsmanager.NewFromConfig(cfg)}, nil
}

func (p *AWSSecretsManagerProvider) Resolve(ctx context.Context, name string) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: aws secretsmanager %s: %w", name, err)
	}
	if out.SecretString == nil {
		return "", ErrNotFound(name)
	}
	return *out.SecretString, nil
}
