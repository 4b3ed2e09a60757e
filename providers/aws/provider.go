// Package aws adapts EC2 discovery and CloudWatch metric reads to the
// provider capability interface.
package aws

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/smithy-go"

	"github.com/kulu-io/kulu/providers"
)

const providerName = "aws"

func init() {
	providers.Register(providerName, New)
}

// Provider implements providers.CloudProvider for AWS
type Provider struct {
	ec2Client EC2API
	rdsClient RDSAPI
	cwClient  CloudWatchAPI
	region    string
}

// New creates an AWS provider from the default credential chain
func New(ctx context.Context, cfg providers.ProviderConfig) (providers.CloudProvider, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Provider{
		ec2Client: ec2.NewFromConfig(awsCfg),
		rdsClient: rds.NewFromConfig(awsCfg),
		cwClient:  cloudwatch.NewFromConfig(awsCfg),
		region:    cfg.Region,
	}, nil
}

// NewWithClients builds a provider with explicit clients, for tests
func NewWithClients(ec2Client EC2API, rdsClient RDSAPI, cwClient CloudWatchAPI, region string) *Provider {
	return &Provider{ec2Client: ec2Client, rdsClient: rdsClient, cwClient: cwClient, region: region}
}

// Name returns the provider identifier
func (p *Provider) Name() string { return providerName }

// API error codes that mean the caller's credentials are bad. These
// abort the run; retrying cannot help.
var authErrorCodes = map[string]bool{
	"AuthFailure":           true,
	"UnauthorizedOperation": true,
	"AccessDenied":          true,
	"AccessDeniedException": true,
	"ExpiredToken":          true,
	"ExpiredTokenException": true,
	"InvalidClientTokenId":  true,
}

// API error codes that mean we hit the provider's rate ceiling
var throttleErrorCodes = map[string]bool{
	"Throttling":                true,
	"ThrottlingException":       true,
	"RequestLimitExceeded":      true,
	"RequestThrottled":          true,
	"RequestThrottledException": true,
	"TooManyRequestsException":  true,
}

// classify translates SDK errors into the provider error taxonomy
func classify(accountID, op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case authErrorCodes[code]:
			return &providers.AuthError{Provider: providerName, AccountID: accountID, Err: err}
		case throttleErrorCodes[code]:
			return &providers.RateLimitError{Op: op, Err: err}
		}
	}
	return &providers.ProviderError{Op: op, Err: err}
}
