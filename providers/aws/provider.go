// Package aws fetches live policy documents for the bulk analysis entry
// points: IAM role policies, S3 bucket policies and Lambda resource
// policies. The engine never calls this package; only the scan and
// daemon commands do.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/yairfalse/vartija/telemetry"
)

// PolicyRecord is one fetched policy document, ready for analysis.
type PolicyRecord struct {
	Name          string
	ARN           string
	Service       string
	RoleName      string
	IsTrustPolicy bool
	Document      []byte
}

// Fetcher lists live resources and their policies.
type Fetcher struct {
	iamClient    IAMAPI
	s3Client     S3API
	lambdaClient LambdaAPI
	stsClient    STSAPI
	region       string
	logger       *telemetry.Logger
}

// NewFetcher creates a fetcher with real AWS clients.
func NewFetcher(ctx context.Context, region string) (*Fetcher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Fetcher{
		iamClient:    iam.NewFromConfig(cfg),
		s3Client:     s3.NewFromConfig(cfg),
		lambdaClient: lambda.NewFromConfig(cfg),
		stsClient:    sts.NewFromConfig(cfg),
		region:       region,
		logger:       telemetry.NewLogger("aws-fetcher"),
	}, nil
}

// NewFetcherWithClients creates a fetcher with explicit clients, used
// by tests.
func NewFetcherWithClients(iamClient IAMAPI, s3Client S3API, lambdaClient LambdaAPI, stsClient STSAPI) *Fetcher {
	return &Fetcher{
		iamClient:    iamClient,
		s3Client:     s3Client,
		lambdaClient: lambdaClient,
		stsClient:    stsClient,
		logger:       telemetry.NewLogger("aws-fetcher"),
	}
}

// Region returns the configured region.
func (f *Fetcher) Region() string {
	return f.region
}

// AccountID returns the evaluated account's ID from STS.
func (f *Fetcher) AccountID(ctx context.Context) (string, error) {
	out, err := f.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to get caller identity: %w", err)
	}
	return awssdk.ToString(out.Account), nil
}

// FetchAll lists role, bucket and function policies. A failure in one
// service is logged and skipped so the others still come back.
func (f *Fetcher) FetchAll(ctx context.Context) ([]PolicyRecord, error) {
	var records []PolicyRecord

	roles, err := f.FetchRolePolicies(ctx)
	if err != nil {
		f.logger.WithContext(ctx).Error().Err(err).Msg("failed to fetch role policies")
	}
	records = append(records, roles...)

	buckets, err := f.FetchBucketPolicies(ctx)
	if err != nil {
		f.logger.WithContext(ctx).Error().Err(err).Msg("failed to fetch bucket policies")
	}
	records = append(records, buckets...)

	functions, err := f.FetchFunctionPolicies(ctx)
	if err != nil {
		f.logger.WithContext(ctx).Error().Err(err).Msg("failed to fetch function policies")
	}
	records = append(records, functions...)

	if len(records) == 0 && err != nil {
		return nil, fmt.Errorf("all policy fetches failed: %w", err)
	}
	return records, nil
}
