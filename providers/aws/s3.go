package aws

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FetchBucketPolicies lists buckets and collects their bucket policies.
// Buckets without a policy are skipped silently; that is the common
// case, not an error.
func (f *Fetcher) FetchBucketPolicies(ctx context.Context) ([]PolicyRecord, error) {
	out, err := f.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}

	var records []PolicyRecord
	for _, bucket := range out.Buckets {
		name := awssdk.ToString(bucket.Name)

		policy, err := f.s3Client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{
			Bucket: awssdk.String(name),
		})
		if err != nil {
			if isNoBucketPolicy(err) {
				continue
			}
			f.logger.WithContext(ctx).Warn().
				Err(err).
				Str("bucket", name).
				Msg("skipping bucket policy")
			continue
		}
		if policy.Policy == nil {
			continue
		}

		records = append(records, PolicyRecord{
			Name:     name,
			ARN:      "arn:aws:s3:::" + name,
			Service:  "s3",
			Document: []byte(*policy.Policy),
		})
	}
	return records, nil
}

func isNoBucketPolicy(err error) bool {
	return strings.Contains(err.Error(), "NoSuchBucketPolicy")
}
