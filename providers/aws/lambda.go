package aws

import (
	"context"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

// FetchFunctionPolicies lists functions and collects their resource
// policies. Functions without a policy are skipped silently.
func (f *Fetcher) FetchFunctionPolicies(ctx context.Context) ([]PolicyRecord, error) {
	var records []PolicyRecord

	var marker *string
	for {
		out, err := f.lambdaClient.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return records, fmt.Errorf("failed to list functions: %w", err)
		}

		for _, fn := range out.Functions {
			name := awssdk.ToString(fn.FunctionName)

			policy, err := f.lambdaClient.GetPolicy(ctx, &lambda.GetPolicyInput{
				FunctionName: awssdk.String(name),
			})
			if err != nil {
				if isNoFunctionPolicy(err) {
					continue
				}
				f.logger.WithContext(ctx).Warn().
					Err(err).
					Str("function", name).
					Msg("skipping function policy")
				continue
			}
			if policy.Policy == nil {
				continue
			}

			records = append(records, PolicyRecord{
				Name:     name,
				ARN:      awssdk.ToString(fn.FunctionArn),
				Service:  "lambda",
				Document: []byte(*policy.Policy),
			})
		}

		if out.NextMarker == nil {
			return records, nil
		}
		marker = out.NextMarker
	}
}

func isNoFunctionPolicy(err error) bool {
	return strings.Contains(err.Error(), "ResourceNotFoundException")
}
