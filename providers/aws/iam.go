package aws

import (
	"context"
	"fmt"
	"net/url"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// FetchRolePolicies lists IAM roles with their trust policies, inline
// policies and attached managed policies. Per-role failures are logged
// and skipped.
func (f *Fetcher) FetchRolePolicies(ctx context.Context) ([]PolicyRecord, error) {
	var records []PolicyRecord

	var marker *string
	for {
		out, err := f.iamClient.ListRoles(ctx, &iam.ListRolesInput{Marker: marker})
		if err != nil {
			return records, fmt.Errorf("failed to list roles: %w", err)
		}

		for _, role := range out.Roles {
			roleName := awssdk.ToString(role.RoleName)
			roleARN := awssdk.ToString(role.Arn)

			if doc, err := decodePolicyDocument(role.AssumeRolePolicyDocument); err == nil {
				records = append(records, PolicyRecord{
					Name:          roleName + "/trust",
					ARN:           roleARN,
					Service:       "iam",
					RoleName:      roleName,
					IsTrustPolicy: true,
					Document:      doc,
				})
			}

			inline, err := f.fetchInlinePolicies(ctx, roleName, roleARN)
			if err != nil {
				f.logger.WithContext(ctx).Warn().
					Err(err).
					Str("role", roleName).
					Msg("skipping inline policies")
			}
			records = append(records, inline...)

			attached, err := f.fetchAttachedPolicies(ctx, roleName, roleARN)
			if err != nil {
				f.logger.WithContext(ctx).Warn().
					Err(err).
					Str("role", roleName).
					Msg("skipping attached policies")
			}
			records = append(records, attached...)
		}

		if !out.IsTruncated {
			return records, nil
		}
		marker = out.Marker
	}
}

func (f *Fetcher) fetchInlinePolicies(ctx context.Context, roleName, roleARN string) ([]PolicyRecord, error) {
	out, err := f.iamClient.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: awssdk.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list role policies: %w", err)
	}

	var records []PolicyRecord
	for _, policyName := range out.PolicyNames {
		policy, err := f.iamClient.GetRolePolicy(ctx, &iam.GetRolePolicyInput{
			RoleName:   awssdk.String(roleName),
			PolicyName: awssdk.String(policyName),
		})
		if err != nil {
			return records, fmt.Errorf("failed to get role policy %s: %w", policyName, err)
		}

		doc, err := decodePolicyDocument(policy.PolicyDocument)
		if err != nil {
			return records, err
		}
		records = append(records, PolicyRecord{
			Name:     roleName + "/" + policyName,
			ARN:      roleARN,
			Service:  "iam",
			RoleName: roleName,
			Document: doc,
		})
	}
	return records, nil
}

func (f *Fetcher) fetchAttachedPolicies(ctx context.Context, roleName, roleARN string) ([]PolicyRecord, error) {
	out, err := f.iamClient.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: awssdk.String(roleName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attached policies: %w", err)
	}

	var records []PolicyRecord
	for _, attached := range out.AttachedPolicies {
		policyARN := awssdk.ToString(attached.PolicyArn)

		policy, err := f.iamClient.GetPolicy(ctx, &iam.GetPolicyInput{
			PolicyArn: awssdk.String(policyARN),
		})
		if err != nil {
			return records, fmt.Errorf("failed to get policy %s: %w", policyARN, err)
		}

		version, err := f.iamClient.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
			PolicyArn: awssdk.String(policyARN),
			VersionId: policy.Policy.DefaultVersionId,
		})
		if err != nil {
			return records, fmt.Errorf("failed to get policy version %s: %w", policyARN, err)
		}

		doc, err := decodePolicyDocument(version.PolicyVersion.Document)
		if err != nil {
			return records, err
		}
		records = append(records, PolicyRecord{
			Name:     roleName + "/" + awssdk.ToString(attached.PolicyName),
			ARN:      policyARN,
			Service:  "iam",
			RoleName: roleName,
			Document: doc,
		})
	}
	return records, nil
}

// decodePolicyDocument handles the URL-encoded JSON IAM returns.
func decodePolicyDocument(encoded *string) ([]byte, error) {
	if encoded == nil {
		return nil, fmt.Errorf("missing policy document")
	}
	decoded, err := url.QueryUnescape(*encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode policy document: %w", err)
	}
	return []byte(decoded), nil
}
