package analyzer

import (
	"strings"

	"github.com/yairfalse/vartija/types"
)

// s3Analyzer is the S3 service variant.
type s3Analyzer struct{}

func (s3Analyzer) Service() string { return "s3" }

var s3Patterns = []PatternRule{
	{
		Pattern:        `s3:*`,
		Type:           "s3_full_access",
		Severity:       types.SeverityCritical,
		Description:    "Policy grants all S3 actions",
		Recommendation: "Grant only the bucket and object actions the workload needs",
	},
	{
		Pattern:        `"principal":"*"`,
		Type:           "public_principal",
		Severity:       types.SeverityCritical,
		Description:    "Bucket policy is open to any principal",
		Recommendation: "Restrict the principal and use CloudFront origin access where public reads are needed",
	},
	{
		Pattern:        `"action":"*"`,
		Type:           "wildcard_action",
		Severity:       types.SeverityCritical,
		Description:    "Policy allows all actions across all services",
		Recommendation: "Replace the wildcard action with the minimum action set",
	},
	{
		Pattern:        `"notaction"`,
		Type:           "not_action",
		Severity:       types.SeverityHigh,
		Description:    "NotAction grants everything except the listed actions",
		Recommendation: "Express grants as explicit Action lists",
	},
	{
		Pattern:        `s3:putbucketpolicy`,
		Type:           "bucket_policy_write",
		Severity:       types.SeverityHigh,
		Description:    "Policy allows rewriting bucket policies",
		Recommendation: "Reserve s3:PutBucketPolicy for bucket administrators",
	},
	{
		Pattern:        `s3:putbucketacl`,
		Type:           "bucket_acl_write",
		Severity:       types.SeverityHigh,
		Description:    "Policy allows changing bucket ACLs, which can make a bucket public",
		Recommendation: "Block ACL changes and rely on bucket policies with public access blocks",
	},
	{
		Pattern:        `s3:deletebucket`,
		Type:           "bucket_delete",
		Severity:       types.SeverityHigh,
		Description:    "Policy allows deleting buckets",
		Recommendation: "Limit s3:DeleteBucket to named, non-production buckets",
	},
	{
		Pattern:        `aws:securetransport`,
		Type:           "secure_transport_condition",
		Severity:       types.SeverityLow,
		Description:    "Policy enforces HTTPS transport",
		Positive:       true,
	},
	{
		Pattern:        `s3:x-amz-server-side-encryption`,
		Type:           "encryption_condition",
		Severity:       types.SeverityLow,
		Description:    "Policy requires server-side encryption",
		Positive:       true,
	},
}

var s3SensitiveActions = []string{
	"s3:deletebucket",
	"s3:deleteobject",
	"s3:deleteobjectversion",
	"s3:putbucketpolicy",
	"s3:putbucketacl",
	"s3:putobjectacl",
	"s3:putbucketpublicaccessblock",
	"s3:putencryptionconfiguration",
}

// s3DataActions touch object contents and should ride over TLS.
var s3DataActions = []string{
	"s3:getobject",
	"s3:putobject",
	"s3:getobjectversion",
}

func (s3Analyzer) Patterns() []PatternRule          { return s3Patterns }
func (s3Analyzer) SensitiveActions() []string       { return s3SensitiveActions }
func (s3Analyzer) DowngradeHighWithPositives() bool { return true }
func (s3Analyzer) FloorScoreAtZero() bool           { return false }

// AnalyzeStatement runs the S3 structural checks, including transport
// enforcement on object data access.
func (a s3Analyzer) AnalyzeStatement(stmt types.Statement, idx int) []types.Finding {
	if !stmt.IsAllow() {
		return nil
	}

	findings := commonStatementChecks(a.Service(), stmt, idx, s3SensitiveActions)

	if hasS3DataAction(stmt) && !conditionHasKey(stmt.Condition, "aws:SecureTransport") {
		findings = append(findings, types.Finding{
			Type:            "missing_https",
			Severity:        types.SeverityLow,
			Description:     "Object access is allowed without enforcing HTTPS (aws:SecureTransport)",
			Recommendation:  "Add a Bool aws:SecureTransport condition or a companion deny for insecure transport",
			DetectionMethod: types.DetectionSemantic,
			Service:         a.Service(),
			StatementIndex:  idx,
		})
	}

	return findings
}

func hasS3DataAction(stmt types.Statement) bool {
	for _, a := range stmt.Actions() {
		la := strings.ToLower(a)
		for _, data := range s3DataActions {
			if la == data {
				return true
			}
		}
	}
	return false
}

// AnalyzeContext runs the S3 contextual checks: compliance encryption
// and production exposure.
func (a s3Analyzer) AnalyzeContext(doc *types.PolicyDocument, opts types.AnalysisOptions) []types.Finding {
	var findings []types.Finding
	findings = append(findings, complianceEncryption(a.Service(), doc, opts)...)
	findings = append(findings, productionExposure(a.Service(), doc, opts)...)
	return findings
}

// ScoreDelta adds S3-characteristic bonuses and penalties.
func (s3Analyzer) ScoreDelta(serialized string) int {
	return scoreBySubstrings(serialized, []scoreDelta{
		{substr: "s3:putbucketacl", delta: 10},
		{substr: "s3:putbucketpolicy", delta: 10},
		{substr: "s3:deletebucket", delta: 5},
		{substr: "aws:securetransport", delta: -5},
		{substr: "s3:x-amz-server-side-encryption", delta: -5},
	})
}
