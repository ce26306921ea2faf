package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vartija/types"
)

func mustDoc(t *testing.T, raw string) *types.PolicyDocument {
	t.Helper()
	doc, err := types.ParsePolicyDocument([]byte(raw))
	require.NoError(t, err)
	return doc
}

func TestClassifyEmptyDocument(t *testing.T) {
	ctx := Classify(mustDoc(t, `{"Statement":[]}`), types.AnalysisOptions{})

	assert.Equal(t, types.AccountIAMEntity, ctx.AccountType)
	assert.Equal(t, types.RoleStandard, ctx.RoleType)
}

func TestClassifyRootBeatsServiceRole(t *testing.T) {
	// Both a root principal and a service trust statement: root wins.
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::123456789012:root"},"Action":"sts:AssumeRole"},
		{"Effect":"Allow","Principal":{"Service":"ec2.amazonaws.com"},"Action":"sts:AssumeRole"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.AccountRoot, ctx.AccountType)
	assert.Equal(t, types.RoleRootAccount, ctx.RoleType)
}

func TestClassifyServiceRole(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Principal":{"Service":"lambda.amazonaws.com"},"Action":"sts:AssumeRole"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.AccountService, ctx.AccountType)
	assert.Equal(t, types.RoleServiceRole, ctx.RoleType)
	assert.Equal(t, "lambda.amazonaws.com", ctx.Service)
	assert.False(t, ctx.IsServiceLinked())
}

func TestClassifyServiceLinkedByRoleName(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Principal":{"Service":"autoscaling.amazonaws.com"},"Action":"sts:AssumeRole"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{RoleName: "AWSServiceRoleForAutoScaling"})

	assert.Equal(t, types.RoleServiceLinked, ctx.RoleType)
	assert.True(t, ctx.IsServiceLinked())
}

func TestClassifyServiceLinkedByPath(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Principal":{"Service":"es.amazonaws.com"},"Action":"sts:AssumeRole",
		 "Resource":"arn:aws:iam::123456789012:role/aws-service-role/es.amazonaws.com/sample"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.RoleServiceLinked, ctx.RoleType)
}

func TestClassifyCrossAccount(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::210987654321:role/partner"},"Action":"s3:GetObject"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{AccountID: "123456789012"})

	assert.Equal(t, types.AccountCrossAccount, ctx.AccountType)
	assert.Equal(t, types.RoleCrossAccount, ctx.RoleType)
}

func TestClassifySameAccountIsNotCross(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::123456789012:role/app"},"Action":"s3:GetObject"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{AccountID: "123456789012"})

	assert.NotEqual(t, types.AccountCrossAccount, ctx.AccountType)
}

func TestClassifyCrossAccountWithoutOwnAccountID(t *testing.T) {
	// Unknown evaluated account: any concrete account principal counts.
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::210987654321:role/partner"},"Action":"s3:GetObject"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.AccountCrossAccount, ctx.AccountType)
}

func TestClassifyCrossAccountIgnoresInterpolation(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Principal":{"AWS":"arn:aws:iam::${aws:PrincipalAccount}:root"},"Action":"s3:GetObject"}
	]}`)

	// The interpolated principal also contains ":root", so the root check
	// wins here; what matters is cross-account does not fire on it.
	ctx := Classify(doc, types.AnalysisOptions{AccountID: "123456789012"})

	assert.NotEqual(t, types.AccountCrossAccount, ctx.AccountType)
}

func TestClassifyAdminFull(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Action":"*","Resource":"*"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.AccountAdmin, ctx.AccountType)
	assert.Equal(t, types.AdminFull, ctx.AdminLevel)
}

func TestClassifyAdminServiceSpecific(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Action":"iam:*","Resource":"arn:aws:iam::123456789012:role/*"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.AccountAdmin, ctx.AccountType)
	assert.Equal(t, types.AdminServiceSpecific, ctx.AdminLevel)
}

func TestClassifyAdminLimited(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Action":["iam:CreateRole","s3:GetObject"],"Resource":"arn:aws:iam::123456789012:role/app"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.AccountAdmin, ctx.AccountType)
	assert.Equal(t, types.AdminLimited, ctx.AdminLevel)
}

func TestClassifyAssumptionDirect(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Action":"sts:AssumeRole","Resource":"arn:aws:iam::123456789012:role/deploy"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.RoleAssumption, ctx.RoleType)
	assert.Equal(t, types.AssumptionDirect, ctx.AssumptionType)
}

func TestClassifyAssumptionChaining(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Action":"sts:AssumeRole","Resource":[
			"arn:aws:iam::123456789012:role/one",
			"arn:aws:iam::123456789012:role/two"
		]}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.AssumptionChaining, ctx.AssumptionType)
}

func TestClassifyStandardEntity(t *testing.T) {
	doc := mustDoc(t, `{"Statement":[
		{"Effect":"Allow","Action":"s3:GetObject","Resource":"arn:aws:s3:::data/*"}
	]}`)

	ctx := Classify(doc, types.AnalysisOptions{})

	assert.Equal(t, types.AccountIAMEntity, ctx.AccountType)
	assert.Equal(t, types.RoleStandard, ctx.RoleType)
}
