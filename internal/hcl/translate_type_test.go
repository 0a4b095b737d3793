package hcl

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestTypeExprToCtyType(t *testing.T) {
	testCases := []struct {
		src  string
		want cty.Type
	}{
		{"string", cty.String},
		{"number", cty.Number},
		{"bool", cty.Bool},
		{"any", cty.DynamicPseudoType},
		{"list(string)", cty.List(cty.String)},
		{"map(string)", cty.Map(cty.String)},
		{"set(number)", cty.Set(cty.Number)},
		{"object({ s3_bucket = string, s3_key = string })", cty.Object(map[string]cty.Type{
			"s3_bucket": cty.String,
			"s3_key":    cty.String,
		})},
	}
	for _, tc := range testCases {
		t.Run(tc.src, func(t *testing.T) {
			expr, diags := hclsyntax.ParseExpression([]byte(tc.src), "type.hcl", hcl.InitialPos)
			require.False(t, diags.HasErrors(), diags.Error())

			got, err := typeExprToCtyType(context.Background(), expr)
			require.NoError(t, err)
			assert.True(t, tc.want.Equals(got), "got %s", got.FriendlyName())
		})
	}
}

func TestTypeExprToCtyType_Invalid(t *testing.T) {
	for _, src := range []string{"strng", "list(string, number)", `"string"`} {
		expr, diags := hclsyntax.ParseExpression([]byte(src), "type.hcl", hcl.InitialPos)
		require.False(t, diags.HasErrors(), diags.Error())

		_, err := typeExprToCtyType(context.Background(), expr)
		assert.Error(t, err, src)
	}
}

func TestTypeExprToCtyType_NilIsAny(t *testing.T) {
	got, err := typeExprToCtyType(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, cty.DynamicPseudoType, got)
}
