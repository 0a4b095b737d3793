package hcl

import (
	"context"
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/elgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

type decodeTarget struct {
	Bucket  string            `bggo:"bucket"`
	Replace bool              `bggo:"replace"`
	Options []string          `bggo:"copy_options"`
	Params  map[string]string `bggo:"params"`
	Workers int               `bggo:"workers"`
}

func decodeDefs() map[string]*config.InputDefinition {
	trueVal := cty.True
	emptyList := cty.EmptyTupleVal
	emptyObj := cty.EmptyObjectVal
	four := cty.NumberIntVal(4)
	return map[string]*config.InputDefinition{
		"bucket":       {Name: "bucket", Type: cty.String},
		"replace":      {Name: "replace", Type: cty.Bool, Default: &trueVal, Optional: true},
		"copy_options": {Name: "copy_options", Type: cty.List(cty.String), Default: &emptyList, Optional: true},
		"params":       {Name: "params", Type: cty.Map(cty.String), Default: &emptyObj, Optional: true},
		"workers":      {Name: "workers", Type: cty.Number, Default: &four, Optional: true},
	}
}

func TestConverter_DecodeBody(t *testing.T) {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"local": cty.ObjectVal(map[string]cty.Value{"bucket": cty.StringVal("raw-data")}),
		},
	}
	args := map[string]hcl.Expression{
		"bucket":       parseExpr(t, `local.bucket`),
		"copy_options": parseExpr(t, `["csv", "IGNOREHEADER 1"]`),
		"params":       parseExpr(t, `{ id = 7, redshift_table = "forestfires" }`),
	}

	var out decodeTarget
	err := NewConverter().DecodeBody(context.Background(), &out, args, decodeDefs(), evalCtx)
	require.NoError(t, err)

	assert.Equal(t, decodeTarget{
		Bucket:  "raw-data",
		Replace: true,
		Options: []string{"csv", "IGNOREHEADER 1"},
		Params:  map[string]string{"id": "7", "redshift_table": "forestfires"},
		Workers: 4,
	}, out)
}

func TestConverter_DecodeBody_Errors(t *testing.T) {
	conv := NewConverter()

	t.Run("missing required", func(t *testing.T) {
		var out decodeTarget
		err := conv.DecodeBody(context.Background(), &out, map[string]hcl.Expression{}, decodeDefs(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `missing required argument "bucket"`)
	})

	t.Run("unsupported argument", func(t *testing.T) {
		var out decodeTarget
		args := map[string]hcl.Expression{
			"bucket": parseExpr(t, `"b"`),
			"bukket": parseExpr(t, `"b"`),
		}
		err := conv.DecodeBody(context.Background(), &out, args, decodeDefs(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bukket")
	})

	t.Run("type mismatch", func(t *testing.T) {
		var out decodeTarget
		args := map[string]hcl.Expression{
			"bucket":  parseExpr(t, `"b"`),
			"replace": parseExpr(t, `"not a bool"`),
		}
		err := conv.DecodeBody(context.Background(), &out, args, decodeDefs(), nil)
		assert.Error(t, err)
	})
}

func TestConverter_ToCtyValue(t *testing.T) {
	type location struct {
		Bucket string `cty:"s3_bucket"`
		Key    string `cty:"s3_key"`
	}
	conv := NewConverter()

	v, err := conv.ToCtyValue(&location{Bucket: "b", Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, "b", v.GetAttr("s3_bucket").AsString())
	assert.Equal(t, "k", v.GetAttr("s3_key").AsString())

	v, err = conv.ToCtyValue(nil)
	require.NoError(t, err)
	assert.Equal(t, cty.NilVal, v)

	var nilLoc *location
	v, err = conv.ToCtyValue(nilLoc)
	require.NoError(t, err)
	assert.Equal(t, cty.NilVal, v)
}
