package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// typeExprToCtyType parses a manifest type constraint such as `string`,
// `map(string)` or `object({ id = string })`. A missing expression means any.
func typeExprToCtyType(ctx context.Context, expr hcl.Expression) (cty.Type, error) {
	if expr == nil {
		return cty.DynamicPseudoType, nil
	}
	ty, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		return cty.DynamicPseudoType, fmt.Errorf("invalid type constraint: %w", diags)
	}
	ctxlog.FromContext(ctx).Debug("Parsed type constraint.", "type", ty.FriendlyName())
	return ty, nil
}
