package warehouse

import (
	"context"
	"fmt"
	"math/big"
	"reflect"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/vk/elgrid/internal/ctxlog"
)

// CheckInput defines the arguments for the sql_check runner.
type CheckInput struct {
	SQL    string            `bggo:"sql"`
	Params map[string]string `bggo:"params"`
}

// CheckOutput is the output of the sql_check runner.
type CheckOutput struct {
	Values []string `cty:"values"`
}

// OnRunSQLCheck runs the rendered query and fails unless its first row
// exists and every value in it is truthy.
func OnRunSQLCheck(ctx context.Context, deps *Deps, input *CheckInput) (*CheckOutput, error) {
	logger := ctxlog.FromContext(ctx)
	if deps.Warehouse == nil {
		return nil, fmt.Errorf("warehouse dependency was not injected")
	}

	query, err := render("sql_check", input.SQL, input.Params)
	if err != nil {
		return nil, err
	}
	logger.Debug("Running check query.", "sql", query)

	rows, err := deps.Warehouse.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("running check query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("running check query: %w", err)
		}
		return nil, ErrNoRows
	}
	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("reading check row: %w", err)
	}
	fields := rows.FieldDescriptions()

	out := &CheckOutput{Values: make([]string, len(values))}
	for i, v := range values {
		out.Values[i] = fmt.Sprint(v)
		if !truthy(v) {
			name := fmt.Sprintf("#%d", i)
			if i < len(fields) {
				name = fields[i].Name
			}
			return nil, fmt.Errorf("%w: column %s is %v", ErrCheckFailed, name, v)
		}
	}

	logger.Info("Check passed", "values", out.Values)
	return out, nil
}

// truthy reports whether a scanned value counts as passing: null, false,
// zero and empty values do not.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []byte:
		return len(x) > 0
	case pgtype.Numeric:
		if !x.Valid {
			return false
		}
		if x.NaN || x.InfinityModifier != pgtype.Finite {
			return true
		}
		return x.Int != nil && x.Int.Sign() != 0
	case *big.Int:
		return x != nil && x.Sign() != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	case reflect.Ptr:
		return !rv.IsNil()
	}
	return true
}
