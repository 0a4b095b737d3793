package warehouse

import (
	"context"
	"fmt"

	"github.com/vk/elgrid/internal/ctxlog"
)

// ExecInput defines the arguments for the sql_exec runner.
type ExecInput struct {
	SQL    string            `bggo:"sql"`
	Params map[string]string `bggo:"params"`
}

// ExecOutput is the output of the sql_exec runner.
type ExecOutput struct {
	RowsAffected int64 `cty:"rows_affected"`
}

// OnRunSQLExec renders the statement with its params and executes it.
func OnRunSQLExec(ctx context.Context, deps *Deps, input *ExecInput) (*ExecOutput, error) {
	logger := ctxlog.FromContext(ctx)
	if deps.Warehouse == nil {
		return nil, fmt.Errorf("warehouse dependency was not injected")
	}

	query, err := render("sql_exec", input.SQL, input.Params)
	if err != nil {
		return nil, err
	}
	logger.Debug("Executing SQL.", "sql", query)

	tag, err := deps.Warehouse.Exec(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("executing SQL: %w", err)
	}
	logger.Info("SQL executed", "command", tag.String(), "rows_affected", tag.RowsAffected())
	return &ExecOutput{RowsAffected: tag.RowsAffected()}, nil
}
