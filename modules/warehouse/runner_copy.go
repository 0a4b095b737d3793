package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/vk/elgrid/internal/ctxlog"
)

// Load methods for s3_to_warehouse.
const (
	MethodAppend  = "APPEND"
	MethodReplace = "REPLACE"
)

// CopyInput defines the arguments for the s3_to_warehouse runner.
type CopyInput struct {
	S3Bucket        string   `bggo:"s3_bucket"`
	S3Key           string   `bggo:"s3_key"`
	Schema          string   `bggo:"schema"`
	Table           string   `bggo:"table"`
	ColumnList      []string `bggo:"column_list"`
	CopyOptions     []string `bggo:"copy_options"`
	IAMRole         string   `bggo:"iam_role"`
	AccessKeyID     string   `bggo:"access_key_id"`
	SecretAccessKey string   `bggo:"secret_access_key"`
	Method          string   `bggo:"method"`
}

// CopyOutput is the output of the s3_to_warehouse runner.
type CopyOutput struct {
	Table      string `cty:"table"`
	RowsLoaded int64  `cty:"rows_loaded"`
}

// OnRunS3ToWarehouse loads s3://bucket/key into schema.table with a
// Redshift COPY. REPLACE empties the table first in the same transaction,
// so readers never see it half loaded.
func OnRunS3ToWarehouse(ctx context.Context, deps *Deps, input *CopyInput) (*CopyOutput, error) {
	logger := ctxlog.FromContext(ctx)
	if deps.Warehouse == nil {
		return nil, fmt.Errorf("warehouse dependency was not injected")
	}

	method := strings.ToUpper(input.Method)
	if method == "" {
		method = MethodAppend
	}
	if method != MethodAppend && method != MethodReplace {
		return nil, fmt.Errorf("unknown load method %q, expected %s or %s", input.Method, MethodAppend, MethodReplace)
	}

	copyStmt, err := buildCopyStatement(input)
	if err != nil {
		return nil, err
	}
	target := qualifiedTable(input.Schema, input.Table)

	tx, err := deps.Warehouse.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if method == MethodReplace {
		logger.Info("Deleting existing rows before load", "table", target)
		if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s;", target)); err != nil {
			return nil, fmt.Errorf("error deleting rows from %s: %w", target, err)
		}
	}

	logger.Info("Copying S3 object into table", "source", fmt.Sprintf("s3://%s/%s", input.S3Bucket, input.S3Key), "table", target, "method", method)
	tag, err := tx.Exec(ctx, copyStmt)
	if err != nil {
		return nil, fmt.Errorf("error copying into %s: %w", target, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("error committing load into %s: %w", target, err)
	}

	logger.Info("Load committed", "table", target, "rows", tag.RowsAffected())
	return &CopyOutput{Table: target, RowsLoaded: tag.RowsAffected()}, nil
}

func qualifiedTable(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

// buildCopyStatement renders the COPY command. Credentials come from an
// IAM role or an access key pair; with neither, the cluster's default
// role is used.
func buildCopyStatement(in *CopyInput) (string, error) {
	if in.Table == "" {
		return "", fmt.Errorf("table must be set")
	}
	if in.S3Bucket == "" || in.S3Key == "" {
		return "", fmt.Errorf("s3_bucket and s3_key must be set")
	}

	var b strings.Builder
	b.WriteString("COPY ")
	b.WriteString(qualifiedTable(in.Schema, in.Table))
	if len(in.ColumnList) > 0 {
		cols := make([]string, len(in.ColumnList))
		for i, c := range in.ColumnList {
			cols[i] = pgx.Identifier{c}.Sanitize()
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(cols, ", "))
	}
	fmt.Fprintf(&b, "\nFROM %s", literal(fmt.Sprintf("s3://%s/%s", in.S3Bucket, in.S3Key)))

	switch {
	case in.IAMRole != "" && in.AccessKeyID != "":
		return "", fmt.Errorf("iam_role and access_key_id are mutually exclusive")
	case in.IAMRole != "":
		fmt.Fprintf(&b, "\nIAM_ROLE %s", literal(in.IAMRole))
	case in.AccessKeyID != "":
		if in.SecretAccessKey == "" {
			return "", fmt.Errorf("access_key_id requires secret_access_key")
		}
		creds := fmt.Sprintf("aws_access_key_id=%s;aws_secret_access_key=%s", in.AccessKeyID, in.SecretAccessKey)
		fmt.Fprintf(&b, "\nCREDENTIALS %s", literal(creds))
	default:
		b.WriteString("\nIAM_ROLE default")
	}

	if len(in.CopyOptions) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(in.CopyOptions, "\n"))
	}
	b.WriteString(";")
	return b.String(), nil
}
