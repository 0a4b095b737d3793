package warehouse

import (
	"context"
	"errors"
	"math/big"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	hclconfig "github.com/vk/elgrid/internal/hcl"
	"github.com/vk/elgrid/internal/registry"
	"github.com/vk/elgrid/modules/warehouse/warehousetest"
)

// MockConn is a mock implementation of the Conn interface.
type MockConn struct {
	mock.Mock
	Conn
}

func (m *MockConn) Exec(ctx context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func TestRender(t *testing.T) {
	testCases := []struct {
		name    string
		text    string
		params  map[string]string
		want    string
		wantErr string
	}{
		{
			name:   "params",
			text:   "SELECT * FROM {{ .Params.redshift_table }} WHERE id = {{ .Params.id }}",
			params: map[string]string{"redshift_table": "fires", "id": "7"},
			want:   "SELECT * FROM fires WHERE id = 7",
		},
		{
			name:   "helpers",
			text:   "SELECT {{ literal .Params.name }} FROM {{ ident \"public\" .Params.table }}",
			params: map[string]string{"name": "O'Neil", "table": "fi\"res"},
			want:   `SELECT 'O''Neil' FROM "public"."fi""res"`,
		},
		{
			name:    "missing param",
			text:    "SELECT {{ .Params.nope }}",
			wantErr: "nope",
		},
		{
			name:    "bad template",
			text:    "SELECT {{ .Params.x ",
			wantErr: "parsing SQL template",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := render(tc.name, tc.text, tc.params)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildCopyStatement(t *testing.T) {
	testCases := []struct {
		name    string
		in      CopyInput
		want    string
		wantErr string
	}{
		{
			name: "default role with options",
			in: CopyInput{
				S3Bucket: "data", S3Key: "raw/forestfires.csv",
				Schema: "PUBLIC", Table: "fires",
				CopyOptions: []string{"csv", "IGNOREHEADER 1"},
			},
			want: "COPY \"PUBLIC\".\"fires\"\nFROM 's3://data/raw/forestfires.csv'\nIAM_ROLE default\ncsv\nIGNOREHEADER 1;",
		},
		{
			name: "iam role and columns",
			in: CopyInput{
				S3Bucket: "data", S3Key: "k.csv", Table: "fires",
				ColumnList: []string{"id", "X"},
				IAMRole:    "arn:aws:iam::123:role/load",
			},
			want: "COPY \"fires\" (\"id\", \"X\")\nFROM 's3://data/k.csv'\nIAM_ROLE 'arn:aws:iam::123:role/load';",
		},
		{
			name: "access keys",
			in: CopyInput{
				S3Bucket: "data", S3Key: "k.csv", Table: "fires",
				AccessKeyID: "AKIA", SecretAccessKey: "s'ecret",
			},
			want: "COPY \"fires\"\nFROM 's3://data/k.csv'\nCREDENTIALS 'aws_access_key_id=AKIA;aws_secret_access_key=s''ecret';",
		},
		{
			name:    "missing secret",
			in:      CopyInput{S3Bucket: "b", S3Key: "k", Table: "t", AccessKeyID: "AKIA"},
			wantErr: "requires secret_access_key",
		},
		{
			name:    "role and keys",
			in:      CopyInput{S3Bucket: "b", S3Key: "k", Table: "t", AccessKeyID: "AKIA", IAMRole: "r"},
			wantErr: "mutually exclusive",
		},
		{
			name:    "no table",
			in:      CopyInput{S3Bucket: "b", S3Key: "k"},
			wantErr: "table must be set",
		},
		{
			name:    "no key",
			in:      CopyInput{S3Bucket: "b", Table: "t"},
			wantErr: "s3_key must be set",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildCopyStatement(&tc.in)
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func copyInput(method string) *CopyInput {
	return &CopyInput{
		S3Bucket:    "data",
		S3Key:       "raw/forestfires.csv",
		Schema:      "PUBLIC",
		Table:       "fires",
		CopyOptions: []string{"csv"},
		Method:      method,
	}
}

func TestS3ToWarehouse_Append(t *testing.T) {
	conn := &warehousetest.Conn{
		ExecFunc: func(string) (pgconn.CommandTag, error) { return pgconn.NewCommandTag("COPY 517"), nil },
	}
	out, err := OnRunS3ToWarehouse(context.Background(), &Deps{Warehouse: conn}, copyInput(""))
	require.NoError(t, err)

	assert.Equal(t, &CopyOutput{Table: `"PUBLIC"."fires"`, RowsLoaded: 517}, out)
	require.Len(t, conn.Execs(), 1)
	assert.Contains(t, conn.Execs()[0], "COPY \"PUBLIC\".\"fires\"")
	assert.Equal(t, 1, conn.Commits())
	assert.Equal(t, 0, conn.Rollbacks())
}

func TestS3ToWarehouse_ReplaceDeletesFirst(t *testing.T) {
	conn := &warehousetest.Conn{}
	_, err := OnRunS3ToWarehouse(context.Background(), &Deps{Warehouse: conn}, copyInput("replace"))
	require.NoError(t, err)

	execs := conn.Execs()
	require.Len(t, execs, 2)
	assert.Equal(t, `DELETE FROM "PUBLIC"."fires";`, execs[0])
	assert.Contains(t, execs[1], "COPY ")
	assert.Equal(t, 1, conn.Commits())
}

func TestS3ToWarehouse_CopyFailureRollsBack(t *testing.T) {
	loadErr := &pgconn.PgError{Code: "XX000", Message: "Load into table 'fires' failed"}
	conn := &warehousetest.Conn{
		ExecFunc: func(sql string) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, loadErr
		},
	}
	_, err := OnRunS3ToWarehouse(context.Background(), &Deps{Warehouse: conn}, copyInput(MethodAppend))
	require.Error(t, err)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "XX000", pgErr.Code)
	assert.Equal(t, 0, conn.Commits())
	assert.Equal(t, 1, conn.Rollbacks())
}

func TestS3ToWarehouse_UnknownMethod(t *testing.T) {
	conn := &warehousetest.Conn{}
	_, err := OnRunS3ToWarehouse(context.Background(), &Deps{Warehouse: conn}, copyInput("UPSERT"))
	assert.ErrorContains(t, err, "unknown load method")
	assert.Empty(t, conn.Execs())
}

func TestSQLExec(t *testing.T) {
	conn := new(MockConn)
	conn.On("Exec", mock.Anything, `CREATE TABLE IF NOT EXISTS "fires" (id INT);`).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil).Once()

	out, err := OnRunSQLExec(context.Background(), &Deps{Warehouse: conn}, &ExecInput{
		SQL:    `CREATE TABLE IF NOT EXISTS {{ ident .Params.redshift_table }} (id INT);`,
		Params: map[string]string{"redshift_table": "fires"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.RowsAffected)
	conn.AssertExpectations(t)
}

func TestSQLExec_ErrorIsWrapped(t *testing.T) {
	conn := new(MockConn)
	boom := errors.New("connection reset")
	conn.On("Exec", mock.Anything, "SELECT 1").Return(pgconn.CommandTag{}, boom)

	_, err := OnRunSQLExec(context.Background(), &Deps{Warehouse: conn}, &ExecInput{SQL: "SELECT 1"})
	assert.ErrorIs(t, err, boom)
}

func TestSQLCheck(t *testing.T) {
	queryErr := errors.New("relation does not exist")
	testCases := []struct {
		name    string
		rows    *warehousetest.Rows
		err     error
		want    []string
		target  error
		wantErr string
	}{
		{
			name: "all truthy",
			rows: &warehousetest.Rows{Row: []any{true, int64(1), "x"}},
			want: []string{"true", "1", "x"},
		},
		{
			name:    "zero count fails",
			rows:    &warehousetest.Rows{Row: []any{int64(0)}, Columns: []string{"count"}},
			target:  ErrCheckFailed,
			wantErr: "column count",
		},
		{
			name:   "null fails",
			rows:   &warehousetest.Rows{Row: []any{true, nil}},
			target: ErrCheckFailed,
		},
		{
			name:   "no rows",
			rows:   &warehousetest.Rows{},
			target: ErrNoRows,
		},
		{
			name:   "query error",
			err:    queryErr,
			target: queryErr,
		},
		{
			name:   "rows error",
			rows:   &warehousetest.Rows{Error: queryErr},
			target: queryErr,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &warehousetest.Conn{
				QueryFunc: func(string) (*warehousetest.Rows, error) { return tc.rows, tc.err },
			}
			out, err := OnRunSQLCheck(context.Background(), &Deps{Warehouse: conn}, &CheckInput{
				SQL:    "SELECT COUNT(*) FROM {{ .Params.table }}",
				Params: map[string]string{"table": "fires"},
			})
			assert.Equal(t, []string{"SELECT COUNT(*) FROM fires"}, conn.Queries())
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
				if tc.wantErr != "" {
					assert.ErrorContains(t, err, tc.wantErr)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Values)
		})
	}
}

func TestTruthy(t *testing.T) {
	testCases := []struct {
		name string
		v    any
		want bool
	}{
		{"nil", nil, false},
		{"false", false, false},
		{"true", true, true},
		{"empty string", "", false},
		{"string zero", "0", true},
		{"int zero", int32(0), false},
		{"int", int64(3), true},
		{"float zero", 0.0, false},
		{"float", 0.5, true},
		{"numeric zero", pgtype.Numeric{Int: big.NewInt(0), Valid: true}, false},
		{"numeric", pgtype.Numeric{Int: big.NewInt(12), Exp: -1, Valid: true}, true},
		{"numeric null", pgtype.Numeric{}, false},
		{"empty bytes", []byte{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, truthy(tc.v))
		})
	}
}

func TestWarehouseLifecycle(t *testing.T) {
	conn := &warehousetest.Conn{}
	got, err := createWarehouse(context.Background(), &PoolInput{DSN: "postgres://x"}, func(_ context.Context, in *PoolInput) (Conn, error) {
		assert.Equal(t, "postgres://x", in.DSN)
		return conn, nil
	})
	require.NoError(t, err)
	require.NoError(t, destroyWarehouse(context.Background(), got))
	assert.True(t, conn.Closed())
}

func TestConnectPool_InvalidDSN(t *testing.T) {
	_, err := connectPool(context.Background(), &PoolInput{DSN: "::not a dsn::"})
	assert.ErrorContains(t, err, "parsing dsn")
}

func TestManifestMatchesHandlers(t *testing.T) {
	model, _, err := hclconfig.NewLoader(os.DirFS(".")).Load(context.Background())
	require.NoError(t, err)
	for _, runner := range []string{"sql_exec", "s3_to_warehouse", "sql_check"} {
		require.Contains(t, model.Runners, runner)
	}

	r := registry.New()
	(&Module{}).Register(r)
	r.PopulateDefinitionsFromModel(model)
	assert.NoError(t, r.ValidateRegistry(context.Background()))
}
