// Package warehouse provides a pooled warehouse connection asset and the
// runners that create tables, bulk-load from S3 and run SQL checks.
package warehouse

import (
	"context"
	"errors"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vk/elgrid/internal/registry"
)

var (
	// ErrNoRows is returned by sql_check when the query returns nothing.
	ErrNoRows = errors.New("check query returned no rows")
	// ErrCheckFailed is returned by sql_check when a value in the first
	// row is falsy.
	ErrCheckFailed = errors.New("check failed")
)

// Conn is the part of a connection pool the runners use. *pgxpool.Pool
// satisfies it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Deps is injected from a step's `uses` block.
type Deps struct {
	Warehouse Conn `bggo:"warehouse"`
}

// Module implements the registry.Module interface for the warehouse package.
type Module struct {
	// Connect opens the connection behind a warehouse resource. Nil means
	// a pgx pool.
	Connect func(ctx context.Context, in *PoolInput) (Conn, error)
}

// Register registers the module's asset and runners with the registry.
func (m *Module) Register(r *registry.Registry) {
	connect := m.Connect
	if connect == nil {
		connect = connectPool
	}

	r.RegisterAssetHandler("CreateWarehouse", &registry.RegisteredAsset{
		NewInput: func() any { return new(PoolInput) },
		CreateFn: func(ctx context.Context, in *PoolInput) (Conn, error) {
			return createWarehouse(ctx, in, connect)
		},
	})
	r.RegisterAssetHandler("DestroyWarehouse", &registry.RegisteredAsset{
		DestroyFn: destroyWarehouse,
	})
	r.RegisterAssetInterface("warehouse", reflect.TypeOf((*Conn)(nil)).Elem())

	r.RegisterRunner("OnRunSQLExec", &registry.RegisteredRunner{
		NewInput: func() any { return new(ExecInput) },
		NewDeps:  func() any { return new(Deps) },
		Fn:       OnRunSQLExec,
	})
	r.RegisterRunner("OnRunS3ToWarehouse", &registry.RegisteredRunner{
		NewInput: func() any { return new(CopyInput) },
		NewDeps:  func() any { return new(Deps) },
		Fn:       OnRunS3ToWarehouse,
	})
	r.RegisterRunner("OnRunSQLCheck", &registry.RegisteredRunner{
		NewInput: func() any { return new(CheckInput) },
		NewDeps:  func() any { return new(Deps) },
		Fn:       OnRunSQLCheck,
	})
}
