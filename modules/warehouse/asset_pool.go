package warehouse

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vk/elgrid/internal/ctxlog"
)

// PoolInput defines the arguments for creating a warehouse resource.
type PoolInput struct {
	DSN            string `bggo:"dsn"`
	MaxConns       int    `bggo:"max_conns"`
	SimpleProtocol bool   `bggo:"simple_protocol"`
}

func createWarehouse(ctx context.Context, in *PoolInput, connect func(context.Context, *PoolInput) (Conn, error)) (Conn, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Connecting to warehouse.", "max_conns", in.MaxConns, "simple_protocol", in.SimpleProtocol)
	conn, err := connect(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to warehouse: %w", err)
	}
	logger.Info("Connected to warehouse")
	return conn, nil
}

func connectPool(ctx context.Context, in *PoolInput) (Conn, error) {
	cfg, err := pgxpool.ParseConfig(in.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	if in.MaxConns > 0 {
		cfg.MaxConns = int32(in.MaxConns)
	}
	if in.SimpleProtocol {
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// destroyWarehouse closes the pool if the connection owns one.
func destroyWarehouse(ctx context.Context, conn Conn) error {
	if c, ok := conn.(interface{ Close() }); ok {
		ctxlog.FromContext(ctx).Debug("Closing warehouse pool.")
		c.Close()
	}
	return nil
}
