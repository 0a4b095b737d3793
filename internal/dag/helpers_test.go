package dag

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	hclconfig "github.com/vk/elgrid/internal/hcl"
	"github.com/vk/elgrid/internal/registry"
	"github.com/vk/elgrid/internal/variables"
)

const testManifests = `
runner "emit" {
  lifecycle {
    on_run = "OnRunEmit"
  }
  input "value" {
    type    = string
    default = ""
  }
  input "fail" {
    type    = bool
    default = false
  }
  input "sleep_ms" {
    type    = number
    default = 0
  }
  output "value" {
    type = string
  }
}

runner "use_pool" {
  lifecycle {
    on_run = "OnRunUsePool"
  }
  uses "pool" {
    asset_type = "pool"
  }
}

asset "pool" {
  lifecycle {
    create  = "CreatePool"
    destroy = "DestroyPool"
  }
  input "fail" {
    type    = bool
    default = false
  }
  input "sleep_ms" {
    type    = number
    default = 0
  }
}
`

var errBoom = errors.New("boom")

type emitInput struct {
	Value   string `bggo:"value"`
	Fail    bool   `bggo:"fail"`
	SleepMS int    `bggo:"sleep_ms"`
}

type emitOutput struct {
	Value string `cty:"value"`
}

type poolInput struct {
	Fail    bool `bggo:"fail"`
	SleepMS int  `bggo:"sleep_ms"`
}

type pool struct{ id int32 }

type usePoolDeps struct {
	Pool *pool `bggo:"pool"`
}

// recorder is a test module that records what ran.
type recorder struct {
	mu        sync.Mutex
	values    []string
	created   atomic.Int32
	destroyed atomic.Int32
	// destroyedAfter counts pool consumers finished when the pool was destroyed.
	consumersDone  atomic.Int32
	destroyedAfter atomic.Int32
}

func (m *recorder) ran() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.values...)
}

func (m *recorder) Register(r *registry.Registry) {
	r.RegisterRunner("OnRunEmit", &registry.RegisteredRunner{
		NewInput: func() any { return new(emitInput) },
		NewDeps:  func() any { return new(struct{}) },
		Fn: func(ctx context.Context, _ *struct{}, in *emitInput) (*emitOutput, error) {
			if in.SleepMS > 0 {
				select {
				case <-time.After(time.Duration(in.SleepMS) * time.Millisecond):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if in.Fail {
				return nil, errBoom
			}
			m.mu.Lock()
			m.values = append(m.values, in.Value)
			m.mu.Unlock()
			return &emitOutput{Value: in.Value}, nil
		},
	})
	r.RegisterRunner("OnRunUsePool", &registry.RegisteredRunner{
		NewDeps: func() any { return new(usePoolDeps) },
		Fn: func(_ context.Context, deps *usePoolDeps, _ *struct{}) (any, error) {
			if deps.Pool == nil {
				return nil, errors.New("pool not injected")
			}
			time.Sleep(10 * time.Millisecond)
			m.consumersDone.Add(1)
			return nil, nil
		},
	})
	r.RegisterAssetHandler("CreatePool", &registry.RegisteredAsset{
		NewInput: func() any { return new(poolInput) },
		CreateFn: func(_ context.Context, in *poolInput) (*pool, error) {
			time.Sleep(time.Duration(in.SleepMS) * time.Millisecond)
			if in.Fail {
				return nil, errBoom
			}
			return &pool{id: m.created.Add(1)}, nil
		},
	})
	r.RegisterAssetHandler("DestroyPool", &registry.RegisteredAsset{
		DestroyFn: func(_ context.Context, _ *pool) error {
			m.destroyedAfter.Store(m.consumersDone.Load())
			m.destroyed.Add(1)
			return nil
		},
	})
}

type fixture struct {
	graph    *Graph
	registry *registry.Registry
	conv     config.Converter
	rec      *recorder
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	level := slog.LevelWarn
	if os.Getenv("ELGRID_TEST_LOGS") == "true" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return ctxlog.WithLogger(context.Background(), logger)
}

// loadGrid loads a grid with the test manifests and resolves its scope.
func loadGrid(t *testing.T, grid string, vars variables.Map) (*config.Model, config.Converter, *registry.Registry, *Scope, *recorder) {
	t.Helper()
	ctx := testContext(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.hcl"), []byte(grid), 0o644))

	manifests := fstest.MapFS{"test/manifest.hcl": &fstest.MapFile{Data: []byte(testManifests)}}
	model, conv, err := hclconfig.NewLoader(manifests).Load(ctx, dir)
	require.NoError(t, err)

	rec := &recorder{}
	reg := registry.New()
	rec.Register(reg)
	reg.PopulateDefinitionsFromModel(model)
	require.NoError(t, reg.ValidateRegistry(ctx))

	if vars == nil {
		vars = variables.Map{}
	}
	scope, err := ResolveScope(ctx, model, conv, vars)
	require.NoError(t, err)
	return model, conv, reg, scope, rec
}

func buildGrid(t *testing.T, grid string) (*fixture, error) {
	t.Helper()
	model, conv, reg, scope, rec := loadGrid(t, grid, nil)
	graph, err := Build(testContext(t), model, reg, scope)
	return &fixture{graph: graph, registry: reg, conv: conv, rec: rec}, err
}

func mustBuild(t *testing.T, grid string) *fixture {
	t.Helper()
	f, err := buildGrid(t, grid)
	require.NoError(t, err)
	return f
}

func (f *fixture) run(t *testing.T, opts Options) (*Report, error) {
	t.Helper()
	return NewExecutor(f.graph, f.registry, f.conv, opts).Run(testContext(t))
}

func depIDs(n *Node) []string {
	return sortedKeys(n.Deps)
}
