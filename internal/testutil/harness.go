// Package testutil runs grids end to end against in-memory object storage
// and a scripted warehouse.
package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/elgrid/internal/app"
	"github.com/vk/elgrid/internal/dag"
	hclconfig "github.com/vk/elgrid/internal/hcl"
	"github.com/vk/elgrid/internal/registry"
	"github.com/vk/elgrid/internal/variables"
	"github.com/vk/elgrid/modules"
	"github.com/vk/elgrid/modules/marker"
	"github.com/vk/elgrid/modules/s3"
	"github.com/vk/elgrid/modules/s3/s3test"
	"github.com/vk/elgrid/modules/warehouse"
	"github.com/vk/elgrid/modules/warehouse/warehousetest"
)

// Harness holds the fakes behind the built-in modules. The same fakes are
// shared by every run started from the harness, so state carries over
// between runs the way a real bucket would.
type Harness struct {
	Store *s3test.Store
	Conn  *warehousetest.Conn
	Vars  variables.Map

	Workers  int
	FailFast bool
}

// HarnessResult holds the outcomes of a single run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Report    *dag.Report
}

// NewHarness returns a harness with an empty store and a warehouse whose
// queries all pass.
func NewHarness(vars variables.Map) *Harness {
	return &Harness{
		Store: s3test.New(),
		Conn: &warehousetest.Conn{
			QueryFunc: func(string) (*warehousetest.Rows, error) {
				return warehousetest.Row(int64(1)), nil
			},
		},
		Vars: vars,
	}
}

// Modules returns the built-in modules wired to the harness fakes.
func (h *Harness) Modules() []registry.Module {
	return []registry.Module{
		&marker.Module{},
		&s3.Module{
			NewClient: func(context.Context, *s3.ClientInput) (s3.ObjectStore, error) {
				return h.Store, nil
			},
		},
		&warehouse.Module{
			Connect: func(context.Context, *warehouse.PoolInput) (warehouse.Conn, error) {
				return h.Conn, nil
			},
		},
	}
}

// Run loads the grid in gridDir and executes it once. Startup panics are
// recovered into Err like the command line does.
func (h *Harness) Run(ctx context.Context, t *testing.T, gridDir string) *HarnessResult {
	t.Helper()

	cfg := &app.AppConfig{
		GridPath:    gridDir,
		LogFormat:   "text",
		WorkerCount: h.Workers,
		FailFast:    h.FailFast,
		Variables:   h.Vars,
	}

	var (
		testApp *app.App
		logs    *app.SafeBuffer
	)
	panicErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("application startup panicked: %v", r)
			}
		}()
		testApp, logs = app.SetupAppTest(t, cfg, hclconfig.NewLoader(modules.Manifests()), h.Modules()...)
		return nil
	}()
	if panicErr != nil {
		return &HarnessResult{Err: panicErr}
	}

	err := testApp.Run(ctx)
	return &HarnessResult{
		LogOutput: logs.String(),
		Err:       err,
		App:       testApp,
		Report:    testApp.Report(),
	}
}

// WriteGrid writes files, keyed by path relative to the grid root, into a
// fresh temporary directory and returns it.
func WriteGrid(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

// CopyGrid copies the directory tree at src into a fresh temporary
// directory so a test can modify it.
func CopyGrid(t *testing.T, src string) string {
	t.Helper()
	root := t.TempDir()
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(root, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	require.NoError(t, err)
	return root
}
