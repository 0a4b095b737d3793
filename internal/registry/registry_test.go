package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/elgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
)

type echoInput struct {
	Message string   `bggo:"message"`
	Tags    []string `bggo:"tags"`
}

type kvInput struct {
	Size int `bggo:"size"`
}

func echoFn(context.Context, *struct{}, *echoInput) (any, error) { return nil, nil }

func newTestRegistry() *Registry {
	r := New()
	r.RegisterRunner("OnRunEcho", &RegisteredRunner{
		NewInput: func() any { return new(echoInput) },
		NewDeps:  func() any { return new(struct{}) },
		Fn:       echoFn,
	})
	r.RegisterAssetHandler("CreateKV", &RegisteredAsset{
		NewInput: func() any { return new(kvInput) },
		CreateFn: func(context.Context, *kvInput) (map[string]string, error) { return map[string]string{}, nil },
	})
	r.RegisterAssetHandler("DestroyKV", &RegisteredAsset{
		DestroyFn: func(context.Context, map[string]string) error { return nil },
	})
	return r
}

func testModel() *config.Model {
	return &config.Model{
		Runners: map[string]*config.RunnerDefinition{
			"echo": {
				Type:      "echo",
				Lifecycle: &config.Lifecycle{OnRun: "OnRunEcho"},
				Inputs: map[string]*config.InputDefinition{
					"message": {Name: "message", Type: cty.String},
					"tags":    {Name: "tags", Type: cty.List(cty.String)},
				},
			},
		},
		Assets: map[string]*config.AssetDefinition{
			"kv": {
				Type:      "kv",
				Lifecycle: &config.AssetLifecycle{Create: "CreateKV", Destroy: "DestroyKV"},
				Inputs: map[string]*config.InputDefinition{
					"size": {Name: "size", Type: cty.Number},
				},
			},
		},
	}
}

func TestValidateRegistry_Passes(t *testing.T) {
	r := newTestRegistry()
	r.PopulateDefinitionsFromModel(testModel())

	require.NoError(t, r.ValidateRegistry(context.Background()))
	assert.NotNil(t, r.HandlerRegistry["OnRunEcho"].InputType, "input type is derived from NewInput")
}

func TestValidateRegistry_Mismatches(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(m *config.Model)
		wantMsg string
	}{
		{
			name: "missing handler",
			mutate: func(m *config.Model) {
				m.Runners["echo"].Lifecycle.OnRun = "OnRunNothing"
			},
			wantMsg: "handler 'OnRunNothing' is not registered",
		},
		{
			name: "manifest input missing in Go",
			mutate: func(m *config.Model) {
				m.Runners["echo"].Inputs["extra"] = &config.InputDefinition{Name: "extra", Type: cty.String}
			},
			wantMsg: "manifest declares input 'extra'",
		},
		{
			name: "Go input missing in manifest",
			mutate: func(m *config.Model) {
				delete(m.Runners["echo"].Inputs, "tags")
			},
			wantMsg: "Go struct has field for input 'tags'",
		},
		{
			name: "type mismatch",
			mutate: func(m *config.Model) {
				m.Assets["kv"].Inputs["size"].Type = cty.String
			},
			wantMsg: "asset 'kv', input 'size': type mismatch",
		},
		{
			name: "destroy handler missing",
			mutate: func(m *config.Model) {
				m.Assets["kv"].Lifecycle.Destroy = "DestroyNothing"
			},
			wantMsg: "destroy handler 'DestroyNothing' is not registered",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			model := testModel()
			tc.mutate(model)
			r := newTestRegistry()
			r.PopulateDefinitionsFromModel(model)

			err := r.ValidateRegistry(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestValidateRegistry_BadHandlerShape(t *testing.T) {
	r := New()
	r.RegisterRunner("OnRunEcho", &RegisteredRunner{
		NewInput: func() any { return new(echoInput) },
		Fn:       func(string) error { return nil },
	})
	model := testModel()
	model.Assets = nil
	r.PopulateDefinitionsFromModel(model)

	err := r.ValidateRegistry(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 3 parameters")
}

func TestRegisterRunner_PanicsOnDuplicate(t *testing.T) {
	r := newTestRegistry()
	assert.Panics(t, func() {
		r.RegisterRunner("OnRunEcho", &RegisteredRunner{Fn: echoFn})
	})
}

func TestRunnerAndAssetLookup(t *testing.T) {
	r := newTestRegistry()
	r.PopulateDefinitionsFromModel(testModel())

	def, handler, err := r.Runner("echo")
	require.NoError(t, err)
	assert.Equal(t, "OnRunEcho", def.Lifecycle.OnRun)
	assert.NotNil(t, handler.Fn)

	_, _, err = r.Runner("ftp")
	assert.EqualError(t, err, "unknown runner type 'ftp'")

	assetDef, create, destroy, err := r.Asset("kv")
	require.NoError(t, err)
	assert.Equal(t, "kv", assetDef.Type)
	assert.NotNil(t, create.CreateFn)
	assert.NotNil(t, destroy.DestroyFn)

	_, _, _, err = r.Asset("queue")
	assert.EqualError(t, err, "unknown asset type 'queue'")

	delete(r.AssetHandlerRegistry, "DestroyKV")
	_, _, _, err = r.Asset("kv")
	assert.EqualError(t, err, "destroy handler 'DestroyKV' not registered")
}
