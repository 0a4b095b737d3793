package hcl

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/elgrid/internal/config"
	"github.com/vk/elgrid/internal/ctxlog"
	"github.com/vk/elgrid/internal/fsutil"
	"github.com/vk/elgrid/internal/schema"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	manifests []fs.FS
}

// NewLoader creates a new HCL configuration loader. Every .hcl file found in
// the given file systems is read before the paths passed to Load; built-in
// module manifests are shipped this way.
func NewLoader(manifests ...fs.FS) *Loader {
	return &Loader{manifests: manifests}
}

// source is one HCL document waiting to be parsed.
type source struct {
	name string
	data []byte
}

// Load parses every .hcl file under the given paths into a single model. The
// first path is the grid; its directory becomes the model's BaseDir.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths), "manifest_sources", len(l.manifests))

	model := &config.Model{
		Runners:   make(map[string]*config.RunnerDefinition),
		Assets:    make(map[string]*config.AssetDefinition),
		Variables: make(map[string]*config.Variable),
		Locals:    make(map[string]hcl.Expression),
		Grid:      &config.Grid{},
	}

	if len(paths) > 0 {
		baseDir, err := baseDirOf(paths[0])
		if err != nil {
			return nil, nil, err
		}
		model.BaseDir = baseDir
	}

	var sources []source
	for _, fsys := range l.manifests {
		found, err := readFS(fsys)
		if err != nil {
			return nil, nil, fmt.Errorf("reading embedded manifests: %w", err)
		}
		sources = append(sources, found...)
	}
	found, err := readPaths(paths)
	if err != nil {
		return nil, nil, err
	}
	sources = append(sources, found...)
	logger.Debug("Discovered HCL files.", "count", len(sources))

	parser := hclparse.NewParser()
	seenSteps := make(map[string]struct{})
	seenResources := make(map[string]struct{})

	for _, src := range sources {
		hclFile, diags := parser.ParseHCL(src.data, src.name)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", src.name, diags)
		}

		var root schema.File
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", src.name, diags)
		}

		for _, runner := range root.Runners {
			if _, dup := model.Runners[runner.Type]; dup {
				return nil, nil, fmt.Errorf("%s: runner %q is defined more than once", src.name, runner.Type)
			}
			def, err := l.translateRunnerDefinition(ctx, runner)
			if err != nil {
				return nil, nil, err
			}
			model.Runners[def.Type] = def
		}
		for _, asset := range root.Assets {
			if _, dup := model.Assets[asset.Type]; dup {
				return nil, nil, fmt.Errorf("%s: asset %q is defined more than once", src.name, asset.Type)
			}
			def, err := l.translateAssetDefinition(ctx, asset)
			if err != nil {
				return nil, nil, err
			}
			model.Assets[def.Type] = def
		}
		for _, v := range root.Variables {
			if _, dup := model.Variables[v.Name]; dup {
				return nil, nil, fmt.Errorf("%s: variable %q is declared more than once", src.name, v.Name)
			}
			def, err := l.translateVariable(v)
			if err != nil {
				return nil, nil, err
			}
			model.Variables[v.Name] = def
		}
		for _, block := range root.Locals {
			attrs, err := bodyAttributes(block)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: locals: %w", src.name, err)
			}
			for name, expr := range attrs {
				if _, dup := model.Locals[name]; dup {
					return nil, nil, fmt.Errorf("%s: local %q is defined more than once", src.name, name)
				}
				model.Locals[name] = expr
			}
		}
		for _, s := range root.Steps {
			key := s.RunnerType + "." + s.Name
			if _, dup := seenSteps[key]; dup {
				return nil, nil, fmt.Errorf("%s: step %q is defined more than once", src.name, key)
			}
			seenSteps[key] = struct{}{}
			step, err := l.translateStep(s)
			if err != nil {
				return nil, nil, err
			}
			model.Grid.Steps = append(model.Grid.Steps, step)
		}
		for _, r := range root.Resources {
			key := r.AssetType + "." + r.Name
			if _, dup := seenResources[key]; dup {
				return nil, nil, fmt.Errorf("%s: resource %q is defined more than once", src.name, key)
			}
			seenResources[key] = struct{}{}
			res, err := l.translateResource(r)
			if err != nil {
				return nil, nil, err
			}
			model.Grid.Resources = append(model.Grid.Resources, res)
		}
	}

	logger.Debug("HCL loading complete.",
		"runners", len(model.Runners),
		"assets", len(model.Assets),
		"variables", len(model.Variables),
		"locals", len(model.Locals),
		"steps", len(model.Grid.Steps),
		"resources", len(model.Grid.Resources),
	)
	return model, NewConverter(), nil
}

func baseDirOf(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("error accessing grid path %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return abs, nil
	}
	return filepath.Dir(abs), nil
}

// readPaths collects .hcl files from files or directories. A path that does
// not exist is skipped, so an unset modules directory is harmless.
func readPaths(paths []string) ([]source, error) {
	var out []source
	seen := make(map[string]struct{})
	add := func(p string) error {
		if _, ok := seen[p]; ok {
			return nil
		}
		seen[p] = struct{}{}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, source{name: p, data: data})
		return nil
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			if filepath.Ext(path) == ".hcl" {
				if err := add(path); err != nil {
					return nil, err
				}
			}
			continue
		}
		files, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if err := add(f); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func readFS(fsys fs.FS) ([]source, error) {
	names, err := fs.Glob(fsys, "*/*.hcl")
	if err != nil {
		return nil, err
	}
	top, err := fs.Glob(fsys, "*.hcl")
	if err != nil {
		return nil, err
	}
	names = append(names, top...)
	sort.Strings(names)

	out := make([]source, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		out = append(out, source{name: "embedded:" + name, data: data})
	}
	return out, nil
}
