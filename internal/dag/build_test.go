package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_ForEachExpandsOneNodePerKey(t *testing.T) {
	f := mustBuild(t, `
step "emit" "rows" {
  for_each = { a = "1", b = "2", c = "3" }
  arguments {
    value = each.value
  }
}

step "emit" "join" {
  depends_on = ["emit.rows"]
}
`)

	group := f.graph.Groups[`step.emit.rows`]
	require.Len(t, group, 3)
	for _, key := range []string{"a", "b", "c"} {
		assert.Contains(t, f.graph.Nodes, `step.emit.rows["`+key+`"]`)
	}
	assert.NotContains(t, f.graph.Nodes, "step.emit.rows")

	join := f.graph.Nodes["step.emit.join"]
	require.NotNil(t, join)
	assert.Equal(t, []string{
		`step.emit.rows["a"]`,
		`step.emit.rows["b"]`,
		`step.emit.rows["c"]`,
	}, depIDs(join))
	assert.Equal(t, 1, join.Level)
}

func TestBuild_ForEachOverEmptyObjectCreatesNoInstances(t *testing.T) {
	f := mustBuild(t, `
step "emit" "rows" {
  for_each = {}
}

step "emit" "join" {
  depends_on = ["emit.rows"]
}
`)
	assert.Empty(t, f.graph.Groups["step.emit.rows"])
	assert.Empty(t, f.graph.Nodes["step.emit.join"].Deps)
}

func TestBuild_ImplicitDependencies(t *testing.T) {
	f := mustBuild(t, `
step "emit" "rows" {
  for_each = { a = "1", b = "2" }
}

step "emit" "first" {
  arguments {
    value = "x"
  }
}

step "emit" "second" {
  arguments {
    value = "${step.emit.first.output.value}-${step.emit.rows["b"].output.value}"
  }
}
`)
	second := f.graph.Nodes["step.emit.second"]
	assert.Equal(t, []string{"step.emit.first", `step.emit.rows["b"]`}, depIDs(second))
	assert.Contains(t, f.graph.Nodes["step.emit.first"].Dependents, "step.emit.second")
}

func TestBuild_UsesLinksResource(t *testing.T) {
	f := mustBuild(t, `
resource "pool" "main" {}

step "use_pool" "a" {
  uses {
    pool = resource.pool.main
  }
}
`)
	a := f.graph.Nodes["step.use_pool.a"]
	assert.Equal(t, []string{"resource.pool.main"}, depIDs(a))
	assert.Equal(t, 1, a.Level)
}

func TestBuild_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		grid    string
		wantErr string
		cycle   bool
	}{
		{
			name: "cycle through depends_on",
			grid: `
step "emit" "a" {
  depends_on = ["emit.b"]
}
step "emit" "b" {
  depends_on = ["emit.a"]
}
`,
			cycle: true,
		},
		{
			name: "self dependency",
			grid: `
step "emit" "a" {
  depends_on = ["emit.a"]
}
`,
			cycle: true,
		},
		{
			name: "unknown depends_on target",
			grid: `
step "emit" "a" {
  depends_on = ["emit.missing"]
}
`,
			wantErr: "non-existent identifier",
		},
		{
			name: "undeclared output",
			grid: `
step "emit" "a" {}
step "emit" "b" {
  arguments {
    value = step.emit.a.output.nope
  }
}
`,
			wantErr: `undeclared output "nope"`,
		},
		{
			name: "each outside for_each",
			grid: `
step "emit" "a" {
  arguments {
    value = each.value
  }
}
`,
			wantErr: "'each' is only available",
		},
		{
			name: "for_each referencing a step",
			grid: `
step "emit" "a" {}
step "emit" "b" {
  for_each = step.emit.a.output
}
`,
			wantErr: "for_each may only reference",
		},
		{
			name: "for_each over a list",
			grid: `
step "emit" "a" {
  for_each = ["x", "y"]
}
`,
			wantErr: "for_each must be a map",
		},
		{
			name: "unknown runner type",
			grid: `
step "nope" "a" {}
`,
			wantErr: "unknown runner type",
		},
		{
			name: "missing uses slot",
			grid: `
step "use_pool" "a" {}
`,
			wantErr: "requires uses slot 'pool'",
		},
		{
			name: "undeclared uses slot",
			grid: `
resource "pool" "main" {}
step "use_pool" "a" {
  uses {
    pool  = resource.pool.main
    other = resource.pool.main
  }
}
`,
			wantErr: "does not declare a uses slot named 'other'",
		},
		{
			name: "missing keyed instance",
			grid: `
step "emit" "rows" {
  for_each = { a = "1" }
}
step "emit" "b" {
  arguments {
    value = step.emit.rows["z"].output.value
  }
}
`,
			wantErr: "references missing instance",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := buildGrid(t, tc.grid)
			require.Error(t, err)
			if tc.cycle {
				assert.ErrorIs(t, err, ErrCycle)
			}
			if tc.wantErr != "" {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}
