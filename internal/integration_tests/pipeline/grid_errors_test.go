package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/elgrid/internal/dag"
	"github.com/vk/elgrid/internal/testutil"
	"github.com/vk/elgrid/internal/variables"
)

func TestGridErrors(t *testing.T) {
	testCases := []struct {
		name    string
		grid    string
		wantIs  error
		wantMsg string
	}{
		{
			name:    "invalid HCL is rejected at startup",
			grid:    `step "marker" "done" {`,
			wantMsg: "application startup panicked",
		},
		{
			name: "unknown runner type",
			grid: `
step "ftp_upload" "upload" {}
`,
			wantMsg: "unknown runner type 'ftp_upload'",
		},
		{
			name: "cycle between steps",
			grid: `
step "marker" "a" {
  depends_on = ["marker.b"]
}
step "marker" "b" {
  depends_on = ["marker.a"]
}
`,
			wantIs: dag.ErrCycle,
		},
		{
			name: "required argument missing",
			grid: `
resource "s3_client" "main" {}

step "s3_upload" "upload" {
  uses {
    client = resource.s3_client.main
  }
  arguments {
    bucket = "b"
    key    = "k"
  }
}
`,
			wantMsg: "source_path",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			grid := testutil.WriteGrid(t, map[string]string{"main.hcl": tc.grid})
			h := testutil.NewHarness(variables.Map{})

			result := h.Run(context.Background(), t, grid)
			require.Error(t, result.Err)
			if tc.wantIs != nil {
				assert.ErrorIs(t, result.Err, tc.wantIs)
			}
			if tc.wantMsg != "" {
				assert.Contains(t, result.Err.Error(), tc.wantMsg)
			}
			assert.Zero(t, h.Store.Puts())
		})
	}
}
