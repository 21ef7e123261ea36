package shaping

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// DiffTables returns a cell level diff from before to after, or "" when the
// grids hold the same cells.
func DiffTables(before, after Table) string {
	return cmp.Diff(before.Rows, after.Rows, cmpopts.EquateEmpty())
}
