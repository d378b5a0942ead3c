package present_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cqlang/cq/internal/present"
	"github.com/cqlang/cq/internal/types"
)

func TestRenderShowsContextAroundMatch(t *testing.T) {
	source := []byte("line1\nline2\nmatch3\nline4\nline5\n")
	matchByte := uint(strings.Index(string(source), "match3"))

	results := []types.QueryResult{{
		RootSpan: types.Span{
			Start: types.Position{Byte: matchByte},
			End:   types.Position{Byte: matchByte + uint(len("match3"))},
		},
	}}

	out := present.Render("f.c", source, results, present.Options{Before: 1, After: 1})

	require.Contains(t, out, "f.c:2")
	assert.Contains(t, out, "line2")
	assert.Contains(t, out, "match3")
	assert.Contains(t, out, "line4")
	assert.NotContains(t, out, "line5")
}

func TestRenderEmptyResultsProducesNoOutput(t *testing.T) {
	out := present.Render("f.c", []byte("a\nb\n"), nil, present.DefaultOptions())
	assert.Empty(t, out)
}

func TestSummaryReportsCounts(t *testing.T) {
	out := present.Summary(10, 3, 7, false)
	assert.Contains(t, out, "10 files scanned")
	assert.Contains(t, out, "3 matched")
	assert.Contains(t, out, "7 results")
}
