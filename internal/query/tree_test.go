package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cqlang/cq/internal/pattern"
	"github.com/cqlang/cq/internal/query"
	"github.com/cqlang/cq/internal/sitter"
)

func TestBuildAllocatesRootCaptureLast(t *testing.T) {
	cursor, err := pattern.Normalize("memcpy($a,$b,$n);", sitter.LangC, false)
	require.NoError(t, err)
	defer cursor.Close()

	qt, err := query.Build(cursor, query.BuildOptions{})
	require.NoError(t, err)
	defer qt.Close()

	require.NotEmpty(t, qt.Captures)
	assert.Equal(t, len(qt.Captures)-1, qt.RootCaptureIndex())
}

func TestConcreteIdentifiersCollectsAnchorNames(t *testing.T) {
	cursor, err := pattern.Normalize("memcpy($a,$b,$n);", sitter.LangC, false)
	require.NoError(t, err)
	defer cursor.Close()

	qt, err := query.Build(cursor, query.BuildOptions{})
	require.NoError(t, err)
	defer qt.Close()

	assert.Contains(t, qt.ConcreteIdentifiers(), "memcpy")
}

func TestAllVariableNamesClosesOverVariables(t *testing.T) {
	cursor, err := pattern.Normalize("memcpy($a,$b,$n);", sitter.LangC, false)
	require.NoError(t, err)
	defer cursor.Close()

	qt, err := query.Build(cursor, query.BuildOptions{})
	require.NoError(t, err)
	defer qt.Close()

	names := qt.AllVariableNames()
	assert.True(t, names["$a"])
	assert.True(t, names["$b"])
	assert.True(t, names["$n"])
}

func TestRegexConstraintHonorsNegation(t *testing.T) {
	positive, err := query.NewRegexConstraint("^mem", false)
	require.NoError(t, err)
	assert.True(t, positive.Matches("memcpy"))
	assert.False(t, positive.Matches("strcpy"))

	negative, err := query.NewRegexConstraint("^mem", true)
	require.NoError(t, err)
	assert.False(t, negative.Matches("memcpy"))
	assert.True(t, negative.Matches("strcpy"))
}

func TestNewRegexConstraintRejectsInvalidPattern(t *testing.T) {
	_, err := query.NewRegexConstraint("(unclosed", false)
	require.Error(t, err)
}
