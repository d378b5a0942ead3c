package sitter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cqlang/cq/internal/sitter"
)

func TestParseCFunction(t *testing.T) {
	tree, err := sitter.Parse([]byte("int add(int a, int b) { return a + b; }"), sitter.LangC)
	require.NoError(t, err)
	defer tree.Close()

	assert.False(t, tree.HasErrors())
	assert.Equal(t, "translation_unit", tree.Root().Kind())
	assert.Equal(t, 1, tree.Root().NamedChildCount())
}

func TestParseReportsErrorNodesOnMalformedSource(t *testing.T) {
	tree, err := sitter.Parse([]byte("int main( {"), sitter.LangC)
	require.NoError(t, err)
	defer tree.Close()

	assert.True(t, tree.HasErrors())
}

func TestParseCPPClass(t *testing.T) {
	tree, err := sitter.Parse([]byte("class Foo { int x; };"), sitter.LangCPP)
	require.NoError(t, err)
	defer tree.Close()

	assert.False(t, tree.HasErrors())
	root := tree.Root().NamedChild(0)
	assert.Equal(t, "class_specifier", root.Kind())
}

func TestNodePositionsAreOneIndexed(t *testing.T) {
	tree, err := sitter.Parse([]byte("int x;\nint y;\n"), sitter.LangC)
	require.NoError(t, err)
	defer tree.Close()

	second := tree.Root().NamedChild(1)
	assert.Equal(t, 2, second.StartLine())
	assert.Equal(t, 1, second.StartColumn())
}

func TestDefaultExtensions(t *testing.T) {
	assert.Equal(t, []string{".c", ".h"}, sitter.LangC.DefaultExtensions())
	assert.Contains(t, sitter.LangCPP.DefaultExtensions(), ".hpp")
}
