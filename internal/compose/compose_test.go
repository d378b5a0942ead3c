package compose_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cqlang/cq/internal/compose"
	"github.com/cqlang/cq/internal/types"
)

func result(startByte uint, vars map[string]string) types.QueryResult {
	return types.QueryResult{
		RootSpan:  types.Span{Start: types.Position{Byte: startByte}},
		Variables: vars,
	}
}

func TestComposeSingleStreamPassesThrough(t *testing.T) {
	stream := []types.QueryResult{result(0, map[string]string{"$x": "a"})}
	tuples := compose.Compose([][]types.QueryResult{stream}, compose.Options{})

	require.Len(t, tuples, 1)
	assert.Equal(t, "a", tuples[0].Results[0].Variables["$x"])
}

func TestComposeUnifiesSharedMetavariables(t *testing.T) {
	streamA := []types.QueryResult{
		result(0, map[string]string{"$p": "buf"}),
		result(10, map[string]string{"$p": "other"}),
	}
	streamB := []types.QueryResult{
		result(5, map[string]string{"$p": "buf", "$n": "16"}),
	}

	tuples := compose.Compose([][]types.QueryResult{streamA, streamB}, compose.Options{})

	require.Len(t, tuples, 1, "only the $p=buf pair should unify")
	assert.Equal(t, "buf", tuples[0].Results[0].Variables["$p"])
	assert.Equal(t, "16", tuples[0].Results[1].Variables["$n"])
}

func TestComposeUniqueRejectsRepeatedBindingAcrossTuple(t *testing.T) {
	streamA := []types.QueryResult{result(0, map[string]string{"$a": "n"})}
	streamB := []types.QueryResult{result(1, map[string]string{"$b": "n"})}

	tuples := compose.Compose([][]types.QueryResult{streamA, streamB}, compose.Options{Unique: true})

	assert.Empty(t, tuples, "$a and $b bind the same text, --unique must reject the tuple")
}

func TestComposeOrdersByFirstStreamSourcePosition(t *testing.T) {
	streamA := []types.QueryResult{
		result(20, map[string]string{"$x": "late"}),
		result(5, map[string]string{"$x": "early"}),
	}
	streamB := []types.QueryResult{
		result(0, map[string]string{}),
	}

	tuples := compose.Compose([][]types.QueryResult{streamA, streamB}, compose.Options{})

	require.Len(t, tuples, 2)
	assert.Equal(t, "early", tuples[0].Results[0].Variables["$x"])
	assert.Equal(t, "late", tuples[1].Results[0].Variables["$x"])
}
