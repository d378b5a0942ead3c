package matcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cqlang/cq/internal/matcher"
	"github.com/cqlang/cq/internal/pattern"
	"github.com/cqlang/cq/internal/query"
	"github.com/cqlang/cq/internal/sitter"
	"github.com/cqlang/cq/internal/types"
)

// matchSource normalizes and builds patternSrc, parses source, and
// returns the raw QueryResults — the same pipeline runPattern uses,
// minus the reduction to matcherResult, for tests that need to inspect
// Captures or ChildResults directly.
func matchSource(t *testing.T, patternSrc, source string, opts matcher.Options) []types.QueryResult {
	t.Helper()

	cursor, err := pattern.Normalize(patternSrc, sitter.LangC, false)
	require.NoError(t, err)
	defer cursor.Close()

	qt, err := query.Build(cursor, query.BuildOptions{})
	require.NoError(t, err)
	defer qt.Close()

	tree, err := sitter.Parse([]byte(source), sitter.LangC)
	require.NoError(t, err)
	defer tree.Close()

	return matcher.MatchFile(qt, tree, "t.c", opts)
}

// runPattern normalizes and builds patternSrc, parses source, and
// returns every surviving QueryResult reduced to its variable
// bindings — the same pipeline cmd/search.go drives per file.
func runPattern(t *testing.T, patternSrc, source string, opts matcher.Options) []matcherResult {
	t.Helper()

	results := matchSource(t, patternSrc, source, opts)
	out := make([]matcherResult, len(results))
	for i, r := range results {
		out[i] = matcherResult{vars: r.Variables}
	}
	return out
}

type matcherResult struct {
	vars map[string]string
}

// Scenario 1 (spec.md §8): stack-buffer memcpy.
func TestScenarioStackBufferMemcpy(t *testing.T) {
	source := `void f(){ char b[16]; memcpy(b,src,16); }`
	results := runPattern(t, "{ _ $buf[_]; memcpy($buf,_,_); }", source, matcher.Options{})

	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].vars["$buf"])
}

// Scenario 2: off-by-one snprintf.
func TestScenarioOffByOneSnprintf(t *testing.T) {
	source := `void f(){ int n = snprintf(buf, s, fmt); buf[n] = 0; }`
	results := runPattern(t, "{ $r = snprintf($b,_,_); $b[$r]=_; }", source, matcher.Options{})

	require.Len(t, results, 1)
	require.Equal(t, "n", results[0].vars["$r"])
	require.Equal(t, "buf", results[0].vars["$b"])
}

// Scenario 6: regex filter restricts a metavariable's bound text.
func TestScenarioRegexFilter(t *testing.T) {
	source := `void f(){ memcpy(a,b,c); strlen(s); }`

	cursor, err := pattern.Normalize("$fn(_);", sitter.LangC, false)
	require.NoError(t, err)
	defer cursor.Close()

	rc, err := query.NewRegexConstraint("^mem", false)
	require.NoError(t, err)

	qt, err := query.Build(cursor, query.BuildOptions{Regex: map[string]query.RegexConstraint{"$fn": rc}})
	require.NoError(t, err)
	defer qt.Close()

	tree, err := sitter.Parse([]byte(source), sitter.LangC)
	require.NoError(t, err)
	defer tree.Close()

	results := matcher.MatchFile(qt, tree, "t.c", matcher.Options{})
	require.Len(t, results, 1)
	require.Equal(t, "memcpy", results[0].Variables["$fn"])
}

// Scenario 3: negation. A pointer dereferenced without either form of
// null check ahead of it in the same compound survives; one preceded
// by a matching check is suppressed.
func TestScenarioNegation(t *testing.T) {
	source := `void f(){ p != NULL; *p; *q; }`
	results := matchSource(t, "{ not: $p==NULL; not: $p!=NULL; *$p; }", source, matcher.Options{})

	require.Len(t, results, 1)
	assert.Equal(t, "q", results[0].Variables["$p"])
}

// Scenario 4: subexpression wildcard. `_(buf+1)` recurses into the
// argument subtree and binds the outer capture to the whole
// subexpression while confirming buf+1 occurs somewhere within it.
func TestScenarioSubexpressionWildcard(t *testing.T) {
	source := `int x = f(g(buf+1));`
	results := matchSource(t, "f(_(buf+1));", source, matcher.Options{})

	require.Len(t, results, 1)

	var outer string
	for _, c := range results[0].Captures {
		if c.Kind == types.Subexpression {
			outer = c.Text
		}
	}
	assert.Equal(t, "g(buf+1)", outer)
	require.Len(t, results[0].ChildResults, 1)
}

// Scenario 5: --unique enforced within a single pattern's own matcher,
// not just across patterns (internal/compose covers that case). One
// of the two malloc/memcpy pairs binds $a and $b to the same text and
// is rejected; the other, with distinct bindings, survives. The
// declaration form of the first statement also exercises the
// assignment/declaration "greedy superset" alternation (spec.md §1).
func TestScenarioUniqueWithinPattern(t *testing.T) {
	source := `void f(){ void* p = malloc(n); memcpy(p,s,n); void* p = malloc(n); memcpy(p,s,m); }`

	results := matchSource(t, "$p = malloc($a); memcpy($p,_,$b);", source, matcher.Options{Unique: true})

	require.Len(t, results, 1)
	assert.Equal(t, "n", results[0].Variables["$a"])
	assert.Equal(t, "m", results[0].Variables["$b"])

	withoutUnique := matchSource(t, "$p = malloc($a); memcpy($p,_,$b);", source, matcher.Options{})
	require.Len(t, withoutUnique, 2)
}

// Invariant (spec.md §8, "Closure"): every metavariable in the pattern
// has a binding in every QueryResult.
func TestClosureInvariant(t *testing.T) {
	source := `void f(){ char b[16]; memcpy(b,src,16); }`
	results := runPattern(t, "{ _ $buf[_]; memcpy($buf,_,_); }", source, matcher.Options{})

	require.Len(t, results, 1)
	_, ok := results[0].vars["$buf"]
	require.True(t, ok)
}
