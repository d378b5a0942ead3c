// Package matcher implements the Matcher (spec.md §4.3): it runs a
// QueryTree's compiled structural query against a target AST and
// composes the host engine's raw matches into QueryResult bindings,
// honoring equality classes, regex filters, recursion, negation,
// uniqueness, limiting and deterministic ordering.
package matcher

import (
	"sort"

	"github.com/cqlang/cq/internal/query"
	"github.com/cqlang/cq/internal/sitter"
	"github.com/cqlang/cq/internal/types"
)

// Options are the run-wide matching flags of spec.md §6.
type Options struct {
	Unique bool
	Limit  bool
}

// binding is an internal, pre-QueryResult candidate: the fields a
// QueryResult needs, plus the raw node map so negations and recursive
// children can keep working with it before it is finalized.
type binding struct {
	variables    map[string]string
	captures     []types.Capture
	rootNode     sitter.Node
	childResults []types.QueryResult
}

// MatchFile runs qt against an entire parsed file and returns every
// surviving, deduplicated, ordered QueryResult (spec.md §4.3).
func MatchFile(qt *query.QueryTree, tree *sitter.Tree, file string, opts Options) []types.QueryResult {
	bindings := matchTree(qt, tree.Root(), nil, opts)

	results := make([]types.QueryResult, 0, len(bindings))
	for _, b := range bindings {
		results = append(results, toResult(file, b))
	}

	results = dedup(results)
	if opts.Limit {
		results = limitPerFunction(results, tree)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RootSpan.Start.Byte < results[j].RootSpan.Start.Byte
	})
	return results
}

// matchTree is the recursive core shared by the top-level run,
// negation scopes, and recursive subexpression children: run qt's
// compiled query against scope, fold in seed (bindings inherited from
// an enclosing QueryTree), and return every surviving binding.
func matchTree(qt *query.QueryTree, scope sitter.Node, seed map[string]string, opts Options) []binding {
	matches := sitter.Run(qt.Compiled, scope)

	var out []binding
	for _, m := range matches {
		nodeByIndex := make(map[int]sitter.Node, len(m.Captures))
		for _, c := range m.Captures {
			nodeByIndex[int(c.Index)] = c.Node
		}

		vars := make(map[string]string, len(seed))
		for k, v := range seed {
			vars[k] = v
		}

		if !enforceEquality(qt, nodeByIndex, vars) {
			continue
		}
		if !passRegex(qt, nodeByIndex) {
			continue
		}
		if negationFires(qt, nodeByIndex, vars, opts) {
			continue
		}

		childResults, ok := resolveChildren(qt, nodeByIndex, vars, opts)
		if !ok {
			continue
		}

		if opts.Unique && !distinctAcross(vars, childResults) {
			continue
		}

		rootIdx := qt.RootCaptureIndex()
		rootNode, ok := nodeByIndex[rootIdx]
		if !ok {
			continue
		}

		out = append(out, binding{
			variables:    vars,
			captures:     buildCaptures(qt, nodeByIndex),
			rootNode:     rootNode,
			childResults: childResults,
		})
	}
	return out
}

// enforceEquality applies spec.md §4.3's "Equality-class enforcement":
// every capture in a metavariable's class must read back byte-identical
// text, and a variable's binding must agree with any value already
// inherited from an enclosing QueryTree (negation/child seeding).
func enforceEquality(qt *query.QueryTree, nodeByIndex map[int]sitter.Node, vars map[string]string) bool {
	for name, indices := range qt.Variables {
		var text string
		have := false
		for _, idx := range indices {
			node, present := nodeByIndex[idx]
			if !present {
				continue
			}
			t := node.Text()
			if !have {
				text, have = t, true
				continue
			}
			if t != text {
				return false
			}
		}
		if !have {
			continue
		}
		if existing, seeded := vars[name]; seeded && existing != text {
			return false
		}
		vars[name] = text
	}
	return true
}

func passRegex(qt *query.QueryTree, nodeByIndex map[int]sitter.Node) bool {
	for i, cm := range qt.Captures {
		if cm.Kind != types.Variable || cm.Regex == nil {
			continue
		}
		node, present := nodeByIndex[i]
		if !present {
			continue
		}
		if !cm.Regex.Matches(node.Text()) {
			return false
		}
	}
	return true
}

// negationFires implements spec.md §4.3's "Negations": each negative
// child is matched against the parent's enclosing compound statement,
// seeded with the parent's bindings. A candidate match only counts if
// it falls after the capture allocated immediately before the not:
// clause in the parent's own capture vector, and before the one
// allocated immediately after it (spec.md §9's sibling-order
// resolution — ordering is enforced only around a negation's own
// position, not across the whole pattern; see Negation.PrevCaptureIndex
// and the original's previous_capture_index).
func negationFires(qt *query.QueryTree, nodeByIndex map[int]sitter.Node, vars map[string]string, opts Options) bool {
	if len(qt.Negations) == 0 {
		return false
	}
	rootIdx := qt.RootCaptureIndex()
	root, ok := nodeByIndex[rootIdx]
	if !ok {
		return false
	}
	scope := enclosingCompound(root)
	for _, neg := range qt.Negations {
		for _, cand := range matchTree(neg.Tree, scope, vars, opts) {
			if negationWithinBounds(cand.rootNode, nodeByIndex, neg.PrevCaptureIndex) {
				return true
			}
		}
	}
	return false
}

// negationWithinBounds reports whether candidate falls strictly between
// the nodes bound to prevIdx and prevIdx+1 in the parent match
// (prevIdx == -1 means no preceding capture — only the upper bound
// applies).
func negationWithinBounds(candidate sitter.Node, nodeByIndex map[int]sitter.Node, prevIdx int) bool {
	if prevIdx >= 0 {
		if prev, ok := nodeByIndex[prevIdx]; ok && candidate.StartByte() < prev.EndByte() {
			return false
		}
	}
	if next, ok := nodeByIndex[prevIdx+1]; ok {
		if candidate.StartByte() > next.StartByte() {
			return false
		}
	}
	return true
}

// resolveChildren implements spec.md §4.3's "Recursive children": each
// child QueryTree is re-matched against the subtree anchored at its
// parent capture, seeded with shared bindings. At least one surviving
// child binding is required per child, else the parent binding is
// discarded entirely.
func resolveChildren(qt *query.QueryTree, nodeByIndex map[int]sitter.Node, vars map[string]string, opts Options) ([]types.QueryResult, bool) {
	if len(qt.Children) == 0 {
		return nil, true
	}
	var out []types.QueryResult
	for _, child := range qt.Children {
		anchor, present := nodeByIndex[child.AnchorIndex]
		if !present {
			return nil, false
		}
		sub := matchTree(child.Tree, anchor, vars, opts)
		if len(sub) == 0 {
			return nil, false
		}
		best := sub[0]
		for k, v := range best.variables {
			vars[k] = v
		}
		out = append(out, toResult("", best))
	}
	return out, true
}

func distinctAcross(vars map[string]string, children []types.QueryResult) bool {
	seen := make(map[string]bool)
	for _, v := range vars {
		if seen[v] {
			return false
		}
		seen[v] = true
	}
	for _, c := range children {
		for _, v := range c.Variables {
			if seen[v] {
				return false
			}
			seen[v] = true
		}
	}
	return true
}

func buildCaptures(qt *query.QueryTree, nodeByIndex map[int]sitter.Node) []types.Capture {
	caps := make([]types.Capture, 0, len(qt.Captures))
	for i, cm := range qt.Captures {
		node, present := nodeByIndex[i]
		if !present {
			continue
		}
		caps = append(caps, types.Capture{
			Kind: cm.Kind,
			Name: cm.Name,
			Span: spanOf(node),
			Text: node.Text(),
		})
	}
	return caps
}

func toResult(file string, b binding) types.QueryResult {
	return types.QueryResult{
		File:         file,
		RootSpan:     spanOf(b.rootNode),
		Captures:     b.captures,
		Variables:    b.variables,
		ChildResults: b.childResults,
	}
}

func spanOf(n sitter.Node) types.Span {
	return types.Span{
		Start: types.Position{Line: n.StartLine(), Column: n.StartColumn(), Byte: n.StartByte()},
		End:   types.Position{Line: n.EndLine(), Column: n.EndColumn(), Byte: n.EndByte()},
	}
}

// enclosingCompound walks up from n to the nearest compound_statement
// ancestor, falling back to n itself when none exists (spec.md §4.3,
// "the same subtree scope as the parent's compound statement").
func enclosingCompound(n sitter.Node) sitter.Node {
	for cur := n; cur.Valid(); cur = cur.Parent() {
		if cur.Kind() == "compound_statement" {
			return cur
		}
	}
	return n
}

// enclosingFunction walks up from n to the nearest function_definition
// ancestor, or the translation unit if none exists, for spec.md §4.3's
// "Limit" bucketing rule.
func enclosingFunction(n sitter.Node, tu sitter.Node) sitter.Node {
	for cur := n; cur.Valid(); cur = cur.Parent() {
		if cur.Kind() == "function_definition" {
			return cur
		}
	}
	return tu
}

func limitPerFunction(results []types.QueryResult, tree *sitter.Tree) []types.QueryResult {
	seen := make(map[uint]bool)
	var out []types.QueryResult
	for _, r := range results {
		bucket := bucketKey(r, tree)
		if seen[bucket] {
			continue
		}
		seen[bucket] = true
		out = append(out, r)
	}
	return out
}

// bucketKey finds the node at RootSpan.Start and returns the start
// byte of its enclosing function (or the translation unit) as the
// Limit bucket identity.
func bucketKey(r types.QueryResult, tree *sitter.Tree) uint {
	var found sitter.Node
	tree.Root().Walk(func(n sitter.Node) bool {
		if n.StartByte() == r.RootSpan.Start.Byte && n.EndByte() == r.RootSpan.End.Byte {
			found = n
			return false
		}
		return true
	})
	if !found.Valid() {
		return r.RootSpan.Start.Byte
	}
	return enclosingFunction(found, tree.Root()).StartByte()
}

// dedup implements spec.md §4.3's "De-duplication": two results are
// equal when their root nodes coincide and their variable maps
// coincide.
func dedup(results []types.QueryResult) []types.QueryResult {
	type key struct {
		start, end uint
		vars       string
	}
	seen := make(map[key]bool, len(results))
	out := results[:0]
	for _, r := range results {
		k := key{start: r.RootSpan.Start.Byte, end: r.RootSpan.End.Byte, vars: varsSignature(r.Variables)}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func varsSignature(vars map[string]string) string {
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	sig := ""
	for _, n := range names {
		sig += n + "=" + vars[n] + ";"
	}
	return sig
}
