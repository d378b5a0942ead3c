package sitter

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/cqlang/cq/internal/errs"
)

// Query is a compiled structural query in the host engine's
// S-expression query language (spec.md §3, QueryTree.query).
type Query struct {
	lang Language
	q    *tree_sitter.Query
}

// CompileQuery compiles a structural query against the given language.
func CompileQuery(source string, lang Language) (*Query, error) {
	q, qerr := tree_sitter.NewQuery(languageFor(lang), source)
	if qerr != nil {
		return nil, errs.New(errs.UnsupportedConstruct, "compile query: "+source, qerr)
	}
	return &Query{lang: lang, q: q}, nil
}

// Close releases the compiled query.
func (q *Query) Close() {
	if q.q != nil {
		q.q.Close()
	}
}

// CaptureNames returns the @name labels in declaration order; their
// index is the integer a Match's Capture.Index refers to (spec.md §3,
// "captures: ordered vector").
func (q *Query) CaptureNames() []string {
	return q.q.CaptureNames()
}

// Capture is one bound node within a single match, addressed by the
// integer index of its @name in the query text.
type Capture struct {
	Index uint32
	Node  Node
}

// Match is one occurrence of Query against a subtree.
type Match struct {
	PatternIndex uint16
	Captures     []Capture
}

// Run executes q against the subtree rooted at node and returns every
// match the host engine finds, in the order the engine produces them.
func Run(q *Query, node Node) []Match {
	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(q.q, node.n, node.src)
	var out []Match
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		match := Match{PatternIndex: uint16(m.PatternIndex)}
		for _, c := range m.Captures {
			match.Captures = append(match.Captures, Capture{
				Index: c.Index,
				Node:  Node{n: &c.Node, src: node.src},
			})
		}
		out = append(out, match)
	}
	return out
}
