// Package query implements the Query Builder (spec.md §4.2): it lowers
// a validated pattern AST into a QueryTree, a rooted tree of
// structural tree-sitter queries plus the metadata the host query
// language cannot express on its own (metavariable equality, regex
// constraints, recursive subexpression search, negation).
package query

import (
	"github.com/dlclark/regexp2"

	"github.com/cqlang/cq/internal/errs"
	"github.com/cqlang/cq/internal/sitter"
	"github.com/cqlang/cq/internal/types"
)

// RegexConstraint attaches a -R v=re / -R v!=re filter to a
// metavariable (spec.md §6). Compiled holds the live Perl-style
// matcher; it is populated once, at build time, so a bad -R regex
// fails fast as errs.RegexCompile rather than on every match attempt.
type RegexConstraint struct {
	Pattern  string
	Negative bool
	Compiled *regexp2.Regexp
}

// Matches reports whether text satisfies this constraint, honoring
// the "!=" negative form (spec.md §4.3, "Regex filters").
func (r *RegexConstraint) Matches(text string) bool {
	if r.Compiled == nil {
		return true
	}
	ok, _ := r.Compiled.MatchString(text)
	if r.Negative {
		return !ok
	}
	return ok
}

// NewRegexConstraint compiles a -R v=re / -R v!=re flag value into a
// RegexConstraint, failing as errs.RegexCompile (spec.md §4.2,
// "Failure modes") rather than at first match time.
func NewRegexConstraint(patt string, negative bool) (RegexConstraint, error) {
	re, err := regexp2.Compile(patt, regexp2.None)
	if err != nil {
		return RegexConstraint{}, errs.New(errs.RegexCompile, "invalid -R pattern: "+patt, err)
	}
	return RegexConstraint{Pattern: patt, Negative: negative, Compiled: re}, nil
}

// CaptureMeta is one entry of a QueryTree's ordered capture vector
// (spec.md §3, "captures").
type CaptureMeta struct {
	Kind  types.CaptureKind
	Name  string // metavariable name, literal text for Anchor, else ""
	Regex *RegexConstraint
}

// ChildQuery is a recursive subexpression search (spec.md §3,
// "children"): AnchorIndex names which capture in the parent's own
// query the child tree is rooted at.
type ChildQuery struct {
	AnchorIndex int
	Tree        *QueryTree
}

// Negation is a not: clause (spec.md §3, "negations"). PrevCaptureIndex
// is the index, in the parent QueryTree's own capture vector, of the
// capture allocated immediately before this clause was encountered
// during lowering (-1 if none precedes it). A negation match is only
// valid if it falls after that capture's node and before the one
// allocated right after it (spec.md §9's sibling-order resolution:
// ordering is enforced only around a not: clause's own position,
// mirroring the original's previous_capture_index mechanism).
type Negation struct {
	Tree             *QueryTree
	PrevCaptureIndex int
}

// QueryTree is one node of the rooted tree spec.md §3 describes: a
// compiled structural query, its capture/variable metadata, and the
// negative and recursive children that express what the host query
// language cannot.
type QueryTree struct {
	ID int

	Source   string
	Compiled *sitter.Query

	Captures  []CaptureMeta
	Variables map[string][]int // metavariable -> capture indices local to this node

	Negations []*Negation
	Children  []*ChildQuery

	// AnchorRelaxed is set on a top-level QueryTree when the frontend's
	// statement-expression unwrap fired for this pattern: the matcher
	// must search for this query in any enclosing expression position,
	// not only as a direct statement (spec.md §4.1, §4.2 "effect on
	// emission").
	AnchorRelaxed bool

	Lang sitter.Language
}

// RootCaptureIndex returns the index of the capture that spans this
// QueryTree's entire matched node. Build always allocates it last, after
// every capture the pattern's own structure needed.
func (t *QueryTree) RootCaptureIndex() int {
	return len(t.Captures) - 1
}

// Close releases the compiled tree-sitter query owned by this node and
// every descendant.
func (t *QueryTree) Close() {
	if t == nil {
		return
	}
	if t.Compiled != nil {
		t.Compiled.Close()
	}
	for _, n := range t.Negations {
		n.Tree.Close()
	}
	for _, c := range t.Children {
		c.Tree.Close()
	}
}

// AllVariableNames returns every metavariable name appearing anywhere
// in this tree or any descendant, satisfying the closure invariant of
// spec.md §3 ("A QueryTree's variables map is closed under its own
// captures").
func (t *QueryTree) AllVariableNames() map[string]bool {
	names := make(map[string]bool)
	t.collectVariableNames(names)
	return names
}

func (t *QueryTree) collectVariableNames(out map[string]bool) {
	for name := range t.Variables {
		out[name] = true
	}
	for _, n := range t.Negations {
		n.Tree.collectVariableNames(out)
	}
	for _, c := range t.Children {
		c.Tree.collectVariableNames(out)
	}
}

// ConcreteIdentifiers returns every literal identifier name (Anchor
// captures) this tree or a descendant requires exact text equality on,
// used by the parse pool's pre-filter (spec.md §5): a file that does
// not contain one of these names as a substring cannot match.
func (t *QueryTree) ConcreteIdentifiers() []string {
	var out []string
	t.collectConcreteIdentifiers(&out)
	return out
}

func (t *QueryTree) collectConcreteIdentifiers(out *[]string) {
	for _, c := range t.Captures {
		if c.Kind == types.Anchor && c.Name != "" {
			*out = append(*out, c.Name)
		}
	}
	for _, n := range t.Negations {
		n.Tree.collectConcreteIdentifiers(out)
	}
	for _, c := range t.Children {
		c.Tree.collectConcreteIdentifiers(out)
	}
}
