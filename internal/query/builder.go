package query

import (
	"fmt"
	"strings"

	"github.com/cqlang/cq/internal/errs"
	"github.com/cqlang/cq/internal/pattern"
	"github.com/cqlang/cq/internal/sitter"
	"github.com/cqlang/cq/internal/types"
)

// identifierKinds mirrors pattern.identifierKinds: the node kinds a
// metavariable or bare-wildcard sigil can legally replace.
var identifierKinds = map[string]bool{
	"identifier":           true,
	"type_identifier":      true,
	"field_identifier":     true,
	"namespace_identifier": true,
}

// idGen hands out globally unique QueryTree.ID values so captures can
// be correlated across negations and recursive children even though
// each QueryTree numbers its own capture vector from zero.
type idGen struct{ next int }

func (g *idGen) take() int {
	id := g.next
	g.next++
	return id
}

// Build lowers a validated pattern cursor into a QueryTree (spec.md §4.2).
func Build(c *pattern.Cursor, opts BuildOptions) (*QueryTree, error) {
	gen := &idGen{}
	return build(c.Root, c.Lang, opts, gen, c.AnchorRelaxed)
}

// BuildOptions carries the per-run settings that influence lowering:
// -R regex constraints, keyed by metavariable name.
type BuildOptions struct {
	Regex map[string]RegexConstraint
}

// buildChild lowers a nested pattern subtree (the target of a not: or
// a _(...) wildcard) into its own independent QueryTree, sharing the
// id generator so QueryTree.ID stays unique across the whole pattern.
func buildChild(root sitter.Node, lang sitter.Language, opts BuildOptions, gen *idGen) (*QueryTree, error) {
	return build(root, lang, opts, gen, false)
}

func build(root sitter.Node, lang sitter.Language, opts BuildOptions, gen *idGen, anchorRelaxed bool) (*QueryTree, error) {
	b := &builder{lang: lang, opts: opts, gen: gen, variables: make(map[string][]int)}

	body, err := b.emit(root)
	if err != nil {
		return nil, err
	}
	if body == "" {
		return nil, errs.New(errs.UnsupportedConstruct, "pattern lowered to nothing", nil)
	}

	rootIdx := b.alloc(types.Check, "")
	source := fmt.Sprintf("%s @c%d", body, rootIdx)

	compiled, err := sitter.CompileQuery(source, lang)
	if err != nil {
		return nil, err
	}

	return &QueryTree{
		ID:            gen.take(),
		Source:        source,
		Compiled:      compiled,
		Captures:      b.captures,
		Variables:     b.variables,
		Negations:     b.negations,
		Children:      b.children,
		AnchorRelaxed: anchorRelaxed,
		Lang:          lang,
	}, nil
}

type builder struct {
	lang      sitter.Language
	opts      BuildOptions
	gen       *idGen
	captures  []CaptureMeta
	variables map[string][]int
	negations []*Negation
	children  []*ChildQuery
}

func (b *builder) alloc(kind types.CaptureKind, name string) int {
	idx := len(b.captures)
	b.captures = append(b.captures, CaptureMeta{Kind: kind, Name: name})
	return idx
}

// emit lowers one pattern node into its query-text contribution,
// applying the emission rules of spec.md §4.2 in order. An empty
// return with a nil error means the node was consumed structurally
// (a negation) and contributes nothing to the parent's query text.
func (b *builder) emit(n sitter.Node) (string, error) {
	switch {
	case isAssignmentStatement(n):
		// spec.md §1, §8 scenario 5's "greedy superset": the declaration
		// alternative needs a "declaration" wrapper rather than
		// expression_statement's, since tree-sitter matches a listed
		// child against the target's real immediate child — an
		// unconditional unwrap would lose that distinction wherever this
		// statement sits alongside siblings in a multi-statement pattern.
		return b.emitAssignmentStatement(n.NamedChild(0))

	case isNegation(n):
		inner, ok := negationInner(n)
		if !ok {
			return "", errs.New(errs.UnsupportedConstruct, "malformed not: clause", nil)
		}
		prevIdx := len(b.captures) - 1
		child, err := buildChild(inner, b.lang, b.opts, b.gen)
		if err != nil {
			return "", err
		}
		b.negations = append(b.negations, &Negation{Tree: child, PrevCaptureIndex: prevIdx})
		return "", nil

	case isSubexpressionWildcard(n):
		inner, ok := subexpressionInner(n)
		if !ok {
			return "", errs.New(errs.UnsupportedConstruct, "malformed _(...) wildcard", nil)
		}
		idx := b.alloc(types.Subexpression, "")
		child, err := buildChild(inner, b.lang, b.opts, b.gen)
		if err != nil {
			return "", err
		}
		b.children = append(b.children, &ChildQuery{AnchorIndex: idx, Tree: child})
		return fmt.Sprintf("(_) @c%d", idx), nil

	case isAssignment(n):
		return b.emitAssignment(n)

	case isMetavariable(n):
		name := n.Text()
		idx := b.alloc(types.Variable, name)
		b.variables[name] = append(b.variables[name], idx)
		if rc, ok := b.opts.Regex[name]; ok {
			b.captures[idx].Regex = &rc
		}
		return fmt.Sprintf("(%s) @c%d", n.Kind(), idx), nil

	case isWildcardLeaf(n):
		// spec.md §4.2: "_" in a field-name or namespace-component
		// position emits the corresponding typed node with no predicate,
		// since that slot can only ever be a name; any other wildcard
		// leaf (a plain identifier, which may stand for a whole
		// expression or declarator, or a type name, which may stand for
		// any type) can take many different node shapes across real
		// inputs, so it is lowered as a full "match any node" capture.
		idx := b.alloc(types.Check, "")
		if n.Kind() == "field_identifier" || n.Kind() == "namespace_identifier" {
			return fmt.Sprintf("(%s) @c%d", n.Kind(), idx), nil
		}
		return fmt.Sprintf("(_) @c%d", idx), nil

	case n.ChildCount() == 0:
		return b.emitLeaf(n)

	default:
		return b.emitComposite(n)
	}
}

func (b *builder) emitLeaf(n sitter.Node) (string, error) {
	if !n.IsNamed() {
		// Literal keyword / punctuation: anonymous structural match.
		return fmt.Sprintf("%q", n.Text()), nil
	}
	// A named leaf with concrete text: identifier, type name, field
	// name, namespace component, number or string literal. All of
	// these are Anchor captures constrained by the host engine's own
	// #eq? predicate (spec.md §4.2: "host engines that support
	// string-equality predicates may use them directly instead").
	idx := b.alloc(types.Anchor, n.Text())
	return fmt.Sprintf("(%s) @c%d (#eq? @c%d %q)", n.Kind(), idx, idx, n.Text()), nil
}

// assignmentForms implements the "greedy superset" assignment alternation
// (spec.md §1, §8 scenario 5): a plain "$p = E;" pattern must also match
// the lexically plausible stricter forms it's a superset of. A bare "="
// assignment whose left side is a name widens to also match an
// init_declarator, with or without a pointer declarator, so `$p =
// malloc($a);` matches both `p = malloc(n);` and `void* p = malloc(n);`.
// decl/declPtr are "" when the superset doesn't apply (a compound
// operator such as `+=`, or a non-identifier left side), meaning only
// the plain assignment form is possible, as the original does.
func (b *builder) assignmentForms(n sitter.Node) (assign, decl, declPtr string, err error) {
	left := n.FieldChild("left")
	operator := n.FieldChild("operator")
	right := n.FieldChild("right")

	leftSnippet, err := b.emit(left)
	if err != nil {
		return "", "", "", err
	}
	rightSnippet, err := b.emit(right)
	if err != nil {
		return "", "", "", err
	}

	if operator.Text() != "=" || left.Kind() != "identifier" {
		assign = fmt.Sprintf("(assignment_expression left: %s operator: %q right: %s)",
			leftSnippet, operator.Text(), rightSnippet)
		return assign, "", "", nil
	}

	assign = fmt.Sprintf("(assignment_expression left: %s right: %s)", leftSnippet, rightSnippet)
	decl = fmt.Sprintf("(init_declarator declarator: %s value: %s)", leftSnippet, rightSnippet)
	declPtr = fmt.Sprintf("(init_declarator declarator: (pointer_declarator declarator: %s) value: %s)",
		leftSnippet, rightSnippet)
	return assign, decl, declPtr, nil
}

// emitAssignment lowers a bare assignment_expression reached directly
// (the pattern frontend already unwrapped the enclosing
// expression_statement, e.g. a single-statement pattern normalized via
// unwrapStatementExpression) — the result is a top-level query body, so
// it needs no statement/declaration wrapper of its own.
func (b *builder) emitAssignment(n sitter.Node) (string, error) {
	assign, decl, declPtr, err := b.assignmentForms(n)
	if err != nil {
		return "", err
	}
	if decl == "" {
		return assign, nil
	}
	return fmt.Sprintf("[%s %s %s]", assign, decl, declPtr), nil
}

// emitAssignmentStatement lowers an expression_statement whose sole child
// is an assignment, keeping the assignment and declaration alternatives
// each under their real grammar wrapper (expression_statement vs.
// declaration) so the alternation still matches correctly when it sits
// as one sibling among several in a multi-statement compound pattern —
// tree-sitter matches a listed child against the target's actual
// immediate child, so the wrapper kind must agree with it.
func (b *builder) emitAssignmentStatement(n sitter.Node) (string, error) {
	assign, decl, declPtr, err := b.assignmentForms(n)
	if err != nil {
		return "", err
	}
	assignStmt := fmt.Sprintf(`(expression_statement %s ";")`, assign)
	if decl == "" {
		return assignStmt, nil
	}
	declStmt := fmt.Sprintf(`(declaration %s ";")`, decl)
	declPtrStmt := fmt.Sprintf(`(declaration %s ";")`, declPtr)
	return fmt.Sprintf("[%s %s %s]", assignStmt, declStmt, declPtrStmt), nil
}

func (b *builder) emitComposite(n sitter.Node) (string, error) {
	var parts []string
	for i := 0; i < n.ChildCount(); i++ {
		child := n.Child(i)
		if !child.IsNamed() {
			parts = append(parts, fmt.Sprintf("%q", child.Text()))
			continue
		}
		snippet, err := b.emit(child)
		if err != nil {
			return "", err
		}
		if snippet == "" {
			// A negation: removed entirely from the parent's query text.
			continue
		}
		if field := n.FieldNameForChild(i); field != "" {
			snippet = field + ": " + snippet
		}
		parts = append(parts, snippet)
	}
	return fmt.Sprintf("(%s %s)", n.Kind(), strings.Join(parts, " ")), nil
}

func isMetavariable(n sitter.Node) bool {
	return n.ChildCount() == 0 && identifierKinds[n.Kind()] && strings.HasPrefix(n.Text(), "$") && len(n.Text()) > 1
}

// isAssignment detects an assignment_expression, the production
// emitAssignment widens into the declaration-alternation superset.
func isAssignment(n sitter.Node) bool {
	return n.Kind() == "assignment_expression"
}

// isAssignmentStatement detects an expression_statement whose sole
// child is an assignment, the combination emitAssignmentStatement
// widens into the declaration-alternation superset.
func isAssignmentStatement(n sitter.Node) bool {
	return n.Kind() == "expression_statement" && n.NamedChildCount() == 1 && isAssignment(n.NamedChild(0))
}

func isWildcardLeaf(n sitter.Node) bool {
	return n.ChildCount() == 0 && identifierKinds[n.Kind()] && n.Text() == "_"
}

// isSubexpressionWildcard detects the `_(inner)` form, parsed by the
// grammar as a call expression whose callee is the identifier `_`
// (spec.md §3, "the special subexpression wildcard form").
func isSubexpressionWildcard(n sitter.Node) bool {
	if n.Kind() != "call_expression" {
		return false
	}
	fn := n.FieldChild("function")
	return fn.Valid() && fn.Kind() == "identifier" && fn.Text() == "_"
}

func subexpressionInner(n sitter.Node) (sitter.Node, bool) {
	args := n.FieldChild("arguments")
	if !args.Valid() || args.NamedChildCount() == 0 {
		return sitter.Node{}, false
	}
	return args.NamedChild(0), true
}

// isNegation detects a leading `not:` on a statement, parsed by the
// grammar as an ordinary label (spec.md §6: "leading not: on any
// statement within a compound").
func isNegation(n sitter.Node) bool {
	if n.Kind() != "labeled_statement" {
		return false
	}
	if n.NamedChildCount() < 2 {
		return false
	}
	return n.NamedChild(0).Text() == "not"
}

func negationInner(n sitter.Node) (sitter.Node, bool) {
	if n.NamedChildCount() < 2 {
		return sitter.Node{}, false
	}
	return n.NamedChild(1), true
}
