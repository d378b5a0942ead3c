// Package pattern implements the Pattern Frontend (spec.md §4.1): it
// turns a raw, possibly-incomplete pattern string into a validated
// PatternAST cursor ready for the Query Builder.
package pattern

import (
	"strings"

	"github.com/cqlang/cq/internal/errs"
	"github.com/cqlang/cq/internal/sitter"
)

// acceptedRoots are the grammar kinds spec.md §4.1 accepts as a
// pattern's single root form.
var acceptedRoots = map[string]bool{
	"compound_statement":   true,
	"function_definition":  true,
	"struct_specifier":     true,
	"union_specifier":      true,
	"enum_specifier":       true,
	"class_specifier":      true, // C++ only; absent from the C grammar
	"declaration":          true,
	"expression_statement": true,
}

// identifierKinds are the node kinds a metavariable sigil may legally
// appear on (spec.md §4.1 validation rule (c)).
var identifierKinds = map[string]bool{
	"identifier":           true,
	"type_identifier":      true,
	"field_identifier":     true,
	"namespace_identifier": true,
}

// Cursor is the validated pattern AST the Query Builder consumes: the
// (possibly descended-into) pattern root, whether statement-expression
// unwrap fired, and the tree it all lives in.
type Cursor struct {
	Tree          *sitter.Tree
	Root          sitter.Node
	AnchorRelaxed bool
	Lang          sitter.Language
}

// Close releases the underlying parsed tree.
func (c *Cursor) Close() {
	if c.Tree != nil {
		c.Tree.Close()
	}
}

type wrapping struct {
	name string
	wrap func(string) string
}

var wrappings = []wrapping{
	{"as-is", func(s string) string { return s }},
	{"trailing-semicolon", func(s string) string { return s + ";" }},
	{"braces", func(s string) string { return "{ " + s + " }" }},
	{"braces-semicolon", func(s string) string { return "{ " + s + "; }" }},
	{"void-function", func(s string) string { return "void _() { " + s + " }" }},
}

// Normalize implements spec.md §4.1: try the raw string, then
// progressively more aggressive wrappings, stopping at the first one
// that parses to a singly-rooted tree without error nodes. If force is
// set and nothing succeeds, the raw string is parsed and accepted
// as-is for best-effort lowering.
func Normalize(raw string, lang sitter.Language, force bool) (*Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errs.New(errs.PatternSyntax, "empty pattern", nil)
	}

	var lastErr error

	for _, w := range wrappings {
		text := w.wrap(raw)
		tree, err := sitter.Parse([]byte(text), lang)
		if err != nil {
			lastErr = err
			continue
		}

		root, ok := singleRoot(tree.Root())
		if !ok {
			tree.Close()
			continue
		}

		if tree.HasErrors() && !force {
			tree.Close()
			continue
		}

		if err := validate(tree.Root(), force); err != nil {
			tree.Close()
			lastErr = err
			continue
		}

		cursor := &Cursor{Tree: tree, Root: root, Lang: lang}
		unwrapStatementExpression(cursor)
		return cursor, nil
	}

	if force {
		// Best-effort: parse the raw text untouched and hand back
		// whatever the translation unit's first child is, skipping
		// validation entirely.
		tree, err := sitter.Parse([]byte(raw), lang)
		if err != nil {
			return nil, errs.New(errs.PatternSyntax, "force-parse failed", err)
		}
		root := tree.Root()
		if root.NamedChildCount() > 0 {
			root = root.NamedChild(0)
		}
		return &Cursor{Tree: tree, Root: root, Lang: lang}, nil
	}

	return nil, errs.New(errs.PatternSyntax, "pattern did not normalize to an accepted root", lastErr)
}

// singleRoot reports whether the translation unit has exactly one
// top-level named child, of an accepted root kind, and returns it.
func singleRoot(translationUnit sitter.Node) (sitter.Node, bool) {
	if translationUnit.NamedChildCount() != 1 {
		return sitter.Node{}, false
	}
	root := translationUnit.NamedChild(0)
	if !acceptedRoots[root.Kind()] {
		return sitter.Node{}, false
	}
	return root, true
}

// validate walks the pattern tree enforcing spec.md §4.1 rules (a) and (c).
func validate(n sitter.Node, force bool) error {
	var walkErr error
	n.Walk(func(node sitter.Node) bool {
		if walkErr != nil {
			return false
		}
		if !force && (node.IsError() || node.IsMissing()) {
			walkErr = errs.New(errs.PatternSyntax, "malformed node: "+node.Kind(), nil)
			return false
		}
		if strings.HasPrefix(node.Text(), "$") && node.ChildCount() == 0 {
			if !identifierKinds[node.Kind()] {
				walkErr = errs.New(errs.PatternSyntax,
					"metavariable sigil in non-identifier position: "+node.Kind(), nil)
				return false
			}
		}
		return true
	})
	return walkErr
}

// unwrapStatementExpression implements spec.md §4.1's "statement-
// expression unwrap": when the pattern root is a compound statement
// whose sole child is an expression_statement, descend into the inner
// expression and mark AnchorRelaxed so the matcher later re-homes the
// emitted query to any enclosing expression position.
func unwrapStatementExpression(c *Cursor) {
	root := c.Root
	if root.Kind() != "compound_statement" {
		return
	}
	if root.NamedChildCount() != 1 {
		return
	}
	stmt := root.NamedChild(0)
	if stmt.Kind() != "expression_statement" {
		return
	}
	if stmt.NamedChildCount() != 1 {
		return
	}
	c.Root = stmt.NamedChild(0)
	c.AnchorRelaxed = true
}
