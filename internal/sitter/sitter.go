// Package sitter wraps the host parser (tree-sitter) behind the
// narrow interface the rest of the pipeline needs: parse bytes into an
// AST for a selected language, walk it, and run structural queries
// against it. Everything else in this module treats tree-sitter as a
// fixed external collaborator, per spec.md §6.
package sitter

import (
	"fmt"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_c "github.com/tree-sitter/tree-sitter-c/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"

	"github.com/cqlang/cq/internal/errs"
)

// Language selects which grammar a pattern or source file is parsed
// with (spec.md §6, "-X / --cpp").
type Language int

const (
	LangC Language = iota
	LangCPP
)

func (l Language) String() string {
	if l == LangCPP {
		return "c++"
	}
	return "c"
}

// DefaultExtensions returns the file extensions spec.md §6 associates
// with each language.
func (l Language) DefaultExtensions() []string {
	if l == LangCPP {
		return []string{".cc", ".cpp", ".cxx", ".h", ".hpp"}
	}
	return []string{".c", ".h"}
}

var (
	cLang   *tree_sitter.Language
	cppLang *tree_sitter.Language
)

func languageFor(l Language) *tree_sitter.Language {
	if l == LangCPP {
		if cppLang == nil {
			cppLang = tree_sitter.NewLanguage(tree_sitter_cpp.Language())
		}
		return cppLang
	}
	if cLang == nil {
		cLang = tree_sitter.NewLanguage(tree_sitter_c.Language())
	}
	return cLang
}

// Tree is one parsed AST plus the source bytes it was parsed from,
// which every node's text extraction needs.
type Tree struct {
	lang   Language
	source []byte
	tree   *tree_sitter.Tree
}

// Parse runs the host parser over source for the given language.
func Parse(source []byte, lang Language) (*Tree, error) {
	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(languageFor(lang)); err != nil {
		return nil, errs.New(errs.ParserInternal, "set language", err)
	}

	t := parser.Parse(source, nil)
	if t == nil {
		return nil, errs.New(errs.ParserInternal, "parse returned no tree", nil)
	}

	return &Tree{lang: lang, source: source, tree: t}, nil
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
	}
}

// Root returns the translation-unit root node.
func (t *Tree) Root() Node {
	return Node{n: t.tree.RootNode(), src: t.source}
}

// Source returns the raw bytes the tree was parsed from.
func (t *Tree) Source() []byte { return t.source }

// Language returns the language the tree was parsed with.
func (t *Tree) Language() Language { return t.lang }

// HasErrors reports whether any node in the tree is an ERROR or MISSING
// node, per spec.md §4.1 validation rule (a).
func (t *Tree) HasErrors() bool {
	return t.Root().hasErrors()
}

// Node wraps a tree-sitter node with the source bytes needed to read
// its text, so callers never juggle the two separately.
type Node struct {
	n   *tree_sitter.Node
	src []byte
}

// Kind is the grammar production name ("identifier", "call_expression", ...).
func (n Node) Kind() string {
	if n.n == nil {
		return ""
	}
	return n.n.Kind()
}

// IsError reports whether this node is a parser-synthesized ERROR node.
func (n Node) IsError() bool { return n.n != nil && n.n.IsError() }

// IsMissing reports whether this node is a parser-synthesized MISSING node.
func (n Node) IsMissing() bool { return n.n != nil && n.n.IsMissing() }

// IsNamed reports whether this node is a named (non-anonymous) production.
func (n Node) IsNamed() bool { return n.n != nil && n.n.IsNamed() }

// Text returns the exact source bytes spanned by this node.
func (n Node) Text() string {
	if n.n == nil {
		return ""
	}
	return string(n.n.Utf8Text(n.src))
}

// StartByte is the byte offset of the first byte this node spans.
func (n Node) StartByte() uint { return n.n.StartByte() }

// EndByte is the byte offset one past the last byte this node spans.
func (n Node) EndByte() uint { return n.n.EndByte() }

// StartLine is the 1-indexed line this node starts on.
func (n Node) StartLine() int { return int(n.n.StartPosition().Row) + 1 }

// StartColumn is the 1-indexed byte column this node starts on.
func (n Node) StartColumn() int { return int(n.n.StartPosition().Column) + 1 }

// EndLine is the 1-indexed line this node ends on.
func (n Node) EndLine() int { return int(n.n.EndPosition().Row) + 1 }

// EndColumn is the 1-indexed byte column this node ends on.
func (n Node) EndColumn() int { return int(n.n.EndPosition().Column) + 1 }

// Valid reports whether this wraps a non-nil tree-sitter node.
func (n Node) Valid() bool { return n.n != nil }

// ChildCount returns the number of children, named and anonymous.
func (n Node) ChildCount() int {
	if n.n == nil {
		return 0
	}
	return int(n.n.ChildCount())
}

// Child returns the i-th child (named or anonymous).
func (n Node) Child(i int) Node {
	return Node{n: n.n.Child(uint(i)), src: n.src}
}

// NamedChildCount returns the number of named children.
func (n Node) NamedChildCount() int {
	if n.n == nil {
		return 0
	}
	return int(n.n.NamedChildCount())
}

// NamedChild returns the i-th named child.
func (n Node) NamedChild(i int) Node {
	return Node{n: n.n.NamedChild(uint(i)), src: n.src}
}

// FieldChild returns the child bound to a grammar field name, e.g.
// "function" on a call_expression, "declarator" on a declaration.
func (n Node) FieldChild(field string) Node {
	return Node{n: n.n.ChildByFieldName(field), src: n.src}
}

// FieldNameForChild returns the grammar field name of the i-th child,
// or "" if that child is positional only.
func (n Node) FieldNameForChild(i int) string {
	if n.n == nil {
		return ""
	}
	return n.n.FieldNameForChild(uint32(i))
}

// Parent returns this node's parent, or an invalid Node at the root.
func (n Node) Parent() Node {
	return Node{n: n.n.Parent(), src: n.src}
}

func (n Node) hasErrors() bool {
	if n.n == nil {
		return false
	}
	if n.IsError() || n.IsMissing() {
		return true
	}
	for i := 0; i < n.ChildCount(); i++ {
		if n.Child(i).hasErrors() {
			return true
		}
	}
	return false
}

// Walk applies fn to n and every descendant, depth-first, stopping a
// given subtree's descent when fn returns false.
func (n Node) Walk(fn func(Node) bool) {
	if n.n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for i := 0; i < n.ChildCount(); i++ {
		n.Child(i).Walk(fn)
	}
}

// String is used for diagnostics only.
func (n Node) String() string {
	if n.n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s[%d:%d]", n.Kind(), n.StartByte(), n.EndByte())
}
