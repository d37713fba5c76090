package compiler

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// SourceUnit is one parsed source file: its tree-sitter tree plus the
// raw bytes the tree's byte ranges index into. The tree must be closed
// by the caller once resolution over the unit is finished.
type SourceUnit struct {
	Path    string
	Content []byte
	Tree    *sitter.Tree
}

// Close releases the tree-sitter tree's native resources.
func (u *SourceUnit) Close() {
	if u.Tree != nil {
		u.Tree.Close()
	}
}

// Root returns the unit's root AST node.
func (u *SourceUnit) Root() *sitter.Node {
	return u.Tree.RootNode()
}

// Text returns the source text spanned by n.
func (u *SourceUnit) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(u.Content[n.StartByte():n.EndByte()])
}

// Line returns the 1-based source line n starts on.
func (u *SourceUnit) Line(n *sitter.Node) int {
	if n == nil {
		return 0
	}
	return int(n.StartPoint().Row) + 1
}

// FrontEnd parses JavaScript and TypeScript source units. It is the
// external compiler front-end the whitelist compiler treats as a
// collaborator exposing a typed AST.
type FrontEnd struct {
	tsParser *sitter.Parser
	jsParser *sitter.Parser
}

// NewFrontEnd constructs a FrontEnd ready to parse both languages.
func NewFrontEnd() *FrontEnd {
	ts := sitter.NewParser()
	ts.SetLanguage(typescript.GetLanguage())
	js := sitter.NewParser()
	js.SetLanguage(javascript.GetLanguage())
	return &FrontEnd{tsParser: ts, jsParser: js}
}

// Parse parses one source file, selecting the grammar by extension.
func (f *FrontEnd) Parse(ctx context.Context, path string, content []byte) (*SourceUnit, error) {
	parser := f.tsParser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		parser = f.jsParser
	}

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &SourceUnit{Path: path, Content: content, Tree: tree}, nil
}

// IsDeclarationOnly reports whether path is a pure type-declaration unit
// (.d.ts) that the whitelist compiler skips, since it can carry no
// executable sql`` templates.
func IsDeclarationOnly(path string) bool {
	return strings.HasSuffix(path, ".d.ts")
}

// walkNamed calls visit once for every named child of node, depth first,
// pre-order. visit returns false to stop descending into that subtree.
func walkNamed(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if visit(child) {
			walkNamed(child, visit)
		}
	}
}
