package compiler

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/latchql/latch/internal/ir"
)

// Symbol is one entry in a module's symbol table: a name bound by a
// variable declaration, an import specifier, or an export specifier.
type Symbol struct {
	Name string
	// Kind classifies how Name was bound.
	Kind SymbolKind
	// Init is the declaration's initializer expression, when Kind is
	// SymbolVariable ("const q = sql`...`", "const q = other").
	Init *sitter.Node
	// AliasTarget is the name this symbol re-exports or imports from,
	// when Kind is SymbolImport or SymbolReexport ("export { q as query }").
	AliasTarget string
	// ModulePath is the source module of an import/re-export specifier.
	ModulePath string
	// Exported reports whether the binding is reachable from outside
	// the file: an export_statement's own declaration, or an
	// export_clause specifier. A plain top-level function or variable
	// declaration leaves this false.
	Exported bool
}

// SymbolKind distinguishes the ways a name can enter a module's scope.
type SymbolKind int

const (
	SymbolVariable SymbolKind = iota
	SymbolImport
	SymbolReexport
	SymbolNamespaceImport
	SymbolFunctionDecl
)

// SymbolTable is a module's file-scope bindings, built by a single pass
// over its top-level statements. Resolution never descends into
// function bodies to build this table: trigger-predicate resolution is
// restricted to file scope by definition.
type SymbolTable map[string]*Symbol

// BuildSymbolTable scans the top-level statements of a source unit and
// records every file-scope variable declaration, import specifier, and
// export specifier.
func BuildSymbolTable(unit *SourceUnit) SymbolTable {
	table := make(SymbolTable)
	root := unit.Root()

	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		switch stmt.Type() {
		case "lexical_declaration", "variable_declaration":
			collectVariableDeclarators(unit, stmt, table, false)
		case "import_statement":
			collectImportSpecifiers(unit, stmt, table)
		case "export_statement":
			collectExportSpecifiers(unit, stmt, table)
			// export const x = ... / export function x() {}
			if decl := stmt.ChildByFieldName("declaration"); decl != nil {
				switch decl.Type() {
				case "lexical_declaration", "variable_declaration":
					collectVariableDeclarators(unit, decl, table, true)
				case "function_declaration":
					if name := decl.ChildByFieldName("name"); name != nil {
						table[unit.Text(name)] = &Symbol{Name: unit.Text(name), Kind: SymbolFunctionDecl, Init: decl, Exported: true}
					}
				}
			}
		case "function_declaration":
			if name := stmt.ChildByFieldName("name"); name != nil {
				table[unit.Text(name)] = &Symbol{Name: unit.Text(name), Kind: SymbolFunctionDecl, Init: stmt}
			}
		}
	}

	return table
}

func collectVariableDeclarators(unit *SourceUnit, decl *sitter.Node, table SymbolTable, exported bool) {
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		name := d.ChildByFieldName("name")
		value := d.ChildByFieldName("value")
		if name == nil {
			continue
		}
		sym := &Symbol{Kind: SymbolVariable, Init: value, Exported: exported}
		table[unit.Text(name)] = sym
	}
}

func collectImportSpecifiers(unit *SourceUnit, stmt *sitter.Node, table SymbolTable) {
	modulePathNode := stmt.ChildByFieldName("source")
	modulePath := unit.Text(modulePathNode)

	importClause := findChildOfType(stmt, "import_clause")
	if importClause == nil {
		return
	}

	walkNamed(importClause, func(n *sitter.Node) bool {
		switch n.Type() {
		case "namespace_import":
			if len(unit.Text(n)) > 0 {
				// "* as ns"
				if id := findChildOfType(n, "identifier"); id != nil {
					table[unit.Text(id)] = &Symbol{Kind: SymbolNamespaceImport, ModulePath: modulePath}
				}
			}
			return false
		case "import_specifier":
			nameNode := n.ChildByFieldName("name")
			aliasNode := n.ChildByFieldName("alias")
			local := unit.Text(nameNode)
			if aliasNode != nil {
				local = unit.Text(aliasNode)
			}
			table[local] = &Symbol{Kind: SymbolImport, AliasTarget: unit.Text(nameNode), ModulePath: modulePath}
			return false
		case "identifier":
			// default import: "import Foo from './x'"
			table[unit.Text(n)] = &Symbol{Kind: SymbolImport, AliasTarget: "default", ModulePath: modulePath}
			return false
		}
		return true
	})
}

func collectExportSpecifiers(unit *SourceUnit, stmt *sitter.Node, table SymbolTable) {
	modulePathNode := stmt.ChildByFieldName("source")
	modulePath := ""
	if modulePathNode != nil {
		modulePath = unit.Text(modulePathNode)
	}

	exportClause := findChildOfType(stmt, "export_clause")
	if exportClause == nil {
		return
	}

	walkNamed(exportClause, func(n *sitter.Node) bool {
		if n.Type() != "export_specifier" {
			return true
		}
		nameNode := n.ChildByFieldName("name")
		aliasNode := n.ChildByFieldName("alias")
		local := unit.Text(nameNode)
		if aliasNode != nil {
			local = unit.Text(aliasNode)
		}
		table[local] = &Symbol{Kind: SymbolReexport, AliasTarget: unit.Text(nameNode), ModulePath: modulePath, Exported: true}
		return false
	})
}

func findChildOfType(node *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c.Type() == typ {
			return c
		}
	}
	return nil
}

// ResolutionTrace accumulates the indented log of a single resolution
// attempt. On failure the whole trace is flushed so a human can see
// exactly where the chain broke.
type ResolutionTrace struct {
	lines []string
	depth int
}

func (t *ResolutionTrace) step(format string, args ...any) {
	t.lines = append(t.lines, fmt.Sprintf("%s%s", indent(t.depth), fmt.Sprintf(format, args...)))
}

func (t *ResolutionTrace) descend()  { t.depth++ }
func (t *ResolutionTrace) ascend()   { t.depth-- }
func (t *ResolutionTrace) Lines() []string { return t.lines }

func indent(depth int) string {
	b := make([]byte, depth*2)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

// ErrUnresolved is returned by resolution functions when a chain breaks:
// a function boundary, a conditional, a mutation, or dynamic property
// access was encountered before reaching a concrete expression.
type ErrUnresolved struct {
	Reason string
}

func (e *ErrUnresolved) Error() string { return "unresolved: " + e.Reason }

// ResolveQueryExpression follows an identifier -> declaration ->
// (possibly another identifier) chain to a tagged template expression
// whose tag is literally "sql". The chain may traverse same-unit
// aliasing, variable initializers, import/export specifiers, and
// namespace property access; it may not pass through function
// boundaries, conditional expressions, mutation, or dynamic property
// access.
func ResolveQueryExpression(unit *SourceUnit, table SymbolTable, expr *sitter.Node, trace *ResolutionTrace) (*sitter.Node, error) {
	return resolveQueryExpr(unit, table, expr, trace, map[string]bool{})
}

func resolveQueryExpr(unit *SourceUnit, table SymbolTable, expr *sitter.Node, trace *ResolutionTrace, visiting map[string]bool) (*sitter.Node, error) {
	if expr == nil {
		return nil, &ErrUnresolved{Reason: "nil expression"}
	}

	switch expr.Type() {
	case "template_string":
		// A tagged_template_expression's child; caller already checked the tag.
		return expr, nil

	case "tagged_template_expression":
		tag := expr.ChildByFieldName("tag")
		if tag == nil || unit.Text(tag) != "sql" {
			trace.step("tag %q is not sql`...`", unit.Text(tag))
			return nil, &ErrUnresolved{Reason: "tag is not sql"}
		}
		return expr, nil

	case "identifier":
		name := unit.Text(expr)
		if visiting[name] {
			trace.step("identifier %q revisited - circular alias", name)
			return nil, &ErrUnresolved{Reason: "circular alias chain for " + name}
		}
		visiting[name] = true

		sym, ok := table[name]
		if !ok {
			trace.step("identifier %q has no file-scope binding", name)
			return nil, &ErrUnresolved{Reason: "no binding for " + name}
		}

		trace.step("identifier %q -> %v", name, sym.Kind)
		trace.descend()
		defer trace.ascend()

		switch sym.Kind {
		case SymbolVariable:
			return resolveQueryExpr(unit, table, sym.Init, trace, visiting)
		case SymbolImport, SymbolReexport:
			// Cross-module resolution requires the importing module's own
			// symbol table, supplied by the caller via a resolved-module
			// cache; at file scope the alias target is the furthest this
			// pass can attribute the chain to.
			trace.step("alias target %q in module %q (cross-module, deferred)", sym.AliasTarget, sym.ModulePath)
			return nil, &ErrUnresolved{Reason: "cross-module alias to " + sym.ModulePath}
		default:
			trace.step("identifier %q resolves via unsupported binding kind", name)
			return nil, &ErrUnresolved{Reason: "unsupported binding kind for " + name}
		}

	case "member_expression":
		// property access on an imported namespace: ns.query
		object := expr.ChildByFieldName("object")
		property := expr.ChildByFieldName("property")
		if object == nil || object.Type() != "identifier" {
			trace.step("member expression object is not a plain identifier")
			return nil, &ErrUnresolved{Reason: "dynamic property access"}
		}
		nsName := unit.Text(object)
		sym, ok := table[nsName]
		if !ok || sym.Kind != SymbolNamespaceImport {
			trace.step("%q is not a namespace import", nsName)
			return nil, &ErrUnresolved{Reason: "not a namespace import"}
		}
		trace.step("namespace property %s.%s (cross-module, deferred)", nsName, unit.Text(property))
		return nil, &ErrUnresolved{Reason: "cross-module namespace access to " + sym.ModulePath}

	case "parenthesized_expression":
		if expr.NamedChildCount() == 0 {
			return nil, &ErrUnresolved{Reason: "empty parenthesized expression"}
		}
		return resolveQueryExpr(unit, table, expr.NamedChild(0), trace, visiting)

	case "call_expression":
		// The JavaScript/TypeScript grammars parse a tagged template
		// (sql`...`) as a call_expression whose arguments field is a
		// template_string rather than an argument list.
		if args := expr.ChildByFieldName("arguments"); args != nil && args.Type() == "template_string" {
			tag := expr.ChildByFieldName("function")
			if tag == nil || unit.Text(tag) != "sql" {
				trace.step("tag %q is not sql`...`", unit.Text(tag))
				return nil, &ErrUnresolved{Reason: "tag is not sql"}
			}
			return expr, nil
		}
		trace.step("expression kind %q is not resolvable (conditional/mutation/call boundary)", expr.Type())
		return nil, &ErrUnresolved{Reason: "unresolvable expression kind " + expr.Type()}

	case "ternary_expression", "assignment_expression", "await_expression":
		trace.step("expression kind %q is not resolvable (conditional/mutation/call boundary)", expr.Type())
		return nil, &ErrUnresolved{Reason: "unresolvable expression kind " + expr.Type()}

	default:
		trace.step("unhandled expression kind %q", expr.Type())
		return nil, &ErrUnresolved{Reason: "unhandled expression kind " + expr.Type()}
	}
}

// ResolveValidatorExpression resolves a validator argument to an
// exported named function declaration or exported arrow-function
// binding at file scope. Closures - arrow functions that are not a
// top-level binding's initializer - are disallowed, and so is a
// binding that is never exported: a validator a caller outside the
// file can never see is not something the compiler can trust a second
// call site to reference consistently. An imported identifier is
// accepted by its local name: an import can only name a binding its
// source module exports, and that module's declaration is not inspected.
func ResolveValidatorExpression(unit *SourceUnit, table SymbolTable, expr *sitter.Node, trace *ResolutionTrace) (ir.ValidatorRef, error) {
	if expr == nil || expr.Type() != "identifier" {
		trace.step("validator argument is not a bare identifier")
		return "", &ErrUnresolved{Reason: "validator must be an identifier reference"}
	}

	name := unit.Text(expr)
	sym, ok := table[name]
	if !ok {
		trace.step("validator %q has no file-scope binding", name)
		return "", &ErrUnresolved{Reason: "no binding for validator " + name}
	}
	if sym.Kind == SymbolImport {
		trace.step("validator %q is imported from %s", name, sym.ModulePath)
		return ir.ValidatorRef(name), nil
	}
	if !sym.Exported {
		trace.step("validator %q resolves to a binding that is not exported", name)
		return "", &ErrUnresolved{Reason: "validator binding is not exported: " + name}
	}

	switch sym.Kind {
	case SymbolFunctionDecl:
		trace.step("validator %q resolves to an exported function declaration", name)
		return ir.ValidatorRef(name), nil
	case SymbolVariable:
		if sym.Init != nil && sym.Init.Type() == "arrow_function" {
			trace.step("validator %q resolves to an exported arrow-function binding", name)
			return ir.ValidatorRef(name), nil
		}
		trace.step("validator %q is a variable but not an arrow function", name)
		return "", &ErrUnresolved{Reason: "validator binding is not a function"}
	default:
		trace.step("validator %q resolves via an unsupported binding kind", name)
		return "", &ErrUnresolved{Reason: "unsupported validator binding kind"}
	}
}
