package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/latchql/latch/internal/ir"
)

// markerPattern matches a late-bound marker embedded directly in a
// template's literal text: %{name} or %{name:type}. These are written
// by hand in source rather than interpolated with ${...}, since their
// value is supplied by the runtime (the active session, or process
// environment) rather than by the call site.
var markerPattern = regexp.MustCompile(`%\{([A-Za-z_]\w*)(?::([A-Za-z_]\w*))?\}`)

// CompiledTemplate is the result of walking one sql`` tagged template:
// canonical text with every substitution and marker replaced by a
// positional or late-bound placeholder token, plus the parameter
// schema, the validators merged in from nested fragments, and any
// non-fatal warnings raised while walking it (e.g. a nested fragment's
// parameter name colliding with one already in scope).
type CompiledTemplate struct {
	Text       string
	Params     ir.ParamSchema
	Validators []ir.ValidatorRef
	Warnings   []ValidationError
}

// CompileTemplate walks a tagged_template_expression whose tag is "sql"
// and produces its canonical text and parameter schema. Each `${expr}`
// substitution is classified as either a reference to another sql``
// template - which is inlined as a fragment, its own placeholders
// renumbered into the parent's sequence - or a new positional
// placeholder. Literal %{name} / %{name:type} markers are rewritten
// into SESSION.name / ENV.name placeholders when their type is session
// or env, and into an ordinary numbered placeholder otherwise.
func CompileTemplate(unit *SourceUnit, table SymbolTable, tagged *sitter.Node, trace *ResolutionTrace) (*CompiledTemplate, error) {
	templateString := tagged.ChildByFieldName("template")
	if templateString == nil {
		// Not every grammar version exposes a "template" field for
		// tagged_template_expression; the template_string is always its
		// last named child regardless.
		if n := tagged.NamedChildCount(); n > 0 {
			templateString = tagged.NamedChild(int(n) - 1)
		}
	}
	if templateString == nil {
		return nil, fmt.Errorf("tagged template has no template_string child")
	}

	walker := &templateWalker{unit: unit, table: table, trace: trace}
	if err := walker.walk(templateString); err != nil {
		return nil, err
	}

	return &CompiledTemplate{
		Text:       walker.text.String(),
		Params:     walker.params,
		Validators: dedupValidators(walker.validators),
		Warnings:   walker.warnings,
	}, nil
}

type templateWalker struct {
	unit   *SourceUnit
	table  SymbolTable
	trace  *ResolutionTrace
	text   strings.Builder
	params ir.ParamSchema
	// seenNames guards against assigning two different placeholder slots
	// the same generated name.
	seenNames  map[string]bool
	validators []ir.ValidatorRef
	warnings   []ValidationError
}

// walk scans a template_string's raw children in source order: literal
// text fragments and template_substitution nodes alternate, and the
// grammar does not expose the fragments as named nodes, so unnamed
// children are walked directly instead of NamedChild.
func (w *templateWalker) walk(templateString *sitter.Node) error {
	if w.seenNames == nil {
		w.seenNames = make(map[string]bool)
	}

	count := int(templateString.ChildCount())
	for i := 0; i < count; i++ {
		child := templateString.Child(i)
		switch child.Type() {
		case "`":
			continue
		case "template_substitution":
			if err := w.walkSubstitution(child); err != nil {
				return err
			}
		default:
			// Raw text fragment (named "string_fragment" in newer grammars,
			// an anonymous token in older ones) - either way its content is
			// exactly the literal bytes to emit, after marker rewriting.
			if child.StartByte() < child.EndByte() {
				w.emitLiteral(w.unit.Text(child))
			}
		}
	}
	return nil
}

// walkSubstitution handles one ${...} slot: nested sql`` templates are
// inlined as fragments, everything else becomes a new placeholder.
func (w *templateWalker) walkSubstitution(sub *sitter.Node) error {
	if sub.NamedChildCount() == 0 {
		return fmt.Errorf("empty template substitution")
	}
	expr := sub.NamedChild(0)

	resolved, err := resolveQueryExpr(w.unit, w.table, expr, w.trace, map[string]bool{})
	if err == nil && resolved != nil {
		return w.inlineFragment(resolved)
	}

	name := paramNameForExpr(w.unit, expr, w.seenNames)
	w.addParam(name, ir.ParamString)
	w.text.WriteString("$")
	w.text.WriteString(strconv.Itoa(len(w.params)))
	return nil
}

// inlineFragment splices a nested sql`` template's own compiled text
// into the parent, renumbering its placeholders to continue the
// parent's sequence and merging its validator list.
func (w *templateWalker) inlineFragment(nested *sitter.Node) error {
	compiled, err := CompileTemplate(w.unit, w.table, nested, w.trace)
	if err != nil {
		return fmt.Errorf("inlining nested fragment: %w", err)
	}

	offset := len(w.params)
	renumbered := renumberPlaceholders(compiled.Text, offset)
	w.text.WriteString(renumbered)

	for _, p := range compiled.Params {
		name := p.Name
		if w.seenNames[name] {
			renamed := renameCollision(name, w.seenNames)
			w.warnings = append(w.warnings, ValidationError{
				Field:   "params",
				Message: fmt.Sprintf("nested fragment parameter %q collided with an existing name; renamed to %q", name, renamed),
				Code:    WarnFragmentParamRenamed,
			})
			name = renamed
		}
		w.seenNames[name] = true
		w.params = append(w.params, ir.ParamEntry{Name: name, Type: p.Type})
	}
	w.validators = append(w.validators, compiled.Validators...)
	w.warnings = append(w.warnings, compiled.Warnings...)
	return nil
}

// renameCollision returns the lowest "name2", "name3", ... not already
// present in seen. name itself is known to collide - the caller checks
// that before calling.
func renameCollision(name string, seen map[string]bool) string {
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%d", name, n)
		if !seen[candidate] {
			return candidate
		}
	}
}

// emitLiteral appends a raw text fragment, rewriting every %{name} /
// %{name:type} marker it contains into a placeholder token.
func (w *templateWalker) emitLiteral(raw string) {
	last := 0
	for _, m := range markerPattern.FindAllSubmatchIndex([]byte(raw), -1) {
		w.text.WriteString(raw[last:m[0]])
		name := raw[m[2]:m[3]]
		typ := ir.ParamString
		if m[4] != -1 {
			typ = ir.ParamType(raw[m[4]:m[5]])
		}
		w.emitMarker(name, typ)
		last = m[1]
	}
	w.text.WriteString(raw[last:])
}

func (w *templateWalker) emitMarker(name string, typ ir.ParamType) {
	for w.seenNames[name] {
		name += "_"
	}
	w.addParam(name, typ)

	switch typ {
	case ir.ParamSession:
		w.text.WriteString("SESSION.")
		w.text.WriteString(name)
	case ir.ParamEnv:
		w.text.WriteString("ENV.")
		w.text.WriteString(name)
	default:
		w.text.WriteString("$")
		w.text.WriteString(strconv.Itoa(len(w.params)))
	}
}

func (w *templateWalker) addParam(name string, typ ir.ParamType) {
	w.seenNames[name] = true
	w.params = append(w.params, ir.ParamEntry{Name: name, Type: typ})
}

// paramNameForExpr derives a stable, human-readable name for a new
// placeholder: the expression's own identifier text when it is a bare
// identifier, a property access's source text with whitespace removed
// and dots replaced by underscores ("user.id" -> "user_id"), otherwise
// "arg". A name already taken gets the next free numeric suffix from 2.
func paramNameForExpr(unit *SourceUnit, expr *sitter.Node, seen map[string]bool) string {
	name := ""
	switch expr.Type() {
	case "identifier":
		name = unit.Text(expr)
	case "member_expression":
		name = strings.ReplaceAll(strings.Join(strings.Fields(unit.Text(expr)), ""), ".", "_")
	}
	if name == "" {
		name = "arg"
	}
	candidate := name
	for n := 1; seen[candidate]; n++ {
		candidate = fmt.Sprintf("%s%d", name, n+1)
	}
	return candidate
}

// renumberPlaceholders shifts every $N token in text by offset, so a
// nested fragment's placeholders continue the parent's numbering
// instead of colliding with it.
func renumberPlaceholders(text string, offset int) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(tok string) string {
		n, err := strconv.Atoi(tok[1:])
		if err != nil {
			return tok
		}
		return "$" + strconv.Itoa(n+offset)
	})
}

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

func dedupValidators(in []ir.ValidatorRef) []ir.ValidatorRef {
	seen := make(map[ir.ValidatorRef]bool, len(in))
	var out []ir.ValidatorRef
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
