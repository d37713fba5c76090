package compiler

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/latchql/latch/internal/fingerprint"
	"github.com/latchql/latch/internal/ir"
)

// TriggerNames are the call expressions the compiler treats as query
// trigger predicates: any call whose callee resolves to one of these
// names is walked for a query argument and an optional validators
// argument.
var TriggerNames = map[string]bool{
	"executeQuery":  true,
	"paginateQuery": true,
	"beginTx":       true,
}

// CompileResult is everything the whitelist compiler produced for one
// source tree: the merged queries, the fragment fingerprints each
// query is statically permitted to merge with at runtime, every
// non-fatal validation problem found along the way, and every warning
// (a problem that never blocks the build, e.g. a fragment parameter
// rename).
type CompileResult struct {
	Queries            []*ir.Query
	FragmentAllowances map[string][]string
	Errors             []ValidationError
	Warnings           []ValidationError
}

// CompileSourceTree parses every given file, walks it for trigger
// predicates, resolves each one's query and validator arguments, and
// merges equivalent call sites into a single Query per fingerprint.
func CompileSourceTree(ctx context.Context, front *FrontEnd, files map[string][]byte) (*CompileResult, error) {
	merger := NewMerger()
	result := &CompileResult{FragmentAllowances: make(map[string][]string)}

	for path, content := range files {
		if IsDeclarationOnly(path) {
			continue
		}

		unit, err := front.Parse(ctx, path, content)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}

		table := BuildSymbolTable(unit)
		sites, errs := collectCallSites(unit, table)
		result.Errors = append(result.Errors, errs...)

		for _, site := range sites {
			result.Warnings = append(result.Warnings, site.Template.Warnings...)
			mismatch, err := merger.Add(site)
			if err != nil {
				unit.Close()
				return nil, err
			}
			if mismatch != nil {
				result.Errors = append(result.Errors, *mismatch)
			}
		}

		allowances, warnings, errs := collectFragmentAllowances(unit, table)
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warnings...)
		for parentFP, fragmentFPs := range allowances {
			result.FragmentAllowances[parentFP] = append(result.FragmentAllowances[parentFP], fragmentFPs...)
		}

		unit.Close()
	}

	result.Queries = merger.Queries()
	return result, nil
}

// collectFragmentAllowances walks a unit for sql.merge(parent, ...fragments)
// call sites and records, for each parent's fingerprint, the fingerprint
// of every fragment it is statically permitted to merge with. Dynamic
// SQL composition happens at runtime, but the set of fragments a given
// query may compose with is fixed at compile time.
func collectFragmentAllowances(unit *SourceUnit, table SymbolTable) (map[string][]string, []ValidationError, []ValidationError) {
	allowances := make(map[string][]string)
	var errs, warnings []ValidationError

	walkNamed(unit.Root(), func(n *sitter.Node) bool {
		if n.Type() != "call_expression" || !isSQLMergeCall(unit, n) {
			return true
		}

		args := n.ChildByFieldName("arguments")
		if args == nil || args.NamedChildCount() < 2 {
			errs = append(errs, ValidationError{
				Field:   "sql.merge",
				Message: "sql.merge requires a parent query and at least one fragment",
				Code:    ErrNoTriggerResolved,
				Line:    unit.Line(n),
			})
			return true
		}

		trace := &ResolutionTrace{}
		parentFP, parentWarnings, err := fingerprintArg(unit, table, args.NamedChild(0), trace, false)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   "sql.merge",
				Message: fmt.Sprintf("resolving parent query: %v", err),
				Code:    ErrNoTriggerResolved,
				Line:    unit.Line(n),
			})
			return true
		}
		warnings = append(warnings, parentWarnings...)

		for i := 1; i < int(args.NamedChildCount()); i++ {
			fragFP, fragWarnings, err := fingerprintArg(unit, table, args.NamedChild(i), trace, true)
			if err != nil {
				errs = append(errs, ValidationError{
					Field:   "sql.merge",
					Message: fmt.Sprintf("resolving fragment %d: %v", i, err),
					Code:    ErrNoTriggerResolved,
					Line:    unit.Line(n),
				})
				continue
			}
			warnings = append(warnings, fragWarnings...)
			allowances[parentFP] = append(allowances[parentFP], fragFP)
		}
		return true
	})

	return allowances, warnings, errs
}

// fingerprintArg resolves an sql.merge argument to its query template
// and fingerprints it in the requested domain - the fragment domain
// for every argument after the first, the query domain for the parent.
func fingerprintArg(unit *SourceUnit, table SymbolTable, expr *sitter.Node, trace *ResolutionTrace, asFragment bool) (string, []ValidationError, error) {
	resolved, err := ResolveQueryExpression(unit, table, expr, trace)
	if err != nil {
		return "", nil, err
	}
	compiled, err := CompileTemplate(unit, table, resolved, trace)
	if err != nil {
		return "", nil, err
	}
	if asFragment {
		fp, err := fingerprint.Fragment(compiled.Text, compiled.Params)
		return fp, compiled.Warnings, err
	}
	fp, err := fingerprint.Record(compiled.Text, compiled.Params)
	return fp, compiled.Warnings, err
}

func isSQLMergeCall(unit *SourceUnit, call *sitter.Node) bool {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return false
	}
	object := fn.ChildByFieldName("object")
	property := fn.ChildByFieldName("property")
	return object != nil && property != nil && unit.Text(object) == "sql" && unit.Text(property) == "merge"
}

// collectCallSites walks one source unit's entire tree for trigger
// predicate calls and resolves each one's arguments. Resolution
// failures are reported as validation errors rather than aborting the
// whole compile - one bad call site should not block every other
// query in the tree from making it into the whitelist.
func collectCallSites(unit *SourceUnit, table SymbolTable) ([]CallSite, []ValidationError) {
	var sites []CallSite
	var errs []ValidationError

	walkNamed(unit.Root(), func(n *sitter.Node) bool {
		if n.Type() != "call_expression" {
			return true
		}
		name := triggerName(unit, n)
		if name == "" {
			return true
		}

		site, err := resolveCallSite(unit, table, n)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   name,
				Message: err.Error(),
				Code:    ErrNoTriggerResolved,
				Line:    unit.Line(n),
			})
			return true
		}
		sites = append(sites, *site)
		return true
	})

	return sites, errs
}

// triggerName returns the trigger predicate name a call expression
// invokes - either a bare identifier call or a member call whose
// property matches - or "" if the callee isn't a recognized trigger.
func triggerName(unit *SourceUnit, call *sitter.Node) string {
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return ""
	}
	switch fn.Type() {
	case "identifier":
		name := unit.Text(fn)
		if TriggerNames[name] {
			return name
		}
	case "member_expression":
		if prop := fn.ChildByFieldName("property"); prop != nil {
			name := unit.Text(prop)
			if TriggerNames[name] {
				return name
			}
		}
	}
	return ""
}

// resolveCallSite resolves a trigger call's first argument to its
// query template and every later argument to a validator reference.
func resolveCallSite(unit *SourceUnit, table SymbolTable, call *sitter.Node) (*CallSite, error) {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil, fmt.Errorf("trigger call has no arguments")
	}

	trace := &ResolutionTrace{}
	queryExpr := args.NamedChild(0)
	resolved, err := ResolveQueryExpression(unit, table, queryExpr, trace)
	if err != nil {
		return nil, fmt.Errorf("resolving query argument: %w (trace: %v)", err, trace.Lines())
	}

	compiled, err := CompileTemplate(unit, table, resolved, trace)
	if err != nil {
		return nil, fmt.Errorf("compiling query template: %w", err)
	}

	var validators []ir.ValidatorRef
	for i := 1; i < int(args.NamedChildCount()); i++ {
		ref, err := ResolveValidatorExpression(unit, table, args.NamedChild(i), trace)
		if err != nil {
			return nil, fmt.Errorf("resolving validator argument %d: %w", i, err)
		}
		validators = append(validators, ref)
	}

	return &CallSite{
		Template:   compiled,
		Location:   ir.SourceRef{File: unit.Path, Line: unit.Line(call)},
		Validators: validators,
	}, nil
}
