// Package dynamicsql implements the server-only, unescaped query
// fragment constructor and its runtime merge operation. A fragment
// built by New carries no fingerprint - it was never seen by the
// whitelist compiler - and a session must refuse to send one. A
// fragment built by FromCompiled carries the fingerprint the whitelist
// compiler already assigned it, and Merge treats it as safe to compose
// without flattening.
//
// Every value placed into a Fragment is a placeholder parameter, never
// interpolated text: Merge only ever concatenates fragment bodies and
// renumbers their placeholder tokens, so nothing a caller passes
// through New or Merge's params ever lands inside the SQL text itself.
package dynamicsql

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/latchql/latch/internal/ir"
)

// Fragment is a query body that may be merged with others at runtime.
// Fingerprint is empty for a fragment built by New - it was never
// registered with the whitelist, so a session transport must reject
// any request carrying it raw. A fragment built by FromCompiled
// carries the fingerprint the whitelist compiler assigned its source
// template.
type Fragment struct {
	Text        string
	Params      ir.ParamSchema
	Fingerprint string
	// Fragments lists, for a compiled fragment produced by Merge, the
	// fingerprints of every fragment folded into it. It is empty for a
	// fragment that has never been merged.
	Fragments []string
}

// New constructs an unescaped fragment from literal text. It performs
// no parsing and no placeholder discovery - the caller is responsible
// for ensuring text's $N placeholders agree with params.
func New(text string, params ir.ParamSchema) Fragment {
	return Fragment{Text: text, Params: params}
}

// FromCompiled wraps a whitelist-compiled query or fragment as a
// Fragment carrying its real fingerprint, so Merge can route it onto
// the fingerprint-preserving path instead of treating it as dynamic.
func FromCompiled(fingerprint, text string, params ir.ParamSchema) Fragment {
	return Fragment{Text: text, Params: params, Fingerprint: fingerprint}
}

// IsDynamic reports whether f was never seen by the whitelist compiler.
// A fragment built by New is always dynamic; one built by FromCompiled
// never is.
func (f Fragment) IsDynamic() bool { return f.Fingerprint == "" }

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// Merge composes parent with the given fragments. When parent and
// every fragment already carry a fingerprint - none of them is
// dynamic - Merge takes the compile-time path: it trusts the
// compiler's own static fragment-allowance check (WhitelistEntry.
// Executable) rather than re-deriving one, and returns parent with the
// fragments' fingerprints recorded rather than their text flattened
// in. The moment any participant is dynamic, the whole composition
// becomes dynamic: every participant's text is concatenated with its
// placeholders renumbered to continue the previous fragment's
// sequence, and the result carries no fingerprint.
//
// A parameter name a fragment declares that collides with one already
// in scope is renamed by appending the lowest integer >= 2 that makes
// it unique, and the rename is reported through warn when warn is
// non-nil.
func Merge(parent Fragment, warn func(string), fragments ...Fragment) (Fragment, error) {
	if !anyDynamic(parent, fragments) {
		return mergeCompiled(parent, fragments), nil
	}
	return mergeDynamic(parent, warn, fragments)
}

func anyDynamic(parent Fragment, fragments []Fragment) bool {
	if parent.IsDynamic() {
		return true
	}
	for _, f := range fragments {
		if f.IsDynamic() {
			return true
		}
	}
	return false
}

// mergeCompiled is the fingerprint-preserving path: no text is
// flattened, since the server executes parent by its own fingerprint
// and the participating fragments by theirs, with the compiler's
// WhitelistEntry.Executable check standing in for a runtime merge.
func mergeCompiled(parent Fragment, fragments []Fragment) Fragment {
	result := parent
	result.Fragments = append([]string{}, parent.Fragments...)
	for _, f := range fragments {
		result.Fragments = append(result.Fragments, f.Fingerprint)
	}
	return result
}

func mergeDynamic(parent Fragment, warn func(string), fragments []Fragment) (Fragment, error) {
	text := parent.Text
	params := append(ir.ParamSchema{}, parent.Params...)
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		seen[p.Name] = true
	}

	for i, frag := range fragments {
		offset := len(params)
		renumbered, err := renumber(frag.Text, offset)
		if err != nil {
			return Fragment{}, fmt.Errorf("merging fragment %d: %w", i, err)
		}
		text += renumbered

		for _, p := range frag.Params {
			name := renameCollision(p.Name, seen, warn)
			seen[name] = true
			params = append(params, ir.ParamEntry{Name: name, Type: p.Type})
		}
	}

	return Fragment{Text: text, Params: params}, nil
}

// renameCollision returns name unchanged when it is not already in
// seen, or the lowest "name2", "name3", ... that is, reporting the
// rename through warn when warn is non-nil.
func renameCollision(name string, seen map[string]bool, warn func(string)) string {
	if !seen[name] {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%d", name, n)
		if !seen[candidate] {
			if warn != nil {
				warn(fmt.Sprintf("merged fragment parameter %q collided with an existing name; renamed to %q", name, candidate))
			}
			return candidate
		}
	}
}

func renumber(text string, offset int) (string, error) {
	var outerErr error
	result := placeholderPattern.ReplaceAllStringFunc(text, func(tok string) string {
		n, err := strconv.Atoi(tok[1:])
		if err != nil {
			outerErr = err
			return tok
		}
		return "$" + strconv.Itoa(n+offset)
	})
	if outerErr != nil {
		return "", outerErr
	}
	return result, nil
}
