package ir

// ParamType is the type tag attached to a query parameter slot.
// There is no float tag: numeric parameters are either "int" or the
// opaque wire-level "number" tag used for values the compiler does not
// narrow further.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamInt     ParamType = "int"
	ParamNumber  ParamType = "number"
	ParamBool    ParamType = "boolean"
	ParamSession ParamType = "session"
	ParamEnv     ParamType = "env"
)

// arrayTypeSuffix marks an array-of-T parameter type, e.g. "string[]".
const arrayTypeSuffix = "[]"

// ValidBaseParamTypes are the type tags a parameter may carry before an
// optional array suffix is applied.
var ValidBaseParamTypes = map[ParamType]bool{
	ParamString:  true,
	ParamInt:     true,
	ParamNumber:  true,
	ParamBool:    true,
	ParamSession: true,
	ParamEnv:     true,
}

// IsArrayParamType reports whether t denotes an array of some base type.
func IsArrayParamType(t ParamType) bool {
	s := string(t)
	return len(s) > len(arrayTypeSuffix) && s[len(s)-len(arrayTypeSuffix):] == arrayTypeSuffix
}

// ArrayElementType strips the array suffix, returning the element type.
func ArrayElementType(t ParamType) ParamType {
	if !IsArrayParamType(t) {
		return t
	}
	return ParamType(string(t)[:len(t)-len(arrayTypeSuffix)])
}

// ValidParamType reports whether t is a recognized parameter type tag,
// including its array form.
func ValidParamType(t ParamType) bool {
	if IsArrayParamType(t) {
		return ValidBaseParamTypes[ArrayElementType(t)]
	}
	return ValidBaseParamTypes[t]
}

// ValidatorRef is a stable symbol name identifying an exported validator
// function. Validators are referenced by name only; the compiler never
// inlines their bodies into a query record.
type ValidatorRef string

// SourceRef is a provenance pointer to the call site that produced or
// referenced a query.
type SourceRef struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// ParamEntry is one slot in a parameter schema: a name paired with its
// type tag. Order matters - it reflects placeholder numbering - so
// ParamSchema is a slice, never a map.
type ParamEntry struct {
	Name string    `json:"name"`
	Type ParamType `json:"type"`
}

// ParamSchema is an ordered parameter name -> type mapping. Order is
// significant: it mirrors the $1, $2, ... positional placeholder
// numbering in the owning query's normalized text.
type ParamSchema []ParamEntry

// IndexOf returns the slot index of name, or -1 if absent.
func (s ParamSchema) IndexOf(name string) int {
	for i, p := range s {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the parameter names in schema order.
func (s ParamSchema) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// HasSessionParam reports whether any parameter carries the session type
// tag. A query with a session parameter cannot be classified public.
func (s ParamSchema) HasSessionParam() bool {
	for _, p := range s {
		if p.Type == ParamSession {
			return true
		}
	}
	return false
}

// Query is the canonical record produced by the whitelist compiler for a
// single sql`...` template: normalized text, ordered parameter schema,
// and the validators that must run before it may execute.
type Query struct {
	Fingerprint string       `json:"fingerprint"`
	Text        string       `json:"text"`
	Params      ParamSchema  `json:"params"`
	Validators  []ValidatorRef `json:"validators"`
	Referenced  []SourceRef  `json:"referenced"`
}

// Public reports whether the query has no session-typed parameter, and
// so may be admitted by the server outside an authenticated context.
func (q Query) Public() bool {
	return !q.Params.HasSessionParam()
}

// WhitelistEntry is the persisted, published form of a Query: everything
// needed by the server to decide whether a fingerprint may execute, and
// with which fragments it may be combined.
type WhitelistEntry struct {
	Fingerprint      string        `json:"fingerprint"`
	Text             string        `json:"text"`
	Params           ParamSchema   `json:"params"`
	Validators       []ValidatorRef `json:"validators"`
	AllowedFragments []string      `json:"allowed_fragments"`
	Public           bool          `json:"public"`
	Referenced       []SourceRef   `json:"referenced"`
}

// Executable reports whether fragmentFingerprints is a subset of the
// entry's declared allowed-fragment set - the rule that makes a
// parent-with-fragments combination executable.
func (w WhitelistEntry) Executable(fragmentFingerprints []string) bool {
	allowed := make(map[string]bool, len(w.AllowedFragments))
	for _, f := range w.AllowedFragments {
		allowed[f] = true
	}
	for _, f := range fragmentFingerprints {
		if !allowed[f] {
			return false
		}
	}
	return true
}
