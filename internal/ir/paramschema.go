package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// digitsOnly reports whether s consists entirely of decimal digits,
// including the empty string (the regexp ^\d*$ that parameter names
// must never match).
func digitsOnly(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Validate checks a ParamSchema against the invariants a compiled query
// must satisfy: no empty or digit-only names, no duplicate names, and
// only recognized type tags. Returns all errors, not just the first.
func (s ParamSchema) Validate() []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(s))

	for i, p := range s {
		if digitsOnly(p.Name) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("params[%d].name", i),
				Message: fmt.Sprintf("parameter name %q must not be empty or purely digits", p.Name),
			})
		}
		if seen[p.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("params[%d].name", i),
				Message: fmt.Sprintf("duplicate parameter name %q", p.Name),
			})
		}
		seen[p.Name] = true

		if !ValidParamType(p.Type) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("params[%d].type", i),
				Message: fmt.Sprintf("invalid type %q for parameter %q", p.Type, p.Name),
			})
		}
	}

	return errs
}

// Validate checks a Query against the invariants required before it may
// be merged into a whitelist: a well-formed parameter schema, a
// non-empty fingerprint, and normalized text.
func (q Query) Validate() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(q.Text) == "" {
		errs = append(errs, ValidationError{Field: "text", Message: "normalized query text must not be empty"})
	}
	if q.Fingerprint == "" {
		errs = append(errs, ValidationError{Field: "fingerprint", Message: "fingerprint must not be empty"})
	}

	errs = append(errs, q.Params.Validate()...)
	return errs
}

// MarshalJSON produces JSON with a fixed field order for determinism:
// fingerprint, text, params, validators, referenced.
func (q Query) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	buf.WriteString(`"fingerprint":`)
	writeJSONField(&buf, q.Fingerprint)

	buf.WriteString(`,"text":`)
	writeJSONField(&buf, q.Text)

	buf.WriteString(`,"params":`)
	paramsBytes, err := marshalParamSchema(q.Params)
	if err != nil {
		return nil, err
	}
	buf.Write(paramsBytes)

	buf.WriteString(`,"validators":`)
	validatorsBytes, err := json.Marshal(q.Validators)
	if err != nil {
		return nil, err
	}
	buf.Write(validatorsBytes)

	buf.WriteString(`,"referenced":`)
	refBytes, err := json.Marshal(q.Referenced)
	if err != nil {
		return nil, err
	}
	buf.Write(refBytes)

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalParamSchema marshals a ParamSchema preserving slot order - it
// must never be key-sorted, since order encodes placeholder position.
func marshalParamSchema(s ParamSchema) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, p := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"name":`)
		writeJSONField(&buf, p.Name)
		buf.WriteString(`,"type":`)
		writeJSONField(&buf, string(p.Type))
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeJSONField(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
