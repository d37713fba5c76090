// Package validate implements the validation engine run before a
// compiled query is permitted to execute: every declared parameter
// must be present, and every validator attached to the query must
// approve the call before its SQL text ever reaches a connection.
package validate

import (
	"context"
	"fmt"
	"sync"

	"github.com/latchql/latch/internal/ir"
)

// FieldError is one validator's objection to a specific parameter, or
// to the call as a whole when Field is empty.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors is the accumulated result of running every validator attached
// to a query. It is nil, not empty, when validation succeeded, so a
// caller can treat a nil Errors value as authorization to proceed.
type Errors []FieldError

func (es Errors) Error() string {
	if len(es) == 0 {
		return "no validation errors"
	}
	msg := es[0].Error()
	if len(es) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(es)-1)
	}
	return msg
}

// Validator approves or rejects one call to a query. It receives the
// call's resolved parameters and the active session, and returns a
// FieldError when it objects, or nil when it has no objection. A
// Validator runs concurrently with every other validator attached to
// the same query; it must not mutate shared state.
type Validator func(ctx context.Context, params ir.IRObject, session ir.IRObject) *FieldError

// Run checks that every parameter a query's schema declares is present
// in params, then invokes every validator concurrently and accumulates
// their verdicts in declaration order. A named field is first-wins:
// once a field has an error recorded against it, later validators'
// objections to that same field are discarded, since the first
// validator in declaration order is taken to be authoritative for its
// field. A non-field (Field == "") objection to the call as a whole is
// never deduplicated - every validator's non-field objection is kept,
// in declaration order.
func Run(ctx context.Context, schema ir.ParamSchema, params ir.IRObject, session ir.IRObject, validators []Validator) Errors {
	var errs Errors

	for _, p := range schema {
		if _, ok := params[p.Name]; !ok {
			errs = append(errs, FieldError{Field: p.Name, Message: "parameter is undefined"})
		}
	}
	if len(errs) > 0 {
		return errs
	}

	results := make([]*FieldError, len(validators))
	var wg sync.WaitGroup
	for i, v := range validators {
		wg.Add(1)
		go func(i int, v Validator) {
			defer wg.Done()
			results[i] = v(ctx, params, session)
		}(i, v)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.Field != "" {
			if seen[r.Field] {
				continue
			}
			seen[r.Field] = true
		}
		errs = append(errs, *r)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
