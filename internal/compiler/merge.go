package compiler

import (
	"fmt"

	"github.com/latchql/latch/internal/fingerprint"
	"github.com/latchql/latch/internal/ir"
)

// CallSite is one resolved sql`` invocation: its compiled template plus
// the location it was found at and, if the trigger took a validators
// argument, the resolved validator set.
type CallSite struct {
	Template   *CompiledTemplate
	Location   ir.SourceRef
	Validators []ir.ValidatorRef
}

// Merger accumulates call sites by fingerprint, merging call sites that
// compile to the same canonical {text, params} record into a single
// query with a unioned reference list, and hard-erroring when two call
// sites share a fingerprint but disagree on validators.
type Merger struct {
	byFingerprint map[string]*ir.Query
	order         []string
}

// NewMerger returns an empty Merger.
func NewMerger() *Merger {
	return &Merger{byFingerprint: make(map[string]*ir.Query)}
}

// Add folds one call site into the merger. On a validator-set mismatch
// for an existing fingerprint it returns the E110 error rather than
// silently picking a winner.
func (m *Merger) Add(site CallSite) (*ValidationError, error) {
	fp, err := fingerprint.Record(site.Template.Text, site.Template.Params)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting call site at %s:%d: %w", site.Location.File, site.Location.Line, err)
	}

	validators := dedupValidators(append(append([]ir.ValidatorRef{}, site.Template.Validators...), site.Validators...))

	if existing, ok := m.byFingerprint[fp]; ok {
		if mismatch := ValidateValidatorSets(existing.Validators, validators); mismatch != nil {
			mismatch.Line = site.Location.Line
			return mismatch, nil
		}
		existing.Referenced = append(existing.Referenced, site.Location)
		return nil, nil
	}

	m.byFingerprint[fp] = &ir.Query{
		Fingerprint: fp,
		Text:        site.Template.Text,
		Params:      site.Template.Params,
		Validators:  validators,
		Referenced:  []ir.SourceRef{site.Location},
	}
	m.order = append(m.order, fp)
	return nil, nil
}

// Queries returns the merged queries in first-seen order.
func (m *Merger) Queries() []*ir.Query {
	out := make([]*ir.Query, 0, len(m.order))
	for _, fp := range m.order {
		out = append(out, m.byFingerprint[fp])
	}
	return out
}
