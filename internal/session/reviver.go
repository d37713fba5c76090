package session

import "github.com/latchql/latch/internal/ir"

// rowEnvelope sentinel keys. A query result is not shaped as an
// ordinary JSON array of row objects - it arrives as one envelope
// object naming its columns once and its row data as parallel arrays,
// since that is far cheaper to transmit for wide result sets than
// repeating every column name per row.
const (
	envelopeColumnsKey = "__C_"
	envelopeRowsKey    = "__R_"
	envelopeAffectedKey = "__A_"
)

// RowEnvelope is a decoded query result: a fixed column order and one
// slice of values per row.
type RowEnvelope struct {
	Columns  []string
	Rows     [][]ir.IRValue
	Affected int64
}

// Iter returns the envelope's rows as column-name-keyed maps, the
// shape callers actually want to consume.
func (e *RowEnvelope) Iter() []map[string]ir.IRValue {
	out := make([]map[string]ir.IRValue, len(e.Rows))
	for i, row := range e.Rows {
		m := make(map[string]ir.IRValue, len(e.Columns))
		for j, col := range e.Columns {
			if j < len(row) {
				m[col] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// Revive walks a decoded inbound value and replaces every object
// carrying the row-envelope sentinel keys with a *RowEnvelope. Every
// other value passes through unchanged, nested objects and arrays
// included, so a reviver call is safe to apply to an entire inbound
// frame payload rather than a value already known to be a query
// result.
func Revive(v ir.IRValue) any {
	switch val := v.(type) {
	case ir.IRObject:
		if env, ok := asRowEnvelope(val); ok {
			return env
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Revive(elem)
		}
		return out
	case ir.IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Revive(elem)
		}
		return out
	default:
		return val
	}
}

func asRowEnvelope(obj ir.IRObject) (*RowEnvelope, bool) {
	columnsVal, hasColumns := obj[envelopeColumnsKey]
	rowsVal, hasRows := obj[envelopeRowsKey]
	if !hasColumns || !hasRows {
		return nil, false
	}

	columnsArr, ok := columnsVal.(ir.IRArray)
	if !ok {
		return nil, false
	}
	rowsArr, ok := rowsVal.(ir.IRArray)
	if !ok {
		return nil, false
	}

	columns := make([]string, len(columnsArr))
	for i, c := range columnsArr {
		s, ok := c.(ir.IRString)
		if !ok {
			return nil, false
		}
		columns[i] = string(s)
	}

	rows := make([][]ir.IRValue, len(rowsArr))
	for i, r := range rowsArr {
		rowArr, ok := r.(ir.IRArray)
		if !ok {
			return nil, false
		}
		rows[i] = []ir.IRValue(rowArr)
	}

	var affected int64
	if a, ok := obj[envelopeAffectedKey]; ok {
		if n, ok := a.(ir.IRInt); ok {
			affected = int64(n)
		}
	}

	return &RowEnvelope{Columns: columns, Rows: rows, Affected: affected}, true
}
