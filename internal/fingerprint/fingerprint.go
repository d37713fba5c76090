// Package fingerprint computes the 30-character public identity for a
// compiled query from its normalized text and parameter schema.
package fingerprint

import (
	"encoding/base64"

	"github.com/latchql/latch/internal/ir"
)

// Length is the fixed character length of a query fingerprint.
const Length = 30

// sentinelInvalid is the reserved fingerprint value meaning "this query
// was never compiled"; the tenant runtime refuses to execute it.
const sentinelInvalid = "invalid"

// SentinelInvalid returns the reserved fingerprint rejected at the
// trusted execution boundary.
func SentinelInvalid() string { return sentinelInvalid }

// IsSentinelInvalid reports whether fp is the reserved uncompiled-query
// marker.
func IsSentinelInvalid(fp string) bool { return fp == sentinelInvalid }

// Record computes the fingerprint of a query from its normalized text
// and ordered parameter schema. Two canonical records that marshal to
// identical bytes always yield identical fingerprints.
func Record(text string, params ir.ParamSchema) (string, error) {
	obj := ir.IRObject{
		"text":   ir.IRString(text),
		"params": paramsToIRArray(params),
	}

	canonical, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}

	digest := ir.HashWithDomain(ir.DomainQuery, canonical)
	return encode(digest[:])
}

// Fragment computes the fingerprint used when a query is referenced as
// a substitutable fragment rather than a top-level query. It is domain
// separated from Record so a query and a fragment built from the same
// text never collide.
func Fragment(text string, params ir.ParamSchema) (string, error) {
	obj := ir.IRObject{
		"text":   ir.IRString(text),
		"params": paramsToIRArray(params),
	}

	canonical, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", err
	}

	digest := ir.HashWithDomain(ir.DomainFragment, canonical)
	return encode(digest[:])
}

func paramsToIRArray(params ir.ParamSchema) ir.IRArray {
	arr := make(ir.IRArray, len(params))
	for i, p := range params {
		arr[i] = ir.IRObject{
			"name": ir.IRString(p.Name),
			"type": ir.IRString(string(p.Type)),
		}
	}
	return arr
}

// encode base64url-encodes the digest (no padding) and truncates to the
// fixed fingerprint length. The 30 characters kept carry 180 of the
// digest's 256 bits; truncation trades
// a theoretical collision margin for a fingerprint short enough to
// appear readably in logs and wire frames.
func encode(digest []byte) (string, error) {
	full := base64.RawURLEncoding.EncodeToString(digest)
	if len(full) < Length {
		return full, nil
	}
	return full[:Length], nil
}
