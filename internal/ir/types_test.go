package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryJSONFieldNaming(t *testing.T) {
	q := Query{
		Fingerprint: "abc123",
		Text:        "SELECT * FROM u WHERE id = $1",
		Params:      ParamSchema{{Name: "id", Type: ParamString}},
		Validators:  []ValidatorRef{"checkOwnership"},
		Referenced:  []SourceRef{{File: "cart.ts", Line: 12}},
	}
	data, err := json.Marshal(q)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"fingerprint"`)
	assert.Contains(t, string(data), `"params"`)
	assert.Contains(t, string(data), `"validators"`)
	assert.Contains(t, string(data), `"referenced"`)
}

func TestQueryPublicClassification(t *testing.T) {
	withSession := Query{Params: ParamSchema{{Name: "token", Type: ParamSession}}}
	withoutSession := Query{Params: ParamSchema{{Name: "id", Type: ParamString}}}

	assert.False(t, withSession.Public())
	assert.True(t, withoutSession.Public())
}

func TestParamSchemaPreservesOrder(t *testing.T) {
	s := ParamSchema{
		{Name: "zebra", Type: ParamString},
		{Name: "alpha", Type: ParamInt},
	}

	data, err := marshalParamSchema(s)
	require.NoError(t, err)

	// Order must be preserved exactly as declared, never resorted,
	// since it encodes placeholder position.
	assert.Equal(t, `[{"name":"zebra","type":"string"},{"name":"alpha","type":"int"}]`, string(data))
}

func TestParamSchemaValidateRejectsDigitOnlyNames(t *testing.T) {
	s := ParamSchema{{Name: "123", Type: ParamString}}
	errs := s.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "must not be empty or purely digits")
}

func TestParamSchemaValidateRejectsEmptyName(t *testing.T) {
	s := ParamSchema{{Name: "", Type: ParamString}}
	errs := s.Validate()
	require.Len(t, errs, 1)
}

func TestParamSchemaValidateRejectsDuplicateNames(t *testing.T) {
	s := ParamSchema{
		{Name: "id", Type: ParamString},
		{Name: "id", Type: ParamInt},
	}
	errs := s.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "duplicate")
}

func TestParamSchemaValidateRejectsUnknownType(t *testing.T) {
	s := ParamSchema{{Name: "amount", Type: "float"}}
	errs := s.Validate()
	require.Len(t, errs, 1)
}

func TestParamSchemaValidateAcceptsArrayTypes(t *testing.T) {
	s := ParamSchema{{Name: "ids", Type: "string[]"}}
	errs := s.Validate()
	assert.Empty(t, errs)
}

func TestWhitelistEntryExecutable(t *testing.T) {
	w := WhitelistEntry{
		Fingerprint:      "parent123",
		AllowedFragments: []string{"frag1", "frag2"},
	}

	assert.True(t, w.Executable([]string{"frag1"}))
	assert.True(t, w.Executable(nil))
	assert.False(t, w.Executable([]string{"frag1", "frag-unknown"}))
}

func TestQueryValidateRejectsEmptyText(t *testing.T) {
	q := Query{Fingerprint: "abc"}
	errs := q.Validate()
	require.NotEmpty(t, errs)
}

func TestIsArrayParamType(t *testing.T) {
	assert.True(t, IsArrayParamType("string[]"))
	assert.False(t, IsArrayParamType("string"))
	assert.Equal(t, ParamType("string"), ArrayElementType("string[]"))
}

func TestStoreRowsMarshaling(t *testing.T) {
	run := CompileRunRow{ID: 1, SourceHash: "abc", EntryCount: 3}
	data, err := json.Marshal(run)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_hash"`)
	assert.Contains(t, string(data), `"entry_count"`)

	allow := FragmentAllowRow{ID: 1, ParentFingerprint: "p1", FragmentFingerprint: "f1"}
	data, err = json.Marshal(allow)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parent_fingerprint"`)
	assert.Contains(t, string(data), `"fragment_fingerprint"`)
}
