package compiler

import (
	"encoding/json"
	"sort"

	"github.com/latchql/latch/internal/ir"
)

// BuildWhitelist turns a compile result into the whitelist entries a
// session emits to the server: one entry per merged query, its
// allowed fragment fingerprints attached, classified public when it
// declares no session parameter.
func BuildWhitelist(result *CompileResult) []ir.WhitelistEntry {
	entries := make([]ir.WhitelistEntry, 0, len(result.Queries))
	for _, q := range result.Queries {
		entries = append(entries, ir.WhitelistEntry{
			Fingerprint:      q.Fingerprint,
			Text:             q.Text,
			Params:           q.Params,
			Validators:       q.Validators,
			AllowedFragments: sortedCopy(result.FragmentAllowances[q.Fingerprint]),
			Public:           q.Public(),
			Referenced:       q.Referenced,
		})
	}
	return entries
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string{}, in...)
	sort.Strings(out)
	return dedupStrings(out)
}

func dedupStrings(sorted []string) []string {
	out := sorted[:0:0]
	var last string
	for i, s := range sorted {
		if i == 0 || s != last {
			out = append(out, s)
			last = s
		}
	}
	return out
}

// whitelistFile is the on-disk JSON shape written per compiled source
// tree: a schema version tag alongside the entries themselves, so a
// session loading the file can refuse a format it predates.
type whitelistFile struct {
	SchemaVersion string               `json:"schema_version"`
	Entries       []ir.WhitelistEntry  `json:"entries"`
}

// MarshalWhitelist renders the whitelist file's canonical JSON bytes.
func MarshalWhitelist(entries []ir.WhitelistEntry) ([]byte, error) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Fingerprint < entries[j].Fingerprint })
	return json.MarshalIndent(whitelistFile{
		SchemaVersion: ir.WhitelistSchemaVersion,
		Entries:       entries,
	}, "", "  ")
}
