package ir

// NOTE: these are store-internal types, not part of the canonical
// record. They use auto-increment surrogate keys for FK references,
// the one place this package deviates from content-addressed identity.

// CompileRunRow records one invocation of the compiler against a source
// tree (store-layer).
type CompileRunRow struct {
	ID         int64  `json:"id"`
	SourceHash string `json:"source_hash"`
	EntryCount int    `json:"entry_count"`
}

// FragmentAllowRow links a whitelist entry, by fingerprint, to one
// fingerprint it is permitted to receive as a merged fragment
// (store-layer).
type FragmentAllowRow struct {
	ID                  int64  `json:"id"`
	ParentFingerprint   string `json:"parent_fingerprint"`
	FragmentFingerprint string `json:"fragment_fingerprint"`
}
