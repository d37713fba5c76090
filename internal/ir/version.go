package ir

// Version constants for the canonical record schema and the compiler
// that produces it.
const (
	// WhitelistSchemaVersion is the whitelist file schema version.
	WhitelistSchemaVersion = "1"

	// CompilerVersion is the whitelist compiler's own version.
	CompilerVersion = "0.1.0"
)
