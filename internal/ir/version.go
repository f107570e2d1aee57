package ir

// Version constants for the IR schema and the store runtime.
const (
	// IRVersion is the IR schema version recorded in journal entries.
	IRVersion = "1"

	// StoreVersion is the relay store version.
	StoreVersion = "0.1.0"
)
