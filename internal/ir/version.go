package ir

// Version constants for the rule IR and the engine.
const (
	// IRVersion is the rule IR schema version.
	IRVersion = "1"

	// EngineVersion is the syncframe engine version.
	EngineVersion = "0.2.0"
)
