package ir

// Version constants for the rule format and engine.
const (
	// RuleFormatVersion is the version of the rule source format.
	RuleFormatVersion = "1"

	// EngineVersion is the deduce engine version.
	EngineVersion = "0.1.0"
)
