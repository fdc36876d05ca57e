// Package constant defines provider name constants used throughout the
// grounded-search MCP server. These constants identify the two supported
// upstream backend personalities, ensuring consistent naming across the
// application.
package constant

const (
	// Gemini represents the Gemini CLI provider identifier.
	Gemini = "gemini"

	// Antigravity represents the Antigravity provider identifier.
	Antigravity = "antigravity"
)

// Providers lists all supported provider identifiers in priority order.
var Providers = []string{Antigravity, Gemini}

// IsProvider reports whether name is a known provider identifier.
func IsProvider(name string) bool {
	return name == Gemini || name == Antigravity
}
