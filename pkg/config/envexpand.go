package config

import "os"

// ExpandEnv expands environment variables in YAML content using Go's standard
// library. Supports both ${VAR} and $VAR syntax (standard shell-style).
//
// Examples:
//   - ${LLM_API_KEY} → value of LLM_API_KEY environment variable
//   - $STATE_STORE_URL → value of STATE_STORE_URL environment variable
//
// Missing variables expand to empty string. Validation should catch required
// fields that are empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
