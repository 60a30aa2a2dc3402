package env

import (
	"os"
	"strings"
)

const prefix = "STARTER_"

// Get returns the value of the prefixed environment variable, then the bare one,
// or the fallback when neither is set.
func Get(key, fallback string) string {
	if !strings.HasPrefix(key, prefix) {
		if val := strings.TrimSpace(os.Getenv(prefix + key)); val != "" {
			return val
		}
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
