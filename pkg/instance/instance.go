package instance

import "os"

// GetID returns the identifier of the running replica. Platform-provided names win
// over the container hostname.
func GetID() string {
	for _, key := range []string{"STARTER_INSTANCE_ID", "DYNO", "HOSTNAME"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
