package instance

import (
	"os"

	"github.com/praktis/pricecompare/pkg/env"
)

// GetID returns the process instance identifier: WORKER_ID, then the Heroku
// DYNO name, then the hostname.
func GetID() string {
	if id := env.Get("WORKER_ID", ""); id != "" {
		return id
	}
	if id := env.Get("DYNO", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
