package backend

import "strings"

// Available returns a comma-separated list of available hosts.
func Available() string {
	return strings.Join([]string{CPU, None}, ",")
}
