// Package version holds build-time version information injected via ldflags.
package version

import "fmt"

// These variables are set at build time via -ldflags, e.g.
// -X github.com/monero-ecosystem/monerohealth/internal/version.Version=v1.2.0
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String describes the build for the version command.
func String() string {
	return fmt.Sprintf("monerohealth %s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent is sent with outgoing HTTP requests.
func UserAgent() string {
	return "monerohealth/" + Version
}
