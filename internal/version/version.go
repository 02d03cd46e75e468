// Package version holds build-time metadata injected via ldflags.
package version

import "fmt"

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// String renders the one-line version banner `kagan version` prints.
func String() string {
	return fmt.Sprintf("kagan %s (built %s)", Version, BuildTime)
}
