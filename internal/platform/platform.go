// Package platform answers capability questions used to select scenarios.
//
// Some scenarios assume argument quoting and output capture semantics that
// only hold on unix-like systems. Callers branch on a capability instead of
// special-casing operating systems inline.
package platform

import (
	"fmt"
	"runtime"
	"sort"
	"testing"
)

// Capability names a behavior a scenario may depend on.
type Capability string

const (
	// ExactArgumentQuoting means argv reaches the child byte-for-byte.
	ExactArgumentQuoting Capability = "exact_argument_quoting"

	// MergedOutputCapture means stdout and stderr can share one pipe and keep
	// their emission order.
	MergedOutputCapture Capability = "merged_output_capture"

	// PseudoTerminal means a child can be attached to a pty.
	PseudoTerminal Capability = "pseudo_terminal"
)

// All lists every known capability in a stable order.
var All = []Capability{ExactArgumentQuoting, MergedOutputCapture, PseudoTerminal}

// Platform identifies an OS/architecture pair.
type Platform struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// Current returns the platform the process is running on.
func Current() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// String returns "os/arch".
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Supports reports whether the platform provides the capability.
func (p Platform) Supports(c Capability) bool {
	switch c {
	case ExactArgumentQuoting, MergedOutputCapture, PseudoTerminal:
		return p.OS != "windows" && p.OS != "plan9" && p.OS != "js" && p.OS != "wasip1"
	default:
		return false
	}
}

// Capabilities returns the supported capabilities, sorted.
func (p Platform) Capabilities() []Capability {
	var caps []Capability
	for _, c := range All {
		if p.Supports(c) {
			caps = append(caps, c)
		}
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Missing returns the subset of caps the platform lacks.
func (p Platform) Missing(caps ...Capability) []Capability {
	var missing []Capability
	for _, c := range caps {
		if !p.Supports(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	for _, c := range All {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Require skips the test when the current platform lacks any of caps.
func Require(tb testing.TB, caps ...Capability) {
	tb.Helper()
	if missing := Current().Missing(caps...); len(missing) > 0 {
		tb.Skipf("platform %s lacks %v", Current(), missing)
	}
}
