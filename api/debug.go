// Package api
// Author: momentics
//
// Live introspection of a running runtime.

package api

// Debug exposes named state probes.
type Debug interface {
	// DumpState evaluates every probe.
	DumpState() map[string]any

	// RegisterProbe adds or replaces a probe.
	RegisterProbe(name string, fn func() any)
}
