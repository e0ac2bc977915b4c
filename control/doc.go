// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, metrics and debug introspection for hioload-net.
//
// Provides:
//   - Config with defaults and TOML file loading
//   - Prometheus metrics for the completion engine and scratch buffers
//   - Debug probes exporting runtime state on demand
package control
