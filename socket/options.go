// File: socket/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package socket

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/native"
	"github.com/momentics/hioload-net/pool"
)

// Option customizes Start.
type Option func(*settings)

type settings struct {
	cfg   control.Config
	lib   native.Library
	log   *zap.Logger
	reg   prometheus.Registerer
	pools *pool.Registry
}

// WithConfig replaces the default configuration.
func WithConfig(cfg control.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithLibrary uses lib instead of the platform native library.
func WithLibrary(lib native.Library) Option {
	return func(s *settings) { s.lib = lib }
}

// WithLogger sets the runtime logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.log = l }
}

// WithRegisterer registers the runtime metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) { s.reg = reg }
}

// WithPoolRegistry selects context and buffer pools from r. Pools offered to
// r before Start take part in the selection.
func WithPoolRegistry(r *pool.Registry) Option {
	return func(s *settings) { s.pools = r }
}
