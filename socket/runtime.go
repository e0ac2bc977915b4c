// File: socket/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime is the explicit startup product: native library, constant and
// endpoint registry, completion engine, context and buffer pools. Every
// socket belongs to exactly one runtime.

package socket

import (
	"fmt"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/endpoint"
	"github.com/momentics/hioload-net/engine"
	"github.com/momentics/hioload-net/internal/concurrency"
	"github.com/momentics/hioload-net/native"
	"github.com/momentics/hioload-net/pool"
)

var _ api.Debug = (*Runtime)(nil)

// Runtime owns the shared state of a set of sockets.
type Runtime struct {
	cfg   control.Config
	lib   native.Library
	arena *native.Arena
	log   *zap.Logger

	reg     prometheus.Registerer
	metrics *control.Metrics
	probes  *control.DebugProbes

	endpoints *endpoint.Registry
	engine    *engine.Engine
	pools     *pool.Registry
	buffers   *buffers

	connects  api.Pool[*ConnectContext]
	accepts   api.Pool[*AcceptContext]
	shutdowns api.Pool[*ShutdownContext]
	clients   api.Pool[*ClientContext]
	nodes     api.Pool[*NodeContext]

	undoMaxProcs func()
	closed       atomic.Bool
}

// Start brings a runtime up: it adjusts GOMAXPROCS when configured, starts
// the native library, resolves constants, starts the completion engine and
// selects the pools. A failed step undoes the earlier ones.
func Start(opts ...Option) (*Runtime, error) {
	s := settings{cfg: control.DefaultConfig()}
	for _, opt := range opts {
		opt(&s)
	}
	cfg := s.cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := s.log
	if log == nil {
		log = Logger()
	}

	rt := &Runtime{cfg: cfg, log: log, reg: s.reg, pools: s.pools}
	var undo []func()
	fail := func(err error) (*Runtime, error) {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		return nil, err
	}

	if cfg.AdjustMaxProcs {
		restore, err := concurrency.AdjustMaxProcs(log)
		if err != nil {
			return nil, fmt.Errorf("socket: adjust GOMAXPROCS: %w", err)
		}
		rt.undoMaxProcs = restore
		undo = append(undo, restore)
	}

	lib := s.lib
	if lib == nil {
		var err error
		if lib, err = native.Default(); err != nil {
			return fail(err)
		}
	}
	rt.lib, rt.arena = lib, lib.Arena()
	if code := lib.Startup(); code != native.OK {
		return fail(fmt.Errorf("socket: startup: %w", native.Error(lib, code)))
	}
	undo = append(undo, func() { lib.Cleanup() })

	endpoints, err := endpoint.NewRegistry(lib, log)
	if err != nil {
		return fail(err)
	}
	rt.endpoints = endpoints
	undo = append(undo, func() { endpoints.Close() })

	metrics, err := control.NewMetrics(cfg.MetricsNamespace, s.reg)
	if err != nil {
		return fail(fmt.Errorf("socket: register metrics: %w", err))
	}
	rt.metrics = metrics
	if s.reg != nil {
		undo = append(undo, func() { metrics.Unregister(s.reg) })
	}

	rt.engine = engine.New(lib, engine.Options{
		Workers:               cfg.Workers,
		MaxCompletionsPerWait: cfg.MaxCompletionsPerWait,
		PinWorkers:            cfg.PinWorkers,
		Logger:                log,
		Metrics:               metrics,
	})
	if err := rt.engine.Start(); err != nil {
		return fail(err)
	}

	rt.selectPools()
	rt.registerProbes()

	log.Info("socket runtime started",
		zap.Int("workers", rt.engine.Workers()),
		zap.Int("max_completions_per_wait", cfg.MaxCompletionsPerWait),
		zap.Int("min_buffer_bucket", cfg.MinBufferBucket),
		zap.Bool("pin_workers", cfg.PinWorkers),
		zap.Bool("adjust_maxprocs", cfg.AdjustMaxProcs))
	return rt, nil
}

func (rt *Runtime) selectPools() {
	if rt.pools == nil {
		rt.pools = pool.NewRegistry()
	}
	capacity := rt.cfg.PoolCapacity
	rt.connects = pool.GetOrAdd(rt.pools, func() api.Pool[*ConnectContext] {
		return pool.NewConcurrent[*ConnectContext](capacity)
	})
	rt.accepts = pool.GetOrAdd(rt.pools, func() api.Pool[*AcceptContext] {
		return pool.NewConcurrent[*AcceptContext](capacity)
	})
	rt.shutdowns = pool.GetOrAdd(rt.pools, func() api.Pool[*ShutdownContext] {
		return pool.NewConcurrent[*ShutdownContext](capacity)
	})
	rt.clients = pool.GetOrAdd(rt.pools, func() api.Pool[*ClientContext] {
		return pool.NewConcurrent[*ClientContext](capacity)
	})
	rt.nodes = pool.GetOrAdd(rt.pools, func() api.Pool[*NodeContext] {
		return pool.NewConcurrent[*NodeContext](capacity)
	})
	scratchPool := pool.GetOrAddKeyed(rt.pools, func() api.KeyedPool[int, *scratch] {
		return pool.NewKeyed[int, *scratch](capacity)
	})
	rt.buffers = newBuffers(rt.arena, scratchPool, rt.cfg.MinBufferBucket, rt.metrics)
}

type statsPool interface {
	Stats() pool.Stats
}

func (rt *Runtime) registerProbes() {
	rt.probes = control.NewDebugProbes()
	control.RegisterPlatformProbes(rt.probes)
	rt.probes.RegisterProbe("engine", func() any { return rt.engine.Stats() })
	rt.probes.RegisterProbe("arena.live", func() any { return rt.arena.Live() })
	rt.probes.RegisterProbe("arena.bytes", func() any { return rt.arena.InUse() })
	rt.probes.RegisterProbe("config", func() any { return rt.cfg })
	for name, p := range map[string]any{
		"pool.connect":  rt.connects,
		"pool.accept":   rt.accepts,
		"pool.shutdown": rt.shutdowns,
		"pool.client":   rt.clients,
		"pool.node":     rt.nodes,
	} {
		if sp, ok := p.(statsPool); ok {
			rt.probes.RegisterProbe(name, func() any { return sp.Stats() })
		}
	}
}

// Config returns the normalized configuration the runtime runs with.
func (rt *Runtime) Config() control.Config { return rt.cfg }

// Library returns the native library.
func (rt *Runtime) Library() native.Library { return rt.lib }

// Endpoints returns the constant, configuration and endpoint registry.
func (rt *Runtime) Endpoints() *endpoint.Registry { return rt.endpoints }

// Probes returns the debug probe registry.
func (rt *Runtime) Probes() *control.DebugProbes { return rt.probes }

// DumpState evaluates every debug probe.
func (rt *Runtime) DumpState() map[string]any { return rt.probes.DumpState() }

// RegisterProbe adds an application probe to DumpState.
func (rt *Runtime) RegisterProbe(name string, fn func() any) { rt.probes.RegisterProbe(name, fn) }

type drainer[T any] interface {
	Drain(func(T))
}

func drain[C any](p api.Pool[C], base func(C) *opContext) int {
	d, ok := p.(drainer[C])
	if !ok {
		return 0
	}
	n := 0
	d.Drain(func(c C) {
		base(c).free()
		n++
	})
	return n
}

// Close stops the engine, frees pooled native memory and configurations and
// cleans the native library up. Sockets must be closed before. Close is
// idempotent; failures of every step are combined.
func (rt *Runtime) Close() error {
	if !rt.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := rt.engine.Close()

	freed := drain(rt.connects, func(c *ConnectContext) *opContext { return &c.opContext }) +
		drain(rt.accepts, func(c *AcceptContext) *opContext { return &c.opContext }) +
		drain(rt.shutdowns, func(c *ShutdownContext) *opContext { return &c.opContext }) +
		drain(rt.clients, func(c *ClientContext) *opContext { return &c.opContext }) +
		drain(rt.nodes, func(c *NodeContext) *opContext { return &c.opContext })
	buffers := rt.buffers.drain()

	err = multierr.Append(err, rt.endpoints.Close())
	if code := rt.lib.Cleanup(); code != native.OK {
		err = multierr.Append(err, fmt.Errorf("socket: cleanup: %w", native.Error(rt.lib, code)))
	}
	if rt.reg != nil {
		rt.metrics.Unregister(rt.reg)
	}
	if rt.undoMaxProcs != nil {
		rt.undoMaxProcs()
	}
	rt.log.Info("socket runtime stopped",
		zap.Int("contexts_freed", freed),
		zap.Int("buffers_freed", buffers),
		zap.Error(err))
	return err
}
