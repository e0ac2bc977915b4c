// File: engine/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion engine. One worker per core blocks on the shared completion
// handle; every harvested batch is handed to its own goroutine so the worker
// can go back to waiting at once.

package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/control"
	"github.com/momentics/hioload-net/internal/concurrency"
	"github.com/momentics/hioload-net/native"
	"github.com/momentics/hioload-net/pool"
)

// waitBackoff throttles a worker whose wait keeps failing.
const waitBackoff = time.Millisecond

// ErrStarted is returned by a second Start.
var ErrStarted = errors.New("engine: already started")

// Completion is the managed side of one submitted operation context.
type Completion interface {
	// Claim reports whether the caller won the right to handle this use of
	// the context. Exactly one Claim per use returns true.
	Claim() bool
	// Complete reads the native result and runs the caller's callbacks.
	Complete()
	// Done drops the delivery reference taken at submission.
	Done()
}

// Options configures an Engine.
type Options struct {
	// Workers is the number of waiting goroutines; zero means one per core.
	Workers int
	// MaxCompletionsPerWait caps the contexts harvested by one wait.
	MaxCompletionsPerWait int
	// PinWorkers binds each worker's thread to one allowed CPU.
	PinWorkers bool
	Logger     *zap.Logger
	Metrics    *control.Metrics
}

type batch struct {
	entries  uintptr
	contexts []uintptr
}

// Engine drives the completion handle of one runtime.
type Engine struct {
	lib     native.Library
	log     *zap.Logger
	metrics *control.Metrics
	workers int
	perWait int
	pin     bool

	handle   uintptr
	started  atomic.Bool
	closing  atomic.Bool
	contexts sync.Map // uintptr -> Completion

	batches    *pool.Concurrent[*batch]
	allMu      sync.Mutex
	allBatches []*batch

	running  sync.WaitGroup
	handlers sync.WaitGroup

	harvested atomic.Int64
	handled   atomic.Int64
}

// New prepares an engine; Start creates the handle and the workers.
func New(lib native.Library, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = Logger()
	}
	if opts.MaxCompletionsPerWait <= 0 {
		opts.MaxCompletionsPerWait = control.DefaultConfig().MaxCompletionsPerWait
	}
	if opts.Metrics == nil {
		opts.Metrics, _ = control.NewMetrics(control.DefaultConfig().MetricsNamespace, nil)
	}
	return &Engine{
		lib:     lib,
		log:     opts.Logger,
		metrics: opts.Metrics,
		workers: concurrency.Workers(opts.Workers),
		perWait: opts.MaxCompletionsPerWait,
		pin:     opts.PinWorkers,
		batches: pool.NewConcurrent[*batch](pool.DefaultCapacity),
	}
}

// Start creates the completion handle and launches the workers.
func (e *Engine) Start() error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	h, code := e.lib.CreateHandle(e.workers)
	if code != native.OK {
		return fmt.Errorf("engine: create completion handle: %w", native.Error(e.lib, code))
	}
	e.handle = h
	for i := 0; i < e.workers; i++ {
		w := &worker{id: i, engine: e}
		e.running.Add(1)
		go w.run()
	}
	e.log.Debug("completion engine started",
		zap.Int("workers", e.workers),
		zap.Int("max_completions_per_wait", e.perWait))
	return nil
}

// Handle returns the completion handle submissions are bound to.
func (e *Engine) Handle() uintptr { return e.handle }

// Workers returns the number of waiting goroutines.
func (e *Engine) Workers() int { return e.workers }

// Register maps a context block to the completion that handles it.
func (e *Engine) Register(ptr uintptr, c Completion) { e.contexts.Store(ptr, c) }

// Unregister forgets a context block.
func (e *Engine) Unregister(ptr uintptr) { e.contexts.Delete(ptr) }

// Stats reports counters for debug probes.
func (e *Engine) Stats() map[string]int64 {
	return map[string]int64{
		"workers":   int64(e.workers),
		"harvested": e.harvested.Load(),
		"handled":   e.handled.Load(),
		"idle":      int64(e.batches.Idle()),
	}
}

func (e *Engine) newBatch() *batch {
	b := &batch{
		entries:  e.lib.AllocateEntries(e.perWait),
		contexts: make([]uintptr, e.perWait),
	}
	e.allMu.Lock()
	e.allBatches = append(e.allBatches, b)
	e.allMu.Unlock()
	return b
}

// Close closes the handle, waits for workers and in-flight batches, and frees
// every entries buffer. Operations still pending in the native layer are not
// completed.
func (e *Engine) Close() error {
	if !e.started.Load() || !e.closing.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if code := e.lib.CloseHandle(e.handle); code != native.OK {
		err = fmt.Errorf("engine: close completion handle: %w", native.Error(e.lib, code))
	}
	e.running.Wait()
	e.handlers.Wait()

	e.allMu.Lock()
	for _, b := range e.allBatches {
		e.lib.FreeEntries(b.entries)
	}
	e.allBatches = nil
	e.allMu.Unlock()
	e.log.Debug("completion engine stopped")
	return err
}

type worker struct {
	id     int
	engine *Engine
}

func (w *worker) run() {
	e := w.engine
	defer e.running.Done()
	e.log.Debug("completion worker started", zap.Int("worker", w.id))
	defer e.log.Debug("completion worker stopped", zap.Int("worker", w.id))
	if e.pin {
		restore, err := concurrency.PinCurrentThread(w.id)
		if err != nil {
			e.log.Warn("worker pinning failed", zap.Int("worker", w.id), zap.Error(err))
		}
		defer restore()
	}

	for {
		b := e.batches.Acquire(e.newBatch)
		n, code := e.lib.WaitCompletions(e.handle, b.entries, b.contexts)
		if code != native.OK || n == 0 {
			e.batches.Release(b)
			if e.closing.Load() {
				return
			}
			if code != native.OK {
				e.metrics.WaitErrors.Inc()
				e.log.Warn("wait for completions failed",
					zap.Int("worker", w.id),
					zap.Error(native.Error(e.lib, code)))
				time.Sleep(waitBackoff)
			}
			continue
		}
		e.harvested.Add(int64(n))
		e.handlers.Add(1)
		go e.handleBatch(b, n)
	}
}

// handleBatch dispatches one batch in harvest order.
func (e *Engine) handleBatch(b *batch, n int) {
	defer e.handlers.Done()
	defer e.batches.Release(b)
	e.metrics.Batches.Inc()
	for _, ptr := range b.contexts[:n] {
		e.dispatch(ptr)
	}
}

func (e *Engine) dispatch(ptr uintptr) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("completion handler panicked",
				zap.Uintptr("context", ptr),
				zap.Any("panic", r))
		}
	}()
	v, ok := e.contexts.Load(ptr)
	if !ok {
		e.metrics.UnknownContexts.Inc()
		e.log.Error("completion for unknown context", zap.Uintptr("context", ptr))
		return
	}
	c := v.(Completion)
	if !c.Claim() {
		e.metrics.Duplicates.Inc()
		e.log.Debug("completion already handled", zap.Uintptr("context", ptr))
		return
	}
	defer c.Done()
	e.metrics.Completions.Inc()
	e.handled.Add(1)
	c.Complete()
}
