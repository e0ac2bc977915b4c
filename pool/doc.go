// Package pool
// Author: momentics <momentics@gmail.com>
//
// Object pools for operation contexts, completion batches and native scratch
// buffers. Concurrent is lock-free over a bounded MPMC queue, Local is a
// single-goroutine FIFO for callers that own their pool outside a Registry, Keyed selects a Concurrent by key. Registry picks the
// pool each context type uses, preferring thread-safe candidates.
package pool
