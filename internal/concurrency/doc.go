// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-net: the bounded lock-free queue used
// by pools, the processor count that sizes the completion workers and
// optional pinning of those workers to CPUs.
package concurrency
