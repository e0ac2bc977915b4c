// File: native/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package native is the boundary to the platform socket layer.
//
// Everything crossing the boundary lives in Arena blocks whose layouts are
// published at runtime through Layout, so managed code never assumes a
// structure's size or field offsets. Linux is served by an epoll-backed
// implementation; the fake package provides an in-memory one for tests.
package native
