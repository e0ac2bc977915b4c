// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness reactor behind the native socket
// layer's completion multiplexer. Linux uses epoll with an eventfd for wake-ups.
package reactor
