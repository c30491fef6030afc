//go:build !mono

// Package mono provides low-level monotonic time.
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime returns a monotonic nanosecond counter. The -tags=mono build
// links directly against the runtime's internal nanotime for a few extra
// ns of savings; this default path goes through time.Since, which on all
// supported platforms also reads the monotonic clock.
func NanoTime() int64 { return int64(time.Since(start)) }
