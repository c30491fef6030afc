//go:build linux || darwin || freebsd

// Socket option tuning on unix-like platforms (spec §4.5 "ioctl control
// surface" extends to the underlying socket's TCP_NODELAY and buffer
// sizes). Grounded on golang.org/x/sys/unix's raw setsockopt wrappers,
// which the rest of the examples pack reaches for instead of the
// lowest-common-denominator knobs net.TCPConn exposes directly.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ripc-core/rtmd/rtderr"
)

func applySockOpts(conn net.Conn, cfg Config) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // e.g. a proxy-tunneled or in-memory test connection
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return rtderr.Wrap(rtderr.SystemFailure, 0, err, "sockopts: get raw conn")
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if cfg.TCPNoDelay {
			if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); e != nil {
				sockErr = e
				return
			}
		}
		if cfg.SendBufferBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SendBufferBytes); e != nil {
				sockErr = e
				return
			}
		}
		if cfg.RecvBufferBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.RecvBufferBytes); e != nil {
				sockErr = e
				return
			}
		}
	})
	if err != nil {
		return rtderr.Wrap(rtderr.SystemFailure, 0, err, "sockopts: control raw conn")
	}
	if sockErr != nil {
		if errno, ok := sockErr.(syscall.Errno); ok {
			return rtderr.Wrap(rtderr.SystemFailure, int(errno), sockErr, "sockopts: setsockopt")
		}
		return rtderr.Wrap(rtderr.SystemFailure, 0, sockErr, "sockopts: setsockopt")
	}
	return nil
}
