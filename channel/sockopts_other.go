//go:build !linux && !darwin && !freebsd

package channel

import "net"

// applySockOpts is a no-op on platforms without x/sys/unix socket-option
// support (e.g. windows); TCPNoDelay/buffer-size knobs simply don't apply.
func applySockOpts(conn net.Conn, cfg Config) error { return nil }
