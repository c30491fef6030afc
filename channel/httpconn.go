// fasthttpReaderFromConn gives DialViaProxy the *bufio.Reader that
// fasthttp's header parser reads the CONNECT response from, and ConnKind
// names how a Client reached its Server: directly or through an HTTP
// proxy tunnel (spec §4.5 "client connect"). ConnTypeHTTP connections
// take the same plain TCP path as ConnTypeSocket; no HTTP framing is
// applied to the byte stream.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"bufio"
	"net"
)

// fasthttpReaderFromConn wraps conn for fasthttp's Header.Read, which
// expects a *bufio.Reader rather than an io.Reader.
func fasthttpReaderFromConn(conn net.Conn) *bufio.Reader {
	return bufio.NewReaderSize(conn, 4096)
}

// ConnKind enumerates the connection establishment strategies a Client
// can use to reach a Server (spec §4.5).
type ConnKind uint8

const (
	ConnDirect ConnKind = iota
	ConnHTTPProxyTunnel
)

func (k ConnKind) String() string {
	switch k {
	case ConnHTTPProxyTunnel:
		return "http-proxy-tunnel"
	default:
		return "direct"
	}
}
