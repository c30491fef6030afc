// Client connects to a Server either directly or through an HTTP proxy
// tunnel, drives the client side of the ripc handshake, and returns the
// resulting Channel (spec §4.5 "client connect (direct + HTTP proxy
// tunnel)").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/ripc-core/rtmd/memsys"
	"github.com/ripc-core/rtmd/ripc"
	"github.com/ripc-core/rtmd/rtderr"
)

// readFullConn fills b from conn without the read-ahead a bufio.Reader
// would do, so handshake and key-exchange reads that alternate with
// writes on the same raw conn never strand bytes in a buffer the next
// reader doesn't see.
func readFullConn(conn net.Conn, b []byte) error {
	n := 0
	for n < len(b) {
		k, err := conn.Read(b[n:])
		n += k
		if err != nil {
			return err
		}
	}
	return nil
}

type Client struct {
	cfg Config
	cb  Callbacks
	mm  *memsys.MMSA
}

func NewClient(cfg Config, cb Callbacks) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := Init(); err != nil {
		return nil, err
	}
	mm := (&memsys.MMSA{Name: "client-" + cfg.ComponentLabel}).Init(0)
	mm.Register(int64(cfg.MaxFragmentSize)*4, cfg.GuaranteedOutputBuffers, cfg.MaxOutputBuffers)
	return &Client{cfg: cfg, cb: cb, mm: mm}, nil
}

func (c *Client) Close() {
	c.mm.Terminate(false)
	Term()
}

// Connect dials addr (directly, or through Config.ProxyURL when set) and
// drives the handshake to completion, returning a live Channel.
func (c *Client) Connect(addr string, timeout time.Duration) (*Channel, error) {
	connType := c.cfg.ConnType
	if connType == "" {
		connType = ConnTypeSocket
	}
	if !connType.Valid() {
		return nil, rtderr.New(rtderr.InvalidArgument, 0, "client: unknown connection type %q", connType)
	}
	if !connType.Supported() {
		return nil, rtderr.New(rtderr.UnsupportedDataType, 0, "client: connection type %q has no Go-reachable transport in this module", connType)
	}

	kind := ConnDirect
	var conn net.Conn
	var err error
	if c.cfg.ProxyURL != "" {
		kind = ConnHTTPProxyTunnel
		conn, err = DialViaProxy(c.cfg.ProxyURL, addr, timeout)
	} else {
		conn, err = net.DialTimeout("tcp", addr, timeout)
	}
	if err != nil {
		return nil, rtderr.Wrap(rtderr.SystemFailure, 0, err, "client: connect to %s (%s)", addr, kind)
	}
	if err := applySockOpts(conn, c.cfg); err != nil {
		conn.Close()
		return nil, err
	}
	if connType == ConnTypeEncrypted {
		conn = tls.Client(conn, &tls.Config{ServerName: hostOf(addr)})
	}

	session, err := c.handshake(conn, timeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	ch := newChannel(conn, session, c.cfg, c.mm, c.cb)
	ch.start()
	return ch, nil
}

func (c *Client) handshake(conn net.Conn, timeout time.Duration) (*ripc.Session, error) {
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	req := ripc.ConnectionRequest{
		MaxVersion: ripc.MaxVersion, MinVersion: ripc.MinVersion,
		Compressions: ripc.CompressLZ4 | ripc.CompressZlib,
		MaxFragSize:  c.cfg.MaxFragmentSize,
		PingInterval: uint16(c.cfg.PingInterval / time.Second),
		KeyExchange:  c.cfg.KeyExchange,
		ComponentLabel: c.cfg.ComponentLabel,
	}
	buf := make([]byte, 512)
	n, err := ripc.EncodeConnectionRequest(buf, req)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		return nil, rtderr.Wrap(rtderr.SystemFailure, 0, err, "client: write connection request")
	}

	lenHdr := make([]byte, 2)
	if err := readFullConn(conn, lenHdr); err != nil {
		return nil, rtderr.Wrap(rtderr.SystemFailure, 0, err, "client: read connection response")
	}
	total, err := ripc.PeekFrameLength(lenHdr)
	if err != nil {
		return nil, err
	}
	respBuf := make([]byte, total)
	copy(respBuf, lenHdr)
	if err := readFullConn(conn, respBuf[2:]); err != nil {
		return nil, rtderr.Wrap(rtderr.SystemFailure, 0, err, "client: read connection response")
	}
	ack, err := ripc.DecodeConnResponse(respBuf)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Time{})
	}

	session, err := ripc.NewSession(ripc.RoleClient, ack, ack.ComponentLabel)
	if err != nil {
		return nil, err
	}
	if ack.KeyExchange {
		if err := c.completeClientKeyExchange(conn, session); err != nil {
			return nil, err
		}
	}
	return session, nil
}

// hostOf strips a trailing ":port" for use as a TLS ServerName; addr
// without a port (or an unparseable one) is returned unchanged.
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (c *Client) completeClientKeyExchange(conn net.Conn, session *ripc.Session) error {
	kp, err := ripc.GenerateKeyPair()
	if err != nil {
		return err
	}
	if _, err := conn.Write(kp.Public[:]); err != nil {
		return rtderr.Wrap(rtderr.SystemFailure, 0, err, "key exchange: write public key")
	}
	var peerPub [32]byte
	if _, err := conn.Read(peerPub[:]); err != nil {
		return rtderr.Wrap(rtderr.SystemFailure, 0, err, "key exchange: read peer public key")
	}
	key, err := ripc.SessionKey(kp, peerPub)
	if err != nil {
		return err
	}
	session.EnableEncryption(key)
	return nil
}
