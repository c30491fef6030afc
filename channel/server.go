// Server binds a listener and, for each accepted connection, drives the
// ripc handshake (and optional key exchange) to completion before handing
// the resulting Channel to the caller's ActiveCB (spec §4.5 "server
// bind/accept").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/ripc-core/rtmd/cmn/nlog"
	"github.com/ripc-core/rtmd/memsys"
	"github.com/ripc-core/rtmd/ripc"
	"github.com/ripc-core/rtmd/rtderr"
)

type Server struct {
	cfg       Config
	cb        Callbacks
	mm        *memsys.MMSA
	listener  net.Listener
	supported ripc.CompressionBitmap
	tlsConfig *tls.Config
}

// SetTLSConfig supplies the server certificate used when Config.ConnType
// is "encrypted"; required before Bind for that connection type.
func (s *Server) SetTLSConfig(cfg *tls.Config) { s.tlsConfig = cfg }

func NewServer(cfg Config, cb Callbacks) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	connType := cfg.ConnType
	if connType == "" {
		connType = ConnTypeSocket
	}
	if !connType.Supported() {
		return nil, rtderr.New(rtderr.UnsupportedDataType, 0, "server: connection type %q has no Go-reachable transport in this module", connType)
	}
	if err := Init(); err != nil {
		return nil, err
	}
	mm := (&memsys.MMSA{Name: "server-" + cfg.ComponentLabel}).Init(0)
	mm.Register(int64(cfg.MaxFragmentSize)*4, cfg.GuaranteedOutputBuffers, cfg.MaxOutputBuffers)
	var supported ripc.CompressionBitmap
	if cfg.Compressions != 0 {
		supported = ripc.CompressionBitmap(cfg.Compressions)
	} else {
		supported = ripc.CompressLZ4 | ripc.CompressZlib
	}
	return &Server{cfg: cfg, cb: cb, mm: mm, supported: supported}, nil
}

// Bind listens on addr and starts accepting connections in the
// background; Close stops accepting and releases the listener.
func (s *Server) Bind(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return rtderr.Wrap(rtderr.SystemFailure, 0, err, "server: bind %s", addr)
	}
	s.listener = ln
	go s.acceptLoop()
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Close() error {
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.mm.Terminate(false)
	Term()
	return err
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if rtderr.IsRetriableConnErr(err) {
				continue
			}
			return // listener closed
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	if err := applySockOpts(conn, s.cfg); err != nil {
		nlog.Warningf("server: sockopts on %s: %v", conn.RemoteAddr(), err)
	}
	if s.cfg.ConnType == ConnTypeEncrypted {
		if s.tlsConfig == nil {
			nlog.Warningf("server: connection type encrypted but no TLS config set, closing %s", conn.RemoteAddr())
			conn.Close()
			return
		}
		conn = tls.Server(conn, s.tlsConfig)
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	hdr := make([]byte, 512)
	nRead, err := conn.Read(hdr)
	if err != nil {
		conn.Close()
		return
	}
	req, _, err := ripc.DecodeConnectionRequest(hdr[:nRead])
	if err != nil {
		conn.Close()
		return
	}
	ack, err := ripc.Negotiate(req, s.supported, ripc.MaxVersion, ripc.MinVersion, s.cfg.MaxFragmentSize, s.cfg.CompressionThreshold, s.cfg.ComponentLabel)
	if err != nil {
		// Negotiate reports a rejected handshake as a ConnectionNak error
		// (spec §4.4 step 2, §7 "handshake errors surface via the
		// connection-nak path when the peer was reachable").
		nak, ok := err.(ripc.ConnectionNak)
		if !ok {
			nak = ripc.ConnectionNak{Text: err.Error()}
		}
		nakBuf := make([]byte, 512)
		if n, encErr := ripc.EncodeConnNakFrame(nakBuf, nak); encErr == nil {
			_, _ = conn.Write(nakBuf[:n])
		}
		conn.Close()
		return
	}

	respBuf := make([]byte, 512)
	n, err := ripc.EncodeConnAckFrame(respBuf, ack)
	if err != nil {
		conn.Close()
		return
	}
	if _, err := conn.Write(respBuf[:n]); err != nil {
		conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})

	session, err := ripc.NewSession(ripc.RoleServer, ack, req.ComponentLabel)
	if err != nil {
		conn.Close()
		return
	}
	if ack.KeyExchange {
		if err := completeServerKeyExchange(conn, session); err != nil {
			nlog.Warningf("server: key exchange with %s failed: %v", conn.RemoteAddr(), err)
			conn.Close()
			return
		}
	}

	ch := newChannel(conn, session, s.cfg, s.mm, s.cb)
	ch.start()
}

func completeServerKeyExchange(conn net.Conn, session *ripc.Session) error {
	kp, err := ripc.GenerateKeyPair()
	if err != nil {
		return err
	}
	var peerPub [32]byte
	if _, err := conn.Read(peerPub[:]); err != nil {
		return rtderr.Wrap(rtderr.SystemFailure, 0, err, "key exchange: read peer public key")
	}
	if _, err := conn.Write(kp.Public[:]); err != nil {
		return rtderr.Wrap(rtderr.SystemFailure, 0, err, "key exchange: write public key")
	}
	key, err := ripc.SessionKey(kp, peerPub)
	if err != nil {
		return err
	}
	session.EnableEncryption(key)
	return nil
}
