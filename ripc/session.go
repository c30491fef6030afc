// Session ties the handshake, compression, fragmentation, packing and
// ping pieces together into the per-connection protocol state the
// channel package drives; it has no knowledge of sockets, only of bytes
// in and bytes out, the way the teacher's transport/tinit.go separates
// protocol setup from the I/O loop that uses it.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import (
	"time"
)

type SessionRole uint8

const (
	RoleClient SessionRole = iota
	RoleServer
)

// Session holds the negotiated parameters and protocol-layer state for
// one ripc connection once the handshake has completed.
type Session struct {
	Role                 SessionRole
	Version              Version
	MaxFragSize          uint32
	CompressionType      CompressionBitmap
	CompressionThreshold uint32
	PingInterval         time.Duration
	PeerComponentLabel   string

	compressor  Compressor
	fragmenter  *Fragmenter
	reassembler *Reassembler
	packer      *PackBuilder

	// ForceCompress mirrors spec §6's "force-comp" standard flag bit: when
	// set, compression is applied regardless of CompressionThreshold.
	ForceCompress bool
	// DisableCompression mirrors §4.4 compression (c): "a per-channel
	// override can force compression off regardless of negotiation".
	DisableCompression bool

	sessionKey [32]byte
	encrypted  bool
}

// NewSession builds protocol state from a completed handshake's
// negotiated ConnectionAck. peerComponentLabel is the handshake
// counterpart's component-version string (the client's ack carries the
// server's label; the server already has the client's from its request).
func NewSession(role SessionRole, ack ConnectionAck, peerComponentLabel string) (*Session, error) {
	comp, err := NewCompressor(ack.Compression)
	if err != nil {
		return nil, err
	}
	s := &Session{
		Role:                 role,
		Version:              ack.Version,
		MaxFragSize:          ack.MaxFragSize,
		CompressionType:      ack.Compression,
		CompressionThreshold: ack.CompressionThreshold,
		PingInterval:         time.Duration(ack.PingInterval) * time.Second,
		PeerComponentLabel:   peerComponentLabel,
		compressor:           comp,
		fragmenter:           NewFragmenter(int(ack.MaxFragSize)),
		reassembler:          NewReassembler(time.Duration(ack.PingInterval) * time.Second * 2),
		packer:               NewPackBuilder(int(ack.MaxFragSize)),
	}
	return s, nil
}

func (s *Session) EnableEncryption(key [32]byte) {
	s.sessionKey = key
	s.encrypted = true
}

// EncodeOutbound turns one application message into one or more frames
// ready to write to the wire: compressed if negotiated and at or above
// threshold (or forced), fragmented if it exceeds MaxFragSize, sealed if
// key exchange completed.
func (s *Session) EncodeOutbound(msg []byte) ([]Frame, error) {
	body := msg
	compressedWhole := false
	compressedFrag := false
	if s.compressor.Bit() != CompressNone && !s.DisableCompression &&
		(s.ForceCompress || uint32(len(msg)) >= s.CompressionThreshold) {
		compressed, err := s.compressor.Compress(nil, msg)
		if err == nil && (s.ForceCompress || len(compressed) < len(msg)) {
			body = compressed
			compressedWhole = true
		}
	}

	if HeaderSize+len(body) <= int(s.MaxFragSize) {
		std := StdFlagData
		if compressedWhole {
			std |= StdFlagCompressed
		}
		return []Frame{s.finishFrame(Frame{Std: std, Body: body})}, nil
	}

	// Fragmenting a compressed payload: mark every fragment comp-frag,
	// not comp, per spec §4.4 "compressed fragments reassemble first,
	// decompress second".
	if compressedWhole {
		compressedFrag = true
	}
	parts := s.fragmenter.Split(body, compressedFrag)
	frames := make([]Frame, len(parts))
	for i, p := range parts {
		frames[i] = s.finishFrame(p)
	}
	return frames, nil
}

func (s *Session) finishFrame(f Frame) Frame {
	if s.encrypted {
		sealed, err := Seal(s.sessionKey, f.Body)
		if err == nil {
			f.Body = sealed
		}
	}
	return f
}

func (s *Session) openFrame(body []byte) ([]byte, error) {
	if !s.encrypted {
		return body, nil
	}
	return Open(s.sessionKey, body)
}

// DecodeInbound consumes one received frame, returning zero or more
// reassembled application messages (a non-fragmented, non-packed frame
// yields exactly one; a packed frame yields several; a non-final
// fragment yields none yet).
func (s *Session) DecodeInbound(f Frame) ([][]byte, error) {
	body, err := s.openFrame(f.Body)
	if err != nil {
		return nil, err
	}
	f.Body = body

	compressed := f.Std&StdFlagCompressed != 0
	compressedFrag := f.Std&StdFlagCompressedFrag != 0

	if f.IsFragment() {
		msg, done, err := s.reassembler.Feed(f)
		if err != nil || !done {
			return nil, err
		}
		f.Body = msg
		if compressedFrag {
			compressed = true
		}
	}

	if compressed {
		out, err := s.compressor.Decompress(nil, f.Body)
		if err != nil {
			return nil, err
		}
		f.Body = out
	}

	if f.Std&StdFlagPacked != 0 {
		return Unpack(f.Body)
	}
	return [][]byte{f.Body}, nil
}

// ReapIdleFragments evicts abandoned in-flight reassemblies. The channel
// engine does not call it; abandoned reassemblies stay in flight until a
// caller does.
func (s *Session) ReapIdleFragments() int { return s.reassembler.ReapIdle() }
