// Package ripc implements the connection-level framing and session
// protocol (spec §4.4): handshake and version negotiation, frame
// header encode/decode, fragmentation/reassembly, compression
// negotiation, packed multi-message buffers, and ping supervision.
//
// Grounded on Cpp-C/Eta/Impl/rsslSocketTransport.c's connection-request
// / connection-ack / connection-nak exchange (original_source) for the
// handshake state machine, and on the teacher's transport/tinit.go for
// the Go idiom of a small negotiated-parameters struct produced by one
// blocking handshake call.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import (
	"encoding/binary"

	"github.com/ripc-core/rtmd/rtderr"
)

// Version enumerates the wire protocol versions this runtime can
// negotiate (spec §4.4: "version negotiation v10-v14").
type Version uint16

const (
	Version10 Version = 10
	Version11 Version = 11
	Version12 Version = 12
	Version13 Version = 13
	Version14 Version = 14

	MinVersion = Version10
	MaxVersion = Version14
)

func (v Version) Valid() bool { return v >= MinVersion && v <= MaxVersion }

// protocolEra is the four-byte tag that must match between peers before
// a version is even considered (spec §4.4 step 1: "a four-byte
// protocol-era tag"). A future, incompatible wire generation changes
// this tag so old and new deployments fail fast instead of
// misinterpreting each other's bytes.
const protocolEra uint32 = 0x52504331 // "RPC1"

// CompressionBitmap negotiates which compressors the sender is willing
// to use (spec §4.4: "compression negotiated via bitmap").
type CompressionBitmap uint8

const (
	CompressNone CompressionBitmap = 0
	CompressLZ4  CompressionBitmap = 1 << 0
	CompressZlib CompressionBitmap = 1 << 1
)

func (b CompressionBitmap) Has(c CompressionBitmap) bool { return b&c != 0 }

// best picks the strongest compressor both sides support, preferring
// lz4 (faster) over zlib (better ratio) when both are offered.
func (b CompressionBitmap) best(peer CompressionBitmap) CompressionBitmap {
	agreed := b & peer
	switch {
	case agreed.Has(CompressLZ4):
		return CompressLZ4
	case agreed.Has(CompressZlib):
		return CompressZlib
	default:
		return CompressNone
	}
}

// reqFlags is the connection-request's own flags byte (spec §4.4 step 1:
// "a flags byte"), distinct from a data frame's StdFlags.
type reqFlags uint8

const reqFlagKeyExchange reqFlags = 0x01

// ConnectionRequest is the client's opening handshake message (spec
// §4.4 step 1).
type ConnectionRequest struct {
	Era            uint32 // must equal protocolEra; mismatch is an immediate nak
	MaxVersion     Version
	MinVersion     Version
	TotalFrameLen  uint16 // whole encoded request, length field included
	Flags          reqFlags
	Compressions   CompressionBitmap
	MaxFragSize    uint32
	PingInterval   uint16 // proposed timeout, seconds; 0 is rejected (spec §8)
	ComponentLabel string

	KeyExchange bool
}

type nakCode uint8

const (
	nakNone nakCode = iota
	nakUnsupportedVersion
	nakUnsupportedCompression
	nakUnsupportedEra
	nakInvalidPingInterval
	nakRejected
)

// ConnectionAck is the responder's acceptance of the connection, fixing
// every negotiated parameter (spec §4.4 step 2).
type ConnectionAck struct {
	Version              Version
	Compression          CompressionBitmap
	CompressionThreshold uint32
	MaxFragSize          uint32
	PingInterval         uint16
	KeyExchange          bool
	ComponentLabel       string // the responder's own component version
}

// ConnectionNak explains a rejected handshake (spec §4.4:
// "connection-request/ack/nak").
type ConnectionNak struct {
	Code nakCode
	Text string
}

func (n ConnectionNak) Error() string { return "ripc handshake rejected: " + n.Text }

const reqFixedLen = 4 + 2 + 2 + 2 + 1 + 1 + 4 + 2 // era,maxVer,minVer,totalLen,flags,compressions,maxFrag,pingIval

func EncodeConnectionRequest(b []byte, r ConnectionRequest) (n int, err error) {
	label := []byte(r.ComponentLabel)
	need := reqFixedLen + len(label)
	if len(b) < need {
		return 0, rtderr.New(rtderr.BufferTooSmall, 0, "connection request: need %d bytes", need)
	}
	flags := r.Flags
	if r.KeyExchange {
		flags |= reqFlagKeyExchange
	}
	binary.BigEndian.PutUint32(b[0:4], protocolEra)
	binary.BigEndian.PutUint16(b[4:6], uint16(r.MaxVersion))
	binary.BigEndian.PutUint16(b[6:8], uint16(r.MinVersion))
	binary.BigEndian.PutUint16(b[8:10], uint16(need))
	b[10] = byte(flags)
	b[11] = byte(r.Compressions)
	binary.BigEndian.PutUint32(b[12:16], r.MaxFragSize)
	binary.BigEndian.PutUint16(b[16:18], r.PingInterval)
	copy(b[reqFixedLen:], label)
	return need, nil
}

func DecodeConnectionRequest(b []byte) (r ConnectionRequest, n int, err error) {
	if len(b) < reqFixedLen {
		return ConnectionRequest{}, 0, rtderr.New(rtderr.IncompleteData, 0, "connection request: truncated header")
	}
	r.Era = binary.BigEndian.Uint32(b[0:4])
	r.MaxVersion = Version(binary.BigEndian.Uint16(b[4:6]))
	r.MinVersion = Version(binary.BigEndian.Uint16(b[6:8]))
	r.TotalFrameLen = binary.BigEndian.Uint16(b[8:10])
	r.Flags = reqFlags(b[10])
	r.KeyExchange = r.Flags&reqFlagKeyExchange != 0
	r.Compressions = CompressionBitmap(b[11])
	r.MaxFragSize = binary.BigEndian.Uint32(b[12:16])
	r.PingInterval = binary.BigEndian.Uint16(b[16:18])
	llen := int(r.TotalFrameLen) - reqFixedLen
	if llen < 0 || len(b) < reqFixedLen+llen {
		return ConnectionRequest{}, 0, rtderr.New(rtderr.IncompleteData, 0, "connection request: truncated label")
	}
	r.ComponentLabel = string(b[reqFixedLen : reqFixedLen+llen])
	return r, reqFixedLen + llen, nil
}

const ackFixedLen = 2 + 1 + 4 + 4 + 2 + 1 + 2 // version,compression,threshold,maxFrag,pingIval,keyExchange,labelLen

func EncodeConnectionAck(b []byte, a ConnectionAck) (n int, err error) {
	label := []byte(a.ComponentLabel)
	need := ackFixedLen + len(label)
	if len(b) < need {
		return 0, rtderr.New(rtderr.BufferTooSmall, 0, "connection ack: need %d bytes", need)
	}
	binary.BigEndian.PutUint16(b[0:2], uint16(a.Version))
	b[2] = byte(a.Compression)
	binary.BigEndian.PutUint32(b[3:7], a.CompressionThreshold)
	binary.BigEndian.PutUint32(b[7:11], a.MaxFragSize)
	binary.BigEndian.PutUint16(b[11:13], a.PingInterval)
	if a.KeyExchange {
		b[13] = 1
	}
	binary.BigEndian.PutUint16(b[14:16], uint16(len(label)))
	copy(b[ackFixedLen:], label)
	return need, nil
}

func DecodeConnectionAck(b []byte) (a ConnectionAck, n int, err error) {
	if len(b) < ackFixedLen {
		return ConnectionAck{}, 0, rtderr.New(rtderr.IncompleteData, 0, "connection ack: truncated header")
	}
	a.Version = Version(binary.BigEndian.Uint16(b[0:2]))
	a.Compression = CompressionBitmap(b[2])
	a.CompressionThreshold = binary.BigEndian.Uint32(b[3:7])
	a.MaxFragSize = binary.BigEndian.Uint32(b[7:11])
	a.PingInterval = binary.BigEndian.Uint16(b[11:13])
	a.KeyExchange = b[13] != 0
	llen := int(binary.BigEndian.Uint16(b[14:16]))
	if len(b) < ackFixedLen+llen {
		return ConnectionAck{}, 0, rtderr.New(rtderr.IncompleteData, 0, "connection ack: truncated label")
	}
	a.ComponentLabel = string(b[ackFixedLen : ackFixedLen+llen])
	return a, ackFixedLen + llen, nil
}

const nakFixedLen = 1 + 2 // code, textLen

// EncodeConnectionNak writes a rejected handshake's reason code and
// diagnostic text (spec §4.4 step 2: "a connection-nak carrying a
// reason code").
func EncodeConnectionNak(b []byte, nak ConnectionNak) (n int, err error) {
	text := []byte(nak.Text)
	need := nakFixedLen + len(text)
	if len(b) < need {
		return 0, rtderr.New(rtderr.BufferTooSmall, 0, "connection nak: need %d bytes", need)
	}
	b[0] = byte(nak.Code)
	binary.BigEndian.PutUint16(b[1:3], uint16(len(text)))
	copy(b[nakFixedLen:], text)
	return need, nil
}

func DecodeConnectionNak(b []byte) (nak ConnectionNak, n int, err error) {
	if len(b) < nakFixedLen {
		return ConnectionNak{}, 0, rtderr.New(rtderr.IncompleteData, 0, "connection nak: truncated header")
	}
	nak.Code = nakCode(b[0])
	tlen := int(binary.BigEndian.Uint16(b[1:3]))
	if len(b) < nakFixedLen+tlen {
		return ConnectionNak{}, 0, rtderr.New(rtderr.IncompleteData, 0, "connection nak: truncated text")
	}
	nak.Text = string(b[nakFixedLen : nakFixedLen+tlen])
	return nak, nakFixedLen + tlen, nil
}

// EncodeConnAckFrame wraps an accepted handshake's ConnectionAck in a
// frame tagged with the conn-ack extended flag, so the client can tell
// an ack from a nak before decoding the payload (spec §6 extended flags
// "conn-ack=0x01, conn-nak=0x02").
func EncodeConnAckFrame(b []byte, a ConnectionAck) (int, error) {
	inner := make([]byte, 256+len(a.ComponentLabel))
	n, err := EncodeConnectionAck(inner, a)
	if err != nil {
		return 0, err
	}
	return EncodeFrame(b, Frame{Std: StdFlagExtended, Ext: ExtFlagConnAck, Body: inner[:n]})
}

// EncodeConnNakFrame wraps a rejected handshake's ConnectionNak in a
// frame tagged with the conn-nak extended flag.
func EncodeConnNakFrame(b []byte, nak ConnectionNak) (int, error) {
	inner := make([]byte, 256+len(nak.Text))
	n, err := EncodeConnectionNak(inner, nak)
	if err != nil {
		return 0, err
	}
	return EncodeFrame(b, Frame{Std: StdFlagExtended, Ext: ExtFlagConnNak, Body: inner[:n]})
}

// DecodeConnResponse decodes a server's handshake reply frame, returning
// the negotiated ConnectionAck, or a ConnectionNak as an error, depending
// on which extended flag the frame carries.
func DecodeConnResponse(b []byte) (ConnectionAck, error) {
	f, _, err := DecodeFrame(b)
	if err != nil {
		return ConnectionAck{}, err
	}
	switch {
	case f.Ext&ExtFlagConnNak != 0:
		nak, _, err := DecodeConnectionNak(f.Body)
		if err != nil {
			return ConnectionAck{}, err
		}
		return ConnectionAck{}, nak
	case f.Ext&ExtFlagConnAck != 0:
		ack, _, err := DecodeConnectionAck(f.Body)
		return ack, err
	default:
		return ConnectionAck{}, rtderr.New(rtderr.InvalidData, 0, "handshake: response frame carries neither conn-ack nor conn-nak")
	}
}

// Negotiate computes the server-side ConnectionAck (or a Nak error) for
// a client's request, given what this endpoint itself supports.
// componentLabel/threshold are the server's own values, folded into the
// ack so a client can learn its peer's component version and the
// compression threshold that will actually govern this channel (spec
// §4.4 step 2, §6 channel-active callback contract).
func Negotiate(req ConnectionRequest, supported CompressionBitmap, localMax, localMin Version, maxFrag uint32, threshold uint32, componentLabel string) (ConnectionAck, error) {
	if req.Era != protocolEra {
		return ConnectionAck{}, ConnectionNak{Code: nakUnsupportedEra, Text: "protocol era mismatch"}
	}
	if req.PingInterval == 0 {
		return ConnectionAck{}, ConnectionNak{Code: nakInvalidPingInterval, Text: "ping-timeout proposal of zero is invalid"}
	}
	if req.MaxVersion < localMin || req.MinVersion > localMax {
		return ConnectionAck{}, ConnectionNak{Code: nakUnsupportedVersion, Text: "no overlapping protocol version"}
	}
	v := localMax
	if req.MaxVersion < v {
		v = req.MaxVersion
	}
	frag := maxFrag
	if req.MaxFragSize != 0 && req.MaxFragSize < frag {
		frag = req.MaxFragSize
	}
	return ConnectionAck{
		Version:              v,
		Compression:          supported.best(req.Compressions),
		CompressionThreshold: threshold,
		MaxFragSize:          frag,
		PingInterval:         req.PingInterval,
		KeyExchange:          req.KeyExchange,
		ComponentLabel:       componentLabel,
	}, nil
}
