// Packed buffers: several small messages riding in one StdFlagPacked
// frame body, each prefixed by its own 2-byte length, amortizing one
// frame header across a batch instead of paying it per message (spec
// §4.4 "packed multi-message buffers").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import (
	"encoding/binary"

	"github.com/ripc-core/rtmd/rtderr"
)

// PackBuilder accumulates whole encoded messages into one packed body,
// staying under a caller-supplied size limit (typically the negotiated
// max fragment size).
type PackBuilder struct {
	limit int
	body  []byte
}

func NewPackBuilder(limit int) *PackBuilder {
	return &PackBuilder{limit: limit}
}

// Add appends one message if it still fits; it reports false without
// modifying the builder when the message would overflow the limit, so
// the caller can flush the current pack and start a new one.
func (p *PackBuilder) Add(msg []byte) bool {
	need := 2 + len(msg)
	if len(p.body)+need > p.limit {
		return false
	}
	hdr := make([]byte, 2)
	binary.BigEndian.PutUint16(hdr, uint16(len(msg)))
	p.body = append(p.body, hdr...)
	p.body = append(p.body, msg...)
	return true
}

func (p *PackBuilder) Len() int    { return len(p.body) }
func (p *PackBuilder) Empty() bool { return len(p.body) == 0 }

func (p *PackBuilder) Bytes() []byte { return p.body }

func (p *PackBuilder) Reset() { p.body = p.body[:0] }

// Unpack splits a packed frame body back into its constituent messages.
func Unpack(body []byte) (msgs [][]byte, err error) {
	off := 0
	for off < len(body) {
		if off+2 > len(body) {
			return nil, rtderr.New(rtderr.InvalidData, 0, "packed buffer: truncated length prefix")
		}
		l := int(binary.BigEndian.Uint16(body[off : off+2]))
		off += 2
		if off+l > len(body) {
			return nil, rtderr.New(rtderr.InvalidData, 0, "packed buffer: message length %d exceeds remaining %d", l, len(body)-off)
		}
		msgs = append(msgs, body[off:off+l])
		off += l
	}
	return msgs, nil
}
