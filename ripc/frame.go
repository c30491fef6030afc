// Frame header (spec §4.4 "frame layout per application message"):
// a 2-byte total length, a 1-byte standard-flags byte, an optional
// 1-byte extended-flags byte (present only when the standard
// extended-present bit is set), and — depending on which extended flag
// is set — either a fragment header (U30 total length + 1-byte fragment
// id) or a bare 1-byte fragment id continuation, then the body.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import (
	"encoding/binary"

	"github.com/ripc-core/rtmd/codec"
	"github.com/ripc-core/rtmd/rtderr"
)

// StdFlags is the frame's always-present flags byte (spec §6 "standard
// flag bits", bit-exact).
type StdFlags uint8

const (
	StdFlagExtended       StdFlags = 0x01 // an extended-flags byte follows
	StdFlagData           StdFlags = 0x02
	StdFlagCompressed     StdFlags = 0x04
	StdFlagCompressedFrag StdFlags = 0x08
	StdFlagPacked         StdFlags = 0x10
	StdFlagForceCompress  StdFlags = 0x80
)

// ExtFlags is the optional second flags byte, present only when
// StdFlagExtended is set (spec §6 "extended flag bits", bit-exact).
type ExtFlags uint8

const (
	ExtFlagConnAck    ExtFlags = 0x01
	ExtFlagConnNak    ExtFlags = 0x02
	ExtFlagFragID     ExtFlags = 0x04 // continuation: bare 1-byte fragment id follows
	ExtFlagFragHeader ExtFlags = 0x08 // first fragment: U30 total length + 1-byte fragment id follow
)

const HeaderSize = 3 // 2-byte length + 1 std-flags byte; extended bytes are additional

// MaxFrameSize is the largest value the 2-byte length field can carry.
const MaxFrameSize = 0xFFFF

// MaxFragHeaderSize is the largest a U30 total-length + 1-byte fragment
// id can be (4-byte U30 worst case); callers sizing a wire buffer before
// EncodeFrame use this plus one byte for the optional extended-flags
// byte as the worst-case header overhead on top of HeaderSize.
const MaxFragHeaderSize = 5

const maxFragHeaderSize = MaxFragHeaderSize

// Frame is one wire frame. Ext, FragID, and FragTotalLen are only
// meaningful when Std has the corresponding bits set.
type Frame struct {
	Std          StdFlags
	Ext          ExtFlags
	FragID       uint8
	FragTotalLen uint32 // valid when Ext&ExtFlagFragHeader != 0
	Body         []byte
}

// IsFragment reports whether f carries either half of the fragment
// header (first fragment or continuation).
func (f Frame) IsFragment() bool {
	return f.Std&StdFlagExtended != 0 && f.Ext&(ExtFlagFragID|ExtFlagFragHeader) != 0
}

// IsFragmentFirst reports whether f is the first fragment of a split
// message, carrying the full fragment header (total length + id).
func (f Frame) IsFragmentFirst() bool {
	return f.Std&StdFlagExtended != 0 && f.Ext&ExtFlagFragHeader != 0
}

// encodedFragHeaderLen returns how many bytes the fragment-header /
// fragment-id-continuation area occupies for the given ext flags and
// total length (0 when neither fragment bit is set).
func encodedFragHeaderLen(ext ExtFlags, totalLen uint32) int {
	switch {
	case ext&ExtFlagFragHeader != 0:
		n, _ := codec.EncodeU30(make([]byte, 4), totalLen)
		return n + 1
	case ext&ExtFlagFragID != 0:
		return 1
	default:
		return 0
	}
}

// EncodeFrame writes the full wire frame into b, returning the number
// of bytes written.
func EncodeFrame(b []byte, f Frame) (n int, err error) {
	std := f.Std
	ext := f.Ext
	hasExt := ext != 0
	if hasExt {
		std |= StdFlagExtended
	} else {
		std &^= StdFlagExtended
	}

	fragHdrLen := 0
	if hasExt {
		fragHdrLen = encodedFragHeaderLen(ext, f.FragTotalLen)
	}

	total := HeaderSize + btoi(hasExt) + fragHdrLen + len(f.Body)
	if total > MaxFrameSize {
		return 0, rtderr.New(rtderr.InvalidData, 0, "frame: body %d bytes exceeds max frame size", len(f.Body))
	}
	if len(b) < total {
		return 0, rtderr.New(rtderr.BufferTooSmall, 0, "frame: need %d bytes, have %d", total, len(b))
	}

	binary.BigEndian.PutUint16(b[0:2], uint16(total))
	b[2] = byte(std)
	off := HeaderSize
	if hasExt {
		b[off] = byte(ext)
		off++
		switch {
		case ext&ExtFlagFragHeader != 0:
			nn, err := codec.EncodeU30(b[off:], f.FragTotalLen)
			if err != nil {
				return 0, err
			}
			off += nn
			b[off] = f.FragID
			off++
		case ext&ExtFlagFragID != 0:
			b[off] = f.FragID
			off++
		}
	}
	copy(b[off:total], f.Body)
	return total, nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// PeekFrameLength reads just the length field, used by a reader to know
// how many more bytes to buffer before DecodeFrame can succeed.
func PeekFrameLength(b []byte) (total int, err error) {
	if len(b) < 2 {
		return 0, rtderr.New(rtderr.IncompleteData, 0, "frame: need 2 bytes for length")
	}
	return int(binary.BigEndian.Uint16(b[0:2])), nil
}

func DecodeFrame(b []byte) (f Frame, n int, err error) {
	total, err := PeekFrameLength(b)
	if err != nil {
		return Frame{}, 0, err
	}
	if total < HeaderSize {
		return Frame{}, 0, rtderr.New(rtderr.InvalidData, 0, "frame: length %d shorter than header", total)
	}
	if len(b) < total {
		return Frame{}, 0, rtderr.New(rtderr.IncompleteData, 0, "frame: need %d bytes, have %d", total, len(b))
	}
	f.Std = StdFlags(b[2])
	off := HeaderSize
	if f.Std&StdFlagExtended != 0 {
		if off >= total {
			return Frame{}, 0, rtderr.New(rtderr.InvalidData, 0, "frame: extended bit set but no extended byte")
		}
		f.Ext = ExtFlags(b[off])
		off++
		switch {
		case f.Ext&ExtFlagFragHeader != 0:
			tot, nn, err := codec.DecodeU30(b[off:total])
			if err != nil {
				return Frame{}, 0, err
			}
			off += nn
			if off >= total {
				return Frame{}, 0, rtderr.New(rtderr.InvalidData, 0, "frame: fragment header missing id byte")
			}
			f.FragTotalLen = tot
			f.FragID = b[off]
			off++
		case f.Ext&ExtFlagFragID != 0:
			if off >= total {
				return Frame{}, 0, rtderr.New(rtderr.InvalidData, 0, "frame: fragment-id flag set but no id byte")
			}
			f.FragID = b[off]
			off++
		}
	}
	f.Body = b[off:total]
	return f, total, nil
}
