// Iterator tracks a read or write cursor over a wire buffer plus a stack
// of open container levels, deferring each container's 2-byte size field
// until the container is closed and its true length is known.
//
// Grounded on the teacher's transport/pdu.go buf/roff/woff idiom
// (pdu.read/readFrom advance roff/woff over a flat []byte) generalized
// here to support nested levels via an explicit stack, and on
// Cpp-C/Eta/Impl/Codec/rsslEncodeIterator.c's "reserve now, patch later"
// approach to container length fields (original_source).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package codec

import (
	"encoding/binary"

	"github.com/ripc-core/rtmd/rtderr"
)

// sizeWidth is the byte width of every deferred container-length mark.
// The wire format uses a flat 2-byte big-endian length for container
// payloads, mirroring the 2-byte length field ripc uses for frame
// headers (spec §4.4).
const sizeWidth = 2

const maxContainerPayload = 0xFFFF

type elevel struct {
	markPos int // offset of the 2-byte length placeholder
	start   int // offset of the first payload byte (markPos+sizeWidth)
}

// EncodeIterator accumulates encoded bytes into buf starting at offset 0,
// supporting nested OpenContainer/CloseContainer pairs (field list inside
// a map entry inside a vector entry, etc).
type EncodeIterator struct {
	buf    []byte
	woff   int
	levels []elevel
}

func NewEncodeIterator(buf []byte) *EncodeIterator {
	return &EncodeIterator{buf: buf}
}

func (it *EncodeIterator) Len() int      { return it.woff }
func (it *EncodeIterator) Bytes() []byte { return it.buf[:it.woff] }
func (it *EncodeIterator) Depth() int    { return len(it.levels) }

// Reset rewinds the iterator to reuse buf for another message, the way a
// pooled spdu is reset between sends (transport/pdu.go's (*spdu).reset).
func (it *EncodeIterator) Reset(buf []byte) {
	it.buf = buf
	it.woff = 0
	it.levels = it.levels[:0]
}

func (it *EncodeIterator) remaining() int { return len(it.buf) - it.woff }

// writePrimitive runs an Encode* function at the current write offset and
// advances woff on success.
func (it *EncodeIterator) writePrimitive(enc func([]byte) (int, error)) error {
	n, err := enc(it.buf[it.woff:])
	if err != nil {
		return err
	}
	it.woff += n
	return nil
}

func (it *EncodeIterator) PutUint(v uint64) error { return it.writePrimitive(func(b []byte) (int, error) { return EncodeUint(b, v) }) }
func (it *EncodeIterator) PutInt(v int64) error   { return it.writePrimitive(func(b []byte) (int, error) { return EncodeInt(b, v) }) }
func (it *EncodeIterator) PutReal(v Real) error   { return it.writePrimitive(func(b []byte) (int, error) { return EncodeReal(b, v) }) }
func (it *EncodeIterator) PutDate(v Date) error    { return it.writePrimitive(func(b []byte) (int, error) { return EncodeDate(b, v) }) }
func (it *EncodeIterator) PutTime(v Time) error    { return it.writePrimitive(func(b []byte) (int, error) { return EncodeTime(b, v) }) }
func (it *EncodeIterator) PutDateTime(v DateTime) error {
	return it.writePrimitive(func(b []byte) (int, error) { return EncodeDateTime(b, v) })
}
func (it *EncodeIterator) PutQoS(v QoS) error     { return it.writePrimitive(func(b []byte) (int, error) { return EncodeQoS(b, v) }) }
func (it *EncodeIterator) PutState(v State) error { return it.writePrimitive(func(b []byte) (int, error) { return EncodeState(b, v) }) }
func (it *EncodeIterator) PutEnum(v uint16) error { return it.writePrimitive(func(b []byte) (int, error) { return EncodeEnum(b, v) }) }
func (it *EncodeIterator) PutBufU15(v []byte) error {
	return it.writePrimitive(func(b []byte) (int, error) { return EncodeBufU15(b, v) })
}
func (it *EncodeIterator) PutBufU16(v []byte) error {
	return it.writePrimitive(func(b []byte) (int, error) { return EncodeBufU16(b, v) })
}
func (it *EncodeIterator) PutU15(v uint16) error { return it.writePrimitive(func(b []byte) (int, error) { return EncodeU15(b, v) }) }
func (it *EncodeIterator) PutU30(v uint32) error { return it.writePrimitive(func(b []byte) (int, error) { return EncodeU30(b, v) }) }

// PutRaw copies already-encoded bytes verbatim (used for set-definition
// payloads computed once and reused, and for message bodies).
func (it *EncodeIterator) PutRaw(b []byte) error {
	if it.remaining() < len(b) {
		return rtderr.New(rtderr.BufferTooSmall, 0, "put raw: need %d bytes, have %d", len(b), it.remaining())
	}
	it.woff += copy(it.buf[it.woff:], b)
	return nil
}

// Realign replaces the iterator's backing buffer with newBuf when the
// original runs out of room mid-encode (spec §4.1 "realign operation
// replacing the backing buffer and offsetting every pointer in the
// iterator and all levels by a uniform delta"). This port tracks every
// position as an offset into buf rather than a raw pointer, so the
// "uniform delta" a pointer-based encoder must apply collapses to zero
// here: the bytes already written are copied to the same offsets in
// newBuf, and every open level's markPos/start stay valid unchanged.
// Realign fails if newBuf is smaller than the buffer it replaces (spec
// §8's round-trip law requires buf2.length >= buf1.length).
func (it *EncodeIterator) Realign(newBuf []byte) error {
	if len(newBuf) < len(it.buf) {
		return rtderr.New(rtderr.BufferTooSmall, 0, "realign: new buffer %d bytes smaller than original %d bytes", len(newBuf), len(it.buf))
	}
	copy(newBuf, it.buf[:it.woff])
	it.buf = newBuf
	return nil
}

// OpenContainer reserves a 2-byte length placeholder and pushes a level;
// the placeholder is back-patched when the matching CloseContainer runs.
func (it *EncodeIterator) OpenContainer() error {
	if it.remaining() < sizeWidth {
		return rtderr.New(rtderr.BufferTooSmall, 0, "open container: need %d bytes for length mark", sizeWidth)
	}
	mark := it.woff
	it.woff += sizeWidth
	it.levels = append(it.levels, elevel{markPos: mark, start: it.woff})
	return nil
}

// CloseContainer patches the length mark with the number of payload
// bytes written since the matching OpenContainer and pops the level.
func (it *EncodeIterator) CloseContainer() error {
	if len(it.levels) == 0 {
		return rtderr.New(rtderr.InvalidData, 0, "close container: no open level")
	}
	lvl := it.levels[len(it.levels)-1]
	it.levels = it.levels[:len(it.levels)-1]
	size := it.woff - lvl.start
	if size > maxContainerPayload {
		return rtderr.New(rtderr.InvalidData, 0, "close container: payload %d exceeds %d", size, maxContainerPayload)
	}
	binary.BigEndian.PutUint16(it.buf[lvl.markPos:lvl.markPos+sizeWidth], uint16(size))
	return nil
}

//
// DecodeIterator: the mirror image, a read cursor plus a stack of
// container end offsets derived from each container's length field.
//

type dlevel struct{ end int }

type DecodeIterator struct {
	buf    []byte
	roff   int
	levels []dlevel
}

func NewDecodeIterator(buf []byte) *DecodeIterator {
	return &DecodeIterator{buf: buf}
}

func (it *DecodeIterator) Reset(buf []byte) {
	it.buf = buf
	it.roff = 0
	it.levels = it.levels[:0]
}

func (it *DecodeIterator) Pos() int    { return it.roff }
func (it *DecodeIterator) Depth() int  { return len(it.levels) }
func (it *DecodeIterator) AtEnd() bool { return it.roff >= it.levelEnd() }

func (it *DecodeIterator) levelEnd() int {
	if len(it.levels) == 0 {
		return len(it.buf)
	}
	return it.levels[len(it.levels)-1].end
}

func (it *DecodeIterator) window() []byte { return it.buf[it.roff:it.levelEnd()] }

func (it *DecodeIterator) advance(n int) { it.roff += n }

func (it *DecodeIterator) readPrimitive(dec func([]byte) (int, error)) error {
	n, err := dec(it.window())
	if err != nil {
		return err
	}
	it.advance(n)
	return nil
}

func (it *DecodeIterator) GetUint() (v uint64, err error) {
	v, n, err := DecodeUint(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetInt() (v int64, err error) {
	v, n, err := DecodeInt(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetReal() (v Real, err error) {
	v, n, err := DecodeReal(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetDate() (v Date, err error) {
	v, n, err := DecodeDate(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetTime() (v Time, err error) {
	v, n, err := DecodeTime(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetDateTime() (v DateTime, err error) {
	v, n, err := DecodeDateTime(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetQoS() (v QoS, err error) {
	v, n, err := DecodeQoS(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetState() (v State, err error) {
	v, n, err := DecodeState(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetEnum() (v uint16, err error) {
	v, n, err := DecodeEnum(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetBufU15() (v []byte, err error) {
	v, n, err := DecodeBufU15(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetBufU16() (v []byte, err error) {
	v, n, err := DecodeBufU16(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetU15() (v uint16, err error) {
	v, n, err := DecodeU15(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

func (it *DecodeIterator) GetU30() (v uint32, err error) {
	v, n, err := DecodeU30(it.window())
	if err == nil {
		it.advance(n)
	}
	return
}

// GetRaw reads n bytes verbatim without interpretation.
func (it *DecodeIterator) GetRaw(n int) ([]byte, error) {
	w := it.window()
	if len(w) < n {
		return nil, rtderr.New(rtderr.IncompleteData, 0, "get raw: need %d bytes, have %d", n, len(w))
	}
	b := w[:n]
	it.advance(n)
	return b, nil
}

// EnterContainer reads the 2-byte length header and pushes a level whose
// end offset bounds every subsequent read until ExitContainer.
func (it *DecodeIterator) EnterContainer() (length int, err error) {
	w := it.window()
	if len(w) < sizeWidth {
		return 0, rtderr.New(rtderr.IncompleteData, 0, "enter container: need %d bytes for length", sizeWidth)
	}
	l := binary.BigEndian.Uint16(w[:sizeWidth])
	it.advance(sizeWidth)
	end := it.roff + int(l)
	if end > it.levelEnd() {
		return 0, rtderr.New(rtderr.IncompleteData, 0, "enter container: length %d exceeds remaining buffer", l)
	}
	it.levels = append(it.levels, dlevel{end: end})
	return int(l), nil
}

// ExitContainer skips any unconsumed bytes in the container (a reader
// need not decode every field) and pops the level.
func (it *DecodeIterator) ExitContainer() error {
	if len(it.levels) == 0 {
		return rtderr.New(rtderr.InvalidData, 0, "exit container: no open level")
	}
	lvl := it.levels[len(it.levels)-1]
	it.levels = it.levels[:len(it.levels)-1]
	it.roff = lvl.end
	return nil
}
