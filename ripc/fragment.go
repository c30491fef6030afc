// Fragmentation and reassembly (spec §4.4 "Fragmentation"): a message
// too large for one frame is split across consecutive frames sharing a
// single-byte fragment id. The first fragment carries the fragment
// header (U30 total length + the id, spec §6 extended flag `frag-hdr`);
// every continuation carries only the bare id (`frag-id`). There is no
// explicit "last fragment" bit — the reassembler knows it is done once
// it has accumulated `total length` bytes for that id.
//
// Grounded on Cpp-C/Eta/Impl/rsslImpl.c's fragmentation header shape
// (original_source) and on the teacher's transport/bundle/dmover.go for
// the Go idiom of a map of in-flight transfers keyed by an id, garbage
// collected on a timer.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import (
	"sync"
	"time"

	"github.com/ripc-core/rtmd/cmn/prob"
	"github.com/ripc-core/rtmd/rtderr"
)

// Fragmenter splits an oversized frame body into a sequence of Frames,
// each sized to fit within maxFragSize once its own header overhead is
// accounted for.
type Fragmenter struct {
	maxFragSize int
	nextID      uint32
	mu          sync.Mutex
}

func NewFragmenter(maxFragSize int) *Fragmenter {
	return &Fragmenter{maxFragSize: maxFragSize}
}

// Split returns the Frames to send for one oversized body, sharing one
// fragment id: the first carries ExtFlagFragHeader (total length + id),
// every continuation carries ExtFlagFragID (bare id). compressedFrag
// marks every fragment with StdFlagCompressedFrag instead of
// StdFlagCompressed, per spec §4.4 "compressed fragments reassemble
// first, decompress second".
func (fr *Fragmenter) Split(body []byte, compressedFrag bool) []Frame {
	fr.mu.Lock()
	id := uint8(fr.nextID)
	fr.nextID++
	fr.mu.Unlock()

	payloadPer := fr.maxFragSize - HeaderSize - 1 - maxFragHeaderSize
	if payloadPer < 1 {
		payloadPer = 1
	}
	std := StdFlagData | StdFlagExtended
	if compressedFrag {
		std |= StdFlagCompressedFrag
	}
	total := uint32(len(body))

	var out []Frame
	for off := 0; off < len(body); off += payloadPer {
		end := off + payloadPer
		if end > len(body) {
			end = len(body)
		}
		f := Frame{Std: std, Body: body[off:end]}
		if off == 0 {
			f.Ext = ExtFlagFragHeader
			f.FragTotalLen = total
		} else {
			f.Ext = ExtFlagFragID
		}
		f.FragID = id
		out = append(out, f)
	}
	return out
}

type partial struct {
	total int
	buf   []byte
}

// Reassembler tracks in-flight fragment sequences, one per id, across
// one channel; ids are recycled once a message completes or is reaped by
// ReapIdle. A first fragment for an id already in flight is rejected by
// the inflight map; a cuckoo filter of live ids only selects the error
// text for a continuation that arrives with no live header.
type Reassembler struct {
	mu       sync.Mutex
	inflight map[uint8]*partial
	seen     *prob.Filter
	idleTTL  time.Duration
	lastSeen map[uint8]time.Time
}

func NewReassembler(idleTTL time.Duration) *Reassembler {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Second
	}
	return &Reassembler{
		inflight: make(map[uint8]*partial),
		seen:     prob.NewFilter(1024),
		idleTTL:  idleTTL,
		lastSeen: make(map[uint8]time.Time),
	}
}

// Feed consumes one fragment frame, returning the reassembled message
// and true once accumulated bytes reach the declared total length.
func (r *Reassembler) Feed(f Frame) (msg []byte, done bool, err error) {
	if !f.IsFragment() {
		return nil, false, rtderr.New(rtderr.InvalidData, 0, "reassembler: frame carries neither frag-hdr nor frag-id")
	}
	id := f.FragID

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.inflight[id]
	if f.IsFragmentFirst() {
		if ok {
			return nil, false, rtderr.New(rtderr.InvalidData, 0, "fragment id %d: new header while one already in flight", id)
		}
		p = &partial{total: int(f.FragTotalLen), buf: make([]byte, 0, f.FragTotalLen)}
		r.inflight[id] = p
		_ = r.seen.Insert(uint64(id))
	} else {
		if !ok {
			if r.seen.Lookup(uint64(id)) {
				return nil, false, rtderr.New(rtderr.InvalidData, 0, "fragment id %d: continuation with no live header (recycled or reused)", id)
			}
			return nil, false, rtderr.New(rtderr.InvalidData, 0, "fragment id %d: continuation before any header", id)
		}
	}
	p.buf = append(p.buf, f.Body...)
	r.lastSeen[id] = time.Now()

	if len(p.buf) < p.total {
		return nil, false, nil
	}
	delete(r.inflight, id)
	delete(r.lastSeen, id)
	_ = r.seen.Delete(uint64(id))
	if len(p.buf) != p.total {
		return nil, false, rtderr.New(rtderr.IncompleteData, 0, "fragment %d: reassembled %d bytes, expected %d", id, len(p.buf), p.total)
	}
	return p.buf, true, nil
}

// ReapIdle drops in-flight reassemblies that haven't seen a fragment
// within idleTTL, freeing their id for reuse (spec §4.4: "IDs are
// recycled after completion or on a timeout governed by the ping
// interval").
func (r *Reassembler) ReapIdle() (reaped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, last := range r.lastSeen {
		if now.Sub(last) > r.idleTTL {
			delete(r.inflight, id)
			delete(r.lastSeen, id)
			_ = r.seen.Delete(uint64(id))
			reaped++
		}
	}
	return reaped
}
