// Package memsys provides fixed-size buffer pooling for the channel
// engine's per-channel output-buffer pools (spec §3 "Buffer", §4.5
// "Buffer pool"). Unlike AIStore's original memsys (a general-purpose
// scatter-gather allocator spanning many slab-size classes for arbitrary
// object sizes), this runtime needs exactly one slab size per channel —
// max-fragment-size — so MMSA here manages a small number of Slabs, one
// per distinct buffer size a caller has requested, each a simple free
// list with a guaranteed-minimum pre-allocation and an idle-GC pass.
//
// The shape (MMSA.Init/NewSGL-like Alloc/Free/FreeSpec/GetStats/GetSlab/
// Pressure/Terminate, PageSize-based slab classes) is preserved from the
// only memsys source retrieved into the examples pack (memsys/a_test.go);
// the slab/allocator bodies themselves are a fresh implementation against
// that observed API, specialized to spec.md's fixed-size pool.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package memsys

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ripc-core/rtmd/cmn/debug"
	"github.com/ripc-core/rtmd/rtderr"
)

const (
	PageSize         = 4 * 1024
	DefaultBufSize   = 16 * 1024
	MaxPageSlabSize  = 1024 * 1024
	NumPageSlabs     = MaxPageSlabSize / PageSize
	defaultIdleIval  = 30 * time.Second
)

// Slab is a free list of same-size buffers.
type Slab struct {
	size  int64
	mu    sync.Mutex
	free  [][]byte
	hits  atomic.Int64
	miss  atomic.Int64
	idle  atomic.Int64 // consecutive FreeSpec passes with nothing reclaimed
	guar  int          // guaranteed pre-allocated count
	maxN  int          // 0 == unbounded
	count atomic.Int64 // buffers currently checked out
	peak  atomic.Int64
}

func newSlab(size int64, guar, maxN int) *Slab {
	s := &Slab{size: size, guar: guar, maxN: maxN}
	for i := 0; i < guar; i++ {
		s.free = append(s.free, make([]byte, size))
	}
	return s
}

func (s *Slab) Size() int64 { return s.size }
func (s *Slab) Tag() string { return sizeTag(s.size) }

// Alloc returns a buffer of this slab's size, or NoBuffers if the pool is
// bounded (maxN>0) and already at capacity with nothing free.
func (s *Slab) Alloc() ([]byte, error) {
	s.mu.Lock()
	if n := len(s.free); n > 0 {
		buf := s.free[n-1]
		s.free = s.free[:n-1]
		s.mu.Unlock()
		s.hits.Add(1)
		s.track()
		return buf, nil
	}
	bounded := s.maxN > 0 && int(s.count.Load()) >= s.maxN
	s.mu.Unlock()
	if bounded {
		s.miss.Add(1)
		return nil, rtderr.New(rtderr.NoBuffers, 0, "slab %s: pool exhausted (max=%d)", s.Tag(), s.maxN)
	}
	s.miss.Add(1)
	s.track()
	return make([]byte, s.size), nil
}

func (s *Slab) track() {
	if c := s.count.Add(1); c > s.peak.Load() {
		s.peak.Store(c)
	}
}

// Free returns buf to the free list. Safe to call once per Alloc; a
// second Free of the same slice is a caller bug but is tolerated (the
// buffer is simply appended twice and will be handed out twice — callers
// in this module never do that, see channel package's ownership rules).
func (s *Slab) Free(buf []byte) {
	debug.Assert(int64(cap(buf)) == s.size)
	s.count.Add(-1)
	s.mu.Lock()
	s.free = append(s.free, buf[:cap(buf)])
	s.mu.Unlock()
}

// reclaim drops idle free buffers beyond the guaranteed minimum.
func (s *Slab) reclaim(toOS bool) (freed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := s.guar
	if toOS {
		keep = 0
	}
	if len(s.free) <= keep {
		s.idle.Add(1)
		return 0
	}
	freed = len(s.free) - keep
	s.free = s.free[:keep]
	s.idle.Store(0)
	return freed
}

func (s *Slab) ResetPeak() { s.peak.Store(s.count.Load()) }

func sizeTag(size int64) string {
	switch {
	case size%PageSize == 0:
		return "page-slab"
	default:
		return "buf-slab"
	}
}

//
// MMSA: multi-slab memory system admin, one per channel or shared by a
// server's channels depending on config (spec §3 "Buffer" ownership).
//

type FreeSpec struct {
	IdleDuration time.Duration
	MinSize      int64
	Totally      bool
	ToOS         bool
}

type Stats struct {
	Hits map[int64]int64
	Idle map[int64]int64
}

type MMSA struct {
	Name        string
	TimeIval    time.Duration
	MinFree     int64
	MinPctTotal int64

	mu     sync.RWMutex
	slabs  map[int64]*Slab
	pressure atomic.Int32
	term   atomic.Bool
}

const (
	PressureLow = iota
	PressureModerate
	PressureHigh
	PressureExtreme
)

func (m *MMSA) Init(_ int) *MMSA {
	m.slabs = make(map[int64]*Slab)
	if m.TimeIval == 0 {
		m.TimeIval = defaultIdleIval
	}
	return m
}

// GetSlab returns (creating if need be) the slab for an exact buffer size.
func (m *MMSA) GetSlab(size int64) (*Slab, error) {
	m.mu.RLock()
	s, ok := m.slabs[size]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.slabs[size]; ok {
		return s, nil
	}
	s = newSlab(size, 0, 0)
	m.slabs[size] = s
	return s, nil
}

// Register pre-creates a bounded slab with a guaranteed minimum and an
// optional hard cap, per spec §4.5's "guaranteed output buffers" /
// "max output buffers" ioctl knobs.
func (m *MMSA) Register(size int64, guaranteed, maxBuffers int) *Slab {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slabs[size]; ok {
		return s
	}
	s := newSlab(size, guaranteed, maxBuffers)
	m.slabs[size] = s
	return s
}

func (m *MMSA) Alloc(size int64) ([]byte, error) {
	s, _ := m.GetSlab(size)
	return s.Alloc()
}

func (m *MMSA) Free(buf []byte) {
	s, err := m.GetSlab(int64(cap(buf)))
	if err != nil {
		return
	}
	s.Free(buf)
}

func (m *MMSA) FreeSpec(spec FreeSpec) (freed int) {
	m.mu.RLock()
	slabs := make([]*Slab, 0, len(m.slabs))
	for _, s := range m.slabs {
		slabs = append(slabs, s)
	}
	m.mu.RUnlock()
	for _, s := range slabs {
		if spec.MinSize > 0 && s.size < spec.MinSize {
			continue
		}
		freed += s.reclaim(spec.ToOS || spec.Totally)
	}
	return freed
}

func (m *MMSA) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Hits: make(map[int64]int64), Idle: make(map[int64]int64)}
	for size, s := range m.slabs {
		st.Hits[size] = s.hits.Load()
		st.Idle[size] = s.idle.Load()
	}
	return st
}

// Pressure is a coarse 0..3 indicator a caller can use to decide whether
// to shed load. Nothing in this package updates it, so it always reads 0.
func (m *MMSA) Pressure() int32 { return m.pressure.Load() }

func (m *MMSA) Terminate(_ bool) {
	m.term.Store(true)
	m.mu.Lock()
	m.slabs = nil
	m.mu.Unlock()
}
