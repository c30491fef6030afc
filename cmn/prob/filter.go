// Package prob implements a fully-featured dynamic probabilistic filter,
// used by ripc's fragment reassembly to track which fragment ids have a
// live header (spec §4.4: "IDs are recycled after completion or on a
// timeout governed by the ping interval").
//
// A cuckoo filter gives O(1) insert/lookup/delete with a small, bounded
// false-positive rate; the reassembly map itself is always consulted
// first, so a false positive here only changes which error text a stray
// continuation fragment gets, never a correctness bug.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package prob

import (
	"encoding/binary"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// Filter is a concurrency-safe wrapper around a cuckoo filter keyed by a
// uint64 (the tagged stream/fragment id).
type Filter struct {
	mu sync.Mutex
	cf *cuckoo.Filter
}

func NewFilter(capacity uint) *Filter {
	return &Filter{cf: cuckoo.NewFilter(capacity)}
}

func key(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

func (f *Filter) Insert(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cf.Insert(key(id))
}

func (f *Filter) Lookup(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cf.Lookup(key(id))
}

func (f *Filter) Delete(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cf.Delete(key(id))
}

func (f *Filter) Count() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cf.Count()
}

func (f *Filter) Reset() {
	f.mu.Lock()
	f.cf.Reset()
	f.mu.Unlock()
}
