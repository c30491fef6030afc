// Package hk provides a mechanism for registering cleanup functions which
// are invoked at specified intervals: a single goroutine, a min-heap of
// next-fire times, and Reg/Unreg to add or remove a periodic callback.
//
// Used by ripc for ping supervision (spec §4.4); the channel package
// starts DefaultHK's Run loop on its first Init.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package hk

import (
	"container/heap"
	"sync"
	"time"
)

// NameSuffix disambiguates a caller's registration name from others that
// might reuse the same prefix (e.g. a channel's local id).
const NameSuffix = ".hk"

// CleanupFunc runs on its own tick; returning a duration <= 0 unregisters it.
type CleanupFunc func() time.Duration

type request struct {
	name string
	f    CleanupFunc
	d    time.Duration
}

type item struct {
	name string
	f    CleanupFunc
	due  time.Time
	idx  int
}

type itemHeap []*item

func (h itemHeap) Len() int            { return len(h) }
func (h itemHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h itemHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].idx, h[j].idx = i, j }
func (h *itemHeap) Push(x any)         { it := x.(*item); it.idx = len(*h); *h = append(*h, it) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Housekeeper runs registered CleanupFuncs on their own schedule.
type Housekeeper struct {
	mu       sync.Mutex
	byName   map[string]*item
	heap     itemHeap
	regCh    chan request
	unregCh  chan string
	stopCh   chan struct{}
	started  chan struct{}
	onceStop sync.Once
}

// DefaultHK is the process-wide housekeeper used by ripc.
var DefaultHK = New()

func New() *Housekeeper {
	return &Housekeeper{
		byName:  make(map[string]*item),
		regCh:   make(chan request, 16),
		unregCh: make(chan string, 16),
		stopCh:  make(chan struct{}),
		started: make(chan struct{}),
	}
}

// TestInit resets DefaultHK for test isolation.
func TestInit() { DefaultHK = New() }

func WaitStarted() { <-DefaultHK.started }

// Reg registers f to run every d, starting after d.
func Reg(name string, f CleanupFunc, d time.Duration) { DefaultHK.Reg(name, f, d) }
func Unreg(name string)                               { DefaultHK.Unreg(name) }

func (hk *Housekeeper) Reg(name string, f CleanupFunc, d time.Duration) {
	hk.regCh <- request{name: name, f: f, d: d}
}

func (hk *Housekeeper) Unreg(name string) {
	hk.unregCh <- name
}

// Run is the housekeeper's main loop; call it on its own goroutine.
func (hk *Housekeeper) Run() {
	close(hk.started)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		hk.reschedule(timer)
		select {
		case <-timer.C:
			hk.fire()
		case r := <-hk.regCh:
			hk.add(r)
		case name := <-hk.unregCh:
			hk.remove(name)
		case <-hk.stopCh:
			return
		}
	}
}

func (hk *Housekeeper) Stop() {
	hk.onceStop.Do(func() { close(hk.stopCh) })
}

func (hk *Housekeeper) add(r request) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if old, ok := hk.byName[r.name]; ok {
		heap.Remove(&hk.heap, old.idx)
	}
	it := &item{name: r.name, f: r.f, due: time.Now().Add(r.d)}
	hk.byName[r.name] = it
	heap.Push(&hk.heap, it)
}

func (hk *Housekeeper) remove(name string) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	it, ok := hk.byName[name]
	if !ok {
		return
	}
	heap.Remove(&hk.heap, it.idx)
	delete(hk.byName, name)
}

func (hk *Housekeeper) reschedule(timer *time.Timer) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if len(hk.heap) == 0 {
		timer.Reset(time.Hour)
		return
	}
	d := time.Until(hk.heap[0].due)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

func (hk *Housekeeper) fire() {
	hk.mu.Lock()
	if len(hk.heap) == 0 {
		hk.mu.Unlock()
		return
	}
	it := hk.heap[0]
	if time.Now().Before(it.due) {
		hk.mu.Unlock()
		return
	}
	heap.Pop(&hk.heap)
	delete(hk.byName, it.name)
	hk.mu.Unlock()

	if d := it.f(); d > 0 {
		hk.add(request{name: it.name, f: it.f, d: d})
	}
}
