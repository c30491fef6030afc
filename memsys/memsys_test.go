package memsys_test

import (
	"sync"
	"testing"
	"time"

	"github.com/ripc-core/rtmd/memsys"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	mm := (&memsys.MMSA{Name: "t", TimeIval: time.Second}).Init(0)
	buf, err := mm.Alloc(memsys.DefaultBufSize)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if len(buf) != memsys.DefaultBufSize {
		t.Fatalf("got %d bytes, want %d", len(buf), memsys.DefaultBufSize)
	}
	mm.Free(buf)
	stats := mm.GetStats()
	if _, ok := stats.Hits[memsys.DefaultBufSize]; !ok {
		t.Fatalf("expected a slab for size %d", memsys.DefaultBufSize)
	}
}

func TestBoundedSlabExhaustion(t *testing.T) {
	mm := (&memsys.MMSA{Name: "bounded"}).Init(0)
	slab := mm.Register(memsys.PageSize, 2 /*guaranteed*/, 2 /*max*/)

	b1, err := slab.Alloc()
	if err != nil {
		t.Fatalf("alloc 1: %v", err)
	}
	b2, err := slab.Alloc()
	if err != nil {
		t.Fatalf("alloc 2: %v", err)
	}
	if _, err := slab.Alloc(); err == nil {
		t.Fatal("expected no-buffers error on third alloc from a max=2 slab")
	}
	slab.Free(b1)
	if _, err := slab.Alloc(); err != nil {
		t.Fatalf("alloc after free should succeed: %v", err)
	}
	slab.Free(b2)
}

func TestFreeSpecReclaimsIdle(t *testing.T) {
	mm := (&memsys.MMSA{Name: "reclaim"}).Init(0)
	slab := mm.Register(memsys.PageSize, 0, 0)
	bufs := make([][]byte, 0, 8)
	for i := 0; i < 8; i++ {
		b, _ := slab.Alloc()
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		slab.Free(b)
	}
	freed := mm.FreeSpec(memsys.FreeSpec{Totally: true, ToOS: true, MinSize: 1})
	if freed != 8 {
		t.Fatalf("expected to reclaim 8 idle buffers, got %d", freed)
	}
}

func TestConcurrentAllocFree(t *testing.T) {
	mm := (&memsys.MMSA{Name: "concurrent"}).Init(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b, err := mm.Alloc(memsys.DefaultBufSize)
				if err != nil {
					t.Error(err)
					return
				}
				mm.Free(b)
			}
		}()
	}
	wg.Wait()
}
