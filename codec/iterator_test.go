package codec_test

import (
	"bytes"
	"testing"

	"github.com/ripc-core/rtmd/codec"
)

// TestRealignPreservesAlreadyWrittenBytes exercises the round-trip law
// (spec §8): realigning to a larger buffer then continuing an encode
// sequence must produce the same bytes as starting that same sequence
// directly in the larger buffer.
func TestRealignPreservesAlreadyWrittenBytes(t *testing.T) {
	small := make([]byte, 16)
	it := codec.NewEncodeIterator(small)
	if err := it.PutUint(42); err != nil {
		t.Fatalf("put uint: %v", err)
	}
	if err := it.PutBufU15([]byte("hello")); err != nil {
		t.Fatalf("put buf: %v", err)
	}
	prefix := append([]byte(nil), it.Bytes()...)

	big := make([]byte, 256)
	if err := it.Realign(big); err != nil {
		t.Fatalf("realign: %v", err)
	}
	if err := it.PutBufU15([]byte("a much longer tail that would not have fit before")); err != nil {
		t.Fatalf("put buf after realign: %v", err)
	}

	want := codec.NewEncodeIterator(make([]byte, 256))
	if err := want.PutUint(42); err != nil {
		t.Fatalf("want put uint: %v", err)
	}
	if err := want.PutBufU15([]byte("hello")); err != nil {
		t.Fatalf("want put buf: %v", err)
	}
	if err := want.PutBufU15([]byte("a much longer tail that would not have fit before")); err != nil {
		t.Fatalf("want put buf after: %v", err)
	}

	if !bytes.Equal(it.Bytes(), want.Bytes()) {
		t.Fatalf("realigned encode diverged from a direct encode into the larger buffer:\ngot  %v\nwant %v", it.Bytes(), want.Bytes())
	}
	if !bytes.HasPrefix(it.Bytes(), prefix) {
		t.Fatal("realign lost bytes already written before the resize")
	}
}

func TestRealignRejectsSmallerBuffer(t *testing.T) {
	it := codec.NewEncodeIterator(make([]byte, 32))
	if err := it.PutUint(7); err != nil {
		t.Fatalf("put uint: %v", err)
	}
	if err := it.Realign(make([]byte, 16)); err == nil {
		t.Fatal("expected realign to reject a buffer smaller than the original")
	}
}

func TestRealignPreservesOpenContainerLevels(t *testing.T) {
	it := codec.NewEncodeIterator(make([]byte, 16))
	if err := it.OpenContainer(); err != nil {
		t.Fatalf("open container: %v", err)
	}
	if err := it.PutUint(1); err != nil {
		t.Fatalf("put uint: %v", err)
	}

	big := make([]byte, 256)
	if err := it.Realign(big); err != nil {
		t.Fatalf("realign: %v", err)
	}
	if err := it.PutUint(2); err != nil {
		t.Fatalf("put uint after realign: %v", err)
	}
	if err := it.CloseContainer(); err != nil {
		t.Fatalf("close container: %v", err)
	}

	dit := codec.NewDecodeIterator(it.Bytes())
	length, err := dit.EnterContainer()
	if err != nil {
		t.Fatalf("enter container: %v", err)
	}
	if length == 0 {
		t.Fatal("expected a nonzero container length spanning bytes written both before and after realign")
	}
}
