package codec_test

import (
	"bytes"
	"testing"

	"github.com/ripc-core/rtmd/codec"
)

func TestFieldListStandardDataRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	it := codec.NewEncodeIterator(buf)
	fl := codec.FieldList{
		Flags: codec.FieldListHasStandardData,
		Entries: []codec.FieldEntry{
			{FieldID: 22, Type: codec.DataTypeReal, Data: []byte{0x03, 0x00, 0x7b}},
			{FieldID: 25, Type: codec.DataTypeUint, Data: []byte{0x01, 0x05}},
		},
	}
	if err := codec.EncodeFieldList(it, fl, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}

	dit := codec.NewDecodeIterator(it.Bytes())
	got, err := codec.DecodeFieldList(dit, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(got.Entries))
	}
	if got.Entries[0].FieldID != 22 || got.Entries[0].Type != codec.DataTypeReal {
		t.Fatalf("entry 0 mismatch: %+v", got.Entries[0])
	}
	if !bytes.Equal(got.Entries[1].Data, fl.Entries[1].Data) {
		t.Fatalf("entry 1 data mismatch: %v", got.Entries[1].Data)
	}
}

func TestFieldListWithSetDefinition(t *testing.T) {
	setDB := codec.NewFieldSetDB()
	def := codec.NewSetDef(7, []codec.SetMember{
		{ID: 22, Type: codec.DataTypeReal, FixedSize: 3},
		{ID: 25, Type: codec.DataTypeUint, FixedSize: 2},
	})
	if err := setDB.Put(def); err != nil {
		t.Fatalf("put def: %v", err)
	}

	buf := make([]byte, 256)
	it := codec.NewEncodeIterator(buf)
	fl := codec.FieldList{
		Flags: codec.FieldListHasSetID,
		SetID: 7,
		Entries: []codec.FieldEntry{
			{FieldID: 22, Type: codec.DataTypeReal, Data: []byte{0x03, 0x00, 0x7b}},
			{FieldID: 25, Type: codec.DataTypeUint, Data: []byte{0x01, 0x05}},
		},
	}
	if err := codec.EncodeFieldList(it, fl, setDB); err != nil {
		t.Fatalf("encode: %v", err)
	}

	dit := codec.NewDecodeIterator(it.Bytes())
	got, err := codec.DecodeFieldList(dit, setDB)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[0].FieldID != 22 {
		t.Fatalf("set-defined roundtrip mismatch: %+v", got)
	}
}

func TestSetDefRedefinitionRejected(t *testing.T) {
	db := codec.NewFieldSetDB()
	d1 := codec.NewSetDef(1, []codec.SetMember{{ID: 1, Type: codec.DataTypeUint, FixedSize: 2}})
	d2 := codec.NewSetDef(1, []codec.SetMember{{ID: 9, Type: codec.DataTypeReal, FixedSize: 4}})
	if err := db.Put(d1); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := db.Put(d2); err == nil {
		t.Fatal("expected rejection of redefined set id with different layout")
	}
}

func TestMapRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	it := codec.NewEncodeIterator(buf)
	m := codec.Map{
		KeyType: codec.DataTypeBuffer,
		Entries: []codec.MapEntry{
			{Action: codec.MapActionAdd, Key: []byte("AAPL.O"), Data: []byte{0x01, 0x02}},
			{Action: codec.MapActionDelete, Key: []byte("MSFT.O")},
		},
	}
	if err := codec.EncodeMap(it, m); err != nil {
		t.Fatalf("encode: %v", err)
	}
	dit := codec.NewDecodeIterator(it.Bytes())
	got, err := codec.DecodeMap(dit)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 2 || string(got.Entries[0].Key) != "AAPL.O" {
		t.Fatalf("map roundtrip mismatch: %+v", got)
	}
	if got.Entries[1].Action != codec.MapActionDelete || got.Entries[1].Data != nil {
		t.Fatalf("delete entry should carry no data: %+v", got.Entries[1])
	}
}

func TestNestedContainerInMapEntry(t *testing.T) {
	inner := make([]byte, 128)
	iit := codec.NewEncodeIterator(inner)
	fl := codec.FieldList{Flags: codec.FieldListHasStandardData, Entries: []codec.FieldEntry{
		{FieldID: 1, Type: codec.DataTypeUint, Data: []byte{0x01, 0x2a}},
	}}
	if err := codec.EncodeFieldList(iit, fl, nil); err != nil {
		t.Fatalf("inner encode: %v", err)
	}

	buf := make([]byte, 256)
	it := codec.NewEncodeIterator(buf)
	m := codec.Map{
		KeyType: codec.DataTypeBuffer,
		Entries: []codec.MapEntry{{Action: codec.MapActionAdd, Key: []byte("k"), Data: iit.Bytes()}},
	}
	if err := codec.EncodeMap(it, m); err != nil {
		t.Fatalf("encode: %v", err)
	}

	dit := codec.NewDecodeIterator(it.Bytes())
	got, err := codec.DecodeMap(dit)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	inner2 := codec.NewDecodeIterator(got.Entries[0].Data)
	innerFL, err := codec.DecodeFieldList(inner2, nil)
	if err != nil {
		t.Fatalf("inner decode: %v", err)
	}
	if len(innerFL.Entries) != 1 || innerFL.Entries[0].FieldID != 1 {
		t.Fatalf("nested field list mismatch: %+v", innerFL)
	}
}

func TestVectorDeleteEntrySkipsData(t *testing.T) {
	buf := make([]byte, 128)
	it := codec.NewEncodeIterator(buf)
	v := codec.Vector{Entries: []codec.VectorEntry{
		{Action: codec.MapActionAdd, Index: 3, Data: []byte{1, 2, 3}},
		{Action: codec.MapActionDelete, Index: 4},
	}}
	if err := codec.EncodeVector(it, v); err != nil {
		t.Fatalf("encode: %v", err)
	}
	dit := codec.NewDecodeIterator(it.Bytes())
	got, err := codec.DecodeVector(dit)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 2 || got.Entries[1].Index != 4 || got.Entries[1].Data != nil {
		t.Fatalf("vector roundtrip mismatch: %+v", got)
	}
}

func TestArrayRoundTrip(t *testing.T) {
	buf := make([]byte, 128)
	it := codec.NewEncodeIterator(buf)
	a := codec.Array{ItemType: codec.DataTypeUint, Items: [][]byte{{0x01, 0x01}, {0x01, 0x02}, {0x01, 0x03}}}
	if err := codec.EncodeArray(it, a); err != nil {
		t.Fatalf("encode: %v", err)
	}
	dit := codec.NewDecodeIterator(it.Bytes())
	got, err := codec.DecodeArray(dit)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Items) != 3 {
		t.Fatalf("want 3 items, got %d", len(got.Items))
	}
}
