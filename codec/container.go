// Container codec: field list, element list, map, vector, series, filter
// list and array (spec §3 "Container types", §4.2). Each container is a
// 2-byte length (see iterator.go) followed by an optional set-definition
// reference, an entry count, and a flat run of entries; entries carry
// either a field/element id (set-driven, short form) or an explicit
// name+type pair (standard form).
//
// Grounded on Cpp-C/Eta/Impl/Codec/fieldListEncoder.c and mapEncoder.c
// (original_source) for the set-data vs standard-data duality, and on
// the teacher's transport/bundle/stream_bundle.go for the Go idiom of a
// small header struct plus a slice of typed entries.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package codec

import (
	"github.com/ripc-core/rtmd/rtderr"
)

// ContainerType enumerates the seven container kinds (spec §3).
type ContainerType uint8

const (
	ContainerNone ContainerType = iota
	ContainerFieldList
	ContainerElementList
	ContainerMap
	ContainerVector
	ContainerSeries
	ContainerFilterList
	ContainerArray
)

// DataType enumerates the primitive and container type tags an entry's
// standard-form header carries (spec §3/§4.2).
type DataType uint8

const (
	DataTypeUnknown DataType = iota
	DataTypeUint
	DataTypeInt
	DataTypeReal
	DataTypeDate
	DataTypeTime
	DataTypeDateTime
	DataTypeQoS
	DataTypeState
	DataTypeEnum
	DataTypeBuffer
	DataTypeFieldList
	DataTypeElementList
	DataTypeMap
	DataTypeVector
	DataTypeSeries
	DataTypeFilterList
	DataTypeArray
	DataTypeNoData
)

//
// FieldList: entries keyed by a small integer field id, each with an
// explicit DataType tag, optionally abbreviated against a FieldSetDef.
//

type FieldEntry struct {
	FieldID int16
	Type    DataType
	Data    []byte // pre-encoded primitive/container payload
}

type FieldListFlags uint8

const (
	FieldListHasSetID FieldListFlags = 1 << iota
	FieldListHasStandardData
)

type FieldList struct {
	Flags   FieldListFlags
	SetID   uint16
	Entries []FieldEntry
}

func EncodeFieldList(it *EncodeIterator, fl FieldList, setDB *FieldSetDB) error {
	if err := it.OpenContainer(); err != nil {
		return err
	}
	if err := it.PutUint(uint64(fl.Flags)); err != nil {
		return err
	}
	if fl.Flags&FieldListHasSetID != 0 {
		if err := it.PutEnum(fl.SetID); err != nil {
			return err
		}
	}
	var def *SetDef
	if fl.Flags&FieldListHasSetID != 0 && setDB != nil {
		def = setDB.Get(fl.SetID)
	}
	setEntries, stdEntries := splitFieldEntries(fl.Entries, def)
	if err := it.PutU15(uint16(len(setEntries))); err != nil {
		return err
	}
	for _, e := range setEntries {
		if err := it.PutRaw(e.Data); err != nil {
			return err
		}
	}
	if fl.Flags&FieldListHasStandardData != 0 {
		if err := it.PutU15(uint16(len(stdEntries))); err != nil {
			return err
		}
		for _, e := range stdEntries {
			if err := encodeFieldEntry(it, e); err != nil {
				return err
			}
		}
	}
	return it.CloseContainer()
}

func splitFieldEntries(entries []FieldEntry, def *SetDef) (setEntries, stdEntries []FieldEntry) {
	if def == nil {
		return nil, entries
	}
	known := make(map[int16]bool, len(def.Members))
	for _, m := range def.Members {
		known[m.ID] = true
	}
	for _, e := range entries {
		if known[e.FieldID] {
			setEntries = append(setEntries, e)
		} else {
			stdEntries = append(stdEntries, e)
		}
	}
	return
}

func encodeFieldEntry(it *EncodeIterator, e FieldEntry) error {
	if err := it.PutInt(int64(e.FieldID)); err != nil {
		return err
	}
	if err := it.PutUint(uint64(e.Type)); err != nil {
		return err
	}
	return it.PutBufU16(e.Data)
}

func DecodeFieldList(it *DecodeIterator, setDB *FieldSetDB) (fl FieldList, err error) {
	if _, err = it.EnterContainer(); err != nil {
		return FieldList{}, err
	}
	defer it.ExitContainer()
	flags, err := it.GetUint()
	if err != nil {
		return FieldList{}, err
	}
	fl.Flags = FieldListFlags(flags)
	if fl.Flags&FieldListHasSetID != 0 {
		if fl.SetID, err = it.GetEnum(); err != nil {
			return FieldList{}, err
		}
	}
	var def *SetDef
	if fl.Flags&FieldListHasSetID != 0 && setDB != nil {
		def = setDB.Get(fl.SetID)
	}
	setCount, err := it.GetU15()
	if err != nil {
		return FieldList{}, err
	}
	if def != nil && int(setCount) > len(def.Members) {
		return FieldList{}, rtderr.New(rtderr.InvalidData, 0, "field list: %d set entries exceeds set definition's %d members", setCount, len(def.Members))
	}
	for i := 0; i < int(setCount); i++ {
		raw, err := it.GetRaw(def.Members[i].FixedSize)
		if err != nil {
			return FieldList{}, err
		}
		fl.Entries = append(fl.Entries, FieldEntry{FieldID: def.Members[i].ID, Type: def.Members[i].Type, Data: raw})
	}
	if fl.Flags&FieldListHasStandardData != 0 {
		stdCount, err := it.GetU15()
		if err != nil {
			return FieldList{}, err
		}
		for i := 0; i < int(stdCount); i++ {
			e, err := decodeFieldEntry(it)
			if err != nil {
				return FieldList{}, err
			}
			fl.Entries = append(fl.Entries, e)
		}
	}
	return fl, nil
}

func decodeFieldEntry(it *DecodeIterator) (e FieldEntry, err error) {
	id, err := it.GetInt()
	if err != nil {
		return
	}
	e.FieldID = int16(id)
	typ, err := it.GetUint()
	if err != nil {
		return
	}
	e.Type = DataType(typ)
	e.Data, err = it.GetBufU16()
	return
}

//
// ElementList: same shape as FieldList but keyed by a name (string)
// rather than a numeric id (spec §3 "Element list").
//

type ElementEntry struct {
	Name string
	Type DataType
	Data []byte
}

type ElementList struct {
	Entries []ElementEntry
}

func EncodeElementList(it *EncodeIterator, el ElementList) error {
	if err := it.OpenContainer(); err != nil {
		return err
	}
	if err := it.PutU15(uint16(len(el.Entries))); err != nil {
		return err
	}
	for _, e := range el.Entries {
		if err := it.PutBufU15([]byte(e.Name)); err != nil {
			return err
		}
		if err := it.PutUint(uint64(e.Type)); err != nil {
			return err
		}
		if err := it.PutBufU16(e.Data); err != nil {
			return err
		}
	}
	return it.CloseContainer()
}

func DecodeElementList(it *DecodeIterator) (el ElementList, err error) {
	if _, err = it.EnterContainer(); err != nil {
		return
	}
	defer it.ExitContainer()
	count, err := it.GetU15()
	if err != nil {
		return
	}
	for i := 0; i < int(count); i++ {
		var e ElementEntry
		name, err2 := it.GetBufU15()
		if err2 != nil {
			return ElementList{}, err2
		}
		e.Name = string(name)
		typ, err2 := it.GetUint()
		if err2 != nil {
			return ElementList{}, err2
		}
		e.Type = DataType(typ)
		e.Data, err2 = it.GetBufU16()
		if err2 != nil {
			return ElementList{}, err2
		}
		el.Entries = append(el.Entries, e)
	}
	return el, nil
}

//
// Map: key-value pairs with per-entry actions (add/update/delete) and an
// optional summary-data entry carried in the header (spec §3 "Map").
//

type MapAction uint8

const (
	MapActionUpdate MapAction = iota
	MapActionAdd
	MapActionDelete
)

type MapEntry struct {
	Action  MapAction
	KeyType DataType
	Key     []byte
	Data    []byte
}

type Map struct {
	KeyType     DataType
	SummaryData []byte
	Entries     []MapEntry
}

func EncodeMap(it *EncodeIterator, m Map) error {
	if err := it.OpenContainer(); err != nil {
		return err
	}
	if err := it.PutUint(uint64(m.KeyType)); err != nil {
		return err
	}
	if err := it.PutBufU16(m.SummaryData); err != nil {
		return err
	}
	if err := it.PutU15(uint16(len(m.Entries))); err != nil {
		return err
	}
	for _, e := range m.Entries {
		if err := it.PutUint(uint64(e.Action)); err != nil {
			return err
		}
		if err := it.PutBufU16(e.Key); err != nil {
			return err
		}
		if e.Action != MapActionDelete {
			if err := it.PutBufU16(e.Data); err != nil {
				return err
			}
		}
	}
	return it.CloseContainer()
}

func DecodeMap(it *DecodeIterator) (m Map, err error) {
	if _, err = it.EnterContainer(); err != nil {
		return
	}
	defer it.ExitContainer()
	kt, err := it.GetUint()
	if err != nil {
		return
	}
	m.KeyType = DataType(kt)
	if m.SummaryData, err = it.GetBufU16(); err != nil {
		return
	}
	count, err := it.GetU15()
	if err != nil {
		return
	}
	for i := 0; i < int(count); i++ {
		var e MapEntry
		e.KeyType = m.KeyType
		act, err2 := it.GetUint()
		if err2 != nil {
			return Map{}, err2
		}
		e.Action = MapAction(act)
		if e.Key, err2 = it.GetBufU16(); err2 != nil {
			return Map{}, err2
		}
		if e.Action != MapActionDelete {
			if e.Data, err2 = it.GetBufU16(); err2 != nil {
				return Map{}, err2
			}
		}
		m.Entries = append(m.Entries, e)
	}
	return m, nil
}

//
// Vector: index-keyed entries, analogous to Map but with a U30 numeric
// index instead of an arbitrary key (spec §3 "Vector").
//

type VectorEntry struct {
	Action MapAction
	Index  uint32
	Data   []byte
}

type Vector struct {
	SummaryData []byte
	Entries     []VectorEntry
}

func EncodeVector(it *EncodeIterator, v Vector) error {
	if err := it.OpenContainer(); err != nil {
		return err
	}
	if err := it.PutBufU16(v.SummaryData); err != nil {
		return err
	}
	if err := it.PutU15(uint16(len(v.Entries))); err != nil {
		return err
	}
	for _, e := range v.Entries {
		if err := it.PutUint(uint64(e.Action)); err != nil {
			return err
		}
		if err := it.PutU30(e.Index); err != nil {
			return err
		}
		if e.Action != MapActionDelete {
			if err := it.PutBufU16(e.Data); err != nil {
				return err
			}
		}
	}
	return it.CloseContainer()
}

func DecodeVector(it *DecodeIterator) (v Vector, err error) {
	if _, err = it.EnterContainer(); err != nil {
		return
	}
	defer it.ExitContainer()
	if v.SummaryData, err = it.GetBufU16(); err != nil {
		return
	}
	count, err := it.GetU15()
	if err != nil {
		return
	}
	for i := 0; i < int(count); i++ {
		var e VectorEntry
		act, err2 := it.GetUint()
		if err2 != nil {
			return Vector{}, err2
		}
		e.Action = MapAction(act)
		if e.Index, err2 = it.GetU30(); err2 != nil {
			return Vector{}, err2
		}
		if e.Action != MapActionDelete {
			if e.Data, err2 = it.GetBufU16(); err2 != nil {
				return Vector{}, err2
			}
		}
		v.Entries = append(v.Entries, e)
	}
	return v, nil
}

//
// Series: a run of same-shaped rows sharing one set definition, used for
// bulk historical/snapshot payloads (spec §3 "Series").
//

type Series struct {
	SetID uint16
	Rows  [][]byte // each row is a pre-encoded, set-defined payload
}

func EncodeSeries(it *EncodeIterator, s Series) error {
	if err := it.OpenContainer(); err != nil {
		return err
	}
	if err := it.PutEnum(s.SetID); err != nil {
		return err
	}
	if err := it.PutU15(uint16(len(s.Rows))); err != nil {
		return err
	}
	for _, row := range s.Rows {
		if err := it.PutBufU16(row); err != nil {
			return err
		}
	}
	return it.CloseContainer()
}

func DecodeSeries(it *DecodeIterator) (s Series, err error) {
	if _, err = it.EnterContainer(); err != nil {
		return
	}
	defer it.ExitContainer()
	if s.SetID, err = it.GetEnum(); err != nil {
		return
	}
	count, err := it.GetU15()
	if err != nil {
		return
	}
	for i := 0; i < int(count); i++ {
		row, err2 := it.GetBufU16()
		if err2 != nil {
			return Series{}, err2
		}
		s.Rows = append(s.Rows, row)
	}
	return s, nil
}

//
// FilterList: entries keyed by a small filter id, each independently
// update/set/clear-able (spec §3 "Filter list").
//

type FilterAction uint8

const (
	FilterActionUpdate FilterAction = iota
	FilterActionSet
	FilterActionClear
)

type FilterEntry struct {
	FilterID uint8
	Action   FilterAction
	Type     DataType
	Data     []byte
}

type FilterList struct {
	Entries []FilterEntry
}

func EncodeFilterList(it *EncodeIterator, f FilterList) error {
	if err := it.OpenContainer(); err != nil {
		return err
	}
	if err := it.PutU15(uint16(len(f.Entries))); err != nil {
		return err
	}
	for _, e := range f.Entries {
		if err := it.PutUint(uint64(e.FilterID)); err != nil {
			return err
		}
		if err := it.PutUint(uint64(e.Action)); err != nil {
			return err
		}
		if e.Action != FilterActionClear {
			if err := it.PutUint(uint64(e.Type)); err != nil {
				return err
			}
			if err := it.PutBufU16(e.Data); err != nil {
				return err
			}
		}
	}
	return it.CloseContainer()
}

func DecodeFilterList(it *DecodeIterator) (f FilterList, err error) {
	if _, err = it.EnterContainer(); err != nil {
		return
	}
	defer it.ExitContainer()
	count, err := it.GetU15()
	if err != nil {
		return
	}
	for i := 0; i < int(count); i++ {
		var e FilterEntry
		id, err2 := it.GetUint()
		if err2 != nil {
			return FilterList{}, err2
		}
		e.FilterID = uint8(id)
		act, err2 := it.GetUint()
		if err2 != nil {
			return FilterList{}, err2
		}
		e.Action = FilterAction(act)
		if e.Action != FilterActionClear {
			typ, err2 := it.GetUint()
			if err2 != nil {
				return FilterList{}, err2
			}
			e.Type = DataType(typ)
			if e.Data, err2 = it.GetBufU16(); err2 != nil {
				return FilterList{}, err2
			}
		}
		f.Entries = append(f.Entries, e)
	}
	return f, nil
}

//
// Array: a homogeneous run of primitives of one DataType, each entry a
// fixed-form length-specified encoding of that type (spec §3 "Array").
//

type Array struct {
	ItemType DataType
	Items    [][]byte
}

func EncodeArray(it *EncodeIterator, a Array) error {
	if err := it.OpenContainer(); err != nil {
		return err
	}
	if err := it.PutUint(uint64(a.ItemType)); err != nil {
		return err
	}
	if err := it.PutU15(uint16(len(a.Items))); err != nil {
		return err
	}
	for _, item := range a.Items {
		if err := it.PutBufU16(item); err != nil {
			return err
		}
	}
	return it.CloseContainer()
}

func DecodeArray(it *DecodeIterator) (a Array, err error) {
	if _, err = it.EnterContainer(); err != nil {
		return
	}
	defer it.ExitContainer()
	typ, err := it.GetUint()
	if err != nil {
		return
	}
	a.ItemType = DataType(typ)
	count, err := it.GetU15()
	if err != nil {
		return
	}
	for i := 0; i < int(count); i++ {
		item, err2 := it.GetBufU16()
		if err2 != nil {
			return Array{}, err2
		}
		a.Items = append(a.Items, item)
	}
	return a, nil
}
