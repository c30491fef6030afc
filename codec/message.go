// Message envelope: the eight message classes riding over ripc frames
// (spec §3, §4.3) — request, refresh, status, update, close, ack,
// generic, post — sharing a common header (class, domain type, stream
// id, container type, flags) and a message key (service id, name, name
// type, filter, numeric identifier, attrib sub-container), with
// class-specific optional fields gated by the shared flags word.
//
// Grounded on Cpp-C/Eta/Impl/Codec/msgEncoders.c's per-class flag byte +
// shared-base-header shape (original_source) and on the teacher's
// transport/sendmsg.go for the Go idiom of a header struct plus a
// []byte payload traveling together through one send call.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package codec

import (
	"github.com/ripc-core/rtmd/rtderr"
)

type MsgClass uint8

const (
	MsgClassRequest MsgClass = iota + 1
	MsgClassRefresh
	MsgClassStatus
	MsgClassUpdate
	MsgClassClose
	MsgClassAck
	MsgClassGeneric
	MsgClassPost
)

func (c MsgClass) Valid() bool { return c >= MsgClassRequest && c <= MsgClassPost }

// MsgFlags is a single length-specified bitmask shared by every class;
// which bits apply depends on Class, the way the original's per-class
// flag enums (RequestMsgFlags, RefreshMsgFlags, ...) each carve up their
// own byte. Encoded with PutUint/GetUint, so it rides the wire at
// whatever width the set bits need rather than a fixed size.
type MsgFlags uint64

const (
	MsgFlagHasExtHeader MsgFlags = 1 << iota
	MsgFlagHasPayload
	MsgFlagHasKey
	MsgFlagHasQoS
	MsgFlagHasWorstQoS
	MsgFlagHasPriority
	MsgFlagStreaming       // request: more updates wanted after the refresh
	MsgFlagNoRefresh       // request: no initial refresh wanted
	MsgFlagPrivateStream   // request/refresh/status: stream is not shared across consumers
	MsgFlagPause           // request: suspend without closing
	MsgFlagView            // request: a view (field/element subset) follows in the payload
	MsgFlagBatch           // request: payload carries multiple item requests; close: batch close
	MsgFlagQualifiedStream // request: qualified (entitled) stream
	MsgFlagHasGroupID
	MsgFlagHasPermData
	MsgFlagHasSeqNum
	MsgFlagClearCache // refresh/status: consumer should drop prior cached state first
	MsgFlagSolicited  // refresh: sent in response to a request, not unsolicited
	MsgFlagRefreshComplete
	MsgFlagHasPostUserInfo
	MsgFlagRequestKeyEcho // refresh/status/generic: ReqKey echoes the request that prompted this message
	MsgFlagHasConflation
	MsgFlagDoNotCache
	MsgFlagDoNotConflate
	MsgFlagDoNotRipple
	MsgFlagDiscardable
	MsgFlagHasNakCode
	MsgFlagHasText
	MsgFlagHasPostUserRights
	MsgFlagPostComplete
	MsgFlagAckRequired // request/post: sender wants an Ack/Status back; close: acknowledge the close
	MsgFlagMsgComplete // generic: final part of a multi-part generic message
	MsgFlagHasState
	MsgFlagHasSecondarySeqNum
	MsgFlagHasPartNum
)

// MaxDomainType bounds the domain-type byte this port treats as valid
// (spec §4.3 "domain type is within the supported range"), mirroring
// the practical ceiling of the RDM domain model the wire format is
// patterned on. 0 is reserved and also rejected.
const MaxDomainType uint8 = 200

// MsgKeyFlags controls which of a MsgKey's optional sub-fields are
// present on the wire (spec §3 "message key (flags, service id, name,
// name type, filter, numeric identifier, attrib)").
type MsgKeyFlags uint16

const (
	KeyHasServiceID MsgKeyFlags = 1 << iota
	KeyHasName
	KeyHasNameType
	KeyHasFilter
	KeyHasIdentifier
	KeyHasAttrib
)

// MsgKey identifies the item a request/refresh/status/generic message
// refers to. ReqKey on Msg reuses this type to echo the originating
// request's key back on a response (spec §3 "request-key echo").
type MsgKey struct {
	Flags     MsgKeyFlags
	ServiceID uint16
	Name      []byte
	NameType  uint8
	Filter    uint32
	Identifier int32

	AttribContainerType ContainerType
	Attrib              []byte // pre-encoded container bytes
}

// RequestPriority is a request message's priority class plus a count
// used to break ties within a class.
type RequestPriority struct {
	Class uint8
	Count uint16
}

// Conflation carries an update message's conflation count and elapsed
// time (spec §3 "conflation (count,time)").
type Conflation struct {
	Count uint16
	Time  uint16
}

// PostUserInfo identifies the user that originated a post, carried on
// refresh/update/post messages flagged MsgFlagHasPostUserInfo.
type PostUserInfo struct {
	Addr   uint32
	UserID uint32
}

// PostUserRights is a post message's create/delete/modify-permission
// bitmask (spec §3 "post-user-rights (create/delete/modify-perm)").
type PostUserRights uint8

const (
	PostUserRightsCreate PostUserRights = 1 << iota
	PostUserRightsDelete
	PostUserRightsModifyPerm
)

// NakCode enumerates the ten reasons an Ack message can carry when it
// is actually negative-acknowledging something (spec §3's "ack" class
// entry). The zero value means "no nak" — a plain ack.
type NakCode uint8

const (
	NakCodeNone NakCode = iota
	NakCodeAccessDenied
	NakCodeDeniedBySource
	NakCodeSourceDown
	NakCodeSourceUnknown
	NakCodeNoResources
	NakCodeNoResponse
	NakCodeGatewayDown
	NakCodeSymbolUnknown
	NakCodeNotOpen
	NakCodeInvalidContent
)

// Msg is the single Go type for all eight classes; which fields are
// meaningful for a given Class is governed by Flags, mirroring the wire
// format's shared base header plus class-specific tail (spec §3).
type Msg struct {
	Class         MsgClass
	DomainType    uint8
	StreamID      int32
	ContainerType ContainerType
	Flags         MsgFlags

	Key    MsgKey // request/refresh/status/update/post/generic: item identity
	ReqKey MsgKey // refresh/status/generic: echo of the request that prompted this message

	ExtHeader []byte // supplemental class-specific header bytes (e.g. Close reason)
	State     State  // refresh (always)/status (optional)
	QoS       QoS    // request/refresh: requested or negotiated quality of service
	WorstQoS  QoS    // request: worst QoS the requester will accept
	Priority  RequestPriority

	GroupID  []byte // refresh/status: the item's group membership
	PermData []byte // refresh/status/update/generic: permission data blob

	SeqNum          uint32
	SecondarySeqNum uint32 // generic: a second, independent sequence
	PartNum         uint16 // refresh/post/generic: part number within a multi-part message
	Conflation      Conflation

	PostUserInfo   PostUserInfo
	PostID         uint32
	PostUserRights PostUserRights

	AckID   uint32
	NakCode NakCode
	Text    []byte // ack: optional diagnostic text

	UpdateType uint8 // update: provider-defined update-type byte

	Payload []byte // pre-encoded container bytes (see container.go)

	// Raw is the exact byte range DecodeMsg consumed to produce this
	// Msg, when it was produced by DecodeMsg; CloneMsg's fast path
	// uses it to avoid re-walking every sub-field (spec §4.3 "the fast
	// path exploits ... a single contiguous copy ... when the raw
	// encoded bytes are intact").
	Raw []byte
}

func (it *EncodeIterator) putMsgKey(k MsgKey) error {
	if err := it.PutEnum(uint16(k.Flags)); err != nil {
		return err
	}
	if k.Flags&KeyHasServiceID != 0 {
		if err := it.PutEnum(k.ServiceID); err != nil {
			return err
		}
	}
	if k.Flags&KeyHasName != 0 {
		if err := it.PutBufU15(k.Name); err != nil {
			return err
		}
	}
	if k.Flags&KeyHasNameType != 0 {
		if err := it.PutUint(uint64(k.NameType)); err != nil {
			return err
		}
	}
	if k.Flags&KeyHasFilter != 0 {
		if err := it.PutUint(uint64(k.Filter)); err != nil {
			return err
		}
	}
	if k.Flags&KeyHasIdentifier != 0 {
		if err := it.PutInt(int64(k.Identifier)); err != nil {
			return err
		}
	}
	if k.Flags&KeyHasAttrib != 0 {
		if err := it.PutUint(uint64(k.AttribContainerType)); err != nil {
			return err
		}
		if err := it.PutBufU16(k.Attrib); err != nil {
			return err
		}
	}
	return nil
}

func (it *DecodeIterator) getMsgKey() (MsgKey, error) {
	var k MsgKey
	fl, err := it.GetEnum()
	if err != nil {
		return MsgKey{}, err
	}
	k.Flags = MsgKeyFlags(fl)
	if k.Flags&KeyHasServiceID != 0 {
		if k.ServiceID, err = it.GetEnum(); err != nil {
			return MsgKey{}, err
		}
	}
	if k.Flags&KeyHasName != 0 {
		if k.Name, err = it.GetBufU15(); err != nil {
			return MsgKey{}, err
		}
	}
	if k.Flags&KeyHasNameType != 0 {
		v, err2 := it.GetUint()
		if err2 != nil {
			return MsgKey{}, err2
		}
		k.NameType = uint8(v)
	}
	if k.Flags&KeyHasFilter != 0 {
		v, err2 := it.GetUint()
		if err2 != nil {
			return MsgKey{}, err2
		}
		k.Filter = uint32(v)
	}
	if k.Flags&KeyHasIdentifier != 0 {
		v, err2 := it.GetInt()
		if err2 != nil {
			return MsgKey{}, err2
		}
		k.Identifier = int32(v)
	}
	if k.Flags&KeyHasAttrib != 0 {
		v, err2 := it.GetUint()
		if err2 != nil {
			return MsgKey{}, err2
		}
		k.AttribContainerType = ContainerType(v)
		if k.Attrib, err = it.GetBufU16(); err != nil {
			return MsgKey{}, err
		}
	}
	return k, nil
}

func EncodeMsg(buf []byte, m Msg) (n int, err error) {
	if err := validateMsg(m); err != nil {
		return 0, err
	}
	it := NewEncodeIterator(buf)
	if err := it.writeHeader(m); err != nil {
		return 0, err
	}
	if m.Flags&MsgFlagHasKey != 0 {
		if err := it.putMsgKey(m.Key); err != nil {
			return 0, err
		}
	}
	var bodyErr error
	switch m.Class {
	case MsgClassRequest:
		bodyErr = encodeRequestBody(it, m)
	case MsgClassRefresh:
		bodyErr = encodeRefreshBody(it, m)
	case MsgClassStatus:
		bodyErr = encodeStatusBody(it, m)
	case MsgClassUpdate:
		bodyErr = encodeUpdateBody(it, m)
	case MsgClassClose:
		// no body beyond the shared flags/header/ext-header/payload.
	case MsgClassAck:
		bodyErr = encodeAckBody(it, m)
	case MsgClassPost:
		bodyErr = encodePostBody(it, m)
	case MsgClassGeneric:
		bodyErr = encodeGenericBody(it, m)
	}
	if bodyErr != nil {
		return 0, bodyErr
	}
	if m.Flags&MsgFlagHasExtHeader != 0 {
		if err := it.PutBufU16(m.ExtHeader); err != nil {
			return 0, err
		}
	}
	if m.Flags&MsgFlagHasPayload != 0 {
		if err := it.PutU30(uint32(len(m.Payload))); err != nil {
			return 0, err
		}
		if err := it.PutRaw(m.Payload); err != nil {
			return 0, err
		}
	}
	return it.Len(), nil
}

func encodeRequestBody(it *EncodeIterator, m Msg) error {
	if m.Flags&MsgFlagHasPriority != 0 {
		if err := it.PutUint(uint64(m.Priority.Class)); err != nil {
			return err
		}
		if err := it.PutEnum(m.Priority.Count); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasQoS != 0 {
		if err := it.PutQoS(m.QoS); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasWorstQoS != 0 {
		if err := it.PutQoS(m.WorstQoS); err != nil {
			return err
		}
	}
	return nil
}

func encodeRefreshBody(it *EncodeIterator, m Msg) error {
	if err := it.PutState(m.State); err != nil {
		return err
	}
	if m.Flags&MsgFlagHasGroupID != 0 {
		if err := it.PutBufU15(m.GroupID); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPermData != 0 {
		if err := it.PutBufU15(m.PermData); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasQoS != 0 {
		if err := it.PutQoS(m.QoS); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPartNum != 0 {
		if err := it.PutEnum(m.PartNum); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasSeqNum != 0 {
		if err := it.PutUint(uint64(m.SeqNum)); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPostUserInfo != 0 {
		if err := it.PutUint(uint64(m.PostUserInfo.Addr)); err != nil {
			return err
		}
		if err := it.PutUint(uint64(m.PostUserInfo.UserID)); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagRequestKeyEcho != 0 {
		if err := it.putMsgKey(m.ReqKey); err != nil {
			return err
		}
	}
	return nil
}

func encodeStatusBody(it *EncodeIterator, m Msg) error {
	if m.Flags&MsgFlagHasState != 0 {
		if err := it.PutState(m.State); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasGroupID != 0 {
		if err := it.PutBufU15(m.GroupID); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPermData != 0 {
		if err := it.PutBufU15(m.PermData); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPostUserInfo != 0 {
		if err := it.PutUint(uint64(m.PostUserInfo.Addr)); err != nil {
			return err
		}
		if err := it.PutUint(uint64(m.PostUserInfo.UserID)); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagRequestKeyEcho != 0 {
		if err := it.putMsgKey(m.ReqKey); err != nil {
			return err
		}
	}
	return nil
}

func encodeUpdateBody(it *EncodeIterator, m Msg) error {
	if err := it.PutUint(uint64(m.UpdateType)); err != nil {
		return err
	}
	if m.Flags&MsgFlagHasSeqNum != 0 {
		if err := it.PutUint(uint64(m.SeqNum)); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasConflation != 0 {
		if err := it.PutEnum(m.Conflation.Count); err != nil {
			return err
		}
		if err := it.PutEnum(m.Conflation.Time); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPermData != 0 {
		if err := it.PutBufU15(m.PermData); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPostUserInfo != 0 {
		if err := it.PutUint(uint64(m.PostUserInfo.Addr)); err != nil {
			return err
		}
		if err := it.PutUint(uint64(m.PostUserInfo.UserID)); err != nil {
			return err
		}
	}
	return nil
}

func encodeAckBody(it *EncodeIterator, m Msg) error {
	if err := it.PutUint(uint64(m.AckID)); err != nil {
		return err
	}
	if m.Flags&MsgFlagHasNakCode != 0 {
		if err := it.PutUint(uint64(m.NakCode)); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasText != 0 {
		if err := it.PutBufU15(m.Text); err != nil {
			return err
		}
	}
	return nil
}

func encodePostBody(it *EncodeIterator, m Msg) error {
	if err := it.PutUint(uint64(m.PostID)); err != nil {
		return err
	}
	if err := it.PutUint(uint64(m.PostUserInfo.Addr)); err != nil {
		return err
	}
	if err := it.PutUint(uint64(m.PostUserInfo.UserID)); err != nil {
		return err
	}
	if m.Flags&MsgFlagHasSeqNum != 0 {
		if err := it.PutUint(uint64(m.SeqNum)); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPartNum != 0 {
		if err := it.PutEnum(m.PartNum); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPostUserRights != 0 {
		if err := it.PutUint(uint64(m.PostUserRights)); err != nil {
			return err
		}
	}
	return nil
}

func encodeGenericBody(it *EncodeIterator, m Msg) error {
	if m.Flags&MsgFlagHasSeqNum != 0 {
		if err := it.PutUint(uint64(m.SeqNum)); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasSecondarySeqNum != 0 {
		if err := it.PutUint(uint64(m.SecondarySeqNum)); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPartNum != 0 {
		if err := it.PutEnum(m.PartNum); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPermData != 0 {
		if err := it.PutBufU15(m.PermData); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagRequestKeyEcho != 0 {
		if err := it.putMsgKey(m.ReqKey); err != nil {
			return err
		}
	}
	return nil
}

func (it *EncodeIterator) writeHeader(m Msg) error {
	if err := it.PutUint(uint64(m.Class)); err != nil {
		return err
	}
	if err := it.PutUint(uint64(m.DomainType)); err != nil {
		return err
	}
	if err := it.PutInt(int64(m.StreamID)); err != nil {
		return err
	}
	if err := it.PutUint(uint64(m.ContainerType)); err != nil {
		return err
	}
	return it.PutUint(uint64(m.Flags))
}

func DecodeMsg(buf []byte) (m Msg, n int, err error) {
	it := NewDecodeIterator(buf)
	if err = it.readHeader(&m); err != nil {
		return Msg{}, 0, err
	}
	if !m.Class.Valid() {
		return Msg{}, 0, rtderr.New(rtderr.UnsupportedDataType, int(m.Class), "unknown message class %d", m.Class)
	}
	if m.Flags&MsgFlagHasKey != 0 {
		if m.Key, err = it.getMsgKey(); err != nil {
			return Msg{}, 0, err
		}
	}
	switch m.Class {
	case MsgClassRequest:
		err = decodeRequestBody(it, &m)
	case MsgClassRefresh:
		err = decodeRefreshBody(it, &m)
	case MsgClassStatus:
		err = decodeStatusBody(it, &m)
	case MsgClassUpdate:
		err = decodeUpdateBody(it, &m)
	case MsgClassClose:
		// no body.
	case MsgClassAck:
		err = decodeAckBody(it, &m)
	case MsgClassPost:
		err = decodePostBody(it, &m)
	case MsgClassGeneric:
		err = decodeGenericBody(it, &m)
	}
	if err != nil {
		return Msg{}, 0, err
	}
	if m.Flags&MsgFlagHasExtHeader != 0 {
		if m.ExtHeader, err = it.GetBufU16(); err != nil {
			return Msg{}, 0, err
		}
	}
	if m.Flags&MsgFlagHasPayload != 0 {
		plen, err2 := it.GetU30()
		if err2 != nil {
			return Msg{}, 0, err2
		}
		if m.Payload, err2 = it.GetRaw(int(plen)); err2 != nil {
			return Msg{}, 0, err2
		}
	}
	if err := validateMsg(m); err != nil {
		return Msg{}, 0, err
	}
	m.Raw = buf[:it.Pos()]
	return m, it.Pos(), nil
}

func decodeRequestBody(it *DecodeIterator, m *Msg) error {
	if m.Flags&MsgFlagHasPriority != 0 {
		v, err := it.GetUint()
		if err != nil {
			return err
		}
		m.Priority.Class = uint8(v)
		if m.Priority.Count, err = it.GetEnum(); err != nil {
			return err
		}
	}
	var err error
	if m.Flags&MsgFlagHasQoS != 0 {
		if m.QoS, err = it.GetQoS(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasWorstQoS != 0 {
		if m.WorstQoS, err = it.GetQoS(); err != nil {
			return err
		}
	}
	return nil
}

func decodeRefreshBody(it *DecodeIterator, m *Msg) error {
	var err error
	if m.State, err = it.GetState(); err != nil {
		return err
	}
	if m.Flags&MsgFlagHasGroupID != 0 {
		if m.GroupID, err = it.GetBufU15(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPermData != 0 {
		if m.PermData, err = it.GetBufU15(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasQoS != 0 {
		if m.QoS, err = it.GetQoS(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPartNum != 0 {
		if m.PartNum, err = it.GetEnum(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasSeqNum != 0 {
		v, err2 := it.GetUint()
		if err2 != nil {
			return err2
		}
		m.SeqNum = uint32(v)
	}
	if m.Flags&MsgFlagHasPostUserInfo != 0 {
		if err := getPostUserInfo(it, &m.PostUserInfo); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagRequestKeyEcho != 0 {
		if m.ReqKey, err = it.getMsgKey(); err != nil {
			return err
		}
	}
	return nil
}

func decodeStatusBody(it *DecodeIterator, m *Msg) error {
	var err error
	if m.Flags&MsgFlagHasState != 0 {
		if m.State, err = it.GetState(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasGroupID != 0 {
		if m.GroupID, err = it.GetBufU15(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPermData != 0 {
		if m.PermData, err = it.GetBufU15(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPostUserInfo != 0 {
		if err := getPostUserInfo(it, &m.PostUserInfo); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagRequestKeyEcho != 0 {
		if m.ReqKey, err = it.getMsgKey(); err != nil {
			return err
		}
	}
	return nil
}

func decodeUpdateBody(it *DecodeIterator, m *Msg) error {
	v, err := it.GetUint()
	if err != nil {
		return err
	}
	m.UpdateType = uint8(v)
	if m.Flags&MsgFlagHasSeqNum != 0 {
		v, err := it.GetUint()
		if err != nil {
			return err
		}
		m.SeqNum = uint32(v)
	}
	if m.Flags&MsgFlagHasConflation != 0 {
		if m.Conflation.Count, err = it.GetEnum(); err != nil {
			return err
		}
		if m.Conflation.Time, err = it.GetEnum(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPermData != 0 {
		if m.PermData, err = it.GetBufU15(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPostUserInfo != 0 {
		if err := getPostUserInfo(it, &m.PostUserInfo); err != nil {
			return err
		}
	}
	return nil
}

func decodeAckBody(it *DecodeIterator, m *Msg) error {
	v, err := it.GetUint()
	if err != nil {
		return err
	}
	m.AckID = uint32(v)
	if m.Flags&MsgFlagHasNakCode != 0 {
		nc, err := it.GetUint()
		if err != nil {
			return err
		}
		m.NakCode = NakCode(nc)
	}
	if m.Flags&MsgFlagHasText != 0 {
		if m.Text, err = it.GetBufU15(); err != nil {
			return err
		}
	}
	return nil
}

func decodePostBody(it *DecodeIterator, m *Msg) error {
	v, err := it.GetUint()
	if err != nil {
		return err
	}
	m.PostID = uint32(v)
	if err := getPostUserInfo(it, &m.PostUserInfo); err != nil {
		return err
	}
	if m.Flags&MsgFlagHasSeqNum != 0 {
		v, err := it.GetUint()
		if err != nil {
			return err
		}
		m.SeqNum = uint32(v)
	}
	if m.Flags&MsgFlagHasPartNum != 0 {
		if m.PartNum, err = it.GetEnum(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPostUserRights != 0 {
		v, err := it.GetUint()
		if err != nil {
			return err
		}
		m.PostUserRights = PostUserRights(v)
	}
	return nil
}

func decodeGenericBody(it *DecodeIterator, m *Msg) error {
	var err error
	if m.Flags&MsgFlagHasSeqNum != 0 {
		v, err2 := it.GetUint()
		if err2 != nil {
			return err2
		}
		m.SeqNum = uint32(v)
	}
	if m.Flags&MsgFlagHasSecondarySeqNum != 0 {
		v, err2 := it.GetUint()
		if err2 != nil {
			return err2
		}
		m.SecondarySeqNum = uint32(v)
	}
	if m.Flags&MsgFlagHasPartNum != 0 {
		if m.PartNum, err = it.GetEnum(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagHasPermData != 0 {
		if m.PermData, err = it.GetBufU15(); err != nil {
			return err
		}
	}
	if m.Flags&MsgFlagRequestKeyEcho != 0 {
		if m.ReqKey, err = it.getMsgKey(); err != nil {
			return err
		}
	}
	return nil
}

func getPostUserInfo(it *DecodeIterator, out *PostUserInfo) error {
	v, err := it.GetUint()
	if err != nil {
		return err
	}
	out.Addr = uint32(v)
	v, err = it.GetUint()
	if err != nil {
		return err
	}
	out.UserID = uint32(v)
	return nil
}

func (it *DecodeIterator) readHeader(m *Msg) error {
	class, err := it.GetUint()
	if err != nil {
		return err
	}
	m.Class = MsgClass(class)
	dt, err := it.GetUint()
	if err != nil {
		return err
	}
	m.DomainType = uint8(dt)
	sid, err := it.GetInt()
	if err != nil {
		return err
	}
	m.StreamID = int32(sid)
	ct, err := it.GetUint()
	if err != nil {
		return err
	}
	m.ContainerType = ContainerType(ct)
	fl, err := it.GetUint()
	if err != nil {
		return err
	}
	m.Flags = MsgFlags(fl)
	return nil
}

func validStreamState(s StreamState) bool { return s <= StreamStateRedirected }

// validateMsg enforces spec §4.3's post-header validation rules: every
// flagged optional buffer must carry non-null data, a flagged name must
// be non-null, status-code-bearing messages must carry a valid stream
// state, the domain type must be in range, and a request may not carry
// a worst-QoS without a QoS.
func validateMsg(m Msg) error {
	if !m.Class.Valid() {
		return rtderr.New(rtderr.UnsupportedDataType, int(m.Class), "unknown message class %d", m.Class)
	}
	if m.DomainType == 0 || m.DomainType > MaxDomainType {
		return rtderr.New(rtderr.InvalidData, int(m.Class), "domain type %d outside supported range", m.DomainType)
	}
	if m.Flags&MsgFlagHasKey != 0 && m.Key.Flags&KeyHasName != 0 && len(m.Key.Name) == 0 {
		return rtderr.New(rtderr.InvalidData, int(m.Class), "message key flagged has-name carries an empty name")
	}
	if m.Flags&MsgFlagHasExtHeader != 0 && len(m.ExtHeader) == 0 {
		return rtderr.New(rtderr.InvalidData, int(m.Class), "message flagged has-ext-header carries an empty header")
	}
	if m.Flags&MsgFlagHasPayload != 0 && len(m.Payload) == 0 {
		return rtderr.New(rtderr.InvalidData, int(m.Class), "message flagged has-payload carries an empty payload")
	}
	if m.Flags&MsgFlagHasPermData != 0 && len(m.PermData) == 0 {
		return rtderr.New(rtderr.InvalidData, int(m.Class), "message flagged has-perm-data carries empty data")
	}
	if m.Flags&MsgFlagHasGroupID != 0 && len(m.GroupID) == 0 {
		return rtderr.New(rtderr.InvalidData, int(m.Class), "message flagged has-group-id carries empty data")
	}
	if m.Flags&MsgFlagHasText != 0 && len(m.Text) == 0 {
		return rtderr.New(rtderr.InvalidData, int(m.Class), "message flagged has-text carries empty text")
	}
	switch m.Class {
	case MsgClassRefresh:
		if !validStreamState(m.State.Stream) {
			return rtderr.New(rtderr.InvalidData, int(m.Class), "refresh message carries invalid stream state %d", m.State.Stream)
		}
	case MsgClassStatus:
		if m.Flags&MsgFlagHasState != 0 && !validStreamState(m.State.Stream) {
			return rtderr.New(rtderr.InvalidData, int(m.Class), "status message carries invalid stream state %d", m.State.Stream)
		}
	case MsgClassRequest:
		if m.Flags&MsgFlagHasWorstQoS != 0 && m.Flags&MsgFlagHasQoS == 0 {
			return rtderr.New(rtderr.InvalidData, int(m.Class), "request message carries worst-qos without qos")
		}
	case MsgClassPost:
		if m.PostID == 0 {
			return rtderr.New(rtderr.InvalidData, int(m.Class), "post message missing a nonzero post id")
		}
	case MsgClassAck:
		if m.AckID == 0 {
			return rtderr.New(rtderr.InvalidData, int(m.Class), "ack message missing a nonzero ack id")
		}
	}
	return nil
}
