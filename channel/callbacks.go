// The three callback contracts a caller registers with a Server or
// Client (spec §4.5/§6 "external interfaces"): notified when a channel
// becomes active (handshake complete), goes inactive (closed, by either
// side or on error), and when a message arrives.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"time"

	"github.com/ripc-core/rtmd/codec"
	"github.com/ripc-core/rtmd/ripc"
)

// ChannelInfo carries the parameters a completed handshake negotiated,
// handed to ActiveCB alongside the Channel itself (spec §6
// "channel-active(channel, channel-info)"): the negotiated max fragment
// size, output buffer counts, ping timeout, ping direction flags, system
// buffer sizes, compression type and threshold, and the peer's
// component version.
type ChannelInfo struct {
	MaxFragmentSize         uint32
	GuaranteedOutputBuffers int
	MaxOutputBuffers        int
	PingTimeout             time.Duration
	// PingSendEnabled/PingRecvEnabled report whether this channel emits
	// pings on idle send and expects them on idle receive; both
	// directions are always on (spec §4.4's ping supervision is
	// symmetric), but embedders that only need one direction can ignore
	// the other's timeout.
	PingSendEnabled       bool
	PingRecvEnabled       bool
	SendBufferBytes       int
	RecvBufferBytes       int
	CompressionType       ripc.CompressionBitmap
	CompressionThreshold  uint32
	PeerComponentLabel    string
}

// ActiveCB is invoked once per Channel, after its ripc handshake (and
// optional key exchange) completes and before any MsgCB call for it.
type ActiveCB func(ch *Channel, info ChannelInfo)

// InactiveCB is invoked exactly once per Channel that ever went active,
// with the reason it closed (nil for a clean peer-initiated close).
type InactiveCB func(ch *Channel, reason error)

// MsgCB delivers one decoded message. The message's byte slices alias a
// pooled receive buffer valid only for the duration of the callback;
// retain data past the call via codec.CloneMsg.
type MsgCB func(ch *Channel, msg codec.Msg)

type Callbacks struct {
	OnActive   ActiveCB
	OnInactive InactiveCB
	OnMsg      MsgCB
}
