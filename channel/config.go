// Package channel implements the channel engine (spec §4.5, §5, §6):
// server bind/accept, client connect (direct and HTTP-proxy-tunneled),
// per-channel output-buffer pools, three priority send queues with a
// configurable flush strategy and high-water-mark auto-flush, an ioctl
// control surface, and the three callback contracts a caller registers
// (channel-active, channel-inactive, message).
//
// Config mirrors the teacher's config knobs (AIStore's cmn/config uses
// jsoniter-tagged structs read once at startup) but scoped to this
// runtime's channel/connection-level parameters (spec §4.5 "Config
// knobs").
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ripc-core/rtmd/rtderr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FlushStrategy names how a channel decides when to drain its priority
// queues to the wire (spec §4.5 "flush-strategy string").
type FlushStrategy string

const (
	// FlushImmediate calls Flush once after every Send; that Flush drains
	// only the queue the next FlushSchedule character names.
	FlushImmediate FlushStrategy = "immediate"
	// FlushHighWaterMark defers writes until queued bytes cross HighWaterMark.
	FlushHighWaterMark FlushStrategy = "high-water-mark"
	// FlushOnIdle makes Send only enqueue; nothing is written until the
	// caller calls Flush.
	FlushOnIdle FlushStrategy = "on-idle"
)

func (f FlushStrategy) Valid() bool {
	switch f {
	case FlushImmediate, FlushHighWaterMark, FlushOnIdle:
		return true
	default:
		return false
	}
}

// defaultFlushSchedule is the schedule from the spec's own example
// ("a fixed-length schedule like HMLH...").
const defaultFlushSchedule = "HMLH"

// validFlushSchedule reports whether s is nonempty and contains only the
// characters a priority-flush schedule string may contain: H(igh),
// M(edium), L(ow) (spec §3, §4.5 "priority-flush-strategy string").
func validFlushSchedule(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'H', 'M', 'L':
		default:
			return false
		}
	}
	return true
}

// ConnType names the transport a Client uses to reach a Server (spec §6
// "connection type"). Only Socket, HTTP, and Encrypted have a concrete
// Go-reachable wire contract in this module; the multicast/shared-memory
// variants are accepted as config values (so embedder config round-trips)
// but rejected with a clear error at Connect/Bind time.
type ConnType string

const (
	ConnTypeSocket        ConnType = "socket"
	ConnTypeHTTP          ConnType = "http"
	ConnTypeEncrypted     ConnType = "encrypted"
	ConnTypeReliableMcast ConnType = "reliable-mcast"
	ConnTypeShmem         ConnType = "shmem"
	ConnTypeSeqMcast      ConnType = "seq-mcast"
)

func (c ConnType) Valid() bool {
	switch c {
	case ConnTypeSocket, ConnTypeHTTP, ConnTypeEncrypted,
		ConnTypeReliableMcast, ConnTypeShmem, ConnTypeSeqMcast:
		return true
	default:
		return false
	}
}

// Supported reports whether this module can actually establish a
// connection of type c; the three multicast/shmem variants are parsed
// and preserved in config but not implementable over Go's standard
// networking stack.
func (c ConnType) Supported() bool {
	switch c {
	case ConnTypeSocket, ConnTypeHTTP, ConnTypeEncrypted:
		return true
	default:
		return false
	}
}

// Config holds the per-channel knobs exposed via ioctl (spec §4.5).
type Config struct {
	ConnType                ConnType      `json:"conn_type"`
	FlushStrategy           FlushStrategy `json:"flush_strategy"`
	// FlushSchedule is the round-robin priority-queue schedule string
	// (spec §3, §4.5: "a fixed-length schedule like HMLH... choosing
	// which priority queue is drained on each tick"). One character is
	// consumed per flush opportunity; only that single queue is served.
	FlushSchedule           string        `json:"flush_schedule"`
	HighWaterMarkBytes      int           `json:"high_water_mark_bytes"`
	GuaranteedOutputBuffers int           `json:"guaranteed_output_buffers"`
	MaxOutputBuffers        int           `json:"max_output_buffers"`
	MaxFragmentSize         uint32        `json:"max_fragment_size"`
	PingInterval            time.Duration `json:"ping_interval"`
	Compressions            uint8         `json:"compressions"` // ripc.CompressionBitmap
	// CompressionThreshold is the minimum payload size, in bytes, before
	// a message is compressed (spec §4.4 "compressed bit set when payload
	// >= negotiated threshold"). Only a server's value is used: it is sent
	// in the connection-ack; a client's value is not sent to the server.
	CompressionThreshold    uint32        `json:"compression_threshold"`
	KeyExchange             bool          `json:"key_exchange"`
	TCPNoDelay              bool          `json:"tcp_nodelay"`
	SendBufferBytes         int           `json:"send_buffer_bytes"`
	RecvBufferBytes         int           `json:"recv_buffer_bytes"`
	ProxyURL                string        `json:"proxy_url,omitempty"`
	ComponentLabel          string        `json:"component_label"`
}

func DefaultConfig() Config {
	return Config{
		ConnType:                ConnTypeSocket,
		FlushStrategy:           FlushHighWaterMark,
		FlushSchedule:           defaultFlushSchedule,
		HighWaterMarkBytes:      64 * 1024,
		GuaranteedOutputBuffers: 8,
		MaxOutputBuffers:        64,
		MaxFragmentSize:         6144,
		PingInterval:            30 * time.Second,
		CompressionThreshold:    30,
		ComponentLabel:          "rtmd-channel",
	}
}

func (c Config) Validate() error {
	if c.ConnType != "" && !c.ConnType.Valid() {
		return rtderr.New(rtderr.InvalidArgument, 0, "unknown connection type %q", c.ConnType)
	}
	if !c.FlushStrategy.Valid() {
		return rtderr.New(rtderr.InvalidArgument, 0, "unknown flush strategy %q", c.FlushStrategy)
	}
	if !validFlushSchedule(c.FlushSchedule) {
		return rtderr.New(rtderr.InvalidArgument, 0, "flush schedule %q must be a nonempty string of H/M/L", c.FlushSchedule)
	}
	if c.MaxOutputBuffers > 0 && c.GuaranteedOutputBuffers > c.MaxOutputBuffers {
		return rtderr.New(rtderr.InvalidArgument, 0, "guaranteed output buffers (%d) exceeds max (%d)", c.GuaranteedOutputBuffers, c.MaxOutputBuffers)
	}
	if c.MaxFragmentSize == 0 {
		return rtderr.New(rtderr.InvalidArgument, 0, "max fragment size must be nonzero")
	}
	return nil
}

func LoadConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, rtderr.Wrap(rtderr.InvalidData, 0, err, "config: parse JSON")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Marshal() ([]byte, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, rtderr.Wrap(rtderr.Failure, 0, err, "config: marshal JSON")
	}
	return b, nil
}
