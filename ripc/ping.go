// Ping supervision: each side must see a frame (data or ping) from its
// peer at least once per negotiated ping interval, and must itself send
// one if it has gone silent for half that long, or the connection is presumed
// dead (spec §4.4 "ping supervision").
//
// Grounded on the teacher's transport/collect.go min-heap idle-collector
// (streams parked in a heap ordered by ticks-until-timeout, rescheduled
// on activity) adapted here to the hk housekeeper abstraction already
// built for this runtime instead of a bespoke ticker+heap goroutine,
// since hk already generalizes "reschedule on activity, fire on
// timeout" for every periodic callback in this module.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package ripc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ripc-core/rtmd/hk"
)

// PingMonitor watches one channel's ping liveness. Start ties it into
// the global housekeeper; every call to NoteRecv/NoteSend resets its
// silence clock for the corresponding direction.
type PingMonitor struct {
	interval   time.Duration
	lastRecv   atomic.Int64
	lastSend   atomic.Int64
	name       string
	onSendPing func() error
	onTimeout  func()
}

func NewPingMonitor(name string, interval time.Duration, onSendPing func() error, onTimeout func()) *PingMonitor {
	m := &PingMonitor{interval: interval, name: name, onSendPing: onSendPing, onTimeout: onTimeout}
	now := time.Now().UnixNano()
	m.lastRecv.Store(now)
	m.lastSend.Store(now)
	return m
}

func (m *PingMonitor) NoteRecv() { m.lastRecv.Store(time.Now().UnixNano()) }
func (m *PingMonitor) NoteSend() { m.lastSend.Store(time.Now().UnixNano()) }

// Start registers the monitor's periodic check with the default
// housekeeper, checking at half the ping interval the way a conservative
// heartbeat implementation avoids false timeouts from scheduling jitter.
func (m *PingMonitor) Start() {
	hk.Reg(fmt.Sprintf("ripc-ping-%s", m.name), m.tick, m.interval/2)
}

func (m *PingMonitor) Stop() {
	hk.Unreg(fmt.Sprintf("ripc-ping-%s", m.name))
}

func (m *PingMonitor) tick() time.Duration {
	now := time.Now()
	sinceRecv := now.Sub(time.Unix(0, m.lastRecv.Load()))
	if sinceRecv > m.interval {
		if m.onTimeout != nil {
			m.onTimeout()
		}
		return 0 // unregister: the channel is being torn down
	}
	sinceSend := now.Sub(time.Unix(0, m.lastSend.Load()))
	if sinceSend >= m.interval/2 && m.onSendPing != nil {
		if err := m.onSendPing(); err == nil {
			m.NoteSend()
		}
	}
	return m.interval / 2
}
