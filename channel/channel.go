// Channel is one established connection: a ripc.Session layered over a
// net.Conn, with three priority send queues, a per-channel output-buffer
// pool, and a receive loop dispatching decoded messages to the
// registered MsgCB (spec §4.5, §5, §6).
//
// Grounded on the teacher's transport/sendmsg.go MsgStream (a workCh of
// outbound messages drained by a single send loop, with idle-tick
// bookkeeping) generalized to three priority-ordered queues instead of
// one, and on memsys.MMSA (memsys/memsys.go, this module) for the
// per-channel output-buffer pool spec §4.5 calls for.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"bufio"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ripc-core/rtmd/cmn/nlog"
	"github.com/ripc-core/rtmd/codec"
	"github.com/ripc-core/rtmd/memsys"
	"github.com/ripc-core/rtmd/ripc"
	"github.com/ripc-core/rtmd/rtderr"
)

// Priority selects which of the three send queues a message joins (spec
// §4.5 "3 priority queues (high/medium/low)").
type Priority uint8

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
	numPriorities
)

type queuedFrame struct {
	frame ripc.Frame
}

// Channel is safe for concurrent Send calls; the receive loop runs on
// its own goroutine started by Server/Client once the handshake
// completes.
type Channel struct {
	CorrelationID string

	conn    net.Conn
	br      *bufio.Reader
	session *ripc.Session
	cfg     Config
	mm      *memsys.MMSA
	setDB   *codec.FieldSetDB
	cb      Callbacks
	ping    *ripc.PingMonitor

	mu          sync.Mutex
	queues      [numPriorities][]queuedFrame
	queuedBytes int
	scheduleIdx int

	closeOnce sync.Once
	closed    atomic.Bool
	doneCh    chan struct{}
}

func newChannel(conn net.Conn, session *ripc.Session, cfg Config, mm *memsys.MMSA, cb Callbacks) *Channel {
	corrID, err := NewCorrelationID()
	if err != nil {
		corrID = "uncorrelated"
	}
	ch := &Channel{
		CorrelationID: corrID,
		conn:          conn,
		br:            bufio.NewReaderSize(conn, int(cfg.MaxFragmentSize)*2),
		session:       session,
		cfg:           cfg,
		mm:            mm,
		setDB:         codec.NewFieldSetDB(),
		cb:            cb,
		doneCh:        make(chan struct{}),
	}
	ch.ping = ripc.NewPingMonitor(ch.CorrelationID, cfg.PingInterval, ch.sendPing, ch.onPingTimeout)
	return ch
}

func (ch *Channel) start() {
	ch.ping.Start()
	if ch.cb.OnActive != nil {
		ch.cb.OnActive(ch, ch.info())
	}
	MetricChannelsActive.Inc()
	go ch.recvLoop()
}

// info snapshots the negotiated handshake parameters for ActiveCB (spec
// §6 "channel-active(channel, channel-info)").
func (ch *Channel) info() ChannelInfo {
	return ChannelInfo{
		MaxFragmentSize:         ch.session.MaxFragSize,
		GuaranteedOutputBuffers: ch.cfg.GuaranteedOutputBuffers,
		MaxOutputBuffers:        ch.cfg.MaxOutputBuffers,
		PingTimeout:             ch.session.PingInterval,
		PingSendEnabled:         true,
		PingRecvEnabled:         true,
		SendBufferBytes:         ch.cfg.SendBufferBytes,
		RecvBufferBytes:         ch.cfg.RecvBufferBytes,
		CompressionType:         ch.session.CompressionType,
		CompressionThreshold:    ch.session.CompressionThreshold,
		PeerComponentLabel:      ch.session.PeerComponentLabel,
	}
}

// Send encodes msg, hands it to the session layer for compression /
// fragmentation / sealing, and enqueues the resulting frame(s) on the
// requested priority queue, flushing immediately if the configured
// FlushStrategy or the high-water mark calls for it.
func (ch *Channel) Send(msg codec.Msg, pri Priority) error {
	if ch.closed.Load() {
		return rtderr.New(rtderr.WriteFlushFailed, 0, "channel %s: send on closed channel", ch.CorrelationID)
	}
	buf, err := ch.mm.Alloc(int64(ch.cfg.MaxFragmentSize) * 4)
	if err != nil {
		return wrapf(err, "channel %s: allocate send buffer", ch.CorrelationID)
	}
	n, err := codec.EncodeMsg(buf, msg)
	if err != nil {
		ch.mm.Free(buf)
		return wrapf(err, "channel %s: encode message", ch.CorrelationID)
	}
	// EncodeOutbound may hand back a Frame whose Body aliases encoded
	// directly (no compression/fragmentation applied); copy it out of
	// the pooled buffer before freeing so the queue never outlives it.
	owned := make([]byte, n)
	copy(owned, buf[:n])
	ch.mm.Free(buf)
	frames, err := ch.session.EncodeOutbound(owned)
	if err != nil {
		return wrapf(err, "channel %s: session encode", ch.CorrelationID)
	}

	ch.mu.Lock()
	for _, f := range frames {
		ch.queues[pri] = append(ch.queues[pri], queuedFrame{frame: f})
		ch.queuedBytes += len(f.Body) + ripc.HeaderSize
	}
	crossedHWM := ch.cfg.FlushStrategy == FlushHighWaterMark && ch.queuedBytes >= ch.cfg.HighWaterMarkBytes
	immediate := ch.cfg.FlushStrategy == FlushImmediate
	ch.mu.Unlock()

	if immediate {
		return ch.Flush()
	}
	if crossedHWM {
		MetricQueueHighWater.Inc()
		return ch.Flush()
	}
	return nil
}

// priorityForChar maps one character of a flush-schedule string to the
// queue it names (spec §3, §4.5 "a fixed-length schedule like HMLH...").
func priorityForChar(c byte) (Priority, bool) {
	switch c {
	case 'H':
		return PriorityHigh, true
	case 'M':
		return PriorityMedium, true
	case 'L':
		return PriorityLow, true
	default:
		return 0, false
	}
}

func queuedFrameBytes(qfs []queuedFrame) int {
	n := 0
	for _, qf := range qfs {
		n += len(qf.frame.Body) + ripc.HeaderSize
	}
	return n
}

// wireBufSize returns the buffer size needed to encode f, covering the
// worst-case extended-flags byte plus fragment-header overhead on top
// of the fixed header and body.
func wireBufSize(f ripc.Frame) int {
	return ripc.HeaderSize + 1 + ripc.MaxFragHeaderSize + len(f.Body)
}

// Flush serves exactly one priority queue per call: the schedule
// string is consumed round-robin, one character per flush opportunity,
// and only the queue it names is drained (spec §3, §4.5 "a fixed-length
// schedule... choosing which priority queue is drained on each tick").
// A queue left unserved this tick keeps its messages, in order, for a
// later tick — flush never reorders within a priority.
func (ch *Channel) Flush() error {
	ch.mu.Lock()
	sched := ch.cfg.FlushSchedule
	if sched == "" {
		sched = defaultFlushSchedule
	}
	c := sched[ch.scheduleIdx%len(sched)]
	ch.scheduleIdx++
	pri, ok := priorityForChar(c)
	if !ok {
		ch.mu.Unlock()
		return rtderr.New(rtderr.InvalidData, 0, "channel %s: invalid flush-schedule character %q", ch.CorrelationID, c)
	}
	toSend := ch.queues[pri]
	ch.queuedBytes -= queuedFrameBytes(toSend)
	ch.queues[pri] = nil
	ch.mu.Unlock()

	for _, qf := range toSend {
		wireBuf := make([]byte, wireBufSize(qf.frame))
		n, err := ripc.EncodeFrame(wireBuf, qf.frame)
		if err != nil {
			return wrapf(err, "channel %s: encode frame", ch.CorrelationID)
		}
		if _, err := ch.conn.Write(wireBuf[:n]); err != nil {
			ch.Close(rtderr.Wrap(rtderr.WriteFlushFailed, 0, err, "channel %s: write", ch.CorrelationID))
			return rtderr.Wrap(rtderr.WriteFlushFailed, 0, err, "channel %s: write", ch.CorrelationID)
		}
		ch.ping.NoteSend()
		MetricBytesSent.Add(float64(n))
		MetricMessagesSent.Inc()
	}
	return nil
}

// sendPing writes a zero-length frame (spec §4.4 "a zero-length ping
// frame is emitted"): no data bit, no extended byte, empty body.
func (ch *Channel) sendPing() error {
	buf := make([]byte, ripc.HeaderSize)
	n, err := ripc.EncodeFrame(buf, ripc.Frame{})
	if err != nil {
		return err
	}
	_, err = ch.conn.Write(buf[:n])
	return err
}

func (ch *Channel) onPingTimeout() {
	ch.Close(rtderr.New(rtderr.SystemFailure, 0, "channel %s: ping timeout", ch.CorrelationID))
}

func (ch *Channel) recvLoop() {
	hdr := make([]byte, 2)
	for {
		if _, err := readFull(ch.br, hdr); err != nil {
			if err == io.EOF {
				ch.Close(nil) // clean peer-initiated close
				return
			}
			ch.Close(classifyReadErr(err, ch.CorrelationID))
			return
		}
		total, _ := ripc.PeekFrameLength(hdr)
		rest := make([]byte, total)
		copy(rest, hdr)
		if _, err := readFull(ch.br, rest[2:]); err != nil {
			ch.Close(classifyReadErr(err, ch.CorrelationID))
			return
		}
		f, _, err := ripc.DecodeFrame(rest)
		if err != nil {
			recordErr(err)
			if rtderr.Fatal(err) {
				ch.Close(err)
				return
			}
			continue
		}
		ch.ping.NoteRecv()
		// A ping frame carries no data bit, no extended byte, and an
		// empty body (spec §4.4 "a zero-length ping frame").
		if f.Std&ripc.StdFlagData == 0 && f.Std&ripc.StdFlagExtended == 0 && len(f.Body) == 0 {
			continue
		}
		msgs, err := ch.session.DecodeInbound(f)
		if err != nil {
			recordErr(err)
			if rtderr.Fatal(err) {
				ch.Close(err)
				return
			}
			continue
		}
		MetricBytesRecv.Add(float64(total))
		for _, raw := range msgs {
			m, _, err := codec.DecodeMsg(raw)
			if err != nil {
				recordErr(err)
				continue
			}
			MetricMessagesRecv.Inc()
			if ch.cb.OnMsg != nil {
				ch.cb.OnMsg(ch, m)
			}
		}
	}
}

func readFull(r *bufio.Reader, b []byte) (int, error) {
	n := 0
	for n < len(b) {
		k, err := r.Read(b[n:])
		n += k
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func classifyReadErr(err error, corrID string) error {
	if rtderr.IsErrTimeout(err) {
		return rtderr.Wrap(rtderr.WouldBlock, 0, err, "channel %s: read timeout", corrID)
	}
	if rtderr.IsRetriableConnErr(err) {
		return rtderr.Wrap(rtderr.SystemFailure, 0, err, "channel %s: connection error", corrID)
	}
	return rtderr.Wrap(rtderr.SystemFailure, 0, err, "channel %s: read", corrID)
}

// Close tears the channel down, calling InactiveCB exactly once even if
// Close is called concurrently from the recv loop and an application
// goroutine.
func (ch *Channel) Close(reason error) {
	ch.closeOnce.Do(func() {
		ch.closed.Store(true)
		ch.ping.Stop()
		_ = ch.conn.Close()
		close(ch.doneCh)
		MetricChannelsActive.Dec()
		if reason != nil {
			nlog.Warningf("channel %s: closed: %v", ch.CorrelationID, reason)
		}
		if ch.cb.OnInactive != nil {
			ch.cb.OnInactive(ch, reason)
		}
	})
}

func (ch *Channel) Done() <-chan struct{} { return ch.doneCh }

//
// ioctl control surface (spec §4.5): runtime-adjustable knobs that don't
// require tearing the channel down.
//

func (ch *Channel) SetFlushStrategy(s FlushStrategy) error {
	if !s.Valid() {
		return rtderr.New(rtderr.InvalidArgument, 0, "ioctl: unknown flush strategy %q", s)
	}
	ch.mu.Lock()
	ch.cfg.FlushStrategy = s
	ch.mu.Unlock()
	return nil
}

func (ch *Channel) SetHighWaterMark(bytes int) error {
	if bytes <= 0 {
		return rtderr.New(rtderr.InvalidArgument, 0, "ioctl: high water mark must be positive")
	}
	ch.mu.Lock()
	ch.cfg.HighWaterMarkBytes = bytes
	ch.mu.Unlock()
	return nil
}

func (ch *Channel) QueuedBytes() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.queuedBytes
}

func (ch *Channel) SetDeadline(d time.Duration) error {
	if d <= 0 {
		return ch.conn.SetDeadline(time.Time{})
	}
	return ch.conn.SetDeadline(time.Now().Add(d))
}
