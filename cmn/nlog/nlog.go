// Package nlog is the runtime's logger: buffering, timestamping, and
// periodic flushing, severity-keyed (info/warn/error), with an optional
// mirror to stderr. Used by codec, ripc, and channel for everything from
// handshake outcomes to decode-error diagnostics.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bytes"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ripc-core/rtmd/cmn/mono"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const maxLineSize = 2 * 1024

type buffered struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	last atomic.Int64
	w    *os.File
	sev  severity
}

var (
	nlogs        [3]*buffered
	toStderr     atomic.Bool
	alsoToStderr atomic.Bool
	title        string

	onceInit sync.Once
)

func initLogs() {
	for s := sevInfo; s <= sevErr; s++ {
		nlogs[s] = &buffered{w: os.Stderr, sev: s}
	}
}

// ToStderr routes every line to stderr only (no buffering); useful for
// CLI tools and tests.
func ToStderr(v bool) { toStderr.Store(v) }

// AlsoToStderr mirrors info+ lines to stderr in addition to the buffered sink.
func AlsoToStderr(v bool) { alsoToStderr.Store(v) }

// SetOutput redirects the buffered sink of every severity (default:
// stderr); passing nil restores stderr.
func SetOutput(w *os.File) {
	onceInit.Do(initLogs)
	for _, nl := range nlogs {
		nl.mu.Lock()
		if w == nil {
			nl.w = os.Stderr
		} else {
			nl.w = w
		}
		nl.mu.Unlock()
	}
}

func SetTitle(s string) { title = s }

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

func log(sev severity, depth int, format string, args ...any) {
	onceInit.Do(initLogs)

	line := sprintf(sev, depth+1, format, args...)

	if toStderr.Load() {
		os.Stderr.WriteString(line)
		return
	}

	nl := nlogs[sev]
	nl.mu.Lock()
	nl.buf.WriteString(line)
	nl.mu.Unlock()

	if sev >= sevWarn {
		info := nlogs[sevInfo]
		info.mu.Lock()
		info.buf.WriteString(line)
		info.mu.Unlock()
	}
	if alsoToStderr.Load() || sev >= sevErr {
		os.Stderr.WriteString(line)
	}
}

// Flush writes every severity's buffered lines to its sink. Call
// periodically (e.g. from hk) and once more on exit.
func Flush(exit ...bool) {
	onceInit.Do(initLogs)
	for _, nl := range nlogs {
		nl.mu.Lock()
		if nl.buf.Len() == 0 {
			nl.mu.Unlock()
			continue
		}
		b := nl.buf.Bytes()
		_, _ = nl.w.Write(b)
		nl.buf.Reset()
		nl.last.Store(mono.NanoTime())
		nl.mu.Unlock()
	}
	_ = exit
}

func sprintf(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	formatHdr(sev, depth+1, &b)
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		if b.Len() == 0 || b.String()[b.Len()-1] != '\n' {
			b.WriteByte('\n')
		}
	}
	s := b.String()
	if len(s) > maxLineSize {
		s = s[:maxLineSize]
	}
	return s
}

func formatHdr(s severity, depth int, b *strings.Builder) {
	const chars = "IWE"
	_, fn, ln, ok := runtime.Caller(2 + depth)
	b.WriteByte(chars[s])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if !ok {
		return
	}
	if idx := strings.LastIndexByte(fn, '/'); idx >= 0 {
		fn = fn[idx+1:]
	}
	b.WriteString(fn)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(ln))
	b.WriteByte(' ')
}
