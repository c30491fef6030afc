package channel_test

import (
	"sync"
	"testing"
	"time"

	"github.com/ripc-core/rtmd/channel"
	"github.com/ripc-core/rtmd/codec"
)

func TestConfigValidateRejectsUnknownFlushStrategy(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.FlushStrategy = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown flush strategy")
	}
}

func TestConfigValidateRejectsUnknownConnType(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.ConnType = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown connection type")
	}
}

func TestNewServerRejectsUnsupportedConnType(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.ConnType = channel.ConnTypeShmem
	if _, err := channel.NewServer(cfg, channel.Callbacks{}); err == nil {
		t.Fatal("expected error constructing server with shmem connection type")
	}
}

func TestConfigValidateRejectsBadFlushSchedule(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.FlushSchedule = "HXML"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for a flush schedule outside H/M/L")
	}
	cfg.FlushSchedule = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for an empty flush schedule")
	}
}

func TestConfigJSONRoundTrip(t *testing.T) {
	cfg := channel.DefaultConfig()
	cfg.ComponentLabel = "roundtrip-test"
	data, err := cfg.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := channel.LoadConfig(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ComponentLabel != cfg.ComponentLabel || got.FlushStrategy != cfg.FlushStrategy {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestServerClientHandshakeAndEcho(t *testing.T) {
	var (
		wg       sync.WaitGroup
		recvOnce sync.Once
		received codec.Msg
		gotInfo  channel.ChannelInfo
	)
	wg.Add(1)

	srvCfg := channel.DefaultConfig()
	srvCfg.ComponentLabel = "srv"
	srv, err := channel.NewServer(srvCfg, channel.Callbacks{
		OnMsg: func(ch *channel.Channel, m codec.Msg) {
			recvOnce.Do(func() {
				received = m
				wg.Done()
			})
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()
	if err := srv.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	cliCfg := channel.DefaultConfig()
	cliCfg.ComponentLabel = "cli"
	cliCfg.FlushStrategy = channel.FlushImmediate
	cli, err := channel.NewClient(cliCfg, channel.Callbacks{
		OnActive: func(ch *channel.Channel, info channel.ChannelInfo) {
			gotInfo = info
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer cli.Close()

	ch, err := cli.Connect(srv.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer ch.Close(nil)

	if gotInfo.PeerComponentLabel != "srv" {
		t.Fatalf("expected channel-active info to carry the peer's component label, got %+v", gotInfo)
	}
	if gotInfo.MaxFragmentSize == 0 {
		t.Fatalf("expected channel-active info to carry the negotiated max fragment size, got %+v", gotInfo)
	}

	msg := codec.Msg{Class: codec.MsgClassUpdate, DomainType: 6, StreamID: 1}
	if err := ch.Send(msg, channel.PriorityHigh); err != nil {
		t.Fatalf("send: %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for server to receive message")
	}
	if received.StreamID != 1 || received.Class != codec.MsgClassUpdate {
		t.Fatalf("received mismatch: %+v", received)
	}
}
