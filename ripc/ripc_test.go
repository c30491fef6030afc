package ripc_test

import (
	"bytes"
	"testing"

	"github.com/ripc-core/rtmd/ripc"
)

func TestHandshakeNegotiatesCommonVersion(t *testing.T) {
	req := ripc.ConnectionRequest{
		MaxVersion: ripc.Version14, MinVersion: ripc.Version10,
		Compressions: ripc.CompressLZ4 | ripc.CompressZlib,
		MaxFragSize:  6144, PingInterval: 30,
	}
	reqBuf := make([]byte, 256)
	n, err := ripc.EncodeConnectionRequest(reqBuf, req)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	decoded, _, err := ripc.DecodeConnectionRequest(reqBuf[:n])
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	ack, err := ripc.Negotiate(decoded, ripc.CompressZlib, ripc.Version12, ripc.Version10, 8192, 30, "server/1.0")
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if ack.Version != ripc.Version12 {
		t.Fatalf("expected version 12 (server's cap), got %d", ack.Version)
	}
	if ack.Compression != ripc.CompressZlib {
		t.Fatalf("expected zlib (only overlapping compressor), got %d", ack.Compression)
	}
	if ack.MaxFragSize != 6144 {
		t.Fatalf("expected client's smaller max frag size 6144, got %d", ack.MaxFragSize)
	}
	if ack.ComponentLabel != "server/1.0" {
		t.Fatalf("expected ack to carry the responder's own component version, got %q", ack.ComponentLabel)
	}
}

func TestHandshakeRejectsDisjointVersions(t *testing.T) {
	req := ripc.ConnectionRequest{MaxVersion: ripc.Version11, MinVersion: ripc.Version10, PingInterval: 30}
	reqBuf := make([]byte, 256)
	n, err := ripc.EncodeConnectionRequest(reqBuf, req)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	decoded, _, err := ripc.DecodeConnectionRequest(reqBuf[:n])
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if _, err := ripc.Negotiate(decoded, ripc.CompressNone, ripc.Version14, ripc.Version12, 8192, 0, "server"); err == nil {
		t.Fatal("expected nak for disjoint version ranges")
	}
}

func TestHandshakeRejectsZeroPingInterval(t *testing.T) {
	req := ripc.ConnectionRequest{MaxVersion: ripc.Version14, MinVersion: ripc.Version10, PingInterval: 0}
	reqBuf := make([]byte, 256)
	n, err := ripc.EncodeConnectionRequest(reqBuf, req)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	decoded, _, err := ripc.DecodeConnectionRequest(reqBuf[:n])
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if _, err := ripc.Negotiate(decoded, ripc.CompressNone, ripc.Version14, ripc.Version10, 8192, 0, "server"); err == nil {
		t.Fatal("expected nak for a zero ping-timeout proposal")
	}
}

func TestConnectionRequestRoundTrip(t *testing.T) {
	r := ripc.ConnectionRequest{
		MaxVersion: ripc.Version14, MinVersion: ripc.Version10,
		Compressions: ripc.CompressLZ4, MaxFragSize: 6144, PingInterval: 20,
		KeyExchange: true, ComponentLabel: "test-client/1.0",
	}
	buf := make([]byte, 256)
	n, err := ripc.EncodeConnectionRequest(buf, r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n2, err := ripc.DecodeConnectionRequest(buf[:n])
	if err != nil || n2 != n || got.ComponentLabel != r.ComponentLabel || !got.KeyExchange {
		t.Fatalf("roundtrip mismatch: %+v err=%v", got, err)
	}
	if got.MaxFragSize != r.MaxFragSize {
		t.Fatalf("max fragment size mismatch: got %d want %d", got.MaxFragSize, r.MaxFragSize)
	}
}

func TestConnectionAckNakFrameRoundTrip(t *testing.T) {
	ack := ripc.ConnectionAck{
		Version: ripc.Version13, Compression: ripc.CompressLZ4,
		CompressionThreshold: 30, MaxFragSize: 6144, PingInterval: 30,
		ComponentLabel: "server/2.0",
	}
	buf := make([]byte, 512)
	n, err := ripc.EncodeConnAckFrame(buf, ack)
	if err != nil {
		t.Fatalf("encode ack frame: %v", err)
	}
	got, err := ripc.DecodeConnResponse(buf[:n])
	if err != nil {
		t.Fatalf("decode ack frame: %v", err)
	}
	if got.ComponentLabel != ack.ComponentLabel || got.CompressionThreshold != ack.CompressionThreshold {
		t.Fatalf("ack mismatch: %+v", got)
	}

	nak := ripc.ConnectionNak{Code: 1, Text: "no overlapping protocol version"}
	n, err = ripc.EncodeConnNakFrame(buf, nak)
	if err != nil {
		t.Fatalf("encode nak frame: %v", err)
	}
	_, err = ripc.DecodeConnResponse(buf[:n])
	if err == nil {
		t.Fatal("expected DecodeConnResponse to surface the nak as an error")
	}
	gotNak, ok := err.(ripc.ConnectionNak)
	if !ok || gotNak.Text != nak.Text {
		t.Fatalf("expected ConnectionNak error with matching text, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	f := ripc.Frame{Std: ripc.StdFlagData, Body: []byte("hello")}
	n, err := ripc.EncodeFrame(buf, f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n2, err := ripc.DecodeFrame(buf[:n])
	if err != nil || n2 != n || !bytes.Equal(got.Body, f.Body) {
		t.Fatalf("frame roundtrip mismatch: %+v err=%v", got, err)
	}
}

func TestPingFrameIsZeroLengthAndFlagless(t *testing.T) {
	buf := make([]byte, 16)
	n, err := ripc.EncodeFrame(buf, ripc.Frame{})
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	got, _, err := ripc.DecodeFrame(buf[:n])
	if err != nil {
		t.Fatalf("decode ping: %v", err)
	}
	if got.Std&ripc.StdFlagData != 0 || got.Std&ripc.StdFlagExtended != 0 || len(got.Body) != 0 {
		t.Fatalf("expected a flagless, zero-length ping frame, got %+v", got)
	}
}

func TestFrameWithFragmentHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, 256)
	f := ripc.Frame{
		Std: ripc.StdFlagData, Ext: ripc.ExtFlagFragHeader,
		FragID: 7, FragTotalLen: 1000, Body: []byte("first chunk"),
	}
	n, err := ripc.EncodeFrame(buf, f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, _, err := ripc.DecodeFrame(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsFragmentFirst() || got.FragID != 7 || got.FragTotalLen != 1000 {
		t.Fatalf("fragment header mismatch: %+v", got)
	}

	cont := ripc.Frame{Std: ripc.StdFlagData, Ext: ripc.ExtFlagFragID, FragID: 7, Body: []byte("second chunk")}
	n, err = ripc.EncodeFrame(buf, cont)
	if err != nil {
		t.Fatalf("encode continuation: %v", err)
	}
	got, _, err = ripc.DecodeFrame(buf[:n])
	if err != nil {
		t.Fatalf("decode continuation: %v", err)
	}
	if !got.IsFragment() || got.IsFragmentFirst() || got.FragID != 7 {
		t.Fatalf("continuation mismatch: %+v", got)
	}
}

func TestFragmentSplitAndReassemble(t *testing.T) {
	msg := bytes.Repeat([]byte("x"), 1000)
	fr := ripc.NewFragmenter(128)
	parts := fr.Split(msg, false)
	if len(parts) < 2 {
		t.Fatalf("expected multiple fragments, got %d", len(parts))
	}
	if !parts[0].IsFragmentFirst() {
		t.Fatal("expected the first fragment to carry the fragment header")
	}
	for _, p := range parts[1:] {
		if p.IsFragmentFirst() {
			t.Fatal("continuation fragment unexpectedly carries a fragment header")
		}
	}

	ra := ripc.NewReassembler(0)
	var out []byte
	for i, p := range parts {
		got, done, err := ra.Feed(p)
		if err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
		if done {
			out = got
		}
	}
	if !bytes.Equal(out, msg) {
		t.Fatalf("reassembled message mismatch: got %d bytes, want %d", len(out), len(msg))
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	pb := ripc.NewPackBuilder(64)
	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, m := range msgs {
		if !pb.Add(m) {
			t.Fatalf("expected %q to fit", m)
		}
	}
	got, err := ripc.Unpack(pb.Bytes())
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if len(got) != len(msgs) {
		t.Fatalf("want %d messages, got %d", len(msgs), len(got))
	}
	for i, m := range msgs {
		if !bytes.Equal(got[i], m) {
			t.Fatalf("message %d mismatch: got %q want %q", i, got[i], m)
		}
	}
}

func TestSessionEncodeDecodeRoundTripUncompressed(t *testing.T) {
	s, err := ripc.NewSession(ripc.RoleClient, ripc.ConnectionAck{
		Version: ripc.Version14, Compression: ripc.CompressNone, MaxFragSize: 6144, PingInterval: 20,
	}, "server/1.0")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s.PeerComponentLabel != "server/1.0" {
		t.Fatalf("expected session to retain the peer's component label, got %q", s.PeerComponentLabel)
	}
	msg := []byte("a small update message")
	frames, err := s.EncodeOutbound(msg)
	if err != nil || len(frames) != 1 {
		t.Fatalf("encode outbound: frames=%d err=%v", len(frames), err)
	}
	out, err := s.DecodeInbound(frames[0])
	if err != nil || len(out) != 1 || !bytes.Equal(out[0], msg) {
		t.Fatalf("decode inbound mismatch: %v err=%v", out, err)
	}
}

func TestSessionFragmentsOversizedMessages(t *testing.T) {
	s, err := ripc.NewSession(ripc.RoleServer, ripc.ConnectionAck{
		Version: ripc.Version14, Compression: ripc.CompressNone, MaxFragSize: 64, PingInterval: 20,
	}, "client/1.0")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	msg := bytes.Repeat([]byte("y"), 500)
	frames, err := s.EncodeOutbound(msg)
	if err != nil {
		t.Fatalf("encode outbound: %v", err)
	}
	if len(frames) < 2 {
		t.Fatalf("expected fragmentation, got %d frame(s)", len(frames))
	}
	var out [][]byte
	for _, f := range frames {
		got, err := s.DecodeInbound(f)
		if err != nil {
			t.Fatalf("decode inbound: %v", err)
		}
		out = append(out, got...)
	}
	if len(out) != 1 || !bytes.Equal(out[0], msg) {
		t.Fatalf("reassembled message mismatch via session")
	}
}

func TestSessionCompressionThresholdGatesCompression(t *testing.T) {
	s, err := ripc.NewSession(ripc.RoleClient, ripc.ConnectionAck{
		Version: ripc.Version14, Compression: ripc.CompressLZ4,
		CompressionThreshold: 1000, MaxFragSize: 8192, PingInterval: 20,
	}, "server/1.0")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	small := bytes.Repeat([]byte("a"), 64)
	frames, err := s.EncodeOutbound(small)
	if err != nil || len(frames) != 1 {
		t.Fatalf("encode outbound: frames=%d err=%v", len(frames), err)
	}
	if frames[0].Std&ripc.StdFlagCompressed != 0 {
		t.Fatal("expected a payload under threshold to stay uncompressed")
	}

	s.ForceCompress = true
	frames, err = s.EncodeOutbound(small)
	if err != nil || len(frames) != 1 {
		t.Fatalf("encode outbound (forced): frames=%d err=%v", len(frames), err)
	}
	if frames[0].Std&ripc.StdFlagCompressed == 0 {
		t.Fatal("expected ForceCompress to compress despite being under threshold")
	}
}

func TestKeyExchangeSealOpenRoundTrip(t *testing.T) {
	clientKP, err := ripc.GenerateKeyPair()
	if err != nil {
		t.Fatalf("client keypair: %v", err)
	}
	serverKP, err := ripc.GenerateKeyPair()
	if err != nil {
		t.Fatalf("server keypair: %v", err)
	}
	clientKey, err := ripc.SessionKey(clientKP, serverKP.Public)
	if err != nil {
		t.Fatalf("client session key: %v", err)
	}
	serverKey, err := ripc.SessionKey(serverKP, clientKP.Public)
	if err != nil {
		t.Fatalf("server session key: %v", err)
	}
	if clientKey != serverKey {
		t.Fatal("derived session keys diverge between client and server")
	}
	sealed, err := ripc.Seal(clientKey, []byte("secret payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	opened, err := ripc.Open(serverKey, sealed)
	if err != nil || string(opened) != "secret payload" {
		t.Fatalf("open mismatch: %q err=%v", opened, err)
	}
}
