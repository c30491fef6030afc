package codec_test

import (
	"bytes"
	"testing"

	"github.com/ripc-core/rtmd/codec"
	"github.com/ripc-core/rtmd/rtderr"
)

func TestUintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 255, 256, 65535, 65536, 1 << 32, 1<<64 - 1}
	for _, v := range cases {
		buf := make([]byte, 9)
		n, err := codec.EncodeUint(buf, v)
		if err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		got, n2, err := codec.DecodeUint(buf[:n])
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v || n2 != n {
			t.Fatalf("uint roundtrip: want %d (%d bytes), got %d (%d bytes)", v, n, got, n2)
		}
	}
}

func TestIntRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 127, -128, 32767, -32768, 1 << 30, -(1 << 30)}
	for _, v := range cases {
		buf := make([]byte, 9)
		n, err := codec.EncodeInt(buf, v)
		if err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		got, n2, err := codec.DecodeInt(buf[:n])
		if err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v || n2 != n {
			t.Fatalf("int roundtrip: want %d, got %d", v, got)
		}
	}
}

func TestU15RoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 127, 128, 16383, 32767} {
		buf := make([]byte, 2)
		n, err := codec.EncodeU15(buf, v)
		if err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		got, n2, err := codec.DecodeU15(buf[:n])
		if err != nil || got != v || n2 != n {
			t.Fatalf("u15 roundtrip failed for %d: got %d err %v", v, got, err)
		}
	}
	if _, _, err := codec.EncodeU15(make([]byte, 2), 40000); err == nil {
		t.Fatal("expected value-out-of-range for u15 > 32767")
	}
}

func TestU16OptByteWireShape(t *testing.T) {
	buf := make([]byte, 3)
	n, _ := codec.EncodeU16OptByte(buf, 200)
	if n != 1 || buf[0] != 200 {
		t.Fatalf("small value should be single byte, got n=%d buf=%v", n, buf[:n])
	}
	n, _ = codec.EncodeU16OptByte(buf, 1000)
	if n != 3 || buf[0] != 0xFE {
		t.Fatalf("large value should escape via 0xFE, got n=%d buf=%v", n, buf[:n])
	}
	v, n2, err := codec.DecodeU16OptByte(buf[:n])
	if err != nil || v != 1000 || n2 != 3 {
		t.Fatalf("decode mismatch: v=%d n=%d err=%v", v, n2, err)
	}
}

func TestRealBlank(t *testing.T) {
	buf := make([]byte, 10)
	n, err := codec.EncodeReal(buf, codec.Real{IsBlank: true})
	if err != nil || n != 1 || buf[0] != 0 {
		t.Fatalf("blank real should encode as single zero byte, got n=%d buf=%v err=%v", n, buf[:n], err)
	}
	r, n2, err := codec.DecodeReal(buf[:n])
	if err != nil || !r.IsBlank || n2 != 1 {
		t.Fatalf("blank real decode failed: %+v n=%d err=%v", r, n2, err)
	}
}

func TestRealExponentRoundTrip(t *testing.T) {
	r := codec.RealFromExponent(12345, -4)
	buf := make([]byte, 10)
	n, err := codec.EncodeReal(buf, r)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n2, err := codec.DecodeReal(buf[:n])
	if err != nil || got.Mantissa != 12345 || got.Hint != r.Hint || n2 != n {
		t.Fatalf("real roundtrip mismatch: got %+v err=%v", got, err)
	}
}

func TestRealReservedHintsRejected(t *testing.T) {
	buf := make([]byte, 10)
	for _, hint := range []int8{31, 32} {
		_, err := codec.EncodeReal(buf, codec.Real{Mantissa: 1, Hint: hint})
		if err == nil || !rtderr.Is(err, rtderr.InvalidData) {
			t.Fatalf("hint %d: expected invalid-data rejection, got %v", hint, err)
		}
	}
	// also reject on decode
	wire := []byte{2, 31, 1}
	if _, _, err := codec.DecodeReal(wire); err == nil || !rtderr.Is(err, rtderr.InvalidData) {
		t.Fatalf("decode of reserved hint 31 should fail, got %v", err)
	}
}

func TestRealSpecialValues(t *testing.T) {
	buf := make([]byte, 4)
	n, err := codec.EncodeReal(buf, codec.Real{Hint: codec.RealHintNaN})
	if err != nil || n != 2 {
		t.Fatalf("NaN encode: n=%d err=%v", n, err)
	}
	r, _, err := codec.DecodeReal(buf[:n])
	if err != nil || r.Hint != codec.RealHintNaN {
		t.Fatalf("NaN decode mismatch: %+v err=%v", r, err)
	}
}

func TestDateRoundTrip(t *testing.T) {
	d := codec.Date{Day: 15, Month: 3, Year: 2026}
	buf := make([]byte, 4)
	n, err := codec.EncodeDate(buf, d)
	if err != nil || n != 4 {
		t.Fatalf("date encode: n=%d err=%v", n, err)
	}
	got, n2, err := codec.DecodeDate(buf[:n])
	if err != nil || got != d || n2 != 4 {
		t.Fatalf("date roundtrip mismatch: %+v", got)
	}
}

func TestTimeVariableWidth(t *testing.T) {
	cases := []struct {
		t    codec.Time
		size int
	}{
		{codec.Time{Hour: 9, Minute: 30}, 2},
		{codec.Time{Hour: 9, Minute: 30, Second: 15}, 3},
		{codec.Time{Hour: 9, Minute: 30, Second: 15, Millisecond: 500}, 5},
		{codec.Time{Hour: 9, Minute: 30, Second: 15, Millisecond: 500, Microsecond: 250}, 7},
		{codec.Time{Hour: 9, Minute: 30, Second: 15, Millisecond: 500, Microsecond: 250, Nanosecond: 123}, 8},
	}
	for _, c := range cases {
		buf := make([]byte, 8)
		n, err := codec.EncodeTime(buf, c.t)
		if err != nil {
			t.Fatalf("encode %+v: %v", c.t, err)
		}
		if n != c.size {
			t.Fatalf("encode %+v: want %d bytes, got %d", c.t, c.size, n)
		}
		got, n2, err := codec.DecodeTime(buf[:n])
		if err != nil || got != c.t || n2 != n {
			t.Fatalf("time roundtrip mismatch: want %+v got %+v err=%v", c.t, got, err)
		}
	}
}

func TestQoSRoundTrip(t *testing.T) {
	q := codec.QoS{Rate: codec.RateTimeConflated, Timeliness: codec.TimelinessDelayedWithInfo, TimeInfo: 500, RateInfo: 1000}
	buf := make([]byte, 5)
	n, err := codec.EncodeQoS(buf, q)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n2, err := codec.DecodeQoS(buf[:n])
	if err != nil || got != q || n2 != n {
		t.Fatalf("qos roundtrip mismatch: want %+v got %+v", q, got)
	}
}

func TestStateRoundTrip(t *testing.T) {
	s := codec.State{Stream: codec.StreamStateOpen, Data: codec.DataStateOK, Code: 0, Text: []byte("All is well")}
	buf := make([]byte, 64)
	n, err := codec.EncodeState(buf, s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n2, err := codec.DecodeState(buf[:n])
	if err != nil || got.Stream != s.Stream || got.Data != s.Data || !bytes.Equal(got.Text, s.Text) || n2 != n {
		t.Fatalf("state roundtrip mismatch: want %+v got %+v err=%v", s, got, err)
	}
}

func TestBufU15RoundTrip(t *testing.T) {
	data := []byte("hello, market data")
	buf := make([]byte, 32)
	n, err := codec.EncodeBufU15(buf, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, n2, err := codec.DecodeBufU15(buf[:n])
	if err != nil || !bytes.Equal(got, data) || n2 != n {
		t.Fatalf("buffer roundtrip mismatch: got %q err=%v", got, err)
	}
}

func TestU30RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 63, 64, 16383, 16384, 4194303, 4194304, 0x3FFFFFFF} {
		buf := make([]byte, 4)
		n, err := codec.EncodeU30(buf, v)
		if err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		got, n2, err := codec.DecodeU30(buf[:n])
		if err != nil || got != v || n2 != n {
			t.Fatalf("u30 roundtrip mismatch: want %d got %d err=%v", v, got, err)
		}
	}
}
