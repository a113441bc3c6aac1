package codec

import (
	"bytes"
	"testing"
	"time"
)

func TestRegistryFallbackToText(t *testing.T) {
	r := NewRegistry()
	c := r.Lookup(999999)
	if c.Name() != "text" {
		t.Fatalf("Lookup(unknown OID) = %s, want text", c.Name())
	}
}

func TestRoundTrip(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		oid int32
		val any
	}{
		{OIDBool, true},
		{OIDBool, false},
		{OIDText, "hello, world"},
		{OIDInt2, int64(12345)},
		{OIDInt4, int64(-123456789)},
		{OIDInt8, int64(9223372036854775807)},
		{OIDFloat4, float64(3.5)},
		{OIDFloat8, float64(-2.71828)},
		{OIDBytea, []byte{0xde, 0xad, 0xbe, 0xef}},
	}
	for _, tt := range tests {
		c := r.Lookup(tt.oid)
		text, err := c.Format(tt.val)
		if err != nil {
			t.Fatalf("%s.Format(%v) error: %v", c.Name(), tt.val, err)
		}
		got, err := c.Parse(text)
		if err != nil {
			t.Fatalf("%s.Parse(%q) error: %v", c.Name(), text, err)
		}
		if b, ok := tt.val.([]byte); ok {
			if !bytes.Equal(got.([]byte), b) {
				t.Errorf("%s round trip = %v, want %v", c.Name(), got, tt.val)
			}
			continue
		}
		if got != tt.val {
			t.Errorf("%s round trip = %v (%T), want %v (%T)", c.Name(), got, got, tt.val, tt.val)
		}
	}
}

func TestNullRoundTrip(t *testing.T) {
	r := NewRegistry()
	for _, oid := range []int32{OIDBool, OIDText, OIDInt4, OIDFloat8, OIDBytea} {
		c := r.Lookup(oid)
		b, err := c.Format(nil)
		if err != nil || b != nil {
			t.Fatalf("%s.Format(nil) = (%v, %v), want (nil, nil)", c.Name(), b, err)
		}
		v, err := c.Parse(nil)
		if err != nil || v != nil {
			t.Fatalf("%s.Parse(nil) = (%v, %v), want (nil, nil)", c.Name(), v, err)
		}
	}
}

func TestInt4OutOfRange(t *testing.T) {
	r := NewRegistry()
	c := r.Lookup(OIDInt4)
	_, err := c.Format(int64(1) << 40)
	if err == nil {
		t.Fatal("expected out-of-range error formatting an int4 overflow")
	}
	var te *TypeError
	if !isTypeError(err, &te) {
		t.Fatalf("expected *TypeError, got %T", err)
	}
}

func isTypeError(err error, target **TypeError) bool {
	te, ok := err.(*TypeError)
	if ok {
		*target = te
	}
	return ok
}

func TestBoolParseInvalid(t *testing.T) {
	r := NewRegistry()
	c := r.Lookup(OIDBool)
	if _, err := c.Parse([]byte("maybe")); err == nil {
		t.Fatal("expected error parsing invalid bool literal")
	}
}

func TestByteaRejectsMissingPrefix(t *testing.T) {
	r := NewRegistry()
	c := r.Lookup(OIDBytea)
	if _, err := c.Parse([]byte("deadbeef")); err == nil {
		t.Fatal("expected error parsing bytea without \\x prefix")
	}
}

func TestTimestamptzRoundTrip(t *testing.T) {
	r := NewRegistry()
	c := r.Lookup(OIDTimestamptz)
	in := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	text, err := c.Format(in)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	got, err := c.Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q): %v", text, err)
	}
	gt := got.(time.Time)
	if !gt.Equal(in) {
		t.Errorf("round trip = %v, want %v", gt, in)
	}
}

func TestJSONBRoundTrip(t *testing.T) {
	r := NewRegistry()
	c := r.Lookup(OIDJSONB)
	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	text, err := c.Format(payload{Name: "x", N: 7})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if !bytes.Contains(text, []byte(`"name":"x"`)) {
		t.Errorf("Format() = %s, missing expected field", text)
	}
}
