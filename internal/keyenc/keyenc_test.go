// ABOUTME: Tests for key tuple encoding
// ABOUTME: Verifies order-preserving properties and roundtrip encoding

package keyenc

import (
	"bytes"
	"testing"
	"time"

	"github.com/nainya/entitycore/pkg/value"
)

func assertOrdered(t *testing.T, vals []value.Value) {
	t.Helper()
	encoded := make([][]byte, len(vals))
	for i, v := range vals {
		enc, err := EncodeValues([]value.Value{v})
		if err != nil {
			t.Fatalf("Failed to encode %s: %v", v, err)
		}
		encoded[i] = enc
	}

	for i := 0; i < len(encoded)-1; i++ {
		if bytes.Compare(encoded[i], encoded[i+1]) >= 0 {
			t.Errorf("Order violated: %s should be < %s", vals[i], vals[i+1])
		}
	}

	for i, enc := range encoded {
		decoded, err := DecodeValues(enc)
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		if len(decoded) != 1 {
			t.Fatalf("Expected 1 value, got %d", len(decoded))
		}
		if !decoded[0].Equal(vals[i]) {
			t.Errorf("Roundtrip failed: expected %s, got %s", vals[i], decoded[0])
		}
	}
}

func TestEncodeInt(t *testing.T) {
	assertOrdered(t, []value.Value{
		value.Int(-1000), value.Int(-1), value.Int(0), value.Int(1), value.Int(1000),
	})
}

func TestEncodeFloat(t *testing.T) {
	assertOrdered(t, []value.Value{
		value.Float(-2.5), value.Float(-0.5), value.Float(0), value.Float(0.25), value.Float(1e9),
	})
}

func TestEncodeString(t *testing.T) {
	assertOrdered(t, []value.Value{
		value.String(""), value.String("a"), value.String("aa"), value.String("ab"), value.String("b"),
	})
}

func TestEncodeTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assertOrdered(t, []value.Value{
		value.Time(base.Add(-time.Hour)), value.Time(base), value.Time(base.Add(time.Nanosecond)),
	})
}

func TestEncodeEscapes(t *testing.T) {
	tricky := value.String("a\x00b\xfec\xff")
	enc, err := EncodeValues([]value.Value{tricky, value.Int(7)})
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	decoded, err := DecodeValues(enc)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(decoded) != 2 || !decoded[0].Equal(tricky) || !decoded[1].Equal(value.Int(7)) {
		t.Fatalf("Roundtrip failed: %v", decoded)
	}
}

func TestEncodeComposite(t *testing.T) {
	vals := []value.Value{
		value.Null(),
		value.Bool(true),
		value.Array(value.Int(1), value.String("x")),
	}
	enc, err := EncodeValues(vals)
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	decoded, err := DecodeValues(enc)
	if err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	for i := range vals {
		if !decoded[i].Equal(vals[i]) {
			t.Errorf("Value %d: expected %s, got %s", i, vals[i], decoded[i])
		}
	}
}

func TestKeyNamespace(t *testing.T) {
	key, err := EncodeKey("users", []value.Value{value.Int(42)})
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if !bytes.HasPrefix(key, Prefix("users")) {
		t.Fatal("Key does not start with its namespace prefix")
	}
	if bytes.HasPrefix(key, Prefix("user")) {
		t.Fatal("Prefix of a shorter namespace must not match")
	}

	ns, vals, err := SplitKey(key)
	if err != nil {
		t.Fatalf("Failed to split: %v", err)
	}
	if ns != "users" || len(vals) != 1 || !vals[0].Equal(value.Int(42)) {
		t.Fatalf("Unexpected split: %s %v", ns, vals)
	}
}

func TestDecodeCorrupt(t *testing.T) {
	if _, err := DecodeValues([]byte{tagInt, 1, 2}); err == nil {
		t.Error("Expected error for truncated int")
	}
	if _, err := DecodeValues([]byte{tagString, 'a'}); err == nil {
		t.Error("Expected error for unterminated string")
	}
	if _, err := DecodeValues([]byte{0x42}); err == nil {
		t.Error("Expected error for unknown tag")
	}
}
