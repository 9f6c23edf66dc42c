// ABOUTME: Order-preserving encoding of primary and unique key tuples
// ABOUTME: Used by the in-process connectors to index records by key

package keyenc

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nainya/entitycore/pkg/value"
)

// Type tags. None of them is 0x00 or 0xFF.
const (
	tagNull   = 1
	tagBool   = 2
	tagInt    = 3
	tagFloat  = 4
	tagString = 5
	tagTime   = 6
	tagJSON   = 7
)

// EncodeValues encodes a tuple so that byte order follows value order
// within each type
func EncodeValues(vals []value.Value) ([]byte, error) {
	out := make([]byte, 0, 64)
	for _, v := range vals {
		switch v.Kind() {
		case value.KindNull:
			out = append(out, tagNull)

		case value.KindBool:
			b, _ := v.AsBool()
			out = append(out, tagBool)
			if b {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}

		case value.KindInt:
			i, _ := v.AsInt()
			out = append(out, tagInt)
			out = appendInt(out, i)

		case value.KindFloat:
			f, _ := v.AsFloat()
			// Flip the sign bit for positives and every bit for negatives
			bits := math.Float64bits(f)
			if bits&(1<<63) != 0 {
				bits = ^bits
			} else {
				bits |= 1 << 63
			}
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], bits)
			out = append(out, tagFloat)
			out = append(out, buf[:]...)

		case value.KindString:
			s, _ := v.AsString()
			out = append(out, tagString)
			out = append(out, escape([]byte(s))...)
			out = append(out, 0)

		case value.KindTime:
			t, _ := v.AsTime()
			out = append(out, tagTime)
			out = appendInt(out, t.UnixNano())

		case value.KindArray, value.KindObject:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out = append(out, tagJSON)
			out = append(out, escape(raw)...)
			out = append(out, 0)

		default:
			return nil, fmt.Errorf("unknown value kind: %s", v.Kind())
		}
	}
	return out, nil
}

func appendInt(out []byte, i int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(i)+(1<<63))
	return append(out, buf[:]...)
}

func readInt(data []byte) int64 {
	return int64(binary.BigEndian.Uint64(data) - (1 << 63))
}

// escape escapes 0x00, 0xFE and 0xFF so strings can be null-terminated
func escape(s []byte) []byte {
	escapes := 0
	for _, b := range s {
		if b == 0 || b >= 0xFE {
			escapes++
		}
	}
	if escapes == 0 {
		return s
	}

	out := make([]byte, 0, len(s)+escapes)
	for _, b := range s {
		if b == 0 || b >= 0xFE {
			out = append(out, 0xFE, b)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// readTerminated returns the unescaped bytes up to the terminator and the
// position after it
func readTerminated(data []byte, pos int) ([]byte, int, error) {
	out := make([]byte, 0, 16)
	for i := pos; i < len(data); i++ {
		switch data[i] {
		case 0:
			return out, i + 1, nil
		case 0xFE:
			if i+1 >= len(data) {
				return nil, 0, fmt.Errorf("dangling escape at pos %d", i)
			}
			out = append(out, data[i+1])
			i++
		default:
			out = append(out, data[i])
		}
	}
	return nil, 0, fmt.Errorf("unterminated string at pos %d", pos)
}

// DecodeValues reverses EncodeValues. Arrays and objects come back as
// decoded JSON values.
func DecodeValues(data []byte) ([]value.Value, error) {
	vals := make([]value.Value, 0, 4)
	pos := 0

	for pos < len(data) {
		typ := data[pos]
		pos++

		switch typ {
		case tagNull:
			vals = append(vals, value.Null())

		case tagBool:
			if pos >= len(data) {
				return nil, fmt.Errorf("incomplete bool at pos %d", pos)
			}
			vals = append(vals, value.Bool(data[pos] == 1))
			pos++

		case tagInt, tagTime, tagFloat:
			if pos+8 > len(data) {
				return nil, fmt.Errorf("incomplete number at pos %d", pos)
			}
			chunk := data[pos : pos+8]
			switch typ {
			case tagInt:
				vals = append(vals, value.Int(readInt(chunk)))
			case tagTime:
				vals = append(vals, value.Time(time.Unix(0, readInt(chunk))))
			default:
				bits := binary.BigEndian.Uint64(chunk)
				if bits&(1<<63) != 0 {
					bits &^= 1 << 63
				} else {
					bits = ^bits
				}
				vals = append(vals, value.Float(math.Float64frombits(bits)))
			}
			pos += 8

		case tagString, tagJSON:
			raw, next, err := readTerminated(data, pos)
			if err != nil {
				return nil, err
			}
			pos = next
			if typ == tagString {
				vals = append(vals, value.String(string(raw)))
				continue
			}
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			var decoded any
			if err := dec.Decode(&decoded); err != nil {
				return nil, fmt.Errorf("corrupt json at pos %d: %w", pos, err)
			}
			v, err := value.FromInterface(decoded)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)

		default:
			return nil, fmt.Errorf("unknown type: %d at pos %d", typ, pos-1)
		}
	}

	return vals, nil
}

// EncodeKey encodes a tuple under a namespace such as a table or index name
func EncodeKey(namespace string, vals []value.Value) ([]byte, error) {
	body, err := EncodeValues(vals)
	if err != nil {
		return nil, err
	}
	out := Prefix(namespace)
	return append(out, body...), nil
}

// Prefix returns the byte prefix shared by every key of namespace
func Prefix(namespace string) []byte {
	out := append([]byte{}, escape([]byte(namespace))...)
	return append(out, 0)
}

// SplitKey separates the namespace from the encoded tuple
func SplitKey(key []byte) (string, []value.Value, error) {
	ns, next, err := readTerminated(key, 0)
	if err != nil {
		return "", nil, fmt.Errorf("key has no namespace: %w", err)
	}
	vals, err := DecodeValues(key[next:])
	if err != nil {
		return "", nil, err
	}
	return string(ns), vals, nil
}
