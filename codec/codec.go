// Package codec implements the self-delimiting binary object format used on
// the game wire. A value is encoded as a one-byte type tag followed by a
// fixed-width big-endian body, so a decoder can always tell from the bytes
// alone where one value ends and the next begins. Containers (arrays and
// maps) carry an up-front element count and nest recursively.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Value type tags on the wire.
const (
	tagNil    = 0x00
	tagFalse  = 0x01
	tagTrue   = 0x02
	tagInt    = 0x03 // int64, 8 bytes big-endian
	tagFloat  = 0x04 // float64, IEEE 754 bits, 8 bytes big-endian
	tagString = 0x05 // uint32 length + raw bytes
	tagBytes  = 0x06 // uint32 length + raw bytes
	tagArray  = 0x07 // uint32 count + count values
	tagMap    = 0x08 // uint32 count + count (string key, value) pairs
)

// maxDepth bounds container nesting so a hostile stream cannot drive the
// decoder into unbounded recursion.
const maxDepth = 64

// Errors returned by Encode and DecodeValue.
var (
	// ErrShortBuffer is returned by DecodeValue when the buffer ends before a
	// complete value; callers that reassemble a stream should wait for more
	// bytes and retry.
	ErrShortBuffer = errors.New("codec: value truncated")
	// ErrUnknownTag is returned when the buffer starts with a byte that is not
	// a known type tag.
	ErrUnknownTag = errors.New("codec: unknown type tag")
	// ErrCyclicValue is returned by Encode when the value references itself,
	// directly or through nested containers.
	ErrCyclicValue = errors.New("codec: cyclic value")
	// ErrTooDeep is returned when container nesting exceeds the supported depth.
	ErrTooDeep = errors.New("codec: nesting too deep")
)

// Binary is the concrete codec. It is stateless and safe for concurrent use;
// the zero value is ready to use.
type Binary struct{}

// Encode serializes one value into its wire representation.
//
// Supported Go types: nil, bool, all signed and unsigned integers (normalized
// to int64), float32/float64 (normalized to float64), string, []byte, []any,
// and map[string]any. Any other type, an integer outside the int64 range, or
// a value containing a reference cycle yields an error.
//
// Parameters:
//   - v: The value to encode
//
// Returns:
//   - The encoded bytes, or an error if v is not representable
func (Binary) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, make(map[uintptr]struct{}), 0); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// DecodeValue decodes exactly one value from the front of buf.
//
// Parameters:
//   - buf: The bytes to decode from; only a prefix is consumed
//
// Returns:
//   - The decoded value (nil, bool, int64, float64, string, []byte, []any, or map[string]any)
//   - The number of bytes consumed
//   - An error if buf does not start with a complete value; ErrShortBuffer
//     means more bytes are needed
func (Binary) DecodeValue(buf []byte) (any, int, error) {
	d := &decoder{buf: buf}
	v, err := d.value(0)
	if err != nil {
		return nil, 0, err
	}

	return v, d.off, nil
}

func encodeValue(buf *bytes.Buffer, v any, seen map[uintptr]struct{}, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}

	switch t := v.(type) {
	case nil:
		buf.WriteByte(tagNil)
	case bool:
		if t {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case int:
		encodeInt(buf, int64(t))
	case int8:
		encodeInt(buf, int64(t))
	case int16:
		encodeInt(buf, int64(t))
	case int32:
		encodeInt(buf, int64(t))
	case int64:
		encodeInt(buf, t)
	case uint8:
		encodeInt(buf, int64(t))
	case uint16:
		encodeInt(buf, int64(t))
	case uint32:
		encodeInt(buf, int64(t))
	case uint:
		if uint64(t) > math.MaxInt64 {
			return fmt.Errorf("codec: integer %d overflows int64", t)
		}
		encodeInt(buf, int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return fmt.Errorf("codec: integer %d overflows int64", t)
		}
		encodeInt(buf, int64(t))
	case float32:
		encodeFloat(buf, float64(t))
	case float64:
		encodeFloat(buf, t)
	case string:
		buf.WriteByte(tagString)
		writeLen(buf, len(t))
		buf.WriteString(t)
	case []byte:
		buf.WriteByte(tagBytes)
		writeLen(buf, len(t))
		buf.Write(t)
	case []any:
		return encodeArray(buf, t, seen, depth)
	case map[string]any:
		return encodeMap(buf, t, seen, depth)
	default:
		return fmt.Errorf("codec: cannot encode value of type %T", v)
	}

	return nil
}

func encodeInt(buf *bytes.Buffer, n int64) {
	var b [9]byte
	b[0] = tagInt
	binary.BigEndian.PutUint64(b[1:], uint64(n))
	buf.Write(b[:])
}

func encodeFloat(buf *bytes.Buffer, f float64) {
	var b [9]byte
	b[0] = tagFloat
	binary.BigEndian.PutUint64(b[1:], math.Float64bits(f))
	buf.Write(b[:])
}

func writeLen(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

func encodeArray(buf *bytes.Buffer, arr []any, seen map[uintptr]struct{}, depth int) error {
	if len(arr) > 0 {
		ptr := reflect.ValueOf(arr).Pointer()
		if _, ok := seen[ptr]; ok {
			return ErrCyclicValue
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
	}

	buf.WriteByte(tagArray)
	writeLen(buf, len(arr))
	for _, elem := range arr {
		if err := encodeValue(buf, elem, seen, depth+1); err != nil {
			return err
		}
	}

	return nil
}

func encodeMap(buf *bytes.Buffer, m map[string]any, seen map[uintptr]struct{}, depth int) error {
	ptr := reflect.ValueOf(m).Pointer()
	if _, ok := seen[ptr]; ok {
		return ErrCyclicValue
	}
	seen[ptr] = struct{}{}
	defer delete(seen, ptr)

	// Keys are sorted so the same value always produces the same bytes.
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte(tagMap)
	writeLen(buf, len(m))
	for _, k := range keys {
		writeLen(buf, len(k))
		buf.WriteString(k)
		if err := encodeValue(buf, m[k], seen, depth+1); err != nil {
			return err
		}
	}

	return nil
}

// decoder walks buf from the front, tracking how many bytes it has consumed.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}

	tag, err := d.u8()
	if err != nil {
		return nil, err
	}

	switch tag {
	case tagNil:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagInt:
		n, err := d.u64()
		if err != nil {
			return nil, err
		}
		return int64(n), nil
	case tagFloat:
		n, err := d.u64()
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(n), nil
	case tagString:
		b, err := d.lenBytes()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case tagBytes:
		b, err := d.lenBytes()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case tagArray:
		return d.array(depth)
	case tagMap:
		return d.mapping(depth)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, tag)
	}
}

func (d *decoder) array(depth int) (any, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}

	// The count is attacker-controlled; never preallocate more than a page of it.
	arr := make([]any, 0, min(int(count), 1024))
	for i := uint32(0); i < count; i++ {
		elem, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		arr = append(arr, elem)
	}

	return arr, nil
}

func (d *decoder) mapping(depth int) (any, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}

	m := make(map[string]any, min(int(count), 1024))
	for i := uint32(0); i < count; i++ {
		key, err := d.lenBytes()
		if err != nil {
			return nil, err
		}
		v, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		m[string(key)] = v
	}

	return m, nil
}

func (d *decoder) u8() (byte, error) {
	if d.off+1 > len(d.buf) {
		return 0, ErrShortBuffer
	}

	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) u32() (uint32, error) {
	if d.off+4 > len(d.buf) {
		return 0, ErrShortBuffer
	}

	n := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return n, nil
}

func (d *decoder) u64() (uint64, error) {
	if d.off+8 > len(d.buf) {
		return 0, ErrShortBuffer
	}

	n := binary.BigEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return n, nil
}

// lenBytes reads a uint32 length followed by that many raw bytes. The
// returned slice aliases the input buffer; callers that retain it must copy.
func (d *decoder) lenBytes() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if uint64(d.off)+uint64(n) > uint64(len(d.buf)) {
		return nil, ErrShortBuffer
	}

	b := d.buf[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}
