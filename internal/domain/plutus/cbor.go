package plutus

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// Wire constants.
const (
	tagConstrBase    = 121  // constructors 0..6
	tagConstrExtBase = 1280 // constructors 7..127
	tagConstrGeneral = 102  // [index, fields] for everything else
	tagPosBignum     = 2
	tagNegBignum     = 3

	maxCompactIndex  = 6
	maxExtendedIndex = 127
	bytesChunkSize   = 64

	majorUint  = 0
	majorNint  = 1
	majorBytes = 2
	majorArray = 4
	majorMap   = 5
	majorTag   = 6

	indefiniteArray = 0x9f
	indefiniteBytes = 0x5f
	breakMarker     = 0xff
	emptyArray      = 0x80

	maxNestedLevels = 64
)

// ErrDecode is returned for any input that is not valid Plutus Data.
var ErrDecode = errors.New("plutus: invalid data")

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{BigIntConvert: cbor.BigIntConvertShortest}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		MaxNestedLevels: maxNestedLevels,
		IndefLength:     cbor.IndefLengthAllowed,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// Encode serializes d. Non-empty lists and constructor fields use
// indefinite-length arrays and byte strings longer than 64 bytes are chunked,
// matching the serialization produced by the reference off-chain libraries.
func Encode(d Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeHex serializes d as lowercase hex.
func EncodeHex(d Data) (string, error) {
	b, err := Encode(d)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func encode(buf *bytes.Buffer, d Data) error {
	switch v := d.(type) {
	case Constr:
		return encodeConstr(buf, v)
	case Int:
		if v.Value == nil {
			return errors.New("plutus: nil integer")
		}
		b, err := encMode.Marshal(v.Value)
		if err != nil {
			return fmt.Errorf("plutus: encode int: %w", err)
		}
		buf.Write(b)
		return nil
	case Bytes:
		return encodeBytes(buf, v)
	case List:
		return encodeList(buf, v)
	case Map:
		buf.Write(appendHead(nil, majorMap, uint64(len(v))))
		for _, p := range v {
			if err := encode(buf, p.Key); err != nil {
				return err
			}
			if err := encode(buf, p.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("plutus: cannot encode %T", d)
	}
}

func encodeConstr(buf *bytes.Buffer, c Constr) error {
	var fields bytes.Buffer
	if err := encodeList(&fields, c.Fields); err != nil {
		return err
	}

	var tag cbor.RawTag
	switch {
	case c.Index <= maxCompactIndex:
		tag = cbor.RawTag{Number: tagConstrBase + c.Index, Content: fields.Bytes()}
	case c.Index <= maxExtendedIndex:
		tag = cbor.RawTag{Number: tagConstrExtBase + c.Index - maxCompactIndex - 1, Content: fields.Bytes()}
	default:
		idx, err := encMode.Marshal(c.Index)
		if err != nil {
			return fmt.Errorf("plutus: encode constr index: %w", err)
		}
		pair, err := encMode.Marshal([]cbor.RawMessage{idx, fields.Bytes()})
		if err != nil {
			return fmt.Errorf("plutus: encode constr: %w", err)
		}
		tag = cbor.RawTag{Number: tagConstrGeneral, Content: pair}
	}

	b, err := encMode.Marshal(tag)
	if err != nil {
		return fmt.Errorf("plutus: encode constr %d: %w", c.Index, err)
	}
	buf.Write(b)
	return nil
}

func encodeList(buf *bytes.Buffer, items []Data) error {
	if len(items) == 0 {
		buf.WriteByte(emptyArray)
		return nil
	}
	buf.WriteByte(indefiniteArray)
	for _, it := range items {
		if err := encode(buf, it); err != nil {
			return err
		}
	}
	buf.WriteByte(breakMarker)
	return nil
}

func encodeBytes(buf *bytes.Buffer, b []byte) error {
	if len(b) <= bytesChunkSize {
		enc, err := encMode.Marshal(b)
		if err != nil {
			return fmt.Errorf("plutus: encode bytes: %w", err)
		}
		buf.Write(enc)
		return nil
	}
	buf.WriteByte(indefiniteBytes)
	for start := 0; start < len(b); start += bytesChunkSize {
		end := min(start+bytesChunkSize, len(b))
		buf.Write(appendHead(nil, majorBytes, uint64(end-start)))
		buf.Write(b[start:end])
	}
	buf.WriteByte(breakMarker)
	return nil
}

// appendHead writes a definite-length CBOR head for the given major type.
func appendHead(dst []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(dst, m|byte(n))
	case n <= 0xff:
		return append(dst, m|24, byte(n))
	case n <= 0xffff:
		return append(dst, m|25, byte(n>>8), byte(n))
	case n <= 0xffffffff:
		return append(dst, m|26, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	default:
		return append(dst, m|27, byte(n>>56), byte(n>>48), byte(n>>40), byte(n>>32),
			byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
	}
}

// Decode parses a CBOR-encoded Plutus Data value. Map entries keep their
// wire order. Every failure wraps ErrDecode.
func Decode(b []byte) (Data, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}
	var raw cbor.RawMessage
	if err := decMode.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	d, err := fromRaw(raw, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return d, nil
}

// DecodeHex parses hex-encoded CBOR.
func DecodeHex(s string) (Data, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return Decode(b)
}

// fromRaw converts one well-formed CBOR item.
func fromRaw(raw cbor.RawMessage, depth int) (Data, error) {
	if depth > maxNestedLevels {
		return nil, fmt.Errorf("nesting exceeds %d levels", maxNestedLevels)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty item")
	}
	switch raw[0] >> 5 {
	case majorUint, majorNint:
		var n big.Int
		if err := decMode.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return Int{Value: &n}, nil
	case majorBytes:
		var b []byte
		if err := decMode.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return Bytes(b), nil
	case majorArray:
		return fromArray(raw, depth)
	case majorMap:
		return fromMap(raw, depth)
	case majorTag:
		var t cbor.RawTag
		if err := decMode.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		return fromTag(t, depth)
	default:
		return nil, fmt.Errorf("unsupported major type %d", raw[0]>>5)
	}
}

func fromTag(t cbor.RawTag, depth int) (Data, error) {
	switch {
	case t.Number >= tagConstrBase && t.Number <= tagConstrBase+maxCompactIndex:
		return constrFromContent(t.Number-tagConstrBase, t.Content, depth)
	case t.Number >= tagConstrExtBase && t.Number <= tagConstrExtBase+maxExtendedIndex-maxCompactIndex-1:
		return constrFromContent(t.Number-tagConstrExtBase+maxCompactIndex+1, t.Content, depth)
	case t.Number == tagConstrGeneral:
		var pair []cbor.RawMessage
		if err := decMode.Unmarshal(t.Content, &pair); err != nil || len(pair) != 2 {
			return nil, errors.New("general constructor must be a two-element array")
		}
		var idx uint64
		if err := decMode.Unmarshal(pair[0], &idx); err != nil || pair[0][0]>>5 != majorUint {
			return nil, errors.New("general constructor index must be an unsigned int")
		}
		return constrFromContent(idx, pair[1], depth)
	case t.Number == tagPosBignum || t.Number == tagNegBignum:
		if len(t.Content) == 0 || t.Content[0]>>5 != majorBytes {
			return nil, errors.New("bignum content must be bytes")
		}
		var raw []byte
		if err := decMode.Unmarshal(t.Content, &raw); err != nil {
			return nil, err
		}
		n := new(big.Int).SetBytes(raw)
		if t.Number == tagNegBignum {
			n.Neg(n).Sub(n, big.NewInt(1))
		}
		return Int{Value: n}, nil
	default:
		return nil, fmt.Errorf("unsupported tag %d", t.Number)
	}
}

func constrFromContent(index uint64, content cbor.RawMessage, depth int) (Data, error) {
	if len(content) == 0 || content[0]>>5 != majorArray {
		return nil, fmt.Errorf("constructor %d fields must be an array", index)
	}
	fields, err := fromArray(content, depth+1)
	if err != nil {
		return nil, err
	}
	return Constr{Index: index, Fields: []Data(fields.(List))}, nil
}

func fromArray(raw cbor.RawMessage, depth int) (Data, error) {
	var items []cbor.RawMessage
	if err := decMode.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make(List, len(items))
	for i, it := range items {
		d, err := fromRaw(it, depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// fromMap reads map entries in wire order. Keys may be any Plutus Data.
func fromMap(raw cbor.RawMessage, depth int) (Data, error) {
	count, body, indefinite, err := mapHead(raw)
	if err != nil {
		return nil, err
	}
	dec := decMode.NewDecoder(bytes.NewReader(body))

	var out Map
	for i := 0; indefinite || i < count; i++ {
		if indefinite {
			if off := dec.NumBytesRead(); off >= len(body) {
				return nil, errors.New("unterminated map")
			} else if body[off] == breakMarker {
				break
			}
		}
		var k, v cbor.RawMessage
		if err := dec.Decode(&k); err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		key, err := fromRaw(k, depth+1)
		if err != nil {
			return nil, err
		}
		val, err := fromRaw(v, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, Pair{Key: key, Value: val})
	}
	if out == nil {
		out = Map{}
	}
	return out, nil
}

// mapHead splits a map item into its entry count and the bytes after the head.
func mapHead(raw []byte) (count int, body []byte, indefinite bool, err error) {
	info := raw[0] & 0x1f
	switch {
	case info < 24:
		return int(info), raw[1:], false, nil
	case info == 31:
		return 0, raw[1:], true, nil
	case info > 27:
		return 0, nil, false, errors.New("malformed map head")
	}
	size := 1 << (info - 24)
	if len(raw) < 1+size {
		return 0, nil, false, errors.New("truncated map head")
	}
	var n uint64
	for _, b := range raw[1 : 1+size] {
		n = n<<8 | uint64(b)
	}
	if n > uint64(len(raw)) {
		return 0, nil, false, errors.New("map length exceeds input")
	}
	return int(n), raw[1+size:], false, nil
}
