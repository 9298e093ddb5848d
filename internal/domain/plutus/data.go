// Package plutus implements the ledger's generic structured data format
// (Plutus Data) and its CBOR wire encoding.
package plutus

import (
	"bytes"
	"fmt"
	"math/big"
)

// Data is one Plutus Data value: Constr, Int, Bytes, List or Map.
type Data interface {
	isData()
}

// Constr is a tagged constructor with an ordered field list.
type Constr struct {
	Index  uint64
	Fields []Data
}

// Int is an unbounded integer.
type Int struct {
	Value *big.Int
}

// Bytes is an opaque byte string.
type Bytes []byte

// List is an ordered sequence.
type List []Data

// Map is an ordered association list.
type Map []Pair

// Pair is one Map entry.
type Pair struct {
	Key   Data
	Value Data
}

func (Constr) isData() {}
func (Int) isData()    {}
func (Bytes) isData()  {}
func (List) isData()   {}
func (Map) isData()    {}

// NewConstr builds a constructor value.
func NewConstr(index uint64, fields ...Data) Constr {
	if fields == nil {
		fields = []Data{}
	}
	return Constr{Index: index, Fields: fields}
}

// NewInt wraps an int64.
func NewInt(v int64) Int {
	return Int{Value: big.NewInt(v)}
}

// BigInt wraps a *big.Int; nil is treated as zero. The value is copied.
func BigInt(v *big.Int) Int {
	if v == nil {
		return Int{Value: new(big.Int)}
	}
	return Int{Value: new(big.Int).Set(v)}
}

// Bool encodes a boolean as Constr 0 [] (false) or Constr 1 [] (true).
func Bool(b bool) Constr {
	if b {
		return NewConstr(1)
	}
	return NewConstr(0)
}

// AsBool reads a boolean constructor.
func AsBool(d Data) (bool, error) {
	c, ok := d.(Constr)
	if !ok || len(c.Fields) != 0 || c.Index > 1 {
		return false, fmt.Errorf("plutus: expected bool constructor, got %s", Describe(d))
	}
	return c.Index == 1, nil
}

// AsInt reads an integer; the returned value is a copy.
func AsInt(d Data) (*big.Int, error) {
	i, ok := d.(Int)
	if !ok || i.Value == nil {
		return nil, fmt.Errorf("plutus: expected int, got %s", Describe(d))
	}
	return new(big.Int).Set(i.Value), nil
}

// AsBytes reads a byte string; the returned slice is a copy.
func AsBytes(d Data) ([]byte, error) {
	b, ok := d.(Bytes)
	if !ok {
		return nil, fmt.Errorf("plutus: expected bytes, got %s", Describe(d))
	}
	return bytes.Clone([]byte(b)), nil
}

// AsList reads a list.
func AsList(d Data) (List, error) {
	l, ok := d.(List)
	if !ok {
		return nil, fmt.Errorf("plutus: expected list, got %s", Describe(d))
	}
	return l, nil
}

// AsConstr reads a constructor with at least minFields fields.
func AsConstr(d Data, minFields int) (Constr, error) {
	c, ok := d.(Constr)
	if !ok {
		return Constr{}, fmt.Errorf("plutus: expected constructor, got %s", Describe(d))
	}
	if len(c.Fields) < minFields {
		return Constr{}, fmt.Errorf("plutus: constructor %d has %d fields, want at least %d", c.Index, len(c.Fields), minFields)
	}
	return c, nil
}

// Describe names the variant of d for error messages.
func Describe(d Data) string {
	switch v := d.(type) {
	case nil:
		return "nothing"
	case Constr:
		return fmt.Sprintf("constr %d/%d", v.Index, len(v.Fields))
	case Int:
		return "int"
	case Bytes:
		return "bytes"
	case List:
		return fmt.Sprintf("list/%d", len(v))
	case Map:
		return fmt.Sprintf("map/%d", len(v))
	default:
		return fmt.Sprintf("%T", d)
	}
}

// Equal reports structural equality.
func Equal(a, b Data) bool {
	switch x := a.(type) {
	case Constr:
		y, ok := b.(Constr)
		return ok && x.Index == y.Index && equalSlices(x.Fields, y.Fields)
	case Int:
		y, ok := b.(Int)
		return ok && x.Value != nil && y.Value != nil && x.Value.Cmp(y.Value) == 0
	case Bytes:
		y, ok := b.(Bytes)
		return ok && bytes.Equal(x, y)
	case List:
		y, ok := b.(List)
		return ok && equalSlices(x, y)
	case Map:
		y, ok := b.(Map)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i].Key, y[i].Key) || !Equal(x[i].Value, y[i].Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func equalSlices(a, b []Data) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
