package ledger_test

import (
	"bytes"
	"encoding/hex"
	"slices"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
)

func hash(b byte) string { return strings.Repeat(hex.EncodeToString([]byte{b}), 32) }

func TestAddresses(t *testing.T) {
	Convey("Key and script addresses round-trip through their raw bytes", t, func() {
		keyHash := ledger.Hash224([]byte("public key"))
		So(len(keyHash), ShouldEqual, ledger.HashSize)

		addr, err := ledger.KeyAddress(keyHash, ledger.Testnet)
		So(err, ShouldBeNil)
		So(strings.HasPrefix(addr, "addr_test1"), ShouldBeTrue)

		raw := ledger.AddressBytes(addr)
		So(len(raw), ShouldEqual, ledger.HashSize+1)
		So(raw[0], ShouldEqual, byte(0x60))

		got, ok := ledger.PaymentKeyHash(addr)
		So(ok, ShouldBeTrue)
		So(bytes.Equal(keyHash, got), ShouldBeTrue)

		script, err := ledger.ScriptAddress(keyHash, ledger.Mainnet)
		So(err, ShouldBeNil)
		So(strings.HasPrefix(script, "addr1"), ShouldBeTrue)
		So(ledger.AddressBytes(script)[0], ShouldEqual, byte(0x71))

		_, ok = ledger.PaymentKeyHash(script)
		So(ok, ShouldBeFalse)

		_, err = ledger.KeyAddress([]byte{1, 2, 3}, ledger.Testnet)
		So(err, ShouldNotBeNil)

		So(string(ledger.AddressBytes("not-bech32")), ShouldEqual, "not-bech32")
	})
}

func TestSealOrdersInputsAndHashesBody(t *testing.T) {
	Convey("Seal orders inputs and hashes the body", t, func() {
		a := ledger.Output{Ref: ledger.OutRef{TxHash: hash(0xbb), Index: 0}, Address: "wallet", Lovelace: 5}
		b := ledger.Output{Ref: ledger.OutRef{TxHash: hash(0xaa), Index: 1}, Address: "contract", Lovelace: 7}

		tx := ledger.UnsignedTx{
			Inputs:       []ledger.Output{a},
			ScriptInputs: []ledger.ScriptInput{{Output: b, Redeemer: []byte{0xd8, 0x79, 0x80}, Script: []byte{0x01}}},
			Outputs:      []ledger.TxOutput{{Address: "contract", Lovelace: 10, Datum: []byte{0x80}}},
			Fee:          2,
		}
		So(ledger.Seal(&tx), ShouldBeNil)
		So(len(tx.Hash), ShouldEqual, 64)
		So(tx.Hash, ShouldEqual, ledger.HashBody(tx.Body))

		order := ledger.SortedInputs(tx)
		So(order[0], ShouldResemble, b.Ref)
		So(order[1], ShouldResemble, a.Ref)

		var body map[uint64]cbor.RawMessage
		So(cbor.Unmarshal(tx.Body, &body), ShouldBeNil)
		keys := make([]uint64, 0, len(body))
		for k := range body {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		So(keys, ShouldResemble, []uint64{0, 1, 2, 11})

		carried, err := ledger.BodyScriptDataHash(tx.Body)
		So(err, ShouldBeNil)
		want, err := ledger.ScriptDataHash(tx)
		So(err, ShouldBeNil)
		So(carried, ShouldResemble, want)

		again := tx
		So(ledger.Seal(&again), ShouldBeNil)
		So(again.Hash, ShouldEqual, tx.Hash)

		tx.Fee = 3
		So(ledger.Seal(&tx), ShouldBeNil)
		So(tx.Hash != again.Hash, ShouldBeTrue)

		So(tx.InputValue(), ShouldEqual, uint64(12))
		So(tx.OutputValue(), ShouldEqual, uint64(10))
	})
}

func TestEncodeSigned(t *testing.T) {
	Convey("A signed transaction carries body, witnesses and scripts", t, func() {
		in := ledger.Output{Ref: ledger.OutRef{TxHash: hash(0x01), Index: 0}, Lovelace: 5}
		tx := ledger.UnsignedTx{
			ScriptInputs: []ledger.ScriptInput{{Output: in, Redeemer: []byte{0xd8, 0x79, 0x80}, Script: []byte{0x4e}}},
			Collateral:   []ledger.Output{{Ref: ledger.OutRef{TxHash: hash(0x02)}, Lovelace: 9}},
			Outputs:      []ledger.TxOutput{{Address: "wallet", Lovelace: 3}},
			Fee:          2,
		}
		_, err := ledger.EncodeSigned(tx, nil)
		So(err, ShouldNotBeNil)

		So(ledger.Seal(&tx), ShouldBeNil)
		raw, err := ledger.EncodeSigned(tx, []ledger.Witness{{PublicKey: []byte{1}, Signature: []byte{2}}})
		So(err, ShouldBeNil)

		var parts []cbor.RawMessage
		So(cbor.Unmarshal(raw, &parts), ShouldBeNil)
		So(len(parts), ShouldEqual, 4)
		So(bytes.Equal(tx.Body, parts[0]), ShouldBeTrue)

		var ws map[uint64]cbor.RawMessage
		So(cbor.Unmarshal(parts[1], &ws), ShouldBeNil)
		_, hasVKeys := ws[0]
		_, hasRedeemers := ws[5]
		_, hasScripts := ws[7]
		So(hasVKeys && hasRedeemers && hasScripts, ShouldBeTrue)

		h, err := ledger.SigningHash(tx)
		So(err, ShouldBeNil)
		So(len(h), ShouldEqual, 32)

		_, err = ledger.SigningHash(ledger.UnsignedTx{Hash: "abc"})
		So(err, ShouldNotBeNil)
	})
}

func TestOutRefCompare(t *testing.T) {
	Convey("Output refs order by hash then index", t, func() {
		a := ledger.OutRef{TxHash: "aa", Index: 2}
		So(a.Compare(a), ShouldEqual, 0)
		So(a.Compare(ledger.OutRef{TxHash: "aa", Index: 3}), ShouldEqual, -1)
		So(a.Compare(ledger.OutRef{TxHash: "a0", Index: 9}), ShouldEqual, 1)
		So(a.String(), ShouldEqual, "aa#2")
	})
}

func TestScriptData(t *testing.T) {
	Convey("Given a script spend", t, func() {
		in := ledger.Output{Ref: ledger.OutRef{TxHash: hash(0x03), Index: 0}, Lovelace: 5}
		tx := ledger.UnsignedTx{
			ScriptInputs: []ledger.ScriptInput{{Output: in, Redeemer: []byte{0xd8, 0x79, 0x80}, Script: []byte{0x4e}}},
			Outputs:      []ledger.TxOutput{{Address: "wallet", Lovelace: 3}},
			Fee:          2,
			CostModel:    []int64{100, 200, 300},
		}

		Convey("The script data hash commits to the cost model and the redeemers", func() {
			base, err := ledger.ScriptDataHash(tx)
			So(err, ShouldBeNil)
			So(len(base), ShouldEqual, 32)

			other := tx
			other.CostModel = []int64{100, 200, 301}
			changed, err := ledger.ScriptDataHash(other)
			So(err, ShouldBeNil)
			So(changed, ShouldNotResemble, base)

			other = tx
			other.ScriptInputs = []ledger.ScriptInput{{Output: in, Redeemer: []byte{0xd8, 0x7a, 0x80}, Script: []byte{0x4e}}}
			changed, err = ledger.ScriptDataHash(other)
			So(err, ShouldBeNil)
			So(changed, ShouldNotResemble, base)
		})

		Convey("Key-only transactions carry no script data hash", func() {
			plain := ledger.UnsignedTx{
				Inputs:  []ledger.Output{{Ref: ledger.OutRef{TxHash: hash(0x04)}, Address: "wallet", Lovelace: 5}},
				Outputs: []ledger.TxOutput{{Address: "wallet", Lovelace: 3}},
				Fee:     2,
			}
			So(ledger.Seal(&plain), ShouldBeNil)
			carried, err := ledger.BodyScriptDataHash(plain.Body)
			So(err, ShouldBeNil)
			So(len(carried), ShouldEqual, 0)
		})

		Convey("Execution units are priced and rounded up", func() {
			mem := decimal.RequireFromString("0.0577")
			steps := decimal.RequireFromString("0.0000721")
			// 0.0577*14e6 + 0.0000721*1e10 = 807800 + 721000
			So(ledger.ScriptFee(mem, steps, 1), ShouldEqual, uint64(1_528_800))
			So(ledger.ScriptFee(mem, steps, 2), ShouldEqual, uint64(3_057_600))
			So(ledger.ScriptFee(mem, steps, 0), ShouldEqual, uint64(0))
			So(ledger.ScriptFee(decimal.RequireFromString("0.00000001"), decimal.Zero, 1), ShouldEqual, uint64(1))
		})
	})
}
