package txbuilder_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/internal/domain/txbuilder"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

type wallet struct {
	outputs []ledger.Output
	err     error
}

func (w *wallet) QueryOutputs(_ context.Context, _ string) ([]ledger.Output, error) {
	return w.outputs, w.err
}

func utxo(i int, lovelace uint64) ledger.Output {
	return ledger.Output{
		Ref:      ledger.OutRef{TxHash: fmt.Sprintf("%064x", i), Index: 0},
		Address:  "wallet",
		Lovelace: lovelace,
	}
}

func balanced(tx ledger.UnsignedTx) bool {
	return tx.InputValue() == tx.OutputValue()+tx.Fee
}

func flatFee() txbuilder.Params {
	p := txbuilder.DefaultParams()
	p.FeePerByte = 0
	p.FeeConstant = 100_000
	return p
}

func TestBuildCreate(t *testing.T) {
	Convey("Given a funded wallet", t, func() {
		ctx := context.Background()
		w := &wallet{outputs: []ledger.Output{utxo(1, 3_000_000), utxo(2, 50_000_000), utxo(3, 10_000_000)}}
		b := txbuilder.New(w, txbuilder.WithLogger(logger.Nop()))

		req := txbuilder.CreateRequest{
			Name:            protocol.ActionCreateAuction,
			ContractAddress: "contract",
			Deposit:         2_000_000,
			Datum:           []byte{0xd8, 0x79, 0x80},
			ChangeAddress:   "wallet",
		}

		Convey("The deposit and datum go to the contract and the largest output pays", func() {
			tx, err := b.BuildCreate(ctx, req)
			So(err, ShouldBeNil)
			So(len(tx.Inputs), ShouldEqual, 1)
			So(tx.Inputs[0].Lovelace, ShouldEqual, uint64(50_000_000))
			So(tx.Outputs[0].Address, ShouldEqual, "contract")
			So(tx.Outputs[0].Lovelace, ShouldEqual, uint64(2_000_000))
			So(tx.Outputs[0].Datum, ShouldResemble, req.Datum)
			So(tx.Outputs[1].Address, ShouldEqual, "wallet")
			So(len(tx.ScriptInputs), ShouldEqual, 0)
			So(len(tx.Collateral), ShouldEqual, 0)
			So(balanced(tx), ShouldBeTrue)
			So(tx.Hash, ShouldEqual, ledger.HashBody(tx.Body))
		})

		Convey("The fee covers the linear fee of the final size", func() {
			tx, err := b.BuildCreate(ctx, req)
			So(err, ShouldBeNil)
			p := b.Params()
			So(tx.Fee, ShouldBeGreaterThanOrEqualTo, p.FeePerByte*uint64(len(tx.Body))+p.FeeConstant)
		})

		Convey("Building twice from the same snapshot is deterministic", func() {
			a, err := b.BuildCreate(ctx, req)
			So(err, ShouldBeNil)
			c, err := b.BuildCreate(ctx, req)
			So(err, ShouldBeNil)
			So(a.Hash, ShouldEqual, c.Hash)
		})

		Convey("Deposits below the minimum are raised", func() {
			req.Deposit = 1
			tx, err := b.BuildCreate(ctx, req)
			So(err, ShouldBeNil)
			So(tx.Outputs[0].Lovelace, ShouldEqual, uint64(2_000_000))
		})

		Convey("An empty wallet fails with insufficient funds", func() {
			w.outputs = nil
			_, err := b.BuildCreate(ctx, req)
			So(errors.Is(err, protocol.ErrBuildFailed), ShouldBeTrue)
			So(errors.Is(err, txbuilder.ErrInsufficientFunds), ShouldBeTrue)
		})

		Convey("Wallet query failures are build failures", func() {
			w.err = errors.New("offline")
			_, err := b.BuildCreate(ctx, req)
			So(errors.Is(err, protocol.ErrBuildFailed), ShouldBeTrue)
		})

		Convey("Outputs carrying a datum are never spent from the wallet", func() {
			w.outputs = []ledger.Output{{Ref: utxo(9, 0).Ref, Address: "wallet", Lovelace: 90_000_000, Datum: []byte{0x80}}}
			_, err := b.BuildCreate(ctx, req)
			So(errors.Is(err, txbuilder.ErrInsufficientFunds), ShouldBeTrue)
		})
	})
}

func TestChangeAbsorption(t *testing.T) {
	Convey("Change below the minimum is absorbed into the fee", t, func() {
		w := &wallet{outputs: []ledger.Output{utxo(1, 2_000_000+100_000+500)}}
		b := txbuilder.New(w, txbuilder.WithLogger(logger.Nop()), txbuilder.WithParams(flatFee()))

		tx, err := b.BuildCreate(context.Background(), txbuilder.CreateRequest{
			Name: "create", ContractAddress: "contract", Deposit: 2_000_000, Datum: []byte{0x80}, ChangeAddress: "wallet",
		})
		So(err, ShouldBeNil)
		So(len(tx.Outputs), ShouldEqual, 1)
		So(tx.Fee, ShouldEqual, uint64(100_500))
		So(balanced(tx), ShouldBeTrue)
	})
}

func TestBuildAction(t *testing.T) {
	Convey("Given a located contract output", t, func() {
		ctx := context.Background()
		w := &wallet{outputs: []ledger.Output{utxo(1, 20_000_000), utxo(2, 8_000_000)}}
		b := txbuilder.New(w, txbuilder.WithLogger(logger.Nop()))

		input := ledger.Output{
			Ref:      ledger.OutRef{TxHash: fmt.Sprintf("%064x", 77), Index: 0},
			Address:  "contract",
			Lovelace: 2_000_000,
			Datum:    []byte{0xd8, 0x79, 0x80},
		}
		req := txbuilder.ActionRequest{
			Name:            protocol.ActionPlaceBid,
			Input:           &input,
			Redeemer:        []byte{0xd8, 0x7a, 0x9f, 0x01, 0xff},
			Script:          []byte{0x4e, 0x4d, 0x01},
			ContractAddress: "contract",
			Next:            []byte{0xd8, 0x7a, 0x80},
			ChangeAddress:   "wallet",
		}

		Convey("The record is spent and a continuing output carries its value", func() {
			tx, err := b.BuildAction(ctx, req)
			So(err, ShouldBeNil)
			So(len(tx.ScriptInputs), ShouldEqual, 1)
			So(tx.ScriptInputs[0].Output.Ref, ShouldResemble, input.Ref)
			So(tx.Outputs[0].Address, ShouldEqual, "contract")
			So(tx.Outputs[0].Lovelace, ShouldEqual, input.Lovelace)
			So(tx.Outputs[0].Datum, ShouldResemble, req.Next)
			So(balanced(tx), ShouldBeTrue)
		})

		Convey("Collateral is the smallest wallet output covering the requirement", func() {
			tx, err := b.BuildAction(ctx, req)
			So(err, ShouldBeNil)
			So(len(tx.Collateral), ShouldEqual, 1)
			So(tx.Collateral[0].Lovelace, ShouldEqual, uint64(8_000_000))
		})

		Convey("The fee prices the execution budget and the body commits to the cost model", func() {
			p := txbuilder.DefaultParams()
			p.CostModel = []int64{205665, 812, 1, 1}
			priced := txbuilder.New(w, txbuilder.WithLogger(logger.Nop()), txbuilder.WithParams(p))

			tx, err := priced.BuildAction(ctx, req)
			So(err, ShouldBeNil)
			So(tx.Fee, ShouldBeGreaterThanOrEqualTo,
				ledger.ScriptFee(p.PriceMem, p.PriceSteps, 1)+p.FeePerByte*uint64(len(tx.Body))+p.FeeConstant)
			So(tx.CostModel, ShouldResemble, p.CostModel)

			carried, err := ledger.BodyScriptDataHash(tx.Body)
			So(err, ShouldBeNil)
			want, err := ledger.ScriptDataHash(tx)
			So(err, ShouldBeNil)
			So(carried, ShouldResemble, want)
			So(balanced(tx), ShouldBeTrue)
		})

		Convey("A terminal spend pays out instead of continuing", func() {
			req.Name = protocol.ActionSendBack
			req.Next = nil
			req.Payouts = []ledger.TxOutput{{Address: "student", Lovelace: input.Lovelace}}
			tx, err := b.BuildAction(ctx, req)
			So(err, ShouldBeNil)
			So(tx.Outputs[0].Address, ShouldEqual, "student")
			for _, o := range tx.Outputs {
				So(o.Address, ShouldNotEqual, "contract")
			}
			So(balanced(tx), ShouldBeTrue)
		})

		Convey("A missing input is reported as not found", func() {
			req.Input = nil
			_, err := b.BuildAction(ctx, req)
			So(errors.Is(err, protocol.ErrRecordNotFound), ShouldBeTrue)
		})

		Convey("Without a large enough output there is no collateral", func() {
			w.outputs = []ledger.Output{utxo(1, 3_000_000), utxo(2, 3_000_000)}
			_, err := b.BuildAction(ctx, req)
			So(errors.Is(err, protocol.ErrBuildFailed), ShouldBeTrue)
			So(errors.Is(err, txbuilder.ErrNoCollateral), ShouldBeTrue)
		})
	})
}
