package service_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	service "github.com/vnFuhung2903/rubyams/internal/app"
	"github.com/vnFuhung2903/rubyams/internal/adapters/journal"
	"github.com/vnFuhung2903/rubyams/internal/adapters/ledger/emulator"
	"github.com/vnFuhung2903/rubyams/internal/adapters/signer"
	"github.com/vnFuhung2903/rubyams/internal/domain/contract"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

const blueprint = `{
  "preamble": {"title": "rubyams/contracts", "plutusVersion": "v2"},
  "validators": [
    {"title": "class.class", "compiledCode": "4e4d01000033222220051200120011"},
    {"title": "evaluate.evaluate", "compiledCode": "4e4d01000033222220051200120012"}
  ]
}`

const fund = 1_000_000_000

type harness struct {
	emu       *emulator.Emulator
	contracts contract.Config
	signer    *signer.KeySigner
	journal   *journal.Memory
	svc       *service.Service
}

func newHarness(t *testing.T, manual bool, opts ...service.Option) *harness {
	t.Helper()

	contracts, err := contract.Parse([]byte(blueprint), contract.Options{
		Network:         ledger.Testnet,
		AuctionTitle:    "class.class",
		EvaluationTitle: "evaluate.evaluate",
	})
	if err != nil {
		t.Fatalf("parse blueprint: %v", err)
	}
	s, err := signer.GenerateKeySigner(ledger.Testnet)
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}

	emuOpts := []emulator.Option{emulator.WithLogger(logger.Nop()), emulator.WithFeeParams(44, 155_381)}
	if manual {
		emuOpts = append(emuOpts, emulator.WithManualConfirm())
	}
	emu := emulator.New(emuOpts...)
	emu.Fund(s.Address(), fund)

	j := journal.NewMemory()
	base := []service.Option{
		service.WithLogger(logger.Nop()),
		service.WithJournal(j),
		service.WithPollInterval(5 * time.Millisecond),
		service.WithConfirmTimeout(2 * time.Second),
		service.WithSubmitRate(1000, 1000),
	}
	svc := service.New(contracts, emu, s, append(base, opts...)...)
	return &harness{emu: emu, contracts: contracts, signer: s, journal: j, svc: svc}
}

// fundedSigner returns another wallet holding its own funds.
func (h *harness) fundedSigner(t *testing.T) *signer.KeySigner {
	t.Helper()
	s, err := signer.GenerateKeySigner(ledger.Testnet)
	if err != nil {
		t.Fatalf("generate signer: %v", err)
	}
	h.emu.Fund(s.Address(), fund)
	return s
}

// walletBalance sums the datum-free outputs at addr.
func (h *harness) walletBalance(addr string) uint64 {
	outs, _ := h.emu.QueryOutputs(context.Background(), addr)
	var total uint64
	for _, o := range outs {
		total += o.Lovelace
	}
	return total
}

// waitStatus polls the journal until hash reaches status.
func (h *harness) waitStatus(hash, status string, within time.Duration) model.Activity {
	deadline := time.Now().Add(within)
	for {
		a, err := h.journal.GetByTxHash(context.Background(), hash)
		if (err == nil && a.Status == status) || time.Now().After(deadline) {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func n(v int64) *big.Int { return big.NewInt(v) }
