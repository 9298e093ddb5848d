// Package locator finds the output holding a record with a given logical id
// among the outputs at a contract address.
package locator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

// Skip reasons reported to metrics.
const (
	skipNoDatum   = "no_datum"
	skipMalformed = "malformed"
)

// Querier is the part of the ledger the locator reads.
type Querier interface {
	QueryOutputs(ctx context.Context, address string) ([]ledger.Output, error)
}

// Decoder parses datum bytes into a record.
type Decoder[R protocol.Record] func([]byte) (R, error)

// Match is a located output and its decoded record.
type Match[R protocol.Record] struct {
	Output ledger.Output
	Record R
}

// Locator scans contract outputs for records of type R.
type Locator[R protocol.Record] struct {
	querier Querier
	decode  Decoder[R]
	kind    string
	logger  logger.Logger
}

// Option configures a Locator.
type Option func(*options)

type options struct {
	logger logger.Logger
}

// WithLogger sets the logger used for skipped and ambiguous outputs.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns a locator for the record kind ("auction", "evaluation").
func New[R protocol.Record](q Querier, kind string, decode Decoder[R], opts ...Option) *Locator[R] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("locator")
	}
	return &Locator[R]{querier: q, decode: decode, kind: kind, logger: o.logger}
}

// Auctions returns a locator for auction records.
func Auctions(q Querier, opts ...Option) *Locator[protocol.AuctionRecord] {
	return New[protocol.AuctionRecord](q, "auction", protocol.DecodeAuction, opts...)
}

// Evaluations returns a locator for evaluation records.
func Evaluations(q Querier, opts ...Option) *Locator[protocol.EvaluationRecord] {
	return New[protocol.EvaluationRecord](q, "evaluation", protocol.DecodeEvaluation, opts...)
}

// Scan decodes every record at address, in ledger order. Outputs without a
// datum or with a datum that does not decode are skipped.
func (l *Locator[R]) Scan(ctx context.Context, address string) ([]Match[R], error) {
	start := time.Now()
	defer func() {
		metrics.RecordLocatorScan(l.kind, float64(time.Since(start).Milliseconds()))
	}()

	outputs, err := l.querier.QueryOutputs(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("query %s outputs: %w", l.kind, err)
	}

	matches := make([]Match[R], 0, len(outputs))
	for _, out := range outputs {
		if !out.HasDatum() {
			metrics.RecordLocatorSkipped(l.kind, skipNoDatum)
			continue
		}
		rec, err := l.decode(out.Datum)
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedDatum) {
				metrics.RecordLocatorSkipped(l.kind, skipMalformed)
				l.logger.Debug(ctx, "skipping undecodable output",
					logger.String("kind", l.kind),
					logger.String("ref", out.Ref.String()),
					logger.Error(err))
				continue
			}
			return nil, err
		}
		matches = append(matches, Match[R]{Output: out, Record: rec})
	}
	return matches, nil
}

// FindWhere returns the first record satisfying pred. When several match,
// the first in ledger order wins and the ambiguity is logged and counted.
func (l *Locator[R]) FindWhere(ctx context.Context, address string, pred func(R) bool) (Match[R], error) {
	all, err := l.Scan(ctx, address)
	if err != nil {
		return Match[R]{}, err
	}

	var (
		found Match[R]
		count int
	)
	for _, m := range all {
		if !pred(m.Record) {
			continue
		}
		if count == 0 {
			found = m
		}
		count++
	}

	switch {
	case count == 0:
		return Match[R]{}, protocol.ErrRecordNotFound
	case count > 1:
		metrics.RecordLocatorAmbiguous(l.kind)
		l.logger.Warn(ctx, "multiple outputs match, using the first",
			logger.String("kind", l.kind),
			logger.Int("matches", count),
			logger.String("ref", found.Output.Ref.String()))
	}
	return found, nil
}

// Find returns the output holding the record with the given id. Closed
// records are ignored unless includeClosed is set. A nil id matches nothing.
func (l *Locator[R]) Find(ctx context.Context, address string, id *big.Int, includeClosed bool) (Match[R], error) {
	if id == nil {
		return Match[R]{}, fmt.Errorf("%s without id: %w", l.kind, protocol.ErrRecordNotFound)
	}
	m, err := l.FindWhere(ctx, address, func(r R) bool {
		return r.LogicalID().Cmp(id) == 0 && (includeClosed || !r.IsClosed())
	})
	if err != nil {
		return Match[R]{}, fmt.Errorf("%s %s: %w", l.kind, id, err)
	}
	return m, nil
}
