// Package service wires the protocol facades, the confirmation tracker and
// the activity journal behind the dependencies the HTTP API needs.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vnFuhung2903/rubyams/internal/adapters/journal"
	"github.com/vnFuhung2903/rubyams/internal/adapters/mq/queue"
	"github.com/vnFuhung2903/rubyams/internal/adapters/mq/worker"
	"github.com/vnFuhung2903/rubyams/internal/domain/contract"
	"github.com/vnFuhung2903/rubyams/internal/domain/dedupe"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/lifecycle"
	"github.com/vnFuhung2903/rubyams/internal/domain/locator"
	"github.com/vnFuhung2903/rubyams/internal/domain/model"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/internal/domain/txbuilder"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

// ErrStopped is returned by Start once the service has been stopped.
var ErrStopped = errors.New("service: stopped and cannot be restarted")

// Service owns the facades and their background tracker.
type Service struct {
	mu sync.RWMutex

	// Core components
	contracts   contract.Config
	signer      ledger.Signer
	journal     journal.Journal
	driver      *lifecycle.Driver
	queue       *queue.InMemoryQueue
	pool        *worker.Pool
	auctions    *Auctions
	evaluations *Evaluations

	// Configuration
	params         txbuilder.Params
	pollInterval   time.Duration
	confirmTimeout time.Duration
	trackWindow    time.Duration
	ratePerSec     float64
	burst          int
	workerCount    int
	queueSize      int
	dedupeSize     int

	// State
	started bool
	stopped bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithJournal replaces the in-memory activity journal.
func WithJournal(j journal.Journal) Option {
	return func(s *Service) {
		if j != nil {
			s.journal = j
		}
	}
}

// WithParams sets the builder's protocol parameters.
func WithParams(p txbuilder.Params) Option {
	return func(s *Service) { s.params = p }
}

// WithPollInterval sets the confirmation poll period.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithConfirmTimeout bounds how long a facade call waits for confirmation.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.confirmTimeout = d
		}
	}
}

// WithSubmitRate throttles ledger submissions.
func WithSubmitRate(perSec float64, burst int) Option {
	return func(s *Service) {
		if perSec > 0 && burst > 0 {
			s.ratePerSec = perSec
			s.burst = burst
		}
	}
}

// WithTracker sizes the confirmation tracker.
func WithTracker(workers, queueSize int, window time.Duration) Option {
	return func(s *Service) {
		if workers > 0 {
			s.workerCount = workers
		}
		if queueSize > 0 {
			s.queueSize = queueSize
		}
		if window > 0 {
			s.trackWindow = window
		}
	}
}

// WithDedupeSize sets how many tracked hashes are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New wires the facades for contracts over l, acting as signer.
func New(contracts contract.Config, l ledger.Ledger, signer ledger.Signer, opts ...Option) *Service {
	s := &Service{
		contracts:      contracts,
		signer:         signer,
		params:         txbuilder.DefaultParams(),
		pollInterval:   lifecycle.DefaultPollInterval,
		confirmTimeout: lifecycle.DefaultTimeout,
		trackWindow:    10 * time.Minute,
		ratePerSec:     5,
		burst:          5,
		workerCount:    4,
		queueSize:      1000,
		dedupeSize:     10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.journal == nil {
		s.journal = journal.NewMemory()
	}

	s.driver = lifecycle.New(l,
		lifecycle.WithPollInterval(s.pollInterval),
		lifecycle.WithRateLimit(s.ratePerSec, s.burst),
		lifecycle.WithLogger(s.logger.Named("lifecycle")))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.driver, s.journal,
		worker.WithLogger(s.logger.Named("tracker")),
		worker.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))),
		worker.WithDefaultWindow(s.trackWindow))

	shared := &env{
		builder:     txbuilder.New(l, txbuilder.WithParams(s.params), txbuilder.WithLogger(s.logger.Named("txbuilder"))),
		driver:      s.driver,
		tracker:     s.queue,
		journal:     s.journal,
		timeout:     s.confirmTimeout,
		trackWindow: s.trackWindow,
		now:         time.Now,
		logger:      s.logger,
	}
	locOpt := locator.WithLogger(s.logger.Named("locator"))

	s.auctions = &Auctions{m: machine[protocol.AuctionRecord]{
		kind:      model.MachineAuction,
		validator: contracts.Auction,
		locator:   locator.Auctions(l, locOpt),
		encode:    protocol.EncodeAuction,
		signer:    signer,
		env:       shared,
	}}
	s.evaluations = &Evaluations{m: machine[protocol.EvaluationRecord]{
		kind:      model.MachineEvaluation,
		validator: contracts.Evaluation,
		locator:   locator.Evaluations(l, locOpt),
		encode:    protocol.EncodeEvaluation,
		signer:    signer,
		env:       shared,
	}}
	return s
}

// Start launches the confirmation tracker.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := s.pool.Start(runCtx); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.started = true

	s.logger.Info(ctx, "rubyams service started",
		logger.String("wallet", s.signer.Address()),
		logger.String("auction_address", s.contracts.Auction.Address),
		logger.String("evaluation_address", s.contracts.Evaluation.Address),
		logger.Int("tracker_workers", s.workerCount),
		logger.Duration("confirm_timeout", s.confirmTimeout))
	return nil
}

// Stop interrupts the tracker and releases the journal. Transactions still
// being tracked stay pending in the journal.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping rubyams service...")

	s.cancel()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "tracker shutdown failed", logger.Error(err))
	}
	if closer, ok := s.journal.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			s.logger.Warn(ctx, "journal close failed", logger.Error(err))
		}
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "rubyams service stopped")
}

// Auctions returns the auction facade for the service signer.
func (s *Service) Auctions() *Auctions { return s.auctions }

// Evaluations returns the evaluation facade for the service signer.
func (s *Service) Evaluations() *Evaluations { return s.evaluations }

// Journal returns the activity journal.
func (s *Service) Journal() journal.Journal { return s.journal }

// Await waits for a transaction submitted earlier.
func (s *Service) Await(ctx context.Context, hash string, timeout time.Duration) error {
	return s.driver.Await(ctx, hash, timeout)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"started":            s.started,
		"network":            string(s.contracts.Network),
		"wallet":             s.signer.Address(),
		"auctionAddress":     s.contracts.Auction.Address,
		"evaluationAddress":  s.contracts.Evaluation.Address,
		"trackerWorkers":     s.workerCount,
		"trackerQueueLength": s.queue.Len(context.Background()),
		"confirmTimeoutMs":   s.confirmTimeout.Milliseconds(),
		"minDepositLovelace": s.params.MinDeposit,
	}
}
