package scenario

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

// ErrAbandoned is returned when a pending transaction is given up on by the
// service's tracker.
var ErrAbandoned = errors.New("transaction abandoned")

// Report is what a run writes to its output file.
type Report struct {
	Plan     *Plan    `json:"plan"`
	Failures []string `json:"failures"`
	Stats    *Stats   `json:"stats"`
}

// Runner drives scripted scenarios against one service.
type Runner struct {
	config *Config
	client *HTTPClient
	stats  *Stats
}

// NewRunner creates a runner for config.
func NewRunner(config *Config) *Runner {
	return &Runner{
		config: config,
		client: newHTTPClient(config.BaseURL, config.Timeout),
		stats:  &Stats{},
	}
}

// Stats returns the counters gathered so far.
func (r *Runner) Stats() *Stats { return r.stats }

// Run executes the complete scenario.
func Run(ctx context.Context, config *Config) error {
	r := NewRunner(config)
	report, err := r.Run(ctx)
	if report != nil {
		if saveErr := saveReport(ctx, config, report); saveErr != nil {
			logger.Get().Warn(ctx, "failed to save report", logger.Error(saveErr))
		}
	}
	return err
}

// Run checks the service, generates a plan, executes it and verifies the
// read models. The report is returned even when scenarios fail.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	r.stats.StartTime = time.Now()

	logger.Get().Info(ctx, "starting rubyams scenario run",
		logger.String("baseURL", r.config.BaseURL),
		logger.Int("auctions", r.config.Auctions),
		logger.Int("evaluations", r.config.Evaluations),
		logger.Int("workers", r.config.Workers),
		logger.String("timeout", r.config.Timeout.String()))

	// Step 1: Check service health and learn the wallet
	recipient, err := r.checkService(ctx)
	if err != nil {
		return nil, fmt.Errorf("service check failed: %w", err)
	}

	// Step 2: Script the run
	plan, err := generatePlan(ctx, r.config)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	// Step 3: Execute scenarios concurrently
	failures := r.execute(ctx, plan, recipient)

	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	r.displayFinalStats()

	report := &Report{Plan: plan, Failures: failures, Stats: r.stats}
	if len(failures) > 0 {
		return report, fmt.Errorf("%d of %d scenarios failed: %s", len(failures),
			len(plan.Auctions)+len(plan.Evaluations), failures[0])
	}
	logger.Get().Info(ctx, "scenario run completed successfully")
	return report, nil
}

// checkService verifies the service is up and returns the send-back
// recipient.
func (r *Runner) checkService(ctx context.Context) (string, error) {
	status, _, err := r.client.Get(ctx, "/healthz")
	if err != nil {
		return "", fmt.Errorf("failed to connect to service: %w", err)
	}
	// Any 200 is healthy; the service answers with Prometheus metrics.
	if status != StatusOK {
		return "", fmt.Errorf("health check failed with status: %d", status)
	}

	if r.config.Recipient != "" {
		return r.config.Recipient, nil
	}
	status, body, err := r.client.Get(ctx, "/stats")
	if err != nil {
		return "", fmt.Errorf("failed to read stats: %w", err)
	}
	if status != StatusOK {
		return "", apiError("/stats", status, body)
	}
	wallet := gjson.GetBytes(body, "wallet").String()
	if wallet == "" {
		return "", errors.New("service did not report a wallet")
	}
	logger.Get().Info(ctx, "service is healthy", logger.String("wallet", wallet))
	return wallet, nil
}

type job func(ctx context.Context) error

// execute runs every scenario through a worker pool and collects failures.
func (r *Runner) execute(ctx context.Context, plan *Plan, recipient string) []string {
	var jobs []job
	for _, a := range plan.Auctions {
		jobs = append(jobs, func(ctx context.Context) error { return r.runAuction(ctx, a, recipient) })
	}
	for _, e := range plan.Evaluations {
		jobs = append(jobs, func(ctx context.Context) error { return r.runEvaluation(ctx, e) })
	}

	workers := r.config.Workers
	if workers < 1 {
		workers = 1
	}

	var (
		mu       sync.Mutex
		failures []string
		wg       sync.WaitGroup
	)
	jobChan := make(chan job)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobChan {
				if err := j(ctx); err != nil {
					logger.Get().Error(ctx, "scenario failed", logger.Error(err))
					mu.Lock()
					failures = append(failures, err.Error())
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, j := range jobs {
		select {
		case <-ctx.Done():
			break feed
		case jobChan <- j:
		}
	}
	close(jobChan)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		failures = append(failures, err.Error())
	}
	return failures
}

// runAuction creates the auction, places the bids, checks standings, ends
// it and sends the deposit back.
func (r *Runner) runAuction(ctx context.Context, a AuctionPlan, recipient string) error {
	base := "/auctions/" + a.ID.String()

	if _, err := r.transition(ctx, "/auctions", map[string]any{
		"auction_id":   a.ID,
		"students_max": a.StudentsMax,
	}); err != nil {
		return fmt.Errorf("auction %s: create: %w", a.ID, err)
	}

	for _, b := range a.Bids {
		if _, err := r.transition(ctx, base+"/bids", b); err != nil {
			return fmt.Errorf("auction %s: bid by %s: %w", a.ID, b.Bidder, err)
		}
	}

	var standings []Standing
	if err := r.read(ctx, base+"/standings", &standings); err != nil {
		return fmt.Errorf("auction %s: %w", a.ID, err)
	}
	if err := verifyStandings(a, standings); err != nil {
		return fmt.Errorf("auction %s: %w", a.ID, err)
	}

	if _, err := r.transition(ctx, base+"/end", nil); err != nil {
		return fmt.Errorf("auction %s: end: %w", a.ID, err)
	}
	if err := r.expectState(ctx, base, "closed"); err != nil {
		return fmt.Errorf("auction %s: %w", a.ID, err)
	}

	if _, err := r.transition(ctx, base+"/send-back", map[string]string{"recipient": recipient}); err != nil {
		return fmt.Errorf("auction %s: send back: %w", a.ID, err)
	}
	if err := r.expectState(ctx, base, "absent"); err != nil {
		return fmt.Errorf("auction %s: %w", a.ID, err)
	}

	atomic.AddInt64(&r.stats.AuctionsVerified, 1)
	logger.Get().Info(ctx, "auction verified", logger.String("auctionID", a.ID.String()), logger.Int("bids", len(a.Bids)))
	return nil
}

// runEvaluation creates the evaluation, casts the votes, checks the
// results and ends it.
func (r *Runner) runEvaluation(ctx context.Context, e EvaluationPlan) error {
	base := "/evaluations/" + e.JudgeID.String()

	if _, err := r.transition(ctx, "/evaluations", map[string]any{
		"judge_id":  e.JudgeID,
		"qualities": e.Qualities,
	}); err != nil {
		return fmt.Errorf("evaluation %s: create: %w", e.JudgeID, err)
	}

	for _, v := range e.Votes {
		if _, err := r.transition(ctx, base+"/votes", v); err != nil {
			return fmt.Errorf("evaluation %s: vote by %s: %w", e.JudgeID, v.Voter, err)
		}
	}

	var tallies []Tally
	if err := r.read(ctx, base+"/results", &tallies); err != nil {
		return fmt.Errorf("evaluation %s: %w", e.JudgeID, err)
	}
	if err := verifyTallies(e, tallies); err != nil {
		return fmt.Errorf("evaluation %s: %w", e.JudgeID, err)
	}

	if _, err := r.transition(ctx, base+"/end", nil); err != nil {
		return fmt.Errorf("evaluation %s: end: %w", e.JudgeID, err)
	}
	if err := r.expectState(ctx, base, "closed"); err != nil {
		return fmt.Errorf("evaluation %s: %w", e.JudgeID, err)
	}

	atomic.AddInt64(&r.stats.EvaluationsVerified, 1)
	logger.Get().Info(ctx, "evaluation verified", logger.String("judgeID", e.JudgeID.String()), logger.Int("votes", len(e.Votes)))
	return nil
}

// transition posts one state-changing request. A 202 is followed through
// the activity journal until the tracker settles it.
func (r *Runner) transition(ctx context.Context, path string, body any) (TxResult, error) {
	atomic.AddInt64(&r.stats.TxSubmitted, 1)
	status, raw, err := r.client.Post(ctx, path, body)
	if err != nil {
		atomic.AddInt64(&r.stats.TxFailed, 1)
		return TxResult{}, err
	}
	doc := gjson.ParseBytes(raw)
	res := TxResult{TxHash: doc.Get("tx_hash").String(), State: doc.Get("state").String(), Status: status}

	switch status {
	case StatusOK, StatusCreated:
		atomic.AddInt64(&r.stats.TxConfirmed, 1)
		logger.Get().Debug(ctx, "transaction confirmed", logger.String("path", path), logger.String("txHash", res.TxHash))
		return res, nil
	case StatusAccepted:
		atomic.AddInt64(&r.stats.TxPending, 1)
		if err := r.awaitActivity(ctx, res.TxHash); err != nil {
			atomic.AddInt64(&r.stats.TxFailed, 1)
			return res, err
		}
		atomic.AddInt64(&r.stats.TxConfirmed, 1)
		return res, nil
	default:
		atomic.AddInt64(&r.stats.TxFailed, 1)
		return res, apiError(path, status, raw)
	}
}

// awaitActivity polls GET /activity/{hash} until the entry is confirmed.
func (r *Runner) awaitActivity(ctx context.Context, hash string) error {
	logger.Get().Info(ctx, "transaction pending; following activity", logger.String("txHash", hash))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = PendingPollInterval / 8
	b.MaxInterval = PendingPollInterval
	b.MaxElapsedTime = r.config.PendingWait

	return backoff.Retry(func() error {
		status, raw, err := r.client.Get(ctx, "/activity/"+hash)
		if err != nil {
			return err
		}
		if status != StatusOK {
			return apiError("/activity/"+hash, status, raw)
		}
		switch gjson.GetBytes(raw, "status").String() {
		case "confirmed":
			return nil
		case "abandoned":
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrAbandoned, hash))
		default:
			return fmt.Errorf("transaction %s still pending", hash)
		}
	}, backoff.WithContext(b, ctx))
}

// read fetches a JSON read model.
func (r *Runner) read(ctx context.Context, path string, out any) error {
	status, raw, err := r.client.Get(ctx, path)
	if err != nil {
		return err
	}
	if status != StatusOK {
		return apiError(path, status, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}
	return nil
}

// expectState checks the record state; "absent" expects a 404.
func (r *Runner) expectState(ctx context.Context, path, want string) error {
	status, raw, err := r.client.Get(ctx, path)
	if err != nil {
		return err
	}
	if want == "absent" {
		if status != StatusNotFound {
			return fmt.Errorf("%s: expected absent record, got status %d", path, status)
		}
		return nil
	}
	if status != StatusOK {
		return apiError(path, status, raw)
	}
	if got := gjson.GetBytes(raw, "state").String(); got != want {
		return fmt.Errorf("%s: expected state %q, got %q", path, want, got)
	}
	return nil
}

// saveReport writes the run report as JSON.
func saveReport(ctx context.Context, config *Config, report *Report) error {
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "scenario_report_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Get().Info(ctx, "report saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final run statistics.
func (r *Runner) displayFinalStats() {
	var successRate float64
	submitted := atomic.LoadInt64(&r.stats.TxSubmitted)
	if submitted > 0 {
		successRate = float64(atomic.LoadInt64(&r.stats.TxConfirmed)) / float64(submitted) * PercentageMultiplier
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int64("txSubmitted", submitted),
		logger.Int64("txConfirmed", atomic.LoadInt64(&r.stats.TxConfirmed)),
		logger.Int64("txPending", atomic.LoadInt64(&r.stats.TxPending)),
		logger.Int64("txFailed", atomic.LoadInt64(&r.stats.TxFailed)),
		logger.Int64("auctionsVerified", atomic.LoadInt64(&r.stats.AuctionsVerified)),
		logger.Int64("evaluationsVerified", atomic.LoadInt64(&r.stats.EvaluationsVerified)),
		logger.String("duration", r.stats.Duration.String()),
		logger.Float64("successRate", successRate))
}
