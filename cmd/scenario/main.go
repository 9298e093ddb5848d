package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/vnFuhung2903/rubyams/internal/scenario"
)

// Default configuration constants.
const (
	defaultAuctions    = 1
	defaultEvaluations = 1
	defaultBidders     = 3
	defaultVoters      = 3
	defaultWorkers     = 1
	defaultTimeout     = 3 * time.Minute
	defaultPendingWait = 10 * time.Minute
	defaultRunTimeout  = 60 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		auctions    = flag.Int("auctions", defaultAuctions, "Auctions to create, bid on, end and send back")
		evaluations = flag.Int("evaluations", defaultEvaluations, "Evaluations to create, vote on and end")
		bidders     = flag.Int("bidders", defaultBidders, "Bidders per auction")
		voters      = flag.Int("voters", defaultVoters, "Voters per evaluation")
		workers     = flag.Int("workers", defaultWorkers, "Scenarios run concurrently")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		pending     = flag.Duration("pending", defaultPendingWait, "How long to follow a transaction that answered 202")
		recipient   = flag.String("recipient", "", "send-back recipient address (default: the service wallet)")
		outputFile  = flag.String("output", "", "Report file (default: scenario_report_TIMESTAMP.json)")
		logFile     = flag.String("log", "", "Log file (default: scenario_log_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		scenario.ShowHelp()
		return
	}

	if err := scenario.SetupLogging(*logFile, *verbose); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &scenario.Config{
		BaseURL:     *baseURL,
		Auctions:    *auctions,
		Evaluations: *evaluations,
		Bidders:     *bidders,
		Voters:      *voters,
		Workers:     *workers,
		Timeout:     *timeout,
		PendingWait: *pending,
		Recipient:   *recipient,
		OutputFile:  *outputFile,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	if err := scenario.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Scenario failed: " + err.Error() + "\n")
		cancel()
		os.Exit(1)
	}
}
