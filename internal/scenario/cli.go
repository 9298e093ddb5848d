package scenario

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

// SetupLogging sends log output to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) error {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "scenario_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, reportPermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return nil
}

// ShowHelp prints usage information for the scenario tool.
func ShowHelp() {
	os.Stdout.WriteString(`rubyams scenario runner
=======================

Drives auctions and evaluations end to end against a running service and
checks that standings and results match what was submitted.

Usage:
  go run ./cmd/scenario [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -auctions int
        Auctions to create, bid on, end and send back (default 1)
  -evaluations int
        Evaluations to create, vote on and end (default 1)
  -bidders int
        Bidders per auction (default 3)
  -voters int
        Voters per evaluation (default 3)
  -workers int
        Scenarios run concurrently (default 1)
  -timeout duration
        HTTP request timeout (default 3m)
  -pending duration
        How long to follow a transaction that answered 202 (default 10m)
  -recipient string
        send-back recipient address (default: the service wallet)
  -output string
        Report file (default: scenario_report_TIMESTAMP.json)
  -log string
        Log file (default: scenario_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # One auction and one evaluation against a local emulator-backed service
  go run ./cmd/scenario

  # Several auctions in parallel against a remote deployment
  go run ./cmd/scenario -url http://rubyams:9080 -auctions 5 -evaluations 0 -workers 2
`)
}
