package scenario

import "time"

// HTTP status code constants.
const (
	StatusOK       = 200
	StatusCreated  = 201
	StatusAccepted = 202
	StatusNotFound = 404
)

// Plan generation constants.
const (
	maxBidLovelace  = 1_000_000
	studentsMaxBase = 3
	defaultQuality  = "Quality"
)

// Runner configuration constants.
const (
	PendingPollInterval  = 2 * time.Second
	PercentageMultiplier = 100
	reportPermission     = 0600
	directoryPermission  = 0750
)
