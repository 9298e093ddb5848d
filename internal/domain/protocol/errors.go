package protocol

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Error kinds. Every error returned by the facade matches exactly one of
// these through errors.Is.
var (
	ErrMalformedDatum      = errors.New("malformed datum")
	ErrRecordNotFound      = errors.New("record not found")
	ErrAlreadyExists       = errors.New("record already exists")
	ErrAlreadyClosed       = errors.New("record already closed")
	ErrNotClosed           = errors.New("record is still open")
	ErrUnknownQuality      = errors.New("unknown quality")
	ErrSubmitRejected      = errors.New("submission rejected")
	ErrConfirmationTimeout = errors.New("confirmation timeout")
	ErrBuildFailed         = errors.New("transaction build failed")
	ErrSignFailed          = errors.New("signing failed")
)

var kinds = []error{
	ErrMalformedDatum,
	ErrRecordNotFound,
	ErrAlreadyExists,
	ErrAlreadyClosed,
	ErrNotClosed,
	ErrUnknownQuality,
	ErrSubmitRejected,
	ErrConfirmationTimeout,
	ErrBuildFailed,
	ErrSignFailed,
}

// KindOf returns the error kind err carries, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Retryable reports errors where repeating the same action after a fresh
// read can succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrSubmitRejected) || errors.Is(err, ErrConfirmationTimeout)
}

// NotApplicable reports errors where the action does not apply to the
// current on-chain state.
func NotApplicable(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrNotClosed) ||
		errors.Is(err, ErrUnknownQuality)
}

// FixInputs reports errors the caller must resolve before retrying.
func FixInputs(err error) bool {
	return errors.Is(err, ErrBuildFailed) ||
		errors.Is(err, ErrSignFailed) ||
		errors.Is(err, ErrMalformedDatum)
}

// OpError is the error returned by facade operations.
type OpError struct {
	// Op names the operation, e.g. "auction.place_bid".
	Op string
	// Kind is one of the Err* kinds above.
	Kind error
	// LogicalID is the auction or judge id.
	LogicalID string
	// TxHash is set once a transaction was submitted.
	TxHash string
	Err    error
}

// NewOpError wraps err for op on the record with the given id.
func NewOpError(op string, id *big.Int, err error) *OpError {
	e := &OpError{Op: op, Kind: KindOf(err), Err: err}
	if id != nil {
		e.LogicalID = id.String()
	}
	return e
}

// WithTxHash records the submitted transaction.
func (e *OpError) WithTxHash(hash string) *OpError {
	e.TxHash = hash
	return e
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.LogicalID != "" {
		fmt.Fprintf(&b, "[id=%s]", e.LogicalID)
	}
	if e.TxHash != "" {
		fmt.Fprintf(&b, "[tx=%s]", e.TxHash)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }
