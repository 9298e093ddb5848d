package api

import (
	"errors"
	"net/http"

	"github.com/vnFuhung2903/rubyams/internal/adapters/journal"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
	ErrInternal   = errors.New("internal error")
)

// Error is an API failure tagged with the handler op and a kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	var out []error
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind.
func WrapKind(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap tags err with op, keeping its own kind.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// classify maps an error to its HTTP status and response code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, protocol.ErrRecordNotFound),
		errors.Is(err, journal.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, protocol.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, protocol.ErrAlreadyClosed):
		return http.StatusConflict, "already_closed"
	case errors.Is(err, protocol.ErrNotClosed):
		return http.StatusConflict, "not_closed"
	case errors.Is(err, protocol.ErrUnknownQuality):
		return http.StatusUnprocessableEntity, "unknown_quality"
	case errors.Is(err, protocol.ErrBuildFailed):
		return http.StatusUnprocessableEntity, "build_failed"
	case errors.Is(err, protocol.ErrConfirmationTimeout):
		return http.StatusAccepted, "confirmation_timeout"
	case errors.Is(err, protocol.ErrSubmitRejected):
		return http.StatusBadGateway, "submit_rejected"
	case errors.Is(err, protocol.ErrSignFailed):
		return http.StatusBadGateway, "sign_failed"
	case errors.Is(err, protocol.ErrMalformedDatum):
		return http.StatusBadGateway, "malformed_datum"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
