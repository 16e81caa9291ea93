package reliability

import (
	"context"
	"errors"

	"github.com/mvellano/pulsecheck/internal/genai"
	"github.com/mvellano/pulsecheck/internal/store"
	"github.com/mvellano/pulsecheck/internal/survey"
)

// Kind is the failure taxonomy surfaced to clients and metrics. Empty and
// malformed upstream results are deliberately distinct kinds.
type Kind string

const (
	KindNone            Kind = ""
	KindNotFound        Kind = "not_found"
	KindEmptyResult     Kind = "empty_result"
	KindMalformedResult Kind = "malformed_result"
	KindConflict        Kind = "conflict"
	KindInvalidState    Kind = "invalid_state"
	KindCanceled        Kind = "canceled"
	KindTransport       Kind = "transport"
)

// Classify maps an error to its taxonomy kind. Anything unrecognized is a
// transport-level failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, survey.ErrSessionNotFound),
		errors.Is(err, survey.ErrBadShareID):
		return KindNotFound
	case errors.Is(err, genai.ErrEmptyResult):
		return KindEmptyResult
	case errors.Is(err, genai.ErrMalformedResult):
		return KindMalformedResult
	case errors.Is(err, survey.ErrBusy):
		return KindConflict
	case errors.Is(err, survey.ErrInvalidTransition), errors.Is(err, survey.ErrNoQuestion):
		return KindInvalidState
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindTransport
	}
}

// HTTPStatus maps a kind to the response status used by the JSON API.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return 404
	case KindConflict:
		return 409
	case KindInvalidState:
		return 422
	case KindEmptyResult, KindMalformedResult:
		return 502
	case KindCanceled:
		return 499
	default:
		return 502
	}
}
