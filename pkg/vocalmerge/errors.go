package vocalmerge

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by Service.Merge matches exactly one of
// these with errors.Is.
var (
	ErrMissingInput    = errors.New("missing input")
	ErrInvalidFormat   = errors.New("invalid format")
	ErrDownloadFailed  = errors.New("download failed")
	ErrTranscodeFailed = errors.New("transcode failed")
	ErrOutputMissing   = errors.New("output missing")
	ErrScoringFailed   = errors.New("scoring failed")
	ErrNotFound        = errors.New("not found")
)

var kinds = []error{
	ErrMissingInput, ErrInvalidFormat, ErrDownloadFailed, ErrTranscodeFailed,
	ErrOutputMissing, ErrScoringFailed, ErrNotFound,
}

// Error is a classified pipeline failure. Message is safe to show to
// clients; Details carries diagnostics such as ffprobe or ffmpeg output.
type Error struct {
	Kind    error
	Message string
	Details string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind error, message, details string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Details: details, Err: cause}
}

// HTTPStatus maps an error to the status code the HTTP layer responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingInput), errors.Is(err, ErrInvalidFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Describe splits err into a client-facing message and optional details.
// Unclassified errors get a generic message so internals do not leak.
func Describe(err error) (message, details string) {
	var e *Error
	if errors.As(err, &e) {
		message = e.Message
		if message == "" && e.Kind != nil {
			message = e.Kind.Error()
		}
		return message, e.Details
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind.Error(), ""
		}
	}
	return "internal error", ""
}
