package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the stable, user-visible classification of a pipeline failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConversion Kind = "conversion"
	KindTimeout    Kind = "timeout"
	KindExecution  Kind = "execution"
	KindCancelled  Kind = "cancelled"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrConversion = errors.New("conversion failed")
	ErrTimeout    = errors.New("query timed out")
	ErrExecution  = errors.New("query execution failed")
	ErrCancelled  = errors.New("query cancelled")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
)

var sentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindConversion: ErrConversion,
	KindTimeout:    ErrTimeout,
	KindExecution:  ErrExecution,
	KindCancelled:  ErrCancelled,
	KindNotFound:   ErrNotFound,
	KindForbidden:  ErrForbidden,
}

// Error carries the kind of failure, the pipeline stage that produced it and,
// once execution has started, the query id. Err holds the underlying cause
// (for example a driver error) and is reachable through errors.Unwrap.
type Error struct {
	Kind    Kind
	Stage   string
	QueryID string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.QueryID != "" {
		return fmt.Sprintf("%s: %s (stage=%s, query_id=%s)", e.Kind, msg, e.Stage, e.QueryID)
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s (stage=%s)", e.Kind, msg, e.Stage)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTimeout) match any *Error of the timeout kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && sentinel == target
}

// New creates an error of the given kind without an underlying cause.
func New(kind Kind, stage, message string) *Error {
	return &Error{Kind: kind, Stage: stage, Message: message}
}

// Newf is New with a formatted message.
func Newf(kind Kind, stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and stage to err. A nil err yields nil.
func Wrap(err error, kind Kind, stage, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

// Validation is shorthand for a validation error raised by stage.
func Validation(stage, format string, args ...any) *Error {
	return Newf(KindValidation, stage, format, args...)
}

// Conversion is shorthand for a conversion error raised by stage.
func Conversion(stage, format string, args ...any) *Error {
	return Newf(KindConversion, stage, format, args...)
}

// WithQueryID returns a copy of err tagged with queryID when err is an *Error;
// other errors are returned unchanged.
func WithQueryID(err error, queryID string) error {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return err
	}
	cp := *appErr
	cp.QueryID = queryID
	return &cp
}

// KindOf reports the stable kind of err. Errors that carry no kind are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// MessageOf returns the human-readable message of err without wrapped driver detail.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Message != "" {
			return appErr.Message
		}
		return string(appErr.Kind)
	}
	if err == nil {
		return ""
	}
	return "internal error"
}
