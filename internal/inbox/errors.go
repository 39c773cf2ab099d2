package inbox

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the user-facing failure class of an inbox operation.
type ErrorKind string

const (
	KindTransport    ErrorKind = "TRANSPORT"
	KindAuth         ErrorKind = "AUTH"
	KindValidation   ErrorKind = "VALIDATION"
	KindUpload       ErrorKind = "UPLOAD"
	KindPartialWrite ErrorKind = "PARTIAL_WRITE"
)

var (
	ErrEmptyDraft          = errors.New("message has no text and no attachments")
	ErrNoSelection         = errors.New("no conversation selected")
	ErrUnknownConversation = errors.New("unknown conversation")
)

type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// codedError is implemented by the transport clients' typed errors.
type codedError interface {
	error
	ErrorCode() string
}

// KindOf classifies any error into the inbox taxonomy. Unknown errors count
// as transport failures.
func KindOf(err error) ErrorKind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if errors.Is(err, ErrEmptyDraft) {
		return KindValidation
	}
	var ce codedError
	if errors.As(err, &ce) {
		switch ce.ErrorCode() {
		case "AUTH":
			return KindAuth
		case "SIZE_EXCEEDED", "TYPE_REJECTED":
			return KindUpload
		case "INVALID":
			return KindValidation
		}
	}
	return KindTransport
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}
