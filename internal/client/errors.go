package client

import (
	"fmt"
	"net/http"
)

// Code classifies a failed call the way the services report it.
type Code string

const (
	CodeNetwork      Code = "NETWORK"
	CodeAuth         Code = "AUTH"
	CodeServer       Code = "SERVER"
	CodeNotFound     Code = "NOT_FOUND"
	CodeSizeExceeded Code = "SIZE_EXCEEDED"
	CodeTypeRejected Code = "TYPE_REJECTED"
	CodeInvalid      Code = "INVALID"
)

type Error struct {
	Op     string
	Code   Code
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (%d): %v", e.Op, e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) ErrorCode() string {
	return string(e.Code)
}

// codeFor prefers the code the server put in the body and falls back to the
// HTTP status.
func codeFor(status int, bodyCode string) Code {
	switch Code(bodyCode) {
	case CodeAuth, CodeNotFound, CodeSizeExceeded, CodeTypeRejected, CodeInvalid:
		return Code(bodyCode)
	case "VALIDATION":
		return CodeInvalid
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeAuth
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusRequestEntityTooLarge:
		return CodeSizeExceeded
	case status == http.StatusUnsupportedMediaType:
		return CodeTypeRejected
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return CodeInvalid
	default:
		return CodeServer
	}
}
