package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	// KindValidation is detected locally before any request is sent.
	KindValidation Kind = iota + 1
	// KindAuth means the credential was missing or rejected.
	KindAuth
	// KindNetwork means the request never reached the server or the reply was unreadable.
	KindNetwork
	// KindServer is any other non-2xx reply.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// Error wraps every failure surfaced by the clients and the dashboard.
type Error struct {
	Kind   Kind
	Status int
	// Detail is the human-readable message, either the backend's "detail" field or a
	// locally produced validation message. Empty when neither exists.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a pre-request failure.
func Validation(detail string) *Error {
	return &Error{Kind: KindValidation, Detail: detail}
}

// Auth builds a credential failure.
func Auth(status int, detail string) *Error {
	return &Error{Kind: KindAuth, Status: status, Detail: detail}
}

// Network builds a transport or decoding failure.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

// Server builds a non-2xx failure.
func Server(status int, detail string) *Error {
	return &Error{Kind: KindServer, Status: status, Detail: detail}
}

// KindOf returns the kind of err, or 0 when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message resolves the single line shown in an error slot: the carried detail when there
// is one, otherwise fallback. Raw transport errors never reach the slot.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && strings.TrimSpace(e.Detail) != "" {
		return e.Detail
	}
	return fallback
}
