// Copyright (c) 2025 Rowbase
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for the rowbase client.
// Every error returned by the query encoder, the HTTP client and the realtime
// manager is an *E carrying a machine-readable Kind, so callers can decide
// between fixing input, retrying, re-authenticating or giving up without
// parsing messages.
//
// The package supports wrapping underlying errors while maintaining error kind
// information; *E implements Unwrap so the standard errors.Is and errors.As work
// across the chain.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Validation indicates a malformed query or argument detected before any I/O.
	Validation Kind = "validation"
	// Transport indicates a network or connection failure.
	Transport Kind = "transport"
	// Authentication indicates the API key was rejected.
	Authentication Kind = "authentication"
	// Subscription indicates the server rejected or dropped one subscription.
	Subscription Kind = "subscription"
	// Server indicates a non-2xx application response.
	Server Kind = "server"
	// Closed indicates an operation on a manager that has been closed.
	Closed Kind = "closed"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	// Field and Operator name the offending clause of a Validation error.
	Field    string
	Operator string
	// Status is the HTTP status of a Server error.
	Status int
	Err    error
}

func (e *E) Error() string {
	msg := e.Message
	switch {
	case e.Field != "" && e.Operator != "":
		msg = fmt.Sprintf("%s (field %q, operator %q)", msg, e.Field, e.Operator)
	case e.Field != "":
		msg = fmt.Sprintf("%s (field %q)", msg, e.Field)
	case e.Status != 0:
		msg = fmt.Sprintf("%d %s", e.Status, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Invalid builds a Validation error naming the offending field and operator.
// Either may be empty when it does not apply.
func Invalid(field, operator, msg string) *E {
	return &E{Kind: Validation, Message: msg, Field: field, Operator: operator}
}

// ServerError builds a Server error from a response status and message body.
func ServerError(status int, msg string) *E {
	return &E{Kind: Server, Message: msg, Status: status}
}

// KindOf returns the Kind of the first *E in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
