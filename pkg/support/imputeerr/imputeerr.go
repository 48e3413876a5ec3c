// Copyright 2026 The gainimpute Authors. SPDX-License-Identifier: Apache-2.0

// Package imputeerr defines the kinds of failure an imputation scenario can hit.
//
// Errors are created with New or Wrap, and can be tested with Is (or the standard errors.Is against
// one of the Kind values), so a harness can log the kind and move on to the next scenario.
package imputeerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind of imputation failure.
type Kind int

const (
	// Unknown is used for errors that didn't go through this package.
	Unknown Kind = iota

	// SchemaError is raised for columns that can't be classified.
	SchemaError

	// CodecError is raised when decoding can't map an encoded block back to a value.
	CodecError

	// ShapeError is raised when a batch doesn't match the shape the networks were built for.
	ShapeError

	// IOError is raised when scenario input files are missing or unreadable.
	IOError
)

var kindNames = map[Kind]string{
	Unknown:     "UnknownError",
	SchemaError: "SchemaError",
	CodecError:  "CodecError",
	ShapeError:  "ShapeError",
	IOError:     "IOError",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if name, found := kindNames[k]; found {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error makes Kind usable as a target for errors.Is.
func (k Kind) Error() string { return k.String() }

// kindError attaches a Kind to an error chain.
type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%s: %v", e.kind, e.cause)
}

// Unwrap returns the wrapped error.
func (e *kindError) Unwrap() error { return e.cause }

// Is matches the Kind itself, so errors.Is(err, imputeerr.CodecError) works.
func (e *kindError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.kind
}

// New creates an error of the given kind, with a stack trace.
func New(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, cause: errors.Errorf(format, args...)}
}

// Wrap err with the given kind and message. It returns nil if err is nil.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, cause: errors.WithMessagef(err, format, args...)}
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	return errors.Is(err, kind)
}

// KindOf returns the outermost Kind in err's chain, or Unknown.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return Unknown
}
