// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errors defines the error handling used throughout earthstar.
package errors

import (
	"bytes"
	"fmt"
	"strings"

	"earthstar.dev/earthstar"
)

// Error is the type that implements the error interface.
// It contains a number of fields, each of different type.
// An Error value may leave some values unset.
type Error struct {
	// Path is the document or share path the operation concerns, if any.
	Path earthstar.PathName
	// Author is the author address involved, if any.
	Author earthstar.AuthorAddress
	// Op is the operation being performed, usually the name of the method
	// being invoked (Set, Ingest, Open, etc). It should not contain "@".
	Op string
	// Kind is the class of error, or Other if its class is unknown or
	// irrelevant.
	Kind Kind
	// The underlying error that triggered this one, if any.
	Err error
}

var zeroErr Error

// Separator is the string used to separate nested errors. By default,
// nested errors are indented on a new line, matching upspin.io/errors;
// a server may overwrite it to keep errors single-line.
var Separator = ":\n\t"

// Kind defines the kind of error this is, so that callers such as CLIs,
// HTTP handlers, or sync transports can act differently depending on class
// without string-matching messages.
type Kind uint8

// Kinds of errors. These values are part of §7 of the design: expected
// conditions are returned as one of these kinds rather than raised.
const (
	Other      Kind = iota // Unclassified error; not printed in the message.
	Invalid                // Document, address, or path is malformed.
	Permission             // Author is not permitted to write to this path.
	Syntax                 // Ill-formed query or argument.
	IO                     // External I/O error such as a disk or network failure.
	Exist                  // Item already exists where none was expected.
	NotExist               // NotFoundError: attachment or document absent.
	Closed                 // ReplicaIsClosedError / ReplicaCacheIsClosedError.
	NotSupported           // Format does not implement the requested capability.
	Transient              // StorageError / ConnectionError / TimeoutError: retryable.
	Internal               // Programmer error; should never happen.
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case Invalid:
		return "invalid"
	case Permission:
		return "permission denied"
	case Syntax:
		return "syntax error"
	case IO:
		return "I/O error"
	case Exist:
		return "already exists"
	case NotExist:
		return "not found"
	case Closed:
		return "replica is closed"
	case NotSupported:
		return "not supported"
	case Transient:
		return "transient error"
	case Internal:
		return "internal error"
	}
	return "unknown error kind"
}

// E builds an error value from its arguments. The type of each argument
// determines its meaning. If more than one argument of a given type is
// presented, only the last one is recorded.
//
// The types are:
//	earthstar.PathName      the path the operation concerns
//	earthstar.AuthorAddress the author involved
//	string                  the operation being performed
//	errors.Kind             the class of error
//	error                   the underlying error that triggered this one
//
// If Kind is not specified or Other, it is set to the Kind of the
// underlying error, if any.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case earthstar.PathName:
			e.Path = arg
		case earthstar.AuthorAddress:
			e.Author = arg
		case string:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case *Error:
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			return Errorf("errors.E: bad call with type %T, value %v", arg, arg)
		}
	}
	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}
	// The previous error was also one of ours. Suppress duplication so the
	// message doesn't repeat the same path or kind twice.
	if prev.Path == e.Path {
		prev.Path = ""
	}
	if prev.Author == e.Author {
		prev.Author = ""
	}
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

// pad appends str to the buffer only if the buffer already has data.
func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Path != "" {
		b.WriteString(string(e.Path))
	}
	if e.Author != "" {
		pad(b, ", ")
		b.WriteString("author ")
		b.WriteString(string(e.Author))
	}
	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(e.Op)
	}
	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if prevErr, ok := e.Err.(*Error); ok {
			if *prevErr != zeroErr {
				pad(b, Separator)
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Is reports whether err is an *Error of the given Kind, looking through
// any chain of wrapped *Error values.
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}

// Str returns an error that formats as the given text. It is intended to
// be used as the error-typed argument to E.
func Str(text string) error {
	return &errorString{text}
}

type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

// Errorf is equivalent to fmt.Errorf, but returns an error whose type is
// internal to this package so that all earthstar error handling can go
// through a single import.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}

// Match reports whether want, an *Error, matches got in the fields that
// want has set. Used by tests that want to check a subset of an error's
// fields without constructing the whole chain.
func Match(want, got error) bool {
	we, ok := want.(*Error)
	if !ok {
		return want == nil && got == nil || (want != nil && got != nil && strings.Contains(got.Error(), want.Error()))
	}
	ge, ok := got.(*Error)
	if !ok {
		return false
	}
	if we.Path != "" && we.Path != ge.Path {
		return false
	}
	if we.Author != "" && we.Author != ge.Author {
		return false
	}
	if we.Op != "" && we.Op != ge.Op {
		return false
	}
	if we.Kind != Other && we.Kind != ge.Kind {
		return false
	}
	if we.Err != nil {
		return Match(we.Err, ge.Err)
	}
	return true
}
