/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package echo

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures
type Kind int

const (
	// KindUnsupportedHardware means the device cannot capture; detected once per session
	KindUnsupportedHardware Kind = iota + 1
	// KindCreationFailed means a player or recorder could not allocate its audio path
	KindCreationFailed
	// KindInvalidState means the operation is not permitted in the current state
	KindInvalidState
	// KindParameterRejected means a volume or format value was refused
	KindParameterRejected
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedHardware:
		return "unsupported hardware"
	case KindCreationFailed:
		return "creation failed"
	case KindInvalidState:
		return "invalid state"
	case KindParameterRejected:
		return "parameter rejected"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind
var (
	ErrUnsupportedHardware = &Error{Kind: KindUnsupportedHardware}
	ErrCreationFailed      = &Error{Kind: KindCreationFailed}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrParameterRejected   = &Error{Kind: KindParameterRejected}
)

// Error is the structured failure returned by engine operations
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func newError(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or 0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Status is the integer result code of the control surface
type Status int

const (
	StatusOK Status = iota
	// StatusUnsupported means the output device has no volume control
	StatusUnsupported
	StatusInvalidState
	StatusParameterRejected
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnsupported:
		return "unsupported"
	case StatusInvalidState:
		return "invalid state"
	case StatusParameterRejected:
		return "parameter rejected"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// StatusOf maps an error to its status code
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	switch KindOf(err) {
	case KindUnsupportedHardware:
		return StatusUnsupported
	case KindParameterRejected:
		return StatusParameterRejected
	default:
		return StatusInvalidState
	}
}
