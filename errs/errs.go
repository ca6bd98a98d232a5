/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind classifies an Error so callers can branch with errors.Is.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidState
	KindValidation
	KindConflict
	KindConnection
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalidState:
		return "invalid state"
	case KindValidation:
		return "validation failed"
	case KindConflict:
		return "conflict"
	case KindConnection:
		return "connection error"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrConnection   = &Error{Kind: KindConnection}
)

// Error is the single error type surfaced by repositories, the change
// tracker and the unit of work.
type Error struct {
	Kind    Kind
	Op      string
	Entity  string
	Message string
	// Fields holds per-attribute messages of a validation failure.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Entity != "" {
		parts = append(parts, e.Entity)
	}
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	parts = append(parts, msg)
	if len(e.Fields) > 0 {
		parts = append(parts, e.fieldsString())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func (e *Error) fieldsString() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+" "+e.Fields[k])
	}
	return strings.Join(pairs, "; ")
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// NotFound reports that entity with the given identity does not exist.
func NotFound(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: fmt.Sprintf("id %v not found", id)}
}

// NoMatch reports a query on entity that returned no rows.
func NoMatch(op, entity string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Entity: entity, Message: "no rows match the query"}
}

// InvalidState reports an operation attempted in an incompatible state.
func InvalidState(op, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Validation wraps an attribute constraint failure. ozzo validation.Errors
// are flattened into Fields.
func Validation(entity string, err error) *Error {
	e := &Error{Kind: KindValidation, Entity: entity}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		e.Fields = make(map[string]string, len(verrs))
		flatten("", verrs, e.Fields)
		return e
	}
	e.Err = err
	return e
}

// Validationf reports a single constraint failure without field details.
func Validationf(entity, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Entity: entity, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a write rejected because the stored row changed.
func Conflict(op, entity string, err error) *Error {
	return &Error{Kind: KindConflict, Op: op, Entity: entity, Err: err}
}

// Connection reports an unreachable store or an I/O failure.
func Connection(op string, err error) *Error {
	return &Error{Kind: KindConnection, Op: op, Err: err}
}

// WithOp sets Op on an *Error that has none and wraps other errors.
func WithOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" {
			cp := *e
			cp.Op = op
			return &cp
		}
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func flatten(prefix string, verrs validation.Errors, out map[string]string) {
	for field, ferr := range verrs {
		if ferr == nil {
			continue
		}
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		var nested validation.Errors
		if errors.As(ferr, &nested) {
			flatten(key, nested, out)
			continue
		}
		out[key] = ferr.Error()
	}
}
