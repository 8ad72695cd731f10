// Package compiler turns keyrx mapping DSL source into compiled profile
// artifacts. Compilation is pure: the same source always produces
// byte-identical output, and all errors are collected with position context
// rather than failing on the first one.
package compiler

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a compile error.
type ErrorKind int

const (
	// ErrSyntax covers malformed tokens and statements.
	ErrSyntax ErrorKind = iota
	// ErrUnknownKey is an alias that does not resolve through the key
	// catalog.
	ErrUnknownKey
	// ErrDuplicateMapping is a rule shadowed by an earlier rule for the
	// same source key in the same layer.
	ErrDuplicateMapping
	// ErrUnterminatedBlock is a device/pattern/when block without its
	// closing statement.
	ErrUnterminatedBlock
	// ErrInvalidPattern is a malformed device pattern.
	ErrInvalidPattern
	// ErrIDOutOfRange is a modifier/lock/layer id outside its space.
	ErrIDOutOfRange
	// ErrInvalidTarget is a target string that matches no target form.
	ErrInvalidTarget
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax"
	case ErrUnknownKey:
		return "unknown_key"
	case ErrDuplicateMapping:
		return "duplicate_mapping"
	case ErrUnterminatedBlock:
		return "unterminated_block"
	case ErrInvalidPattern:
		return "invalid_pattern"
	case ErrIDOutOfRange:
		return "id_out_of_range"
	case ErrInvalidTarget:
		return "invalid_target"
	default:
		return "unknown"
	}
}

// Error is one compile diagnostic with source position.
type Error struct {
	Kind ErrorKind
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s: %s", e.Line, e.Col, e.Kind, e.Msg)
}

// ErrorList aggregates compile diagnostics.
type ErrorList []*Error

func (l ErrorList) Error() string {
	if len(l) == 0 {
		return "no errors"
	}
	msgs := make([]string, len(l))
	for i, e := range l {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

func (l *ErrorList) add(kind ErrorKind, line, col int, format string, args ...any) {
	*l = append(*l, &Error{Kind: kind, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)})
}

// Err returns the list as an error, or nil when empty.
func (l ErrorList) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}
