// Package apperr defines the error taxonomy shared by every Decksmith layer.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that branch on it.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindArchiveFormat
	KindDecompression
	KindDatabaseOpen
	KindDatabase
	KindParse
	KindNotFound
	KindInvalid
)

var (
	ErrIO            = errors.New("io error")
	ErrArchiveFormat = errors.New("archive format error")
	ErrDecompression = errors.New("decompression error")
	ErrDatabaseOpen  = errors.New("database open error")
	ErrDatabase      = errors.New("database error")
	ErrParse         = errors.New("parse error")
	ErrNotFound      = errors.New("not found")
	ErrInvalid       = errors.New("invalid argument")
)

var sentinels = map[Kind]error{
	KindIO:            ErrIO,
	KindArchiveFormat: ErrArchiveFormat,
	KindDecompression: ErrDecompression,
	KindDatabaseOpen:  ErrDatabaseOpen,
	KindDatabase:      ErrDatabase,
	KindParse:         ErrParse,
	KindNotFound:      ErrNotFound,
	KindInvalid:       ErrInvalid,
}

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindIO:            "io",
	KindArchiveFormat: "archive_format",
	KindDecompression: "decompression",
	KindDatabaseOpen:  "database_open",
	KindDatabase:      "database",
	KindParse:         "parse",
	KindNotFound:      "not_found",
	KindInvalid:       "invalid",
}

// String returns a stable snake_case name for k.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Error carries a Kind, the operation that failed, and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds an *Error. err may be nil when the kind alone says enough.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	s := sentinels[e.Kind]
	msg := "unknown error"
	if s != nil {
		msg = s.Error()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the sentinel of its kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
