package memory

import "fmt"

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
)

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	msg  string
	kind errorKind
}

func (e *Error) Error() string       { return e.msg }
func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...), kind: kindNotFound}
}

func conflict(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...), kind: kindConflict}
}
