package document

import (
	"errors"
	"fmt"
	"strings"
)

// FailureKind tags why a pipeline stage refused a request.
type FailureKind string

const (
	MalformedPatch     FailureKind = "MalformedPatch"
	SchemaError        FailureKind = "SchemaError"
	NoSenderIdentity   FailureKind = "NoSenderIdentity"
	AmbiguousBody      FailureKind = "AmbiguousBody"
	DanglingReference  FailureKind = "DanglingReference"
	NotDraft           FailureKind = "NotDraft"
	ConflictingPrimary FailureKind = "ConflictingPrimary"
	EmptyContact       FailureKind = "EmptyContact"
	StaleState         FailureKind = "StaleState"
	NotFound           FailureKind = "NotFound"
	BackendUnavailable FailureKind = "BackendUnavailable"
)

// Sentinels for errors.Is checks against a Failure of the same kind.
var (
	ErrMalformedPatch     = &Failure{Kind: MalformedPatch}
	ErrSchema             = &Failure{Kind: SchemaError}
	ErrNoSenderIdentity   = &Failure{Kind: NoSenderIdentity}
	ErrAmbiguousBody      = &Failure{Kind: AmbiguousBody}
	ErrDanglingReference  = &Failure{Kind: DanglingReference}
	ErrNotDraft           = &Failure{Kind: NotDraft}
	ErrConflictingPrimary = &Failure{Kind: ConflictingPrimary}
	ErrEmptyContact       = &Failure{Kind: EmptyContact}
	ErrStaleState         = &Failure{Kind: StaleState}
	ErrNotFound           = &Failure{Kind: NotFound}
	ErrBackendUnavailable = &Failure{Kind: BackendUnavailable}
)

// Failure is the result every stage returns instead of a bare error when it
// rejects a request. Fields names the offending document fields, if any.
type Failure struct {
	Kind    FailureKind
	Fields  []string
	Message string
	Err     error
}

func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if len(f.Fields) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(f.Fields, ", "))
		b.WriteString("]")
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches any Failure carrying the same kind.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	return ok && t.Kind == f.Kind
}

// Fail builds a Failure with a formatted message.
func Fail(kind FailureKind, fields []string, format string, args ...interface{}) *Failure {
	return &Failure{Kind: kind, Fields: fields, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a backend error.
func Unavailable(op string, err error) *Failure {
	return &Failure{Kind: BackendUnavailable, Message: op, Err: err}
}

// KindOf returns the failure kind carried by err, or "" when err is not a Failure.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// Retryable reports whether the caller may resend after refetching.
func (k FailureKind) Retryable() bool {
	return k == StaleState || k == BackendUnavailable
}
