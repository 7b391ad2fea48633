// Package errors carries the error taxonomy shared by the gateway client, the
// stores and the payment orchestrator. Handlers translate a Kind into an HTTP
// status; everything below the handlers only classifies and wraps.
package errors

import (
	// Go Internal Packages
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error by how a caller should react to it.
type Kind uint8

const (
	Other       Kind = iota // unclassified
	Invalid                 // caller error, never retried
	Auth                    // token exchange failed
	Rejected                // gateway answered 4xx
	Unavailable             // network, timeout or gateway 5xx; retryable
	NotFound                // unknown key
	Exists                  // key collision
	Internal                // invariant violation
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Auth:
		return "auth"
	case Rejected:
		return "rejected"
	case Unavailable:
		return "unavailable"
	case NotFound:
		return "not_found"
	case Exists:
		return "exists"
	case Internal:
		return "internal"
	}
	return "other"
}

// Error is the concrete error type built by E.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error. err may be nil.
func E(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err is classified as kind.
func Is(kind Kind, err error) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the message of the outermost classified error, or "" if
// err carries none.
func MessageOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return ""
}

// CauseOf returns the text of the error wrapped by the outermost classified
// error, or "" if there is none.
func CauseOf(err error) string {
	var e *Error
	if stderrors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// ValidationErrors accumulates per-field problems.
type ValidationErrors struct {
	fields map[string][]string
}

// ValidationErrs returns an empty collector.
func ValidationErrs() *ValidationErrors {
	return &ValidationErrors{fields: map[string][]string{}}
}

// Add records a problem for field.
func (v *ValidationErrors) Add(field, problem string) {
	v.fields[field] = append(v.fields[field], problem)
}

// Fields returns the recorded problems keyed by field.
func (v *ValidationErrors) Fields() map[string][]string {
	return v.fields
}

// Err returns nil when nothing was recorded.
func (v *ValidationErrors) Err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return v
}

func (v *ValidationErrors) Error() string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+strings.Join(v.fields[k], ", "))
	}
	return strings.Join(parts, "; ")
}
