// Package errs defines the error taxonomy shared by every component of the
// gateway. Errors carry a Kind, a human cause, and a remediation so that
// callers at the HTTP boundary can render a user-facing message without
// re-deriving context (spec §7).
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	ConfigInvalid            Kind = "ConfigInvalid"
	BackendUnreachable       Kind = "BackendUnreachable"
	AuthExpired              Kind = "AuthExpired"
	QuotaExceeded            Kind = "QuotaExceeded"
	QueryInvalid             Kind = "QueryInvalid"
	LLMUnavailable           Kind = "LLMUnavailable"
	LLMParseError            Kind = "LLMParseError"
	SchemaIndexUnavailable   Kind = "SchemaIndexUnavailable"
	PartialIntrospection     Kind = "PartialIntrospection"
	ToolExecutionFailed      Kind = "ToolExecutionFailed"
	AdapterSelectionAmbiguous Kind = "AdapterSelectionAmbiguous"
	AuthTimeout              Kind = "AuthTimeout"
	EmbeddingDimensionMismatch Kind = "EmbeddingDimensionMismatch"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind        Kind
	Cause       string
	Remediation string
	Err         error
	// RawText carries the raw LLM output for LLMParseError, and the
	// offending query text for QueryInvalid.
	RawText string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Cause, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with a default remediation for the kind.
func New(kind Kind, cause string, err error) *Error {
	return &Error{Kind: kind, Cause: cause, Remediation: remediationFor(kind), Err: err}
}

// WithRawText attaches raw text (LLM output or offending query) and returns e.
func (e *Error) WithRawText(raw string) *Error {
	e.RawText = raw
	return e
}

func remediationFor(kind Kind) string {
	switch kind {
	case AuthExpired:
		return "re-authenticate with the backend (run the authenticate flow for this connection)"
	case AuthTimeout:
		return "retry the authorization flow; it must complete within 5 minutes"
	case BackendUnreachable:
		return "verify the backend is reachable and credentials are correct"
	case QuotaExceeded:
		return "retry after the provider's Retry-After window has elapsed"
	case QueryInvalid:
		return "rephrase the question; only read-only, single-statement queries are permitted"
	case LLMUnavailable:
		return "the language model is temporarily unavailable; falling back to heuristics where possible"
	case LLMParseError:
		return "the language model returned a response that could not be parsed as the expected structure"
	case AdapterSelectionAmbiguous:
		return "pass an explicit db_type when using an http(s) connection URI"
	case SchemaIndexUnavailable:
		return "schema introspection failed; retry once the backend is reachable"
	case ConfigInvalid:
		return "fix the configuration file or environment variables and restart"
	default:
		return ""
	}
}

// Is reports whether err (or any error it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
