// Package engineerrors is the spec's error taxonomy (spec.md §7): a small
// hierarchy of structured error types carrying a Kind and a Retryable flag,
// modeled on pkg/llm.Error / pkg/llm.ClassifyError. Only LanguageValidationError
// is recoverable — the engine retries it up to 2 additional times (spec.md
// §4.6 step 4); every other kind is terminal for the row (or, for Config and
// Query kinds, fatal for the whole task).
package engineerrors

import "fmt"

// Kind classifies an Error for dispatch and audit purposes.
type Kind string

const (
	// KindConfig covers missing/unknown enrichment names, illegal schemas,
	// unknown models, malformed input_columns. Fatal at task start.
	KindConfig Kind = "config"
	// KindQuery covers underlying DB errors surfacing missing tables/columns.
	// Fatal at task start.
	KindQuery Kind = "query"
	// KindProvider covers transport or API-side failures during a call.
	// Recorded as an audit row, never retried by the engine.
	KindProvider Kind = "provider"
	// KindSchemaValidation covers post-parse validation failures other than
	// language assertions (type mismatch, enum miss, bounds violation,
	// conversion failure). Not recoverable.
	KindSchemaValidation Kind = "schema_validation"
	// KindLanguageValidation covers a lang: zh|en assertion failure. The only
	// recoverable kind: retried up to 2 additional times.
	KindLanguageValidation Kind = "language_validation"
	// KindTruncation covers a prompt that alone exceeds the model's context.
	// Fatal for the affected row.
	KindTruncation Kind = "truncation"
)

// Error is the engine's structured error type. It satisfies retry.RetryableError
// via IsRetryable so generic retry helpers can inspect it without importing
// this package.
type Error struct {
	Kind      Kind
	Message   string
	Err       error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is/errors.As see through to the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool { return e.Retryable }

func NewConfigError(message string, err error) *Error {
	return &Error{Kind: KindConfig, Message: message, Err: err}
}

func NewQueryError(message string, err error) *Error {
	return &Error{Kind: KindQuery, Message: message, Err: err}
}

func NewProviderError(message string, err error) *Error {
	return &Error{Kind: KindProvider, Message: message, Err: err}
}

func NewSchemaValidationError(message string, err error) *Error {
	return &Error{Kind: KindSchemaValidation, Message: message, Err: err}
}

// NewLanguageValidationError constructs the one recoverable kind.
func NewLanguageValidationError(message string, err error) *Error {
	return &Error{Kind: KindLanguageValidation, Message: message, Err: err, Retryable: true}
}

func NewTruncationError(message string, err error) *Error {
	return &Error{Kind: KindTruncation, Message: message, Err: err}
}

// IsRecoverable reports whether err is a KindLanguageValidation Error: the
// only kind the engine's per-row retry loop (spec.md §4.6 step 4) re-attempts.
func IsRecoverable(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == KindLanguageValidation
}

// KindOf extracts the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	e, ok := err.(*Error)
	if !ok {
		return ""
	}
	return e.Kind
}
