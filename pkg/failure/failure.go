// Package failure defines the typed error taxonomy of model resolution.
// Every failure carries a code for programmatic handling and a class that
// drives retry and abort decisions.
package failure

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/modelresolver/pkg/model"
)

// Class represents the classification of an error for retry and abort logic.
type Class string

const (
	// ClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: server-side 5xx responses, network timeouts.
	ClassTransient Class = "transient"

	// ClassPermanent indicates a failure that will not succeed on retry.
	// Examples: client-side 4xx responses, compilation errors.
	ClassPermanent Class = "permanent"

	// ClassConfiguration indicates a misconfigured process. Requests fail
	// immediately and the condition is not recoverable without redeploying.
	ClassConfiguration Class = "configuration"
)

// Code identifies the kind of failure.
type Code string

// Failure codes.
const (
	CodeUnsupportedContext Code = "UNSUPPORTED_CONTEXT"
	CodeLoaderNotFound     Code = "LOADER_NOT_FOUND"
	CodeAmbiguousLoader    Code = "AMBIGUOUS_LOADER"
	CodeRemoteTransient    Code = "REMOTE_TRANSIENT"
	CodeRemoteHard         Code = "REMOTE_HARD"
	CodeNoContent          Code = "NO_CONTENT"
	CodeCompilation        Code = "COMPILATION_ERROR"
	CodeParse              Code = "PARSE_ERROR"
	CodeDependencyCycle    Code = "DEPENDENCY_CYCLE"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeIntegrity          Code = "INTEGRITY"
)

// Error is a classified resolution failure.
type Error struct {
	// Class is the error classification for retry logic.
	Class Class `json:"class"`

	// Code is the failure kind.
	Code Code `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Kind is the context kind being resolved when the error occurred.
	Kind string `json:"kind,omitempty"`

	// Location points at the offending source text, if known.
	Location *model.SourceLocation `json:"location,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Location != nil {
		fmt.Fprintf(&b, " at %s", e.Location)
	}
	if e.Kind != "" {
		fmt.Fprintf(&b, " (context=%s)", e.Kind)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same code. A target with an empty code
// matches on class alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Class == t.Class
	}
	return e.Code == t.Code
}

// WithKind annotates the error with the context kind that produced it.
func (e *Error) WithKind(kind string) *Error {
	e.Kind = kind
	return e
}

// WithLocation annotates the error with a source location.
func (e *Error) WithLocation(loc *model.SourceLocation) *Error {
	e.Location = loc
	return e
}

// Sentinels for errors.Is checks.
var (
	ErrUnsupportedContext = &Error{Code: CodeUnsupportedContext}
	ErrLoaderNotFound     = &Error{Code: CodeLoaderNotFound}
	ErrAmbiguousLoader    = &Error{Code: CodeAmbiguousLoader}
	ErrRemoteTransient    = &Error{Code: CodeRemoteTransient}
	ErrRemoteHard         = &Error{Code: CodeRemoteHard}
	ErrNoContent          = &Error{Code: CodeNoContent}
	ErrCompilation        = &Error{Code: CodeCompilation}
	ErrParse              = &Error{Code: CodeParse}
	ErrDependencyCycle    = &Error{Code: CodeDependencyCycle}
	ErrUnauthorized       = &Error{Code: CodeUnauthorized}
	ErrIntegrity          = &Error{Code: CodeIntegrity}
)

// UnsupportedContext reports a context kind with no dispatch rule.
func UnsupportedContext(kind string) *Error {
	return &Error{
		Class:   ClassConfiguration,
		Code:    CodeUnsupportedContext,
		Message: fmt.Sprintf("unsupported context type %q", kind),
		Kind:    kind,
	}
}

// LoaderNotFound reports that no registered loader supports a context.
func LoaderNotFound(kind string) *Error {
	return &Error{
		Class:   ClassConfiguration,
		Code:    CodeLoaderNotFound,
		Message: fmt.Sprintf("no loader found for context %q; check the registered loader extensions", kind),
		Kind:    kind,
	}
}

// AmbiguousLoader reports that more than one loader supports a context.
func AmbiguousLoader(kind string, loaders []string) *Error {
	return &Error{
		Class:   ClassConfiguration,
		Code:    CodeAmbiguousLoader,
		Message: fmt.Sprintf("more than one loader supports context %q: %s", kind, strings.Join(loaders, ", ")),
		Kind:    kind,
	}
}

// RemoteTransient reports a remote failure that remained after retries.
func RemoteTransient(message string, err error) *Error {
	return &Error{
		Class:   ClassTransient,
		Code:    CodeRemoteTransient,
		Message: message,
		Err:     err,
	}
}

// RemoteHard reports a remote failure that must not be retried.
func RemoteHard(message string, err error) *Error {
	return &Error{
		Class:   ClassPermanent,
		Code:    CodeRemoteHard,
		Message: message,
		Err:     err,
	}
}

// NoContent reports a combination with neither concrete data nor pointers.
func NoContent() *Error {
	return &Error{
		Class:   ClassPermanent,
		Code:    CodeNoContent,
		Message: "combination context has no content to resolve",
	}
}

// Compilation wraps a compiler failure.
func Compilation(message string, loc *model.SourceLocation, err error) *Error {
	return &Error{
		Class:    ClassPermanent,
		Code:     CodeCompilation,
		Message:  message,
		Location: loc,
		Err:      err,
	}
}

// Parse wraps a grammar parser failure.
func Parse(message string, loc *model.SourceLocation, err error) *Error {
	return &Error{
		Class:    ClassPermanent,
		Code:     CodeParse,
		Message:  message,
		Location: loc,
		Err:      err,
	}
}

// DependencyCycle reports a project version reached again through its own
// upstream dependencies.
func DependencyCycle(chain []string) *Error {
	return &Error{
		Class:   ClassPermanent,
		Code:    CodeDependencyCycle,
		Message: fmt.Sprintf("dependency cycle detected: %s", strings.Join(chain, " -> ")),
	}
}

// Unauthorized reports that the principal may not load the resource.
func Unauthorized(principal, resource, reason string) *Error {
	msg := fmt.Sprintf("principal %q is not allowed to load %s", principal, resource)
	if reason != "" {
		msg += ": " + reason
	}
	return &Error{
		Class:   ClassPermanent,
		Code:    CodeUnauthorized,
		Message: msg,
	}
}

// Integrity reports stored data that failed verification.
func Integrity(message string, err error) *Error {
	return &Error{
		Class:   ClassPermanent,
		Code:    CodeIntegrity,
		Message: message,
		Err:     err,
	}
}

// Is reports whether err carries the given failure code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the failure code of err, or "" if err is not classified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassTransient
	}
	return false
}

// IsConfiguration returns true if the error is a configuration failure.
func IsConfiguration(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ClassConfiguration
	}
	return false
}
