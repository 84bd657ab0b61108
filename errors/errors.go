// Package errors provides the failure taxonomy shared by all checks in the
// engine. It includes failure kinds, standard error variables, and helper
// functions for consistent error wrapping and classification.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a check failure. A conformance tool must report, not mask:
// transport and protocol failures abort the current check and are never
// retried silently.
type Kind int

const (
	// KindTimeout: a bounded wait elapsed without a matching response.
	KindTimeout Kind = iota
	// KindProtocolError: malformed envelope, unmatched handle, or a
	// subscription ack that does not cover the requested oids.
	KindProtocolError
	// KindSchemaViolation: a payload failed its declared JSON Schema.
	KindSchemaViolation
	// KindRemoteMethodError: the device returned an error method result.
	KindRemoteMethodError
	// KindConstraintWideningViolation: a higher constraint level widened a
	// lower one, or overrode it partially.
	KindConstraintWideningViolation
	// KindIncompatibleConstraintType: a constraint shape illegal for the
	// property's resolved datatype.
	KindIncompatibleConstraintType
	// KindUnableToQueryDeviceModel: device-model construction failed; the
	// whole dependent test-run segment is fatal.
	KindUnableToQueryDeviceModel
	// KindInvalidStatusValue: a status property carried an out-of-enum value.
	KindInvalidStatusValue
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindProtocolError:
		return "protocol error"
	case KindSchemaViolation:
		return "schema violation"
	case KindRemoteMethodError:
		return "remote method error"
	case KindConstraintWideningViolation:
		return "constraint widening violation"
	case KindIncompatibleConstraintType:
		return "incompatible constraint type"
	case KindUnableToQueryDeviceModel:
		return "unable to query device model"
	case KindInvalidStatusValue:
		return "invalid status value"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrNoConnection     = errors.New("no connection available")
	ErrMissingSchema    = errors.New("missing schema")
	ErrUnknownClass     = errors.New("unknown class id")
	ErrUnknownDatatype  = errors.New("unknown datatype")
	ErrMemberNotFound   = errors.New("member not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// CheckError wraps an error with its failure kind and the context needed for
// a human-readable report.
type CheckError struct {
	Kind      Kind
	Err       error
	Message   string
	Component string
	Operation string
	// SpecLink points at the specification section the failure relates to,
	// where one is known.
	SpecLink string
}

// Error implements the error interface.
func (ce *CheckError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *CheckError) Unwrap() error {
	return ce.Err
}

// WithSpecLink attaches a specification link and returns the error.
func (ce *CheckError) WithSpecLink(link string) *CheckError {
	ce.SpecLink = link
	return ce
}

// New creates a CheckError of the given kind from a formatted message.
func New(kind Kind, component, operation, format string, args ...any) *CheckError {
	err := fmt.Errorf(format, args...)
	return &CheckError{
		Kind:      kind,
		Err:       err,
		Message:   fmt.Sprintf("%s.%s: %s", component, operation, err.Error()),
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern
// "component.method: action failed: %w".
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapKind wraps an error with context and classifies it.
func WrapKind(kind Kind, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &CheckError{
		Kind:      kind,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// KindOf returns the failure kind of err and whether err is classified.
func KindOf(err error) (Kind, bool) {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

// IsKind checks whether err is a classified failure of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsTimeout checks whether err is a timeout failure.
func IsTimeout(err error) bool { return IsKind(err, KindTimeout) }

// IsProtocolError checks whether err is a protocol failure.
func IsProtocolError(err error) bool { return IsKind(err, KindProtocolError) }

// IsSchemaViolation checks whether err is a schema validation failure.
func IsSchemaViolation(err error) bool { return IsKind(err, KindSchemaViolation) }

// IsRemoteMethodError checks whether err is a remote error method result.
func IsRemoteMethodError(err error) bool { return IsKind(err, KindRemoteMethodError) }
