package requirement

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind discriminates configuration errors from user-facing ambiguity.
type ErrorKind string

const (
	KindUnsupportedType ErrorKind = "unsupported_type"
	KindInvalidCriteria ErrorKind = "invalid_criteria"
)

var (
	ErrUnsupportedType = errors.New("unsupported requirement type")
	ErrInvalidCriteria = errors.New("invalid requirement criteria")
)

// ConfigError reports a programmer or job-configuration mistake. It must be
// surfaced to operators and never retried as a clarification.
type ConfigError struct {
	Kind    ErrorKind
	Type    Type
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Type != "" {
		fmt.Fprintf(&b, " (%s)", e.Type)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinels so callers can use errors.Is.
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrUnsupportedType:
		return e.Kind == KindUnsupportedType
	case ErrInvalidCriteria:
		return e.Kind == KindInvalidCriteria
	}
	return false
}

// IsConfigError reports whether err carries a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

func unsupportedType(t Type) error {
	return &ConfigError{Kind: KindUnsupportedType, Type: t, Message: "no handler registered"}
}

func invalidCriteria(t Type, message string, cause error) error {
	return &ConfigError{Kind: KindInvalidCriteria, Type: t, Message: message, Cause: cause}
}

// FieldError is a single schema violation.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when a candidate value does not match its
// type schema. It is absorbed by the parser and never reaches the caller.
type ValidationError struct {
	Type   Type
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s value validation failed:", ve.Type)
	for i, err := range ve.Errors {
		fmt.Fprintf(&sb, " %d. %s: %s;", i+1, err.Field, err.Message)
	}
	return strings.TrimSuffix(sb.String(), ";")
}
