package progression

import "fmt"

// ValidationError reports caller misuse of an engine operation: a value
// that is out of range or an enum the catalog does not know. It is raised
// synchronously and never silently clamped.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func validationErrf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
