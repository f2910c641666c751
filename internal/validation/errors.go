package validation

import (
	"strings"
)

// FieldError is a single schema violation.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	if f.Path == "" {
		return f.Message
	}
	return f.Path + ": " + f.Message
}

// Error is returned when input violates its schema. Fields are ordered by
// schema declaration order.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	return "validation failed: " + e.Details()
}

// Details joins every violation as "<path>: <message>" separated by ", ".
func (e *Error) Details() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}
