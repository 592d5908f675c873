// Package pipelineerr defines the tagged error kinds shared by every
// pipeline stage (§7 of the specification this module implements).
package pipelineerr

import "fmt"

// Kind is a machine-readable error tag. Callers branch on Kind with
// errors.As, never on Error() text.
type Kind string

const (
	ConfigInvalid          Kind = "ConfigInvalid"
	ReferenceDataMissing   Kind = "ReferenceDataMissing"
	UnsupportedFormat      Kind = "UnsupportedFormat"
	ExtractionFailed       Kind = "ExtractionFailed"
	PromptPolicyViolation  Kind = "PromptPolicyViolation"
	LLMRejected            Kind = "LLMRejected"
	LLMUnavailable         Kind = "LLMUnavailable"
	TemplateInvalid        Kind = "TemplateInvalid"
	InsufficientContent    Kind = "InsufficientContent"
	ValidationErrorKind    Kind = "ValidationError"
	GenerationFailed       Kind = "GenerationFailed"
	Timeout                Kind = "Timeout"
)

// Error is the single error type every stage returns. It carries a Kind
// for disposition logic (§7) plus enough context for a human message.
type Error struct {
	Kind    Kind
	Message string
	File    string
	Stage   string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, msg, e.File)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a tagged error. err may be nil.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithFile returns a copy of e annotated with the offending input path.
func (e *Error) WithFile(file string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.File = file
	return &cp
}

// WithStage returns a copy of e annotated with the stage name.
func (e *Error) WithStage(stage string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Stage = stage
	return &cp
}

// FieldViolation is one machine-addressable schema violation (§4.9).
type FieldViolation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError aggregates every violation found in one document so
// callers never have to retry validation to discover the next defect.
type ValidationError struct {
	Violations []FieldViolation
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.Violations) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s (%s) and %d more", v.Violations[0].Message, v.Violations[0].Path, len(v.Violations)-1)
}

// AsPipelineError projects a ValidationError into the common tagged Error,
// preserving the violation list in Err via a wrapped type assertion path.
func (v *ValidationError) AsPipelineError() *Error {
	return &Error{Kind: ValidationErrorKind, Message: v.Error(), Err: v}
}

// Violations extracts the []FieldViolation from err if it wraps a
// *ValidationError anywhere in its chain.
func Violations(err error) []FieldViolation {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ve, ok := err.(*ValidationError); ok {
			return ve.Violations
		}
		if pe, ok := err.(*Error); ok {
			err = pe.Err
			continue
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}
