package contract

import (
	"fmt"
	"reflect"
	"strings"
)

type Kind string

const (
	KindMissingField  Kind = "MissingField"
	KindDuplicateName Kind = "DuplicateName"
	KindInvalid       Kind = "Invalid"
)

// Finding is one (location, message) pair recorded during validation.
type Finding struct {
	Location string `json:"location"`
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
}

// ErrorCollection accumulates findings for a single validation pass.
// It is not safe for concurrent use; give each pass its own instance.
type ErrorCollection struct {
	findings []Finding
}

func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{}
}

// CheckMissing records a MissingField finding when value is nil, an empty
// string, or an empty slice or map.
func (e *ErrorCollection) CheckMissing(location, field string, value interface{}) {
	if isMissing(value) {
		e.add(location, KindMissingField, fmt.Sprintf("Missing field '%s'.", field))
	}
}

func (e *ErrorCollection) AddError(location, message string) {
	e.add(location, KindInvalid, message)
}

func (e *ErrorCollection) AddDuplicate(location, message string) {
	e.add(location, KindDuplicateName, message)
}

func (e *ErrorCollection) add(location string, kind Kind, message string) {
	e.findings = append(e.findings, Finding{Location: location, Kind: kind, Message: message})
}

func (e *ErrorCollection) Findings() []Finding {
	out := make([]Finding, len(e.findings))
	copy(out, e.findings)
	return out
}

func (e *ErrorCollection) Len() int {
	return len(e.findings)
}

func (e *ErrorCollection) Empty() bool {
	return len(e.findings) == 0
}

// ByLocation groups messages by location, keeping insertion order within each group.
func (e *ErrorCollection) ByLocation() map[string][]string {
	out := make(map[string][]string)
	for _, f := range e.findings {
		out[f.Location] = append(out[f.Location], f.Message)
	}
	return out
}

// Report renders the findings as text, one block per location in first-seen order.
func (e *ErrorCollection) Report() string {
	var order []string
	grouped := e.ByLocation()
	seen := make(map[string]bool)
	for _, f := range e.findings {
		if !seen[f.Location] {
			seen[f.Location] = true
			order = append(order, f.Location)
		}
	}

	var b strings.Builder
	for _, loc := range order {
		b.WriteString(loc)
		b.WriteString(";\n")
		for _, msg := range grouped[loc] {
			b.WriteString("\t")
			b.WriteString(msg)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Err returns nil when the pass found nothing, otherwise a *ValidationError.
func (e *ErrorCollection) Err() error {
	if e.Empty() {
		return nil
	}
	return &ValidationError{Findings: e.Findings()}
}

// ValidationError rejects a whole document. There is no partial acceptance.
type ValidationError struct {
	Findings []Finding
}

func (v *ValidationError) Error() string {
	if len(v.Findings) == 1 {
		return fmt.Sprintf("invalid configuration: %s: %s", v.Findings[0].Location, v.Findings[0].Message)
	}
	return fmt.Sprintf("invalid configuration: %d errors", len(v.Findings))
}

func isMissing(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
