// Package contract holds the in-memory model of pipeline-as-code job
// definitions read from configuration repositories, along with the rules
// used to validate and compare them before they are merged into the live
// pipeline configuration.
//
// A tree is built once by a deserializer, validated once, and treated as
// read-only afterwards. Validation never stops at the first problem: every
// node walks all of its children and records findings into the
// ErrorCollection supplied by the caller.
package contract

import "fmt"

// Node is implemented by every element of the contract tree.
type Node interface {
	// Location returns a human-readable reference to the node, anchored
	// under parent. It must not panic when identifying fields are absent.
	Location(parent string) string
	// Validate records findings for the node and all its descendants.
	Validate(errs *ErrorCollection, parent string)
}

// NameSet tracks names already declared among siblings.
type NameSet map[string]struct{}

func NewNameSet() NameSet {
	return make(NameSet)
}

// claim adds name and reports whether it was free.
func (s NameSet) claim(name string) bool {
	if _, ok := s[name]; ok {
		return false
	}
	s[name] = struct{}{}
	return true
}

const unknownName = "unknown name"

func orUnknown(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func childLocation(parent, format string, args ...interface{}) string {
	self := fmt.Sprintf(format, args...)
	if parent == "" {
		return self
	}
	return parent + "; " + self
}
