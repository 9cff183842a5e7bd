package yamlid

import (
	"fmt"
	"strings"
)

// UnresolvedReferenceError is returned by decoding when an alias
// or an id reference has no matching definition in the document.
type UnresolvedReferenceError struct {
	IDs []string
}

func (e *UnresolvedReferenceError) Error() string {
	quoted := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return "unresolved object id reference(s): " + strings.Join(quoted, ", ")
}

// GeneratorIncompatibilityError is returned when two identity
// declarations share a scope and a property but disagree on the
// generator, or when a reference resolves to an object of a type
// the target cannot hold.
type GeneratorIncompatibilityError struct {
	Property string
	Scope    string
	Have     string
	Want     string
}

func (e *GeneratorIncompatibilityError) Error() string {
	return fmt.Sprintf("incompatible object identity for property '%s' in scope %s: have %s, want %s",
		e.Property, e.Scope, e.Have, e.Want)
}

// ArgumentError is used, when coder function detects argument error
type ArgumentError struct {
	error string
}

func (e ArgumentError) Error() string {
	return e.error
}
