// Package yamltest provides helpers for tests of YAML encoding.
package yamltest

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/spirius/yamlid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// DocMarker is the YAML document start marker.
const DocMarker = "---"

type tHelper interface {
	Helper()
}

// AssertYAML compares two YAML texts ignoring a leading document
// marker and surrounding whitespace. On mismatch the original
// texts are reported.
func AssertYAML(t require.TestingT, expected, actual string) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if trimDocMarker(expected) == trimDocMarker(actual) {
		return true
	}
	return assert.Equal(t, expected, actual)
}

func trimDocMarker(doc string) string {
	doc = strings.TrimSpace(doc)
	return strings.TrimSpace(strings.TrimPrefix(doc, DocMarker))
}

// ReadResource loads a fixture by path or URL and fails the test
// when it is missing or empty.
func ReadResource(t require.TestingT, ref string) []byte {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	data, err := (&yamlid.Loader{}).Load(ref)
	require.NoError(t, err, "cannot read resource '%s'", ref)
	return data
}

// TextAccessConsistencyError is returned by VerifyText when the
// text of a scalar and the text read back from its emitted form
// disagree.
type TextAccessConsistencyError struct {
	Value   string
	Decoded string
}

func (e *TextAccessConsistencyError) Error() string {
	return fmt.Sprintf("scalar text access mismatch: value %q (%d bytes), decoded %q (%d bytes)",
		e.Value, len(e.Value), e.Decoded, len(e.Decoded))
}

// VerifyText returns the text of a scalar node after emitting the
// node in its own style and checking that parsing the output yields
// the same text.
func VerifyText(node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("scalar expected, got %s", KindName(node.Kind))
	}
	if !utf8.ValidString(node.Value) {
		return "", &TextAccessConsistencyError{Value: node.Value}
	}
	out, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(out, &doc); err != nil {
		return "", err
	}
	if len(doc.Content) != 1 || doc.Content[0].Kind != yaml.ScalarNode {
		return "", fmt.Errorf("scalar %q was not emitted as a scalar", node.Value)
	}
	decoded := doc.Content[0].Value
	if decoded != node.Value {
		return "", &TextAccessConsistencyError{Value: node.Value, Decoded: decoded}
	}
	return decoded, nil
}

// VerifyException checks that err message contains one of matches,
// ignoring case.
func VerifyException(t require.TestingT, err error, matches ...string) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !assert.Error(t, err) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, match := range matches {
		if strings.Contains(msg, strings.ToLower(match)) {
			return true
		}
	}
	return assert.Fail(t, fmt.Sprintf("Expected an error with one of substrings %q: got %q", matches, err.Error()))
}

// AssertKind checks the kind of node.
func AssertKind(t require.TestingT, expected yaml.Kind, node *yaml.Node) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if !assert.NotNil(t, node, "Expected node of kind %s, got nil", KindName(expected)) {
		return false
	}
	return assert.Equal(t, KindName(expected), KindName(node.Kind))
}

// AssertType checks that v is non-nil and assignable to the type of expected.
// expected can be a reflect.Type or a sample value.
func AssertType(t require.TestingT, v interface{}, expected interface{}) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	typ, ok := expected.(reflect.Type)
	if !ok {
		typ = reflect.TypeOf(expected)
	}
	if v == nil {
		return assert.Fail(t, fmt.Sprintf("Expected an object of type %s, got nil", typ))
	}
	if !reflect.TypeOf(v).AssignableTo(typ) {
		return assert.Fail(t, fmt.Sprintf("Expected type %s, got %T", typ, v))
	}
	return true
}

// KindName returns the readable name of a node kind.
func KindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Quote wraps s in double quotes.
func Quote(s string) string {
	return `"` + s + `"`
}

// UTF8 returns the UTF-8 bytes of s.
func UTF8(s string) []byte {
	return []byte(s)
}
