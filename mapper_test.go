package yamlid

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type item struct {
	Name string `yaml:"name"`
	Next *item  `yaml:"next,omitempty"`
}

func (*item) ObjectIdentity() Identity {
	return Identity{Generator: NewIntSequenceGenerator()}
}

type label struct {
	Text string `yaml:"text"`
}

type scopedItem struct {
	Name string `yaml:"name"`
}

func (*scopedItem) ObjectIdentity() Identity {
	return Identity{Generator: NewIntSequenceGenerator(), Scope: reflect.TypeOf(scopedItem{})}
}

type plain struct {
	Name   string            `yaml:"name"`
	Count  int               `yaml:"count"`
	Ratio  float64           `yaml:"ratio"`
	Tags   []string          `yaml:"tags"`
	Attrs  map[string]string `yaml:"attrs,omitempty"`
	Hidden string            `yaml:"-"`
	Next   *plain            `yaml:"next,omitempty"`
}

func TestMarshalPlainValues(t *testing.T) {
	m := NewMapper()
	m.Features.WriteDocStartMarker = false
	out, err := m.Marshal(&plain{
		Name:   "root",
		Count:  3,
		Ratio:  2,
		Tags:   []string{"a", "b"},
		Attrs:  map[string]string{"z": "1", "a": "2"},
		Hidden: "secret",
	})
	require.NoError(t, err)
	require.Equal(t, `name: "root"
count: 3
ratio: 2.0
tags:
  - "a"
  - "b"
attrs:
  a: "2"
  z: "1"
`, string(out))

	m.Features.MinimizeQuotes = true
	out, err = m.Marshal(&plain{Name: "root"})
	require.NoError(t, err)
	require.Equal(t, "name: root\ncount: 0\nratio: 0.0\ntags: null\n", string(out))

	var back plain
	require.NoError(t, m.Unmarshal(out, &back))
	require.Equal(t, plain{Name: "root"}, back)
}

func TestMarshalCycleWithoutIdentity(t *testing.T) {
	p := &plain{Name: "loop"}
	p.Next = p
	_, err := NewMapper().Marshal(p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle detected")
}

func TestMarshalContainerCycles(t *testing.T) {
	m := map[string]interface{}{}
	m["self"] = m
	_, err := NewMapper().Marshal(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle detected")

	s := []interface{}{nil}
	s[0] = s
	_, err = NewMapper().Marshal(s)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle detected")

	var i interface{}
	i = &i
	_, err = NewMapper().Marshal(i)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle detected")

	// shared containers outside a cycle are written twice
	shared := []string{"a"}
	out, err := NewMapper().Marshal(map[string][]string{"x": shared, "y": shared})
	require.NoError(t, err)
	require.Equal(t, "---\nx:\n  - \"a\"\ny:\n  - \"a\"\n", string(out))
}

type tree struct {
	Name string  `yaml:"name"`
	Kids []*tree `yaml:"kids"`
}

func TestUnmarshalSelfContainingAnchor(t *testing.T) {
	v := &tree{Name: "stale"}
	err := NewMapper().Unmarshal([]byte("&a\nname: x\nkids: [*a]\n"), &v)
	require.Error(t, err)
	require.Contains(t, err.Error(), "anchor 'a' value contains itself")
	require.Nil(t, v)

	// a repeated alias outside its anchor is copied
	var list []tree
	require.NoError(t, NewMapper().Unmarshal([]byte("- &a\n  name: x\n- *a\n"), &list))
	require.Equal(t, []tree{{Name: "x"}, {Name: "x"}}, list)
}

type laughs []laughs

func TestUnmarshalExcessiveAliasing(t *testing.T) {
	var doc strings.Builder
	doc.WriteString("- &a [[], [], [], [], [], [], [], [], [], []]\n")
	prev := "a"
	for _, name := range []string{"b", "c", "d", "e", "f", "g"} {
		refs := strings.TrimSuffix(strings.Repeat("*"+prev+", ", 10), ", ")
		doc.WriteString("- &" + name + " [" + refs + "]\n")
		prev = name
	}
	var v laughs
	err := NewMapper().Unmarshal([]byte(doc.String()), &v)
	require.Error(t, err)
	require.Contains(t, err.Error(), "excessive aliasing")
	require.Nil(t, v)
}

func TestUnknownProperties(t *testing.T) {
	var p plain
	err := NewMapper().Unmarshal([]byte("name: x\nother: 1\n"), &p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field 'other'")

	m := NewMapper()
	m.Features.FailOnUnknownProperties = false
	require.NoError(t, m.Unmarshal([]byte("name: x\nother: 1\n"), &p))
	require.Equal(t, "x", p.Name)
}

func TestSharedReferences(t *testing.T) {
	shared := &item{Name: "shared"}
	list := []*item{shared, {Name: "other", Next: shared}, shared}

	for _, native := range []bool{true, false} {
		m := NewMapper()
		m.Features.UseNativeObjectID = native
		out, err := m.Marshal(list)
		require.NoError(t, err)

		var back []*item
		require.NoError(t, m.Unmarshal(out, &back))
		require.Len(t, back, 3)
		require.True(t, back[0] == back[2])
		require.True(t, back[1].Next == back[0])
		require.Equal(t, "other", back[1].Name)
	}
}

func TestForwardReferences(t *testing.T) {
	const doc = `
- next: 2
  '@id': 1
  name: "first"
- '@id': 2
  name: "second"
  next: 1
`
	var list []*item
	require.NoError(t, NewMapper().Unmarshal([]byte(doc), &list))
	require.Len(t, list, 2)
	require.True(t, list[0].Next == list[1])
	require.True(t, list[1].Next == list[0])
}

func TestForwardReferencesInMap(t *testing.T) {
	const doc = `
a:
  name: "a"
  next: 5
b:
  '@id': 5
  name: "b"
`
	var items map[string]*item
	require.NoError(t, NewMapper().Unmarshal([]byte(doc), &items))
	require.True(t, items["a"].Next == items["b"])
}

func TestDuplicateID(t *testing.T) {
	const doc = `
- '@id': 1
  name: "first"
- '@id': 1
  name: "second"
`
	list := []*item{{Name: "stale"}}
	err := NewMapper().Unmarshal([]byte(doc), &list)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate object id '1'")
	require.Nil(t, list)
}

func TestUnresolvedAlias(t *testing.T) {
	node := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		keyNode("name"), scalarNode(strTag, "first"),
		keyNode("next"), {Kind: yaml.AliasNode, Value: "9"},
	}}
	var first *item
	err := NewMapper().UnmarshalNode(node, &first)
	unresolved, ok := errors.Cause(err).(*UnresolvedReferenceError)
	require.True(t, ok, "unexpected error %v", err)
	require.Equal(t, []string{"9"}, unresolved.IDs)
	require.Nil(t, first)
}

type pair struct {
	Item  *item  `yaml:"item"`
	Other *other `yaml:"other"`
}

type other struct {
	Text string `yaml:"text"`
}

func (*other) ObjectIdentity() Identity {
	return Identity{Generator: NewIntSequenceGenerator()}
}

func TestReferenceTypeMismatch(t *testing.T) {
	const doc = `
item:
  '@id': 1
  name: "first"
other: 1
`
	p := pair{Item: &item{}}
	err := NewMapper().Unmarshal([]byte(doc), &p)
	_, ok := errors.Cause(err).(*GeneratorIncompatibilityError)
	require.True(t, ok, "unexpected error %v", err)
	require.Equal(t, pair{}, p)
}

func TestGeneratorIncompatibility(t *testing.T) {
	m := NewMapper()
	require.NoError(t, m.RegisterIdentity(label{}, Identity{Generator: NewIntSequenceGenerator()}))
	err := m.RegisterIdentity(&plain{}, Identity{Generator: NewPrefixIDGenerator()})
	incompatible, ok := errors.Cause(err).(*GeneratorIncompatibilityError)
	require.True(t, ok, "unexpected error %v", err)
	require.Equal(t, DefaultIDProperty, incompatible.Property)

	// a different property or scope is a separate id space
	require.NoError(t, m.RegisterIdentity(&plain{}, Identity{Generator: NewPrefixIDGenerator(), Property: "@ref"}))
	require.NoError(t, m.RegisterIdentity(other{}, Identity{Generator: NewUUIDGenerator(), Scope: reflect.TypeOf(other{})}))

	require.Error(t, m.RegisterIdentity("text", Identity{Generator: NewIntSequenceGenerator()}))
	require.Error(t, m.RegisterIdentity(label{}, Identity{}))
}

func TestSessionGeneratorIncompatibility(t *testing.T) {
	type mixed struct {
		Item  *item  `yaml:"item"`
		Other *other `yaml:"other"`
	}
	m := NewMapper()
	require.NoError(t, m.RegisterIdentity(other{}, Identity{Generator: NewPrefixIDGenerator()}))
	_, err := m.Marshal(&mixed{Item: &item{Name: "a"}, Other: &other{Text: "b"}})
	_, ok := errors.Cause(err).(*GeneratorIncompatibilityError)
	require.True(t, ok, "unexpected error %v", err)
}

func TestRegisteredIdentity(t *testing.T) {
	m := NewMapper()
	m.Features.UseNativeObjectID = false
	m.Features.WriteDocStartMarker = false
	require.NoError(t, m.RegisterIdentity(label{}, Identity{Generator: NewPrefixIDGenerator(), Property: "ref"}))

	l := &label{Text: "x"}
	out, err := m.Marshal([]*label{l, l})
	require.NoError(t, err)
	require.Equal(t, "- 'ref': \"id0\"\n  text: \"x\"\n- \"id0\"\n", string(out))

	var back []*label
	require.NoError(t, m.Unmarshal(out, &back))
	require.True(t, back[0] == back[1])
}

func TestScopedIDs(t *testing.T) {
	type both struct {
		Item   *item       `yaml:"item"`
		Scoped *scopedItem `yaml:"scoped"`
		Again  *scopedItem `yaml:"again"`
	}
	s := &scopedItem{Name: "s"}
	m := NewMapper()
	m.Features.UseNativeObjectID = false
	m.Features.WriteDocStartMarker = false
	out, err := m.Marshal(&both{Item: &item{Name: "i"}, Scoped: s, Again: s})
	require.NoError(t, err)
	require.Equal(t, `item:
  '@id': 1
  name: "i"
scoped:
  '@id': 1
  name: "s"
again: 1
`, string(out))

	var back both
	require.NoError(t, m.Unmarshal(out, &back))
	require.True(t, back.Scoped == back.Again)
	require.Equal(t, "i", back.Item.Name)
}

func TestPropertyClash(t *testing.T) {
	type clash struct {
		ID string `yaml:"@id"`
	}
	m := NewMapper()
	require.NoError(t, m.RegisterIdentity(clash{}, Identity{Generator: NewIntSequenceGenerator()}))
	_, err := m.Marshal(&clash{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "clashes")
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	m := NewMapper()
	enc := m.NewEncoder(&buf)
	first := &item{Name: "first"}
	first.Next = first
	require.NoError(t, enc.Encode(first))
	require.NoError(t, enc.Encode(&item{Name: "second"}))
	require.NoError(t, enc.Close())
	require.True(t, strings.HasPrefix(buf.String(), "---\n&1 name: \"first\"\n"))

	dec := m.NewDecoder(&buf)
	var a, b *item
	require.NoError(t, dec.Decode(&a))
	require.True(t, a.Next == a)
	require.NoError(t, dec.Decode(&b))
	// ids are per document
	require.Equal(t, "second", b.Name)
	require.Nil(t, b.Next)
	require.Equal(t, io.EOF, dec.Decode(&b))
}

func TestMapperLogger(t *testing.T) {
	var buf bytes.Buffer
	m := NewMapper()
	m.Logger = log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})
	m.Features.UseNativeObjectID = false

	var list []*item
	require.NoError(t, m.Unmarshal([]byte("- next: 1\n  name: a\n- '@id': 1\n  name: b\n"), &list))
	require.Contains(t, buf.String(), "resolved forward reference")
	require.Contains(t, buf.String(), "defined object by id property")
}

func TestUnmarshalTarget(t *testing.T) {
	var p plain
	require.Error(t, NewMapper().Unmarshal([]byte("name: x"), p))
	require.Error(t, NewMapper().Unmarshal([]byte("name: x"), (*plain)(nil)))

	var v interface{}
	require.NoError(t, NewMapper().Unmarshal([]byte("a: [1, 2]"), &v))
	require.Equal(t, map[string]interface{}{"a": []interface{}{1, 2}}, v)
}

func TestZeroValueMapper(t *testing.T) {
	var m Mapper
	out, err := m.Marshal(&item{Name: "a"})
	require.NoError(t, err)
	require.Equal(t, "'@id': 1\nname: \"a\"\n", string(out))
}
