package yamlid

import (
	"encoding"
	"encoding/base64"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

const (
	strTag    = "!!str"
	intTag    = "!!int"
	floatTag  = "!!float"
	boolTag   = "!!bool"
	nullTag   = "!!null"
	binaryTag = "!!binary"
	mapTag    = "!!map"
	seqTag    = "!!seq"
)

var (
	textMarshalerType   = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

type objectRef struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// writtenObject is an object already emitted in the session.
type writtenObject struct {
	id      interface{}
	anchor  string
	node    *yaml.Node
	aliases []*yaml.Node
}

type encodeState struct {
	m       *Mapper
	gens    generatorSet
	written map[objectRef]*writtenObject
	active  map[objectRef]bool
}

// MarshalNode converts v into a YAML node tree.
func (m *Mapper) MarshalNode(v interface{}) (*yaml.Node, error) {
	e := &encodeState{
		m:       m,
		written: make(map[objectRef]*writtenObject),
		active:  make(map[objectRef]bool),
	}
	e.gens.ctx = e
	node, err := e.marshal(reflect.ValueOf(v))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return node, nil
}

func (e *encodeState) marshal(v reflect.Value) (*yaml.Node, error) {
	if !v.IsValid() {
		return nullNode(), nil
	}
	if (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) && v.IsNil() {
		return nullNode(), nil
	}
	if v.Kind() != reflect.Interface && v.CanInterface() && v.Type().Implements(textMarshalerType) {
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, errors.Annotatef(err, "cannot marshal %s", v.Type())
		}
		return e.stringNode(string(text)), nil
	}

	switch v.Kind() {
	case reflect.Interface:
		return e.marshal(v.Elem())
	case reflect.Ptr:
		if v.Elem().Kind() != reflect.Struct {
			ref := objectRef{typ: v.Type(), ptr: v.Pointer()}
			if e.active[ref] {
				return nil, errors.Errorf("cycle detected through %s", v.Type())
			}
			e.active[ref] = true
			defer delete(e.active, ref)
			return e.marshal(v.Elem())
		}
		info, err := e.m.typeInfo(v.Elem().Type())
		if err != nil {
			return nil, errors.Trace(err)
		}
		if info.identity != nil {
			return e.marshalObject(v, info)
		}
		ref := objectRef{typ: v.Type(), ptr: v.Pointer()}
		if e.active[ref] {
			return nil, errors.Errorf("cycle detected through %s without object identity", v.Type())
		}
		e.active[ref] = true
		defer delete(e.active, ref)
		return e.marshalStruct(v.Elem(), info, nil)
	case reflect.Struct:
		info, err := e.m.typeInfo(v.Type())
		if err != nil {
			return nil, errors.Trace(err)
		}
		return e.marshalStruct(v, info, nil)
	case reflect.Map:
		return e.marshalMap(v)
	case reflect.Slice:
		if v.IsNil() {
			return nullNode(), nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return &yaml.Node{
				Kind:  yaml.ScalarNode,
				Tag:   binaryTag,
				Value: base64.StdEncoding.EncodeToString(v.Bytes()),
			}, nil
		}
		return e.marshalSeq(v)
	case reflect.Array:
		return e.marshalSeq(v)
	case reflect.String:
		return e.stringNode(v.String()), nil
	case reflect.Bool:
		return scalarNode(boolTag, strconv.FormatBool(v.Bool())), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return scalarNode(intTag, strconv.FormatInt(v.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return scalarNode(intTag, strconv.FormatUint(v.Uint(), 10)), nil
	case reflect.Float32:
		return scalarNode(floatTag, formatFloat(v.Float(), 32)), nil
	case reflect.Float64:
		return scalarNode(floatTag, formatFloat(v.Float(), 64)), nil
	}
	return nil, errors.Errorf("cannot marshal type %s", v.Type())
}

// marshalObject writes an identity enabled pointer, either in full
// on first visit or as a reference afterwards.
func (e *encodeState) marshalObject(v reflect.Value, info *typeInfo) (*yaml.Node, error) {
	native := e.m.Features.UseNativeObjectID
	ref := objectRef{typ: v.Type(), ptr: v.Pointer()}
	if obj, ok := e.written[ref]; ok {
		if !native {
			return e.idNode(obj.id), nil
		}
		alias := &yaml.Node{Kind: yaml.AliasNode, Value: obj.anchor, Alias: obj.node}
		if obj.node == nil {
			obj.aliases = append(obj.aliases, alias)
		}
		return alias, nil
	}

	gen, err := e.gens.forIdentity(info.identity)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot write object id of %s", v.Type())
	}
	id := gen.GenerateID(v.Interface())
	obj := &writtenObject{id: id, anchor: fmt.Sprint(id)}
	e.written[ref] = obj
	e.m.debug("assigned object id", "type", info.typ, "id", id)

	var lead []*yaml.Node
	if !native {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: strTag, Value: info.identity.property, Style: yaml.SingleQuotedStyle}
		lead = []*yaml.Node{key, e.idNode(id)}
	}
	node, err := e.marshalStruct(v.Elem(), info, lead)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if native {
		obj.node = node
		if len(node.Content) > 0 {
			obj.node = node.Content[0]
		}
		obj.node.Anchor = obj.anchor
		for _, alias := range obj.aliases {
			alias.Alias = obj.node
		}
		obj.aliases = nil
	}
	return node, nil
}

func (e *encodeState) marshalStruct(v reflect.Value, info *typeInfo, lead []*yaml.Node) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: mapTag}
	node.Content = append(node.Content, lead...)
	for _, f := range info.fields {
		fv := v.Field(f.index)
		if f.omitEmpty && fv.IsZero() {
			continue
		}
		value, err := e.marshal(fv)
		if err != nil {
			return nil, errors.Annotatef(err, "field '%s' of %s", f.name, info.typ)
		}
		node.Content = append(node.Content, keyNode(f.name), value)
	}
	return node, nil
}

func (e *encodeState) marshalMap(v reflect.Value) (*yaml.Node, error) {
	if v.IsNil() {
		return nullNode(), nil
	}
	if v.Type().Key().Kind() != reflect.String {
		return nil, errors.Errorf("cannot marshal map with %s keys", v.Type().Key())
	}
	ref := objectRef{typ: v.Type(), ptr: v.Pointer()}
	if e.active[ref] {
		return nil, errors.Errorf("cycle detected through %s", v.Type())
	}
	e.active[ref] = true
	defer delete(e.active, ref)

	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: mapTag}
	for _, key := range keys {
		value, err := e.marshal(v.MapIndex(key))
		if err != nil {
			return nil, errors.Annotatef(err, "map key '%s'", key.String())
		}
		node.Content = append(node.Content, keyNode(key.String()), value)
	}
	return node, nil
}

func (e *encodeState) marshalSeq(v reflect.Value) (*yaml.Node, error) {
	if v.Kind() == reflect.Slice && v.Len() > 0 {
		ref := objectRef{typ: v.Type(), ptr: v.Pointer(), len: v.Len()}
		if e.active[ref] {
			return nil, errors.Errorf("cycle detected through %s", v.Type())
		}
		e.active[ref] = true
		defer delete(e.active, ref)
	}
	node := &yaml.Node{Kind: yaml.SequenceNode, Tag: seqTag}
	for i := 0; i < v.Len(); i++ {
		item, err := e.marshal(v.Index(i))
		if err != nil {
			return nil, errors.Annotatef(err, "index %d", i)
		}
		node.Content = append(node.Content, item)
	}
	return node, nil
}

func (e *encodeState) idNode(id interface{}) *yaml.Node {
	switch id := id.(type) {
	case int:
		return scalarNode(intTag, strconv.Itoa(id))
	case int64:
		return scalarNode(intTag, strconv.FormatInt(id, 10))
	case string:
		return e.stringNode(id)
	}
	return e.stringNode(fmt.Sprint(id))
}

func (e *encodeState) stringNode(s string) *yaml.Node {
	node := scalarNode(strTag, s)
	if !e.m.Features.MinimizeQuotes {
		node.Style = yaml.DoubleQuotedStyle
	}
	return node
}

func keyNode(name string) *yaml.Node {
	return scalarNode(strTag, name)
}

func scalarNode(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func nullNode() *yaml.Node {
	return scalarNode(nullTag, "null")
}

func formatFloat(f float64, bits int) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
