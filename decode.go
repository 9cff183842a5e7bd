package yamlid

import (
	"encoding"
	"encoding/base64"
	"reflect"
	"regexp"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// fixup is a reference to an object not yet defined
// when the reference was read.
type fixup struct {
	id     string
	key    IDKey
	info   *typeInfo
	target reflect.Value
}

type decodeState struct {
	m       *Mapper
	gens    generatorSet
	anchors map[string]reflect.Value
	objects map[IDKey]reflect.Value
	pending []fixup
	// flush re-stores map entries once references are resolved,
	// map elements are not addressable.
	flush []func()

	aliasing    map[*yaml.Node]bool
	aliasDepth  int
	decodeCount int
	aliasCount  int
}

const (
	aliasRatioRangeLow  = 400000
	aliasRatioRangeHigh = 4000000
)

// allowedAliasRatio returns the share of nodes that may be decoded
// through aliases, shrinking as the document grows.
func allowedAliasRatio(decodeCount int) float64 {
	switch {
	case decodeCount <= aliasRatioRangeLow:
		return 0.99
	case decodeCount >= aliasRatioRangeHigh:
		return 0.10
	default:
		return 0.99 - 0.89*(float64(decodeCount-aliasRatioRangeLow)/float64(aliasRatioRangeHigh-aliasRatioRangeLow))
	}
}

// UnmarshalNode binds a parsed YAML node tree to v, which must be
// a non-nil pointer. On failure v is reset to its zero value.
func (m *Mapper) UnmarshalNode(node *yaml.Node, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Errorf("cannot unmarshal into %T, non-nil pointer expected", v)
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil
		}
		node = node.Content[0]
	}
	if node.Kind == 0 {
		return nil
	}

	d := &decodeState{
		m:       m,
		anchors:  make(map[string]reflect.Value),
		objects:  make(map[IDKey]reflect.Value),
		aliasing: make(map[*yaml.Node]bool),
	}
	d.gens.ctx = d
	err := d.unmarshal(node, rv.Elem())
	if err == nil {
		err = d.resolvePending()
	}
	if err != nil {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
		return errors.Trace(err)
	}
	return nil
}

var unknownAnchorRe = regexp.MustCompile(`unknown anchor '(.*)' referenced`)

// parseError resets v and reports an alias without a matching
// anchor as an unresolved reference.
func parseError(err error, v interface{}) error {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && !rv.IsNil() {
		rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
	}
	if match := unknownAnchorRe.FindStringSubmatch(err.Error()); match != nil {
		return errors.Annotatef(&UnresolvedReferenceError{IDs: []string{match[1]}}, "YAML: cannot parse")
	}
	return errors.Annotatef(err, "YAML: cannot parse")
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.ShortTag() == nullTag
}

func (d *decodeState) unmarshal(node *yaml.Node, out reflect.Value) error {
	d.decodeCount++
	if d.aliasDepth > 0 {
		d.aliasCount++
	}
	if d.aliasCount > 100 && d.decodeCount > 1000 && float64(d.aliasCount)/float64(d.decodeCount) > allowedAliasRatio(d.decodeCount) {
		return errors.New("document contains excessive aliasing")
	}

	t := out.Type()

	if t.Kind() == reflect.Ptr {
		if isNull(node) {
			out.Set(reflect.Zero(t))
			return nil
		}
		if t.Elem().Kind() == reflect.Struct {
			info, err := d.m.typeInfo(t.Elem())
			if err != nil {
				return errors.Trace(err)
			}
			if info.identity != nil {
				return d.unmarshalReference(node, out, info)
			}
		}
		p := reflect.New(t.Elem())
		if err := d.unmarshal(node, p.Elem()); err != nil {
			return errors.Trace(err)
		}
		out.Set(p)
		return nil
	}

	if node.Kind == yaml.AliasNode {
		return d.unmarshalAlias(node, out)
	}

	if node.Kind == yaml.ScalarNode && reflect.PtrTo(t).Implements(textUnmarshalerType) {
		if isNull(node) {
			return nil
		}
		err := out.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(node.Value))
		return errors.Annotatef(err, "cannot unmarshal '%s' into %s (line %d)", node.Value, t, node.Line)
	}

	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() > 0 {
			return errors.Errorf("cannot unmarshal into non-empty interface %s", t)
		}
		var generic interface{}
		if err := node.Decode(&generic); err != nil {
			return errors.Trace(err)
		}
		if generic == nil {
			out.Set(reflect.Zero(t))
		} else {
			out.Set(reflect.ValueOf(generic))
		}
		return nil
	case reflect.Struct:
		info, err := d.m.typeInfo(t)
		if err != nil {
			return errors.Trace(err)
		}
		if info.identity != nil && !isNull(node) {
			if node.Kind != yaml.MappingNode {
				return errors.Errorf("cannot bind object reference '%s' to non-pointer %s (line %d)", node.Value, t, node.Line)
			}
			return d.unmarshalObject(node, out.Addr(), info)
		}
		return d.unmarshalStruct(node, out, info, "")
	case reflect.Map:
		return d.unmarshalMap(node, out)
	case reflect.Slice:
		if isNull(node) {
			out.Set(reflect.Zero(t))
			return nil
		}
		if t.Elem().Kind() == reflect.Uint8 && node.Kind == yaml.ScalarNode {
			return d.unmarshalBytes(node, out)
		}
		if node.Kind != yaml.SequenceNode {
			return errors.Errorf("cannot unmarshal %s into %s (line %d)", node.ShortTag(), t, node.Line)
		}
		seq := reflect.MakeSlice(t, len(node.Content), len(node.Content))
		for i, item := range node.Content {
			if err := d.unmarshal(item, seq.Index(i)); err != nil {
				return errors.Annotatef(err, "index %d", i)
			}
		}
		out.Set(seq)
		return nil
	case reflect.Array:
		if node.Kind != yaml.SequenceNode || len(node.Content) != t.Len() {
			return errors.Errorf("cannot unmarshal into %s, sequence of %d items expected (line %d)", t, t.Len(), node.Line)
		}
		for i, item := range node.Content {
			if err := d.unmarshal(item, out.Index(i)); err != nil {
				return errors.Annotatef(err, "index %d", i)
			}
		}
		return nil
	}

	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("cannot unmarshal %s into %s (line %d)", node.ShortTag(), t, node.Line)
	}
	tmp := reflect.New(t)
	if err := node.Decode(tmp.Interface()); err != nil {
		return errors.Trace(err)
	}
	out.Set(tmp.Elem())
	return nil
}

// unmarshalAlias decodes a copy of the anchored value for types
// without object identity.
func (d *decodeState) unmarshalAlias(node *yaml.Node, out reflect.Value) error {
	target := node.Alias
	if target == nil {
		return errors.Trace(&UnresolvedReferenceError{IDs: []string{node.Value}})
	}
	if d.aliasing[target] {
		return errors.Errorf("anchor '%s' value contains itself (line %d)", node.Value, node.Line)
	}
	d.aliasing[target] = true
	d.aliasDepth++
	err := d.unmarshal(target, out)
	d.aliasDepth--
	delete(d.aliasing, target)
	return errors.Trace(err)
}

// unmarshalReference binds an identity enabled pointer: a definition,
// an alias or an id reference.
func (d *decodeState) unmarshalReference(node *yaml.Node, out reflect.Value, info *typeInfo) error {
	switch node.Kind {
	case yaml.AliasNode:
		p, ok := d.anchors[node.Value]
		if !ok {
			return errors.Trace(&UnresolvedReferenceError{IDs: []string{node.Value}})
		}
		return d.assign(out, p, info)
	case yaml.ScalarNode:
		gen, err := d.gens.forIdentity(info.identity)
		if err != nil {
			return errors.Trace(err)
		}
		key := gen.Key(node.Value)
		if p, ok := d.objects[key]; ok {
			return d.assign(out, p, info)
		}
		d.pending = append(d.pending, fixup{id: node.Value, key: key, info: info, target: out})
		return nil
	case yaml.MappingNode:
		p := reflect.New(out.Type().Elem())
		out.Set(p)
		return d.unmarshalObject(node, p, info)
	}
	return errors.Errorf("cannot unmarshal %s into %s (line %d)", node.ShortTag(), out.Type(), node.Line)
}

// unmarshalObject records p under its anchor or id and populates it.
// Registration happens before the fields are read so that
// references from within the object resolve to p.
func (d *decodeState) unmarshalObject(node *yaml.Node, p reflect.Value, info *typeInfo) error {
	gen, err := d.gens.forIdentity(info.identity)
	if err != nil {
		return errors.Trace(err)
	}

	anchor := node.Anchor
	if anchor == "" && len(node.Content) > 0 {
		anchor = node.Content[0].Anchor
	}
	if anchor != "" {
		d.anchors[anchor] = p
		d.objects[gen.Key(anchor)] = p
		d.m.debug("defined object by anchor", "type", info.typ, "anchor", anchor)
	}

	skip := ""
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != info.identity.property {
			continue
		}
		idNode := node.Content[i+1]
		if idNode.Kind == yaml.AliasNode {
			idNode = idNode.Alias
		}
		if idNode.Kind != yaml.ScalarNode {
			return errors.Errorf("object id of %s must be a scalar (line %d)", info.typ, idNode.Line)
		}
		key := gen.Key(idNode.Value)
		if prev, dup := d.objects[key]; dup && prev.Pointer() != p.Pointer() {
			return errors.Errorf("duplicate object id '%s' for %s (line %d)", idNode.Value, info.typ, idNode.Line)
		}
		d.objects[key] = p
		d.m.debug("defined object by id property", "type", info.typ, "id", idNode.Value)
		skip = info.identity.property
		break
	}

	return d.unmarshalStruct(node, p.Elem(), info, skip)
}

func (d *decodeState) unmarshalStruct(node *yaml.Node, out reflect.Value, info *typeInfo, skip string) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("cannot unmarshal %s into %s (line %d)", node.ShortTag(), info.typ, node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if key.Kind == yaml.AliasNode {
			key = key.Alias
		}
		if skip != "" && key.Value == skip {
			continue
		}
		idx, ok := info.byName[key.Value]
		if !ok {
			if d.m.Features.FailOnUnknownProperties {
				return errors.Errorf("unknown field '%s' in %s (line %d)", key.Value, info.typ, key.Line)
			}
			continue
		}
		f := info.fields[idx]
		if err := d.unmarshal(node.Content[i+1], out.Field(f.index)); err != nil {
			return errors.Annotatef(err, "field '%s' of %s", f.name, info.typ)
		}
	}
	return nil
}

func (d *decodeState) unmarshalMap(node *yaml.Node, out reflect.Value) error {
	t := out.Type()
	if isNull(node) {
		out.Set(reflect.Zero(t))
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("cannot unmarshal %s into %s (line %d)", node.ShortTag(), t, node.Line)
	}
	if t.Key().Kind() != reflect.String {
		return errors.Errorf("cannot unmarshal into map with %s keys", t.Key())
	}
	m := reflect.MakeMapWithSize(t, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if key.Kind == yaml.AliasNode {
			key = key.Alias
		}
		k := reflect.New(t.Key()).Elem()
		k.SetString(key.Value)
		elem := reflect.New(t.Elem()).Elem()
		if err := d.unmarshal(node.Content[i+1], elem); err != nil {
			return errors.Annotatef(err, "map key '%s'", key.Value)
		}
		m.SetMapIndex(k, elem)
		d.flush = append(d.flush, func() { m.SetMapIndex(k, elem) })
	}
	out.Set(m)
	return nil
}

func (d *decodeState) unmarshalBytes(node *yaml.Node, out reflect.Value) error {
	data := []byte(node.Value)
	if node.ShortTag() == binaryTag {
		decoded, err := base64.StdEncoding.DecodeString(node.Value)
		if err != nil {
			return errors.Annotatef(err, "cannot decode !!binary value (line %d)", node.Line)
		}
		data = decoded
	}
	b := reflect.MakeSlice(out.Type(), len(data), len(data))
	reflect.Copy(b, reflect.ValueOf(data))
	out.Set(b)
	return nil
}

// assign stores the resolved object p into out.
func (d *decodeState) assign(out, p reflect.Value, info *typeInfo) error {
	if !p.Type().AssignableTo(out.Type()) {
		return errors.Trace(&GeneratorIncompatibilityError{
			Property: info.identity.property,
			Scope:    info.identity.generator.Scope().String(),
			Have:     p.Type().String(),
			Want:     out.Type().String(),
		})
	}
	out.Set(p)
	return nil
}

// resolvePending assigns forward references once
// the whole document has been read.
func (d *decodeState) resolvePending() error {
	var missing []string
	for _, f := range d.pending {
		p, ok := d.objects[f.key]
		if !ok {
			missing = append(missing, f.id)
			continue
		}
		if err := d.assign(f.target, p, f.info); err != nil {
			return errors.Trace(err)
		}
		d.m.debug("resolved forward reference", "type", f.info.typ, "id", f.id)
	}
	if len(missing) > 0 {
		return errors.Trace(&UnresolvedReferenceError{IDs: missing})
	}
	for _, fn := range d.flush {
		fn()
	}
	return nil
}
