package yamlid

import (
	"reflect"
	"strings"

	"github.com/juju/errors"
)

type fieldInfo struct {
	name      string
	index     int
	omitEmpty bool
}

type identityInfo struct {
	generator IDGenerator
	property  string
}

type typeInfo struct {
	typ      reflect.Type
	fields   []fieldInfo
	byName   map[string]int
	identity *identityInfo
}

// parseTag splits a `yaml:"name,opt"` struct tag.
func parseTag(field reflect.StructField) (name string, omitEmpty bool, skip bool) {
	tag := field.Tag.Get("yaml")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	if name == "" {
		name = strings.ToLower(field.Name)
	}
	return name, omitEmpty, false
}

func (m *Mapper) typeInfo(t reflect.Type) (*typeInfo, error) {
	m.mu.RLock()
	info, ok := m.types[t]
	m.mu.RUnlock()
	if ok {
		return info, nil
	}

	info = &typeInfo{
		typ:    t,
		byName: make(map[string]int),
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		name, omitEmpty, skip := parseTag(f)
		if skip {
			continue
		}
		if _, dup := info.byName[name]; dup {
			return nil, errors.Errorf("duplicated key '%s' in struct %s", name, t)
		}
		info.byName[name] = len(info.fields)
		info.fields = append(info.fields, fieldInfo{name: name, index: i, omitEmpty: omitEmpty})
	}

	identity, err := m.identityOf(t)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if identity != nil {
		if _, clash := info.byName[identity.property]; clash {
			return nil, errors.Errorf("object id property '%s' clashes with a field of %s", identity.property, t)
		}
		info.identity = identity
	}

	m.mu.Lock()
	if m.types == nil {
		m.types = make(map[reflect.Type]*typeInfo)
	}
	m.types[t] = info
	m.mu.Unlock()
	return info, nil
}

// identityOf returns the identity declared for struct type t,
// registered declarations win over Identified.
func (m *Mapper) identityOf(t reflect.Type) (*identityInfo, error) {
	m.mu.RLock()
	id, ok := m.registered[t]
	m.mu.RUnlock()
	if !ok {
		decl, isDecl := reflect.New(t).Interface().(Identified)
		if !isDecl {
			return nil, nil
		}
		id = decl.ObjectIdentity()
	}
	return newIdentityInfo(id)
}

func newIdentityInfo(id Identity) (*identityInfo, error) {
	if id.Generator == nil {
		return nil, errors.New("object identity without generator")
	}
	property := id.Property
	if property == "" {
		property = DefaultIDProperty
	}
	return &identityInfo{
		generator: id.Generator.ForScope(id.Scope),
		property:  property,
	}, nil
}
