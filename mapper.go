package yamlid

import (
	"bytes"
	"io"
	"reflect"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// DefaultIDProperty is the key used for object ids when
// native anchors are disabled.
const DefaultIDProperty = "@id"

// Features configures a Mapper.
type Features struct {
	// UseNativeObjectID writes object ids as anchors and aliases
	// instead of an id property.
	UseNativeObjectID bool
	// WriteDocStartMarker prefixes the output with "---".
	WriteDocStartMarker bool
	// MinimizeQuotes writes strings unquoted where YAML allows it.
	MinimizeQuotes bool
	// FailOnUnknownProperties rejects mapping keys without a matching field.
	FailOnUnknownProperties bool
	// Indent is the number of spaces per nesting level.
	Indent int
}

// DefaultFeatures returns the features of a new Mapper.
func DefaultFeatures() Features {
	return Features{
		UseNativeObjectID:       true,
		WriteDocStartMarker:     true,
		FailOnUnknownProperties: true,
		Indent:                  2,
	}
}

// Identity declares object identity for a struct type.
type Identity struct {
	Generator IDGenerator
	// Property is the id key used when native ids are disabled,
	// DefaultIDProperty if empty.
	Property string
	// Scope restricts id uniqueness, AnyScope if nil.
	Scope reflect.Type
}

// Identified is implemented by struct types which are
// serialized with object identity.
type Identified interface {
	ObjectIdentity() Identity
}

// Mapper binds Go values to YAML documents.
// A Mapper is safe for concurrent use once configured,
// every call runs its own session.
type Mapper struct {
	Features Features
	// Logger receives debug messages about id handling, can be nil.
	Logger *log.Logger

	mu         sync.RWMutex
	types      map[reflect.Type]*typeInfo
	registered map[reflect.Type]Identity
}

// NewMapper creates mapper with DefaultFeatures.
func NewMapper() *Mapper {
	return &Mapper{
		Features:   DefaultFeatures(),
		types:      make(map[reflect.Type]*typeInfo),
		registered: make(map[reflect.Type]Identity),
	}
}

// DefaultMapper is used by package level Marshal and Unmarshal.
var DefaultMapper = NewMapper()

// RegisterIdentity declares identity for the struct type of sample,
// which can be a struct or a pointer to struct.
func (m *Mapper) RegisterIdentity(sample interface{}, id Identity) error {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return errors.Errorf("cannot register object identity for %T, struct expected", sample)
	}
	info, err := newIdentityInfo(id)
	if err != nil {
		return errors.Annotatef(err, "cannot register object identity for %s", t)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for other, otherID := range m.registered {
		if other == t {
			continue
		}
		otherInfo, _ := newIdentityInfo(otherID)
		if err := checkCompatible(otherInfo, info); err != nil {
			return errors.Annotatef(err, "cannot register object identity for %s", t)
		}
	}
	if m.registered == nil {
		m.registered = make(map[reflect.Type]Identity)
	}
	m.registered[t] = id
	delete(m.types, t)
	return nil
}

func checkCompatible(have, want *identityInfo) error {
	if have.property != want.property || have.generator.Scope() != want.generator.Scope() {
		return nil
	}
	if have.generator.CanUseFor(want.generator) {
		return nil
	}
	return errors.Trace(&GeneratorIncompatibilityError{
		Property: want.property,
		Scope:    want.generator.Scope().String(),
		Have:     reflect.TypeOf(have.generator).String(),
		Want:     reflect.TypeOf(want.generator).String(),
	})
}

func (m *Mapper) debug(msg string, keyvals ...interface{}) {
	if m.Logger != nil {
		m.Logger.Debug(msg, keyvals...)
	}
}

// generatorSet holds the generators of one session.
type generatorSet struct {
	ctx  interface{}
	gens []*identityInfo
}

// forIdentity returns the session generator serving id,
// creating one on first use.
func (s *generatorSet) forIdentity(id *identityInfo) (IDGenerator, error) {
	for _, have := range s.gens {
		if have.generator.CanUseFor(id.generator) {
			return have.generator, nil
		}
		if err := checkCompatible(have, id); err != nil {
			return nil, errors.Trace(err)
		}
	}
	gen := id.generator.NewForSerialization(s.ctx)
	s.gens = append(s.gens, &identityInfo{generator: gen, property: id.property})
	return gen, nil
}

// Marshal returns the YAML encoding of v.
func (m *Mapper) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := m.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Trace(err)
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Trace(err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes the first document in data into v.
func (m *Mapper) Unmarshal(data []byte, v interface{}) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return errors.Trace(parseError(err, v))
	}
	return errors.Trace(m.UnmarshalNode(&node, v))
}

// Encoder writes YAML documents to an output stream.
type Encoder struct {
	m       *Mapper
	w       io.Writer
	enc     *yaml.Encoder
	started bool
}

// NewEncoder returns an encoder writing to w.
func (m *Mapper) NewEncoder(w io.Writer) *Encoder {
	enc := yaml.NewEncoder(w)
	if m.Features.Indent > 0 {
		enc.SetIndent(m.Features.Indent)
	}
	return &Encoder{m: m, w: w, enc: enc}
}

// Encode writes v as the next document.
func (e *Encoder) Encode(v interface{}) error {
	node, err := e.m.MarshalNode(v)
	if err != nil {
		return errors.Trace(err)
	}
	if !e.started && e.m.Features.WriteDocStartMarker {
		if _, err := io.WriteString(e.w, "---\n"); err != nil {
			return errors.Annotatef(err, "YAML: cannot write")
		}
	}
	e.started = true
	return errors.Annotatef(e.enc.Encode(node), "YAML: cannot marshal YAML")
}

// Close flushes the stream.
func (e *Encoder) Close() error {
	return errors.Trace(e.enc.Close())
}

// Decoder reads YAML documents from an input stream.
type Decoder struct {
	m   *Mapper
	dec *yaml.Decoder
}

// NewDecoder returns a decoder reading from r.
func (m *Mapper) NewDecoder(r io.Reader) *Decoder {
	return &Decoder{m: m, dec: yaml.NewDecoder(r)}
}

// Decode reads the next document into v.
// It returns io.EOF when there are no more documents.
func (d *Decoder) Decode(v interface{}) error {
	var node yaml.Node
	if err := d.dec.Decode(&node); err != nil {
		if err == io.EOF {
			return err
		}
		return errors.Trace(parseError(err, v))
	}
	return errors.Trace(d.m.UnmarshalNode(&node, v))
}

// Marshal encodes v with DefaultMapper.
func Marshal(v interface{}) ([]byte, error) {
	return DefaultMapper.Marshal(v)
}

// Unmarshal decodes data into v with DefaultMapper.
func Unmarshal(data []byte, v interface{}) error {
	return DefaultMapper.Unmarshal(data, v)
}
