package yamlid

import (
	"fmt"
	"io"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

// IdentityMode selects how object identity is written by the Recoder.
type IdentityMode string

const (
	// KeepIdentity leaves anchors and id properties as decoded.
	KeepIdentity IdentityMode = "keep"
	// NativeIdentity converts id properties into anchors and aliases.
	NativeIdentity IdentityMode = "native"
	// PropertyIdentity converts anchors and aliases into id properties.
	PropertyIdentity IdentityMode = "property"
)

// ParseIdentityMode parses the textual form of an IdentityMode.
func ParseIdentityMode(s string) (IdentityMode, error) {
	switch IdentityMode(s) {
	case "", KeepIdentity:
		return KeepIdentity, nil
	case NativeIdentity, PropertyIdentity:
		return IdentityMode(s), nil
	}
	return "", errors.Trace(ArgumentError{error: fmt.Sprintf("unknown identity mode '%s', supported: keep, native, property", s)})
}

// Config is the Recoder configuration
type Config struct {
	Decoder     string
	DecoderArgs []string

	Encoder     string
	EncoderArgs []string

	Identity   IdentityMode
	IDProperty string
	// RefKeys are the keys holding id references,
	// used when converting to native identity.
	RefKeys []string

	Input  io.Reader
	Output io.Writer
}

// Recoder represent set of encoders
// and decoders which can be combined
// to re-code YAML documents into
// one of supported formats, converting
// object identity on the way.
type Recoder struct {
	Encoders map[string]DocEncoder
	Decoders map[string]DocDecoder

	Coders map[string]Coder
}

// NewRecoder creates an empty recoder.
func NewRecoder() *Recoder {
	return &Recoder{
		Encoders: map[string]DocEncoder{},
		Decoders: map[string]DocDecoder{},
		Coders:   map[string]Coder{},
	}
}

// Register new coder
func (r *Recoder) Register(c Coder) {
	for _, name := range c.Names() {
		if inp, ok := c.(DocDecoder); ok {
			r.Decoders[name] = inp
		}
		if out, ok := c.(DocEncoder); ok {
			r.Encoders[name] = out
		}
		r.Coders[name] = c
	}
}

// Initialize coders after registration
func (r *Recoder) Initialize() error {
	for _, c := range r.Coders {
		if err := c.Initialize(); err != nil {
			return errors.Annotate(err, "cannot initialize coder")
		}
	}
	return nil
}

// Run recoder with provided configuration
func (r *Recoder) Run(config *Config) error {
	doc, err := r.Decode(config)
	if err != nil {
		return errors.Annotatef(err, "cannot run input coder")
	}
	if err = r.Convert(config, doc); err != nil {
		return errors.Annotatef(err, "cannot convert object identity")
	}
	return errors.Annotatef(r.Encode(config, doc), "cannot run output coder")
}

// Decode function decodes document from config.Input
// using config.Decoder.
func (r *Recoder) Decode(config *Config) (*yaml.Node, error) {
	input, ok := r.Decoders[config.Decoder]
	if !ok {
		return nil, errors.Errorf("unknown decoder '%s'", config.Decoder)
	}
	doc, err := input.Decode(config.Input, config.DecoderArgs)
	if err != nil {
		return nil, errors.Annotate(err, "error while processing input data")
	}
	return doc, nil
}

// Convert rewrites object identity of doc according to config.Identity.
func (r *Recoder) Convert(config *Config, doc *yaml.Node) error {
	mode, err := ParseIdentityMode(string(config.Identity))
	if err != nil {
		return errors.Trace(err)
	}
	switch mode {
	case NativeIdentity:
		return errors.Trace(ToNativeIdentity(doc, config.IDProperty, config.RefKeys))
	case PropertyIdentity:
		return errors.Trace(ToPropertyIdentity(doc, config.IDProperty))
	}
	return nil
}

// Encode function encodes document into config.Output stream
// using config.Encoder.
func (r *Recoder) Encode(config *Config, doc *yaml.Node) error {
	output, ok := r.Encoders[config.Encoder]
	if !ok {
		return errors.Errorf("unknown output type '%s'", config.Encoder)
	}
	if err := output.Encode(config.Output, doc, config.EncoderArgs); err != nil {
		return errors.Annotate(err, "error while processing output data")
	}
	return nil
}

// Coder is the common interface for document encoders and decoders.
type Coder interface {
	Initialize() error
	Names() []string
}

// DocDecoder reads one document.
type DocDecoder interface {
	Coder
	Decode(reader io.Reader, args []string) (*yaml.Node, error)
}

// DocEncoder writes one document.
type DocEncoder interface {
	Coder
	Encode(writer io.Writer, doc *yaml.Node, args []string) error
}

func newDocument(content *yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{content}}
}

// valueDocument builds a document from a decoded Go value.
func valueDocument(v interface{}) (*yaml.Node, error) {
	var node yaml.Node
	if err := node.Encode(v); err != nil {
		return nil, errors.Trace(err)
	}
	return newDocument(&node), nil
}

// DefaultRecoder is a recoder with all built-in coders.
var DefaultRecoder *Recoder

func init() {
	DefaultRecoder = NewRecoder()
	DefaultRecoder.Register(&coderJSON{})
	DefaultRecoder.Register(&coderYAML{})
	DefaultRecoder.Register(&coderHCL{})
	DefaultRecoder.Register(&coderTOML{})
	DefaultRecoder.Register(&coderNULL{})

	if err := DefaultRecoder.Initialize(); err != nil {
		panic(fmt.Sprintf("error: cannot initialize default recoder, %s", err))
	}
}
