package yamlid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

type coderJSON struct{}

func (c *coderJSON) Initialize() error {
	return nil
}

func (c *coderJSON) Names() []string {
	return []string{"json", "j"}
}

func (c *coderJSON) Decode(in io.Reader, args []string) (*yaml.Node, error) {
	if len(args) > 0 {
		return nil, errors.Trace(ArgumentError{error: fmt.Sprintf("JSON: invalid input argument '%s', no arguments expected", args[0])})
	}
	dec := json.NewDecoder(in)
	dec.UseNumber()
	node, err := c.decodeValue(dec)
	if err != nil {
		return nil, errors.Annotatef(err, "cannot decode JSON")
	}
	return newDocument(node), nil
}

// decodeValue reads one JSON value keeping the key order of objects.
func (c *coderJSON) decodeValue(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Trace(err)
	}
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			node := &yaml.Node{Kind: yaml.MappingNode, Tag: mapTag}
			for dec.More() {
				key, err := dec.Token()
				if err != nil {
					return nil, errors.Trace(err)
				}
				value, err := c.decodeValue(dec)
				if err != nil {
					return nil, errors.Trace(err)
				}
				node.Content = append(node.Content, keyNode(key.(string)), value)
			}
			_, err = dec.Token()
			return node, errors.Trace(err)
		case '[':
			node := &yaml.Node{Kind: yaml.SequenceNode, Tag: seqTag}
			for dec.More() {
				item, err := c.decodeValue(dec)
				if err != nil {
					return nil, errors.Trace(err)
				}
				node.Content = append(node.Content, item)
			}
			_, err = dec.Token()
			return node, errors.Trace(err)
		}
	case string:
		return scalarNode(strTag, v), nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return scalarNode(intTag, v.String()), nil
		}
		return scalarNode(floatTag, v.String()), nil
	case bool:
		return scalarNode(boolTag, fmt.Sprint(v)), nil
	case nil:
		return nullNode(), nil
	}
	return nil, errors.Errorf("unexpected JSON token %v", tok)
}

func (c *coderJSON) Encode(out io.Writer, doc *yaml.Node, args []string) error {
	pretty := false
	if len(args) == 1 && args[0] == "pretty" {
		pretty = true
	} else if len(args) > 0 {
		return errors.Trace(ArgumentError{error: fmt.Sprintf("JSON: invalid output argument '%s', supported arguments: 'pretty'", args[0])})
	}

	var buf bytes.Buffer
	if err := c.encodeNode(&buf, doc); err != nil {
		return errors.Trace(err)
	}
	if pretty {
		var indented bytes.Buffer
		if err := json.Indent(&indented, buf.Bytes(), "", "  "); err != nil {
			return errors.Trace(err)
		}
		buf = indented
	}
	buf.WriteByte('\n')
	_, err := io.Copy(out, &buf)
	return errors.Annotatef(err, "JSON: cannot write")
}

// encodeNode writes node as compact JSON keeping the key order.
func (c *coderJSON) encodeNode(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return c.encodeNode(buf, node.Content[0])
	case yaml.AliasNode:
		return errors.Errorf("JSON: alias '*%s' cannot be written, use property identity (line %d)", node.Value, node.Line)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(node.Content[i].Value)
			if err != nil {
				return errors.Trace(err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := c.encodeNode(buf, node.Content[i+1]); err != nil {
				return errors.Trace(err)
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := c.encodeNode(buf, item); err != nil {
				return errors.Trace(err)
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.ScalarNode:
		var v interface{}
		switch node.ShortTag() {
		case strTag, binaryTag:
			v = node.Value
		default:
			if err := node.Decode(&v); err != nil {
				return errors.Trace(err)
			}
		}
		if f, ok := v.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
			return errors.Errorf("JSON: cannot write %s (line %d)", node.Value, node.Line)
		}
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Annotatef(err, "JSON: cannot write %s (line %d)", node.Value, node.Line)
		}
		buf.Write(data)
		return nil
	}
	return errors.Errorf("JSON: unsupported node kind %d", node.Kind)
}
