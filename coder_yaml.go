package yamlid

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

type coderYAML struct{}

func (c *coderYAML) Initialize() error {
	return nil
}

func (c *coderYAML) Names() []string {
	return []string{"yaml", "yml", "y"}
}

func (c *coderYAML) Decode(in io.Reader, args []string) (*yaml.Node, error) {
	if len(args) > 0 {
		return nil, errors.Trace(ArgumentError{error: fmt.Sprintf("YAML: unexpected input argument '%s', no arguments expected", args[0])})
	}

	var doc yaml.Node
	if err := yaml.NewDecoder(in).Decode(&doc); err != nil {
		if err == io.EOF {
			return newDocument(nullNode()), nil
		}
		return nil, errors.Annotatef(err, "YAML: cannot parse")
	}
	return &doc, nil
}

func (c *coderYAML) Encode(out io.Writer, doc *yaml.Node, args []string) error {
	indent := 2
	for _, arg := range args {
		value := strings.TrimPrefix(arg, "indent=")
		n, err := strconv.Atoi(value)
		if value == arg || err != nil || n < 1 {
			return errors.Trace(ArgumentError{error: fmt.Sprintf("YAML: unexpected output argument '%s', supported arguments: 'indent=N'", arg)})
		}
		indent = n
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(indent)
	if err := enc.Encode(doc); err != nil {
		return errors.Annotatef(err, "YAML: cannot marshal YAML")
	}
	return errors.Annotatef(enc.Close(), "YAML: cannot write")
}
