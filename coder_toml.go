package yamlid

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

type coderTOML struct{}

func (c *coderTOML) Initialize() error {
	return nil
}

func (c *coderTOML) Names() []string {
	return []string{"toml", "t"}
}

func (c *coderTOML) Decode(in io.Reader, args []string) (*yaml.Node, error) {
	if len(args) > 0 {
		return nil, errors.Trace(ArgumentError{error: fmt.Sprintf("TOML: invalid input argument '%s', no arguments expected", args[0])})
	}
	var out map[string]interface{}
	if _, err := toml.NewDecoder(in).Decode(&out); err != nil {
		return nil, errors.Annotatef(err, "cannot decode TOML")
	}
	return valueDocument(out)
}

func (c *coderTOML) Encode(out io.Writer, doc *yaml.Node, args []string) error {
	if len(args) > 0 {
		return errors.Trace(ArgumentError{error: fmt.Sprintf("TOML: invalid output argument '%s', no arguments expected", args[0])})
	}
	var in map[string]interface{}
	if err := doc.Decode(&in); err != nil {
		return errors.Annotatef(err, "TOML: document must be a mapping")
	}
	return errors.Annotatef(toml.NewEncoder(out).Encode(in), "TOML: cannot encode")
}
