package yamlid

import (
	"io"

	"gopkg.in/yaml.v3"
)

type coderNULL struct{}

func (c *coderNULL) Initialize() error {
	return nil
}

func (c *coderNULL) Names() []string {
	return []string{"null", "n"}
}

func (c *coderNULL) Decode(in io.Reader, args []string) (*yaml.Node, error) {
	return newDocument(nullNode()), nil
}
