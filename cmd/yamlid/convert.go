package main

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/spirius/yamlid"
)

func (a *app) convertCommand() *cobra.Command {
	var (
		config   yamlid.Config
		identity string
	)

	cmd := &cobra.Command{
		Use:   "convert [SOURCE]",
		Short: "Convert a document between formats and identity styles",
		Long: `Convert reads a document from SOURCE (a path, file:// or s3:// URL)
or from stdin, rewrites object identity and writes the result to stdout.

Supported coders:
  json, j        - JSON decoder/encoder, encoder argument 'pretty'
  yaml, yml, y   - YAML decoder/encoder, encoder argument 'indent=N'
  hcl, h         - HCL decoder/encoder, only attributes are supported
  toml, t        - TOML decoder/encoder
  null, n        - null decoder

Identity styles:
  keep           - leave anchors and id properties as they are
  native         - write shared objects with anchors and aliases
  property       - write shared objects with an id property`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.Input = a.stdin
			config.Output = a.stdout

			if len(args) == 1 {
				data, err := a.loader.Load(args[0])
				if err != nil {
					return errors.Trace(err)
				}
				config.Input = bytes.NewReader(data)
				if !cmd.Flags().Changed("input") {
					config.Decoder = a.decoderFor(args[0], config.Decoder)
				}
			}

			if !cmd.Flags().Changed("identity") && a.config.Identity != "" {
				identity = a.config.Identity
			}
			mode, err := yamlid.ParseIdentityMode(identity)
			if err != nil {
				return errors.Trace(err)
			}
			config.Identity = mode
			if !cmd.Flags().Changed("id-property") && a.config.IDProperty != "" {
				config.IDProperty = a.config.IDProperty
			}
			if !cmd.Flags().Changed("ref-key") && len(a.config.RefKeys) > 0 {
				config.RefKeys = a.config.RefKeys
			}

			a.logger.Debug("converting document",
				"decoder", config.Decoder, "encoder", config.Encoder,
				"identity", config.Identity, "property", config.IDProperty)
			return errors.Trace(a.recoder.Run(&config))
		},
	}

	cmd.Flags().StringVarP(&config.Decoder, "input", "i", "yaml", "input decoder")
	cmd.Flags().StringVarP(&config.Encoder, "output", "o", "yaml", "output encoder")
	cmd.Flags().StringArrayVar(&config.DecoderArgs, "decoder-arg", nil, "argument passed to the decoder")
	cmd.Flags().StringArrayVar(&config.EncoderArgs, "encoder-arg", nil, "argument passed to the encoder")
	cmd.Flags().StringVar(&identity, "identity", string(yamlid.KeepIdentity), "identity style: keep, native or property")
	cmd.Flags().StringVar(&config.IDProperty, "id-property", yamlid.DefaultIDProperty, "object id property")
	cmd.Flags().StringArrayVar(&config.RefKeys, "ref-key", nil, "key holding id references, used by native identity")

	return cmd
}

// decoderFor picks the decoder named by the extension of ref.
func (a *app) decoderFor(ref, fallback string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		ref = ref[:i]
	}
	ext := strings.TrimPrefix(filepath.Ext(ref), ".")
	if _, ok := a.recoder.Decoders[ext]; ok {
		return ext
	}
	return fallback
}
