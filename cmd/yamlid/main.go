package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spirius/yamlid"
)

// Version is set during build.
var Version = "local-build"

type app struct {
	logger  *log.Logger
	recoder *yamlid.Recoder
	loader  *yamlid.Loader

	stdin  io.Reader
	stdout io.Writer

	verbose    bool
	configPath string
	config     fileConfig
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		logger: log.NewWithOptions(stderr, log.Options{
			Prefix: "yamlid",
			Level:  log.InfoLevel,
		}),
		recoder: yamlid.DefaultRecoder,
		loader:  &yamlid.Loader{},
		stdin:   stdin,
		stdout:  stdout,
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "yamlid",
		Short: "yamlid converts structured documents preserving object identity",
		Long: `yamlid decodes and encodes YAML, JSON, TOML and HCL documents.
Shared objects are written either with YAML anchors and aliases
or with an id property, and can be converted between the two.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.verbose {
				a.logger.SetLevel(log.DebugLevel)
			}
			explicit := cmd.Flags().Changed("config")
			if !explicit {
				a.configPath = defaultConfigPath()
			}
			config, err := loadConfig(a.configPath, explicit)
			if err != nil {
				return err
			}
			a.config = config
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.yamlid.toml)")

	root.AddCommand(a.convertCommand())
	root.AddCommand(a.checkCommand())
	root.AddCommand(a.versionCommand())

	return root
}

func main() {
	if err := newApp(os.Stdin, os.Stdout, os.Stderr).rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
