package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"
)

// fileConfig holds defaults for command flags.
type fileConfig struct {
	Identity   string   `toml:"identity"`
	IDProperty string   `toml:"id_property"`
	RefKeys    []string `toml:"ref_keys"`
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".yamlid.toml")
}

// loadConfig reads the TOML config at path. A missing file
// is only an error when the path was given explicitly.
func loadConfig(path string, explicit bool) (fileConfig, error) {
	var config fileConfig
	if path == "" {
		return config, nil
	}
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return fileConfig{}, nil
		}
		return fileConfig{}, errors.Annotatef(err, "cannot read config '%s'", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return fileConfig{}, errors.Errorf("unknown keys in config '%s': %s", path, strings.Join(keys, ", "))
	}
	return config, nil
}
