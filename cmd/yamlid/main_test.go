package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/blang/semver"
	"github.com/stretchr/testify/require"
)

const nativeCycle = `&1 name: "first"
next:
  &2 name: "second"
  next: *1
`

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	a := newApp(strings.NewReader(stdin), &stdout, &stderr)
	root := a.rootCommand()
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "yamlid.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConvertStdin(t *testing.T) {
	config := writeConfig(t, "")
	out, _, err := execute(t, nativeCycle, "convert", "-o", "json", "--identity", "property", "--config", config)
	require.NoError(t, err)
	require.Equal(t, `{"@id":1,"name":"first","next":{"name":"second","next":1}}`+"\n", out)

	out, _, err = execute(t, out, "convert", "-i", "j", "--identity", "native", "--ref-key", "next", "--config", config)
	require.NoError(t, err)
	require.Equal(t, "&1 name: first\nnext:\n  name: second\n  next: *1\n", out)
}

func TestConvertSource(t *testing.T) {
	config := writeConfig(t, "")
	out, _, err := execute(t, "", "convert", "--identity", "property", "--id-property", "ref",
		"../../testdata/cycle.yaml", "--config", config)
	require.NoError(t, err)
	require.Equal(t, "'ref': 1\nname: \"first\"\nnext:\n  name: \"second\"\n  next: 1\n", out)

	// decoder follows the file extension
	out, _, err = execute(t, "", "convert", "-o", "y", "../../testdata/file1.json", "--config", config)
	require.NoError(t, err)
	require.Contains(t, out, "key: value")

	_, _, err = execute(t, "", "convert", "../../testdata/empty.json", "--config", config)
	require.Error(t, err)
	require.Contains(t, err.Error(), "is empty")
}

func TestConvertConfigDefaults(t *testing.T) {
	config := writeConfig(t, `
identity = "native"
id_property = "ref"
ref_keys = ["next"]
`)
	input := "'ref': 1\nname: a\nnext: 1\n"
	out, _, err := execute(t, input, "convert", "--config", config)
	require.NoError(t, err)
	require.Equal(t, "&1 name: a\nnext: *1\n", out)

	out, _, err = execute(t, input, "convert", "--identity", "keep", "--config", config)
	require.NoError(t, err)
	require.Equal(t, input, out)
}

func TestConfigErrors(t *testing.T) {
	_, _, err := execute(t, "", "convert", "--config", writeConfig(t, "colour = 1\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown keys")

	_, _, err = execute(t, "", "convert", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	config, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), false)
	require.NoError(t, err)
	require.Equal(t, fileConfig{}, config)
}

func TestConvertBadIdentity(t *testing.T) {
	_, _, err := execute(t, "a: 1\n", "convert", "--identity", "anchors", "--config", writeConfig(t, ""))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown identity mode")
}

func TestCheck(t *testing.T) {
	config := writeConfig(t, "")
	out, _, err := execute(t, "", "check", "../../testdata/cycle.yaml", "../../testdata/cycle-property.yaml",
		"--ref-key", "next", "--config", config)
	require.NoError(t, err)
	require.Equal(t, "../../testdata/cycle.yaml: anchors=2 aliases=1 ids=0 references=0\n"+
		"../../testdata/cycle-property.yaml: anchors=0 aliases=0 ids=2 references=1\n", out)

	out, _, err = execute(t, "", "check", "../../testdata/import/basic/*.json", "--config", config)
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(out, "anchors=0"))
}

func TestCheckBroken(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(source, []byte("- '@id': 1\n  next: 2\n"), 0o600))

	_, stderr, err := execute(t, "", "check", source, "--ref-key", "next", "--config", writeConfig(t, ""))
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 1 source(s)")
	require.Contains(t, stderr, "unresolved reference")
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version", "--config", writeConfig(t, ""))
	require.NoError(t, err)
	require.Equal(t, "Version: local-build\n", out)
}

func TestIsLatest(t *testing.T) {
	latest := semver.MustParse("1.2.0")
	require.True(t, isLatest("1.2.0", latest))
	require.True(t, isLatest("v1.3.0", latest))
	require.False(t, isLatest("1.1.9", latest))
	require.False(t, isLatest("local-build", latest))
}
