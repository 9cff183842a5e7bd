package yamlid

import (
	"bytes"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
)

func TestParseIdentityMode(t *testing.T) {
	for in, expected := range map[string]IdentityMode{
		"":         KeepIdentity,
		"keep":     KeepIdentity,
		"native":   NativeIdentity,
		"property": PropertyIdentity,
	} {
		mode, err := ParseIdentityMode(in)
		require.NoError(t, err)
		require.Equal(t, expected, mode)
	}

	_, err := ParseIdentityMode("anchors")
	_, ok := errors.Cause(err).(ArgumentError)
	require.True(t, ok, "unexpected error %v", err)
}

func TestRecoderRegister(t *testing.T) {
	r := NewRecoder()
	r.Register(&coderNULL{})
	r.Register(&coderYAML{})
	require.NoError(t, r.Initialize())

	require.Contains(t, r.Decoders, "n")
	require.NotContains(t, r.Encoders, "n")
	require.Contains(t, r.Encoders, "yml")

	var out bytes.Buffer
	err := r.Run(&Config{Decoder: "j", Encoder: "y", Output: &out})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown decoder 'j'")

	err = r.Run(&Config{Decoder: "n", Encoder: "n", Output: &out})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown output type 'n'")

	err = r.Run(&Config{Decoder: "n", Encoder: "y", Identity: "other", Output: &out})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown identity mode 'other'")
}

func TestRecoderPropertyFile(t *testing.T) {
	doc, err := DefaultRecoder.LoadDocument(&Loader{}, "testdata/cycle-property.yaml")
	require.NoError(t, err)

	config := &Config{Identity: NativeIdentity, RefKeys: []string{"next"}}
	require.NoError(t, DefaultRecoder.Convert(config, doc))

	var out bytes.Buffer
	config.Encoder = "y"
	config.Output = &out
	require.NoError(t, DefaultRecoder.Encode(config, doc))
	require.Equal(t, nativeCycle, out.String())
}
