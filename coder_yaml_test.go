package yamlid

import (
	"bytes"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/require"
)

func TestYAML(t *testing.T) {
	var out1 bytes.Buffer
	var out2 bytes.Buffer
	require.NoError(t, DefaultRecoder.Run(&Config{
		Decoder: "j",
		Encoder: "y",
		Input:   bytes.NewBufferString(testInput),
		Output:  &out1,
	}))
	require.Equal(t, `asd: 123
asdf:
  - 1
  - 2
  - 3
bsd: asd
complex:
  asd: 123
`, out1.String())
	require.NoError(t, DefaultRecoder.Run(&Config{
		Decoder: "y",
		Encoder: "j",
		Input:   &out1,
		Output:  &out2,
	}))
	require.JSONEq(t, testInput, out2.String())
}

func TestYAMLIndent(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, DefaultRecoder.Run(&Config{
		Decoder:     "j",
		Encoder:     "yaml",
		EncoderArgs: []string{"indent=4"},
		Input:       bytes.NewBufferString(`{"complex":{"asd":123}}`),
		Output:      &out,
	}))
	require.Equal(t, "complex:\n    asd: 123\n", out.String())

	for _, arg := range []string{"indent", "indent=x", "indent=0", "width=3"} {
		err := DefaultRecoder.Run(&Config{
			Decoder:     "j",
			Encoder:     "yaml",
			EncoderArgs: []string{arg},
			Input:       bytes.NewBufferString(`{}`),
			Output:      &out,
		})
		_, ok := errors.Cause(err).(ArgumentError)
		require.True(t, ok, "unexpected error %v for %s", err, arg)
	}
}

func TestYAMLKeepIdentity(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, DefaultRecoder.Run(&Config{
		Decoder:  "y",
		Encoder:  "y",
		Identity: KeepIdentity,
		Input:    bytes.NewBufferString(nativeCycle),
		Output:   &out,
	}))
	require.Equal(t, nativeCycle, out.String())
}

func TestYAMLEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, DefaultRecoder.Run(&Config{
		Decoder: "y",
		Encoder: "j",
		Input:   bytes.NewBufferString(""),
		Output:  &out,
	}))
	require.Equal(t, "null\n", out.String())
}
