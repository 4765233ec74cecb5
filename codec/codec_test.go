package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manifestLike struct {
	Version   int               `json:"version"`
	Dim       int               `json:"dim"`
	Artifacts map[string]uint32 `json:"artifacts"`
	Lists     []int             `json:"lists,omitempty"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecs_Interoperate(t *testing.T) {
	in := manifestLike{
		Version:   1,
		Dim:       768,
		Artifacts: map[string]uint32{"index.trained": 0xdeadbeef, "token_ids.bin": 7},
	}

	codecs := []Codec{JSON{}, GoJSON{}}
	for _, enc := range codecs {
		data, err := enc.Marshal(in)
		require.NoError(t, err)

		for _, dec := range codecs {
			var out manifestLike
			require.NoError(t, dec.Unmarshal(data, &out), "%s -> %s", enc.Name(), dec.Name())
			assert.Equal(t, in, out)
		}
	}
}

func TestMustMarshal(t *testing.T) {
	assert.NotEmpty(t, MustMarshal(nil, manifestLike{Version: 1}))
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}
