package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	City  string  `json:"city"`
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

func TestCodecs(t *testing.T) {
	in := payload{City: "Colombo", Count: 3, Score: 0.5}

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(in)
			require.NoError(t, err)

			var out payload
			require.NoError(t, c.Unmarshal(data, &out))
			assert.Equal(t, in, out)
		})
	}
}

func TestCodecsWireCompatible(t *testing.T) {
	in := payload{City: "Kandy", Count: 7}

	data, err := GoJSON{}.Marshal(in)
	require.NoError(t, err)

	var out payload
	require.NoError(t, JSON{}.Unmarshal(data, &out))
	assert.Equal(t, in, out)
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

func TestMustMarshal(t *testing.T) {
	data := MustMarshal(nil, payload{City: "Galle"})
	assert.Contains(t, string(data), "Galle")

	assert.Panics(t, func() {
		MustMarshal(JSON{}, func() {})
	})
}
