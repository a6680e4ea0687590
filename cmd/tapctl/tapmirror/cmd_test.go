package tapmirror

import (
	"testing"

	"github.com/moby/tapkit/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirections(t *testing.T) {
	directions, err := parseDirections(map[string]string{"in": "100", "OUT": "101"})
	require.NoError(t, err)
	assert.Equal(t, map[api.Direction]uint32{api.DirectionIn: 100, api.DirectionOut: 101}, directions)
	assert.Equal(t, "IN=100,OUT=101", formatDirections(&api.TapMirror{Directions: directions}))

	for _, in := range []map[string]string{
		nil,
		{"SIDEWAYS": "1"},
		{"IN": "-1"},
		{"IN": "4294967296"},
	} {
		_, err := parseDirections(in)
		assert.Error(t, err, "%v", in)
	}
}
