package identity

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateGUID(t *testing.T) {
	idReader = rand.New(rand.NewSource(0))

	for i := 0; i < 1000; i++ {
		guid := NewID()

		var i big.Int
		_, ok := i.SetString(guid, randomIDBase)
		if !ok {
			t.Fatal("id should be base 36", i, guid)
		}

		if len(guid) != maxRandomIDLength {
			t.Fatalf("len(%s) != %v", guid, maxRandomIDLength)
		}
	}
}

func TestNewObjectID(t *testing.T) {
	idReader = rand.New(rand.NewSource(0))

	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewObjectID()
		assert.True(t, ValidObjectID(id), id)
		assert.Len(t, id, 36)

		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}

	assert.False(t, ValidObjectID("not-a-uuid"))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "b5e3d1", ShortID("b5e3d1c2-8f3a-4a57-9c1e-0f4cb1d2e3f4"))
	assert.Equal(t, "abc", ShortID("abc"))
	assert.Equal(t, "", ShortID(""))
}
