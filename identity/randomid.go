package identity

import (
	cryptorand "crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/google/uuid"
)

var (
	// idReader is used for random id generation. This declaration allows us to
	// replace it for testing.
	idReader = cryptorand.Reader
)

const (
	randomIDEntropyBytes = 17
	randomIDBase         = 36

	// All session identifiers are padded out or truncated to 25 characters,
	// the length of 2^128-1 in base 36. The extra entropy byte fills the
	// high bits so the first character is evenly distributed.
	maxRandomIDLength = 25

	// shortIDLength is the number of leading characters of an object id
	// used when deriving names for southbound records.
	shortIDLength = 6
)

// NewID generates a new session identifier with ~129 bits of entropy encoded
// with base36. Identifiers should be treated opaquely.
func NewID() string {
	var p [randomIDEntropyBytes]byte

	if _, err := io.ReadFull(idReader, p[:]); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	p[0] |= 0x80 // set high bit to avoid the need for padding
	return (&big.Int{}).SetBytes(p[:]).Text(randomIDBase)[1 : maxRandomIDLength+1]
}

// NewObjectID returns a new UUID for a stored object.
func NewObjectID() string {
	u, err := uuid.NewRandomFromReader(idReader)
	if err != nil {
		panic(fmt.Errorf("failed to generate object id: %v", err))
	}
	return u.String()
}

// ValidObjectID reports whether id is a well formed object identifier.
func ValidObjectID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// ShortID returns the first characters of id, used to build bounded length
// names such as tunnel mirror names.
func ShortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}
