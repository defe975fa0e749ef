package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup3_KnownVectors(t *testing.T) {
	// Reference values from Bob Jenkins' lookup3.c driver (initval 0).
	assert.Equal(t, uint32(0xdeadbeef), Lookup3(nil))
	assert.Equal(t, uint32(0x17770551), Lookup3([]byte("Four score and seven years ago")))
}

func TestLookup3_SensitiveToEveryByte(t *testing.T) {
	base := []byte("OHDR\x02\x00 thirteen bytes+")
	want := Lookup3(base)
	for i := range base {
		mutated := append([]byte(nil), base...)
		mutated[i] ^= 0x01
		assert.NotEqual(t, want, Lookup3(mutated), "byte %d", i)
	}
}
