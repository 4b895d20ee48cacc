package evdev

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEviocRequestEncoding(t *testing.T) {
	// Known-good request values from linux/input.h.
	assert.EqualValues(t, 0x80084502, evioc(0x02, 8))  // EVIOCGID
	assert.EqualValues(t, 0x81004506, evioc(0x06, 256)) // EVIOCGNAME(256)
	assert.EqualValues(t, 0x81004507, evioc(0x07, 256)) // EVIOCGPHYS(256)
}

func TestCstring(t *testing.T) {
	assert.Equal(t, "Wireless Controller", cstring([]byte("Wireless Controller\x00\x00junk")))
	assert.Equal(t, "no-terminator", cstring([]byte("no-terminator")))
	assert.Equal(t, "", cstring([]byte{0}))
}
