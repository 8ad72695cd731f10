package keycode

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Checksum returns the BLAKE2b-256 digest of the canonical catalog listing
// (alias, code) in registration order. Compiled profiles embed this digest;
// the runtime refuses profiles built against a different catalog.
func Checksum() [32]byte {
	h, _ := blake2b.New256(nil)
	var buf [2]byte
	for _, e := range catalog {
		h.Write([]byte(e.alias))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint16(buf[:], uint16(e.code))
		h.Write(buf[:])
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
