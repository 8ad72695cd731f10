package runtime

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// DeviceID is a stable identifier for a physical keyboard. Adapters derive
// it once at device arrival; the engine only ever looks it up.
type DeviceID [16]byte

func (d DeviceID) String() string {
	return hex.EncodeToString(d[:])
}

// DeriveDeviceID builds a DeviceID from a USB serial number.
func DeriveDeviceID(serial string) DeviceID {
	return hashID([]byte("serial:" + serial))
}

// FallbackDeviceID builds a deterministic DeviceID for devices without a
// serial number, from vendor/product ids and the physical port path. The
// same keyboard in the same port always gets the same id.
func FallbackDeviceID(vendor, product uint16, port string) DeviceID {
	buf := make([]byte, 0, 16+len(port))
	buf = append(buf, "vidpid:"...)
	buf = binary.LittleEndian.AppendUint16(buf, vendor)
	buf = binary.LittleEndian.AppendUint16(buf, product)
	buf = append(buf, port...)
	return hashID(buf)
}

func hashID(input []byte) DeviceID {
	sum := blake2b.Sum256(input)
	var id DeviceID
	copy(id[:], sum[:16])
	return id
}
