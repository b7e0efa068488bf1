package wire

import (
	"crypto/sha512"
	"encoding/hex"
)

// SHA384 hashes a single blob with SHA-384, matching the reference
// implementation's platform crypto call.
func SHA384(data []byte) [48]byte {
	return sha512.Sum384(data)
}

// BytesToHex renders a byte slice as lowercase hex, the public surface named
// in spec.md §6.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// Concat concatenates byte slices without sharing backing arrays with the
// inputs, a small helper used throughout preimage construction.
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
