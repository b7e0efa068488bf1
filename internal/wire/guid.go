// Package wire implements the shared byte-level primitives the measurement
// preimages are built from: UEFI GUID encoding, UTF-16LE transcoding, and
// SHA-384 hashing helpers.
package wire

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// GUIDSize is the length in bytes of an encoded UEFI GUID.
const GUIDSize = 16

// EncodeGUID encodes a canonical dashed UUID string into UEFI's mixed-endian
// 16-byte wire form: the first three dash-separated fields are written
// little-endian, the last two big-endian. This is a bespoke codec, not a
// library abstraction, because no off-the-shelf UUID package models the
// mixed endianness UEFI firmware actually uses on the wire.
func EncodeGUID(guid string) ([]byte, error) {
	atoms := strings.Split(guid, "-")
	if len(atoms) != 5 {
		return nil, errors.Errorf("malformed GUID %q", guid)
	}

	data := make([]byte, 0, GUIDSize)
	for idx, atom := range atoms {
		raw, err := hex.DecodeString(atom)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed GUID atom %q", atom)
		}
		if idx <= 2 {
			for i := range raw {
				data = append(data, raw[len(raw)-1-i])
			}
		} else {
			data = append(data, raw...)
		}
	}
	if len(data) != GUIDSize {
		return nil, errors.Errorf("malformed GUID %q: encoded to %d bytes", guid, len(data))
	}
	return data, nil
}

// MustEncodeGUID panics on malformed input. Used only with the fixed,
// compile-time-known GUID literals in this module.
func MustEncodeGUID(guid string) []byte {
	data, err := EncodeGUID(guid)
	if err != nil {
		panic(err)
	}
	return data
}

// DecodeGUID is the inverse of EncodeGUID: it renders 16 mixed-endian bytes
// back into the canonical dashed lowercase-hex string.
func DecodeGUID(data []byte) (string, error) {
	if len(data) != GUIDSize {
		return "", errors.Errorf("GUID must be %d bytes, got %d", GUIDSize, len(data))
	}

	field1 := reverse(data[0:4])
	field2 := reverse(data[4:6])
	field3 := reverse(data[6:8])
	field4 := data[8:10]
	field5 := data[10:16]

	return strings.ToLower(
		hex.EncodeToString(field1) + "-" +
			hex.EncodeToString(field2) + "-" +
			hex.EncodeToString(field3) + "-" +
			hex.EncodeToString(field4) + "-" +
			hex.EncodeToString(field5),
	), nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
