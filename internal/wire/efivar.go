package wire

import "encoding/binary"

// EFIVariablePreimage builds the EV_EFI_VARIABLE_DRIVER_CONFIG preimage for
// an empty-content EFI variable: the
// encoded vendor GUID, the UTF-16 code-unit count of the name, an 8-byte
// zero data-length field (the variable carries no content — this module
// only models the "empty" Secure Boot variable case per spec.md §1), and
// the UTF-16LE name itself.
//
// This is the shape verified by spec.md §8 scenario S1 (52 bytes for
// "SecureBoot": 16 + 8 + 8 + 20).
func EFIVariablePreimage(vendorGUID, name string) ([]byte, error) {
	guid, err := EncodeGUID(vendorGUID)
	if err != nil {
		return nil, err
	}

	nameUTF16 := UTF16LE(name)
	nameLen := uint64(len(nameUTF16) / 2)

	var nameLenBuf, zero [8]byte
	binary.LittleEndian.PutUint64(nameLenBuf[:], nameLen)

	return Concat(guid, nameLenBuf[:], zero[:], nameUTF16), nil
}
