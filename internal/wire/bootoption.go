package wire

// UiAppBootOptionPreimage returns the canonical "Boot0000" EFI boot-option
// byte block for the built-in UiApp application, per spec.md §6. It is a
// fixed literal (no inputs vary it), reproduced here field by field rather
// than as an opaque blob so a reader can check it against the UEFI
// EFI_LOAD_OPTION layout it encodes:
//
//	09 01 00 00 2C 00          attributes(0x109: ACTIVE|HIDDEN|CATEGORY_APP) | path-list-length(0x2c)
//	utf16le("UiApp\0")         description
//	04 07 14 00 <guid>         media device path node, firmware volume (7cb8bdc9-...)
//	04 06 14 00 <guid>         media device path node, firmware file (462caa21-...)
//	7F FF 04 00                end-of-device-path node
func UiAppBootOptionPreimage() []byte {
	guid1 := MustEncodeGUID("7cb8bdc9-f8eb-4f34-aaea-3ee4af6516a1")
	guid2 := MustEncodeGUID("462caa21-7614-4503-836e-8ab6f4662331")

	return Concat(
		[]byte{0x09, 0x01, 0x00, 0x00, 0x2C, 0x00},
		UTF16LE("UiApp\x00"),
		[]byte{0x04, 0x07, 0x14, 0x00},
		guid1,
		[]byte{0x04, 0x06, 0x14, 0x00},
		guid2,
		[]byte{0x7F, 0xFF, 0x04, 0x00},
	)
}

// BootOrderPreimage is the EV_EFI_VARIABLE_BOOT preimage for an empty
// BootOrder variable: spec.md §4.7 step 10 says two zero bytes.
func BootOrderPreimage() []byte {
	return []byte{0x00, 0x00}
}

// SeparatorPreimage is the EV_SEPARATOR preimage shared by every separator
// event in the log: spec.md §4.7 steps 4 and 13 (S2 in spec.md §8).
func SeparatorPreimage() []byte {
	return []byte{0x00, 0x00, 0x00, 0x00}
}
