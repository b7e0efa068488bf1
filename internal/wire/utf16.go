package wire

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// UTF16LE converts a UTF-8 Go string into UTF-16LE bytes, one little-endian
// u16 per input code unit. Only BMP code points appear in the preimages this
// module recognizes; supplementary characters are transcoded as surrogate
// pairs exactly as the reference implementation's charCodeAt-equivalent does.
func UTF16LE(s string) []byte {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	xr := transform.NewReader(bytes.NewReader([]byte(s)), enc)
	converted, _ := io.ReadAll(xr)
	return converted
}
