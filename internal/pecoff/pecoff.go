// Package pecoff parses PE/COFF images and produces the OVMF
// Authenticode-style measurement preimage (spec.md §4.5).
//
// Field naming and header-walk shape are grounded on the PE decoder in
// other_examples (ImageFileHeader/ImageOptionalHeader terminology); the
// measurement preimage itself is hand-rolled per spec.md rather than
// delegated to github.com/foxboron/go-uefi/authenticode, because that
// library's own canonicalization assumes Authenticode signing, not this
// engine's slightly different Checksum/Certificate-Directory exclusion and
// ascending-pointerToRawData section ordering.
package pecoff

import (
	"encoding/binary"
	"sort"

	"github.com/quex-tech/td-measure/internal/measureerr"
)

const (
	dosHeaderSize    = 64
	peSignatureSize  = 4
	fileHeaderSize   = 20
	sectionHeaderLen = 40

	magicPE32  = 0x10b
	magicPE32p = 0x20b

	optionalHeaderSizePE32  = 96
	optionalHeaderSizePE32p = 112

	numDataDirectories = 16
	certDirIndex       = 4
)

// Section is a parsed PE section: its 8-byte name, the body bytes up to
// min(virtualSize, sizeOfRawData), and the raw body extending to the full
// sizeOfRawData.
type Section struct {
	Name             string
	Body             []byte
	RawBody          []byte
	PointerToRawData uint32
}

// PortableExecutable is a parsed PE/COFF image.
type PortableExecutable struct {
	Bytes                []byte
	OptionalHeaderOffset int
	OptionalHeaderSize   int
	SizeOfHeaders        uint32
	NumberOfRvaAndSizes  uint32
	Sections             []Section
}

// Parse validates the DOS/PE headers and decodes the section table.
func Parse(data []byte) (*PortableExecutable, error) {
	if len(data) < dosHeaderSize {
		return nil, measureerr.NewPeDecodeError("image too small for DOS header: %d bytes", len(data))
	}
	if data[0] != 'M' || data[1] != 'Z' {
		return nil, measureerr.NewPeDecodeError("missing MZ signature")
	}

	lfanew := int(binary.LittleEndian.Uint32(data[0x3c:0x40]))
	if lfanew < 0 || lfanew+peSignatureSize+fileHeaderSize > len(data) {
		return nil, measureerr.NewPeDecodeError("e_lfanew %d out of range", lfanew)
	}
	if string(data[lfanew:lfanew+4]) != "PE\x00\x00" {
		return nil, measureerr.NewPeDecodeError("missing PE\\0\\0 signature")
	}

	fileHeaderOffset := lfanew + peSignatureSize
	numberOfSections := int(binary.LittleEndian.Uint16(data[fileHeaderOffset+2 : fileHeaderOffset+4]))
	sizeOfOptionalHeader := int(binary.LittleEndian.Uint16(data[fileHeaderOffset+16 : fileHeaderOffset+18]))

	optionalHeaderOffset := fileHeaderOffset + fileHeaderSize
	if optionalHeaderOffset+2 > len(data) {
		return nil, measureerr.NewPeDecodeError("optional header offset %d out of range", optionalHeaderOffset)
	}
	magic := binary.LittleEndian.Uint16(data[optionalHeaderOffset : optionalHeaderOffset+2])

	var fixedOptionalHeaderSize int
	switch magic {
	case magicPE32:
		fixedOptionalHeaderSize = optionalHeaderSizePE32
	case magicPE32p:
		fixedOptionalHeaderSize = optionalHeaderSizePE32p
	default:
		return nil, measureerr.NewPeDecodeError("unknown optional header magic 0x%x", magic)
	}
	if sizeOfOptionalHeader < fixedOptionalHeaderSize {
		return nil, measureerr.NewPeDecodeError("size of optional header %d smaller than fixed part %d", sizeOfOptionalHeader, fixedOptionalHeaderSize)
	}

	sizeOfHeadersOffset := optionalHeaderOffset + 60
	if sizeOfHeadersOffset+4 > len(data) {
		return nil, measureerr.NewPeDecodeError("optional header truncated before SizeOfHeaders")
	}
	sizeOfHeaders := binary.LittleEndian.Uint32(data[sizeOfHeadersOffset : sizeOfHeadersOffset+4])

	rvaCountOffset := optionalHeaderOffset + fixedOptionalHeaderSize - 4
	if rvaCountOffset+4 > len(data) {
		return nil, measureerr.NewPeDecodeError("optional header truncated before NumberOfRvaAndSizes")
	}
	numberOfRvaAndSizes := binary.LittleEndian.Uint32(data[rvaCountOffset : rvaCountOffset+4])

	sectionTableOffset := optionalHeaderOffset + sizeOfOptionalHeader
	sections := make([]Section, 0, numberOfSections)
	for i := 0; i < numberOfSections; i++ {
		off := sectionTableOffset + i*sectionHeaderLen
		if off+sectionHeaderLen > len(data) {
			return nil, measureerr.NewPeDecodeError("section header %d out of range", i)
		}
		hdr := data[off : off+sectionHeaderLen]

		name := string(hdr[0:8])
		virtualSize := binary.LittleEndian.Uint32(hdr[8:12])
		pointerToRawData := binary.LittleEndian.Uint32(hdr[20:24])
		sizeOfRawData := binary.LittleEndian.Uint32(hdr[16:20])

		bodyLen := sizeOfRawData
		if virtualSize < bodyLen {
			bodyLen = virtualSize
		}

		rawEnd := int(pointerToRawData) + int(sizeOfRawData)
		if rawEnd > len(data) {
			return nil, measureerr.NewPeDecodeError("section %d raw data exceeds image size", i)
		}

		sections = append(sections, Section{
			Name:             name,
			Body:             data[pointerToRawData : int(pointerToRawData)+int(bodyLen)],
			RawBody:          data[pointerToRawData:rawEnd],
			PointerToRawData: pointerToRawData,
		})
	}

	return &PortableExecutable{
		Bytes:                data,
		OptionalHeaderOffset: optionalHeaderOffset,
		OptionalHeaderSize:   fixedOptionalHeaderSize,
		SizeOfHeaders:        sizeOfHeaders,
		NumberOfRvaAndSizes:  numberOfRvaAndSizes,
		Sections:             sections,
	}, nil
}

// certDirEntryOffset returns the byte offset of the certificate-directory
// data-directory entry (index 4), if NumberOfRvaAndSizes covers it.
func (pe *PortableExecutable) certDirEntryOffset() (int, bool) {
	if pe.NumberOfRvaAndSizes <= certDirIndex {
		return 0, false
	}
	dataDirOffset := pe.OptionalHeaderOffset + pe.OptionalHeaderSize
	return dataDirOffset + certDirIndex*8, true
}

// Section returns the section with the given 8-byte raw name, or nil.
func (pe *PortableExecutable) Section(name string) *Section {
	for i := range pe.Sections {
		if pe.Sections[i].Name == name {
			return &pe.Sections[i]
		}
	}
	return nil
}

// MeasurementPreimage builds the OVMF PE/COFF measurement preimage: the
// header bytes before the Checksum field, the header bytes after it up to
// (but excluding) the certificate directory entry, the section RawBodies
// sorted by ascending PointerToRawData, and any trailing bytes beyond the
// hashed region (spec.md §4.5).
func (pe *PortableExecutable) MeasurementPreimage() ([]byte, error) {
	checksumOffset := pe.OptionalHeaderOffset + 0x40
	if checksumOffset+4 > len(pe.Bytes) {
		return nil, measureerr.NewPeDecodeError("checksum field at %d exceeds file size", checksumOffset)
	}

	certDirOffset, hasCertDir := pe.certDirEntryOffset()

	var out []byte
	out = append(out, pe.Bytes[0:checksumOffset]...)

	if hasCertDir {
		if certDirOffset+8 > len(pe.Bytes) {
			return nil, measureerr.NewPeDecodeError("certificate directory entry at %d exceeds file size", certDirOffset)
		}
		out = append(out, pe.Bytes[checksumOffset+4:certDirOffset]...)
		out = append(out, pe.Bytes[certDirOffset+8:pe.SizeOfHeaders]...)
	} else {
		if int(pe.SizeOfHeaders) > len(pe.Bytes) {
			return nil, measureerr.NewPeDecodeError("SizeOfHeaders %d exceeds file size", pe.SizeOfHeaders)
		}
		out = append(out, pe.Bytes[checksumOffset+4:pe.SizeOfHeaders]...)
	}

	ordered := make([]Section, len(pe.Sections))
	copy(ordered, pe.Sections)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PointerToRawData < ordered[j].PointerToRawData })

	sumOfBytesHashed := uint64(pe.SizeOfHeaders)
	for _, s := range ordered {
		if len(s.RawBody) == 0 {
			continue
		}
		out = append(out, s.RawBody...)
		sumOfBytesHashed += uint64(len(s.RawBody))
	}

	certSize := uint64(0)
	if hasCertDir {
		certSize = uint64(binary.LittleEndian.Uint32(pe.Bytes[certDirOffset+4 : certDirOffset+8]))
	}

	imageSize := uint64(len(pe.Bytes))
	if imageSize < sumOfBytesHashed+certSize {
		return nil, measureerr.NewPeDecodeError(
			"image size %d smaller than sumOfBytesHashed %d + certSize %d", imageSize, sumOfBytesHashed, certSize)
	}
	if imageSize > sumOfBytesHashed+certSize {
		out = append(out, pe.Bytes[sumOfBytesHashed:imageSize-certSize]...)
	}

	return out, nil
}

// HasUKISections reports whether the image carries the ".linux\0\0" section
// that marks it as a Unified Kernel Image (spec.md §4.7 step 9).
func (pe *PortableExecutable) HasUKISections() bool {
	return pe.Section(".linux\x00\x00") != nil
}
