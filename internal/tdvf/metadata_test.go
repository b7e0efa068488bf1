package tdvf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quex-tech/td-measure/internal/wire"
)

// buildFixture assembles a minimal firmware image containing one metadata
// section plus the trailing GUID table and footer, per spec.md §4.1.
func buildFixture(t *testing.T, sections []MetadataSection, raw []byte) []byte {
	t.Helper()

	fw := append([]byte{}, raw...)

	// The metadata GUID immediately precedes the header the offset points at.
	metaGUID, err := wire.EncodeGUID(metadataGUID)
	require.NoError(t, err)
	fw = append(fw, metaGUID...)
	metaOffset := len(fw)

	header := make([]byte, 16)
	copy(header[0:4], metadataSignature)
	binary.LittleEndian.PutUint32(header[4:8], 0)
	binary.LittleEndian.PutUint32(header[8:12], metadataVersion)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(sections)))
	fw = append(fw, header...)

	for _, s := range sections {
		rec := make([]byte, 32)
		binary.LittleEndian.PutUint32(rec[0:4], s.RawOffset)
		binary.LittleEndian.PutUint32(rec[4:8], s.RawSize)
		binary.LittleEndian.PutUint64(rec[8:16], s.MemBase)
		binary.LittleEndian.PutUint64(rec[16:24], s.MemSize)
		binary.LittleEndian.PutUint32(rec[24:28], uint32(s.Type))
		attr := uint32(0)
		if s.ExtendMR {
			attr |= attributeExtendMR
		}
		binary.LittleEndian.PutUint32(rec[28:32], attr)
		fw = append(fw, rec...)
	}

	entryGUID, err := wire.EncodeGUID(metadataOffsetGUID)
	require.NoError(t, err)

	// entry payload(4) + entryLen(2) + entryGUID(16); entryLen only covers
	// the payload, per Parse's data = tables[walk-18-entryLen : walk-18].
	entryPayload := make([]byte, 4)
	tables := append(append([]byte{}, entryPayload...), make([]byte, 2)...)
	tables = append(tables, entryGUID...)
	binary.LittleEndian.PutUint16(tables[4:6], uint16(len(entryPayload)))

	// Layout from here to EOF: tables(T), tableLen(2), footerGUID(16),
	// then bytesAfterTableFooter more bytes of padding — matching Parse's
	// offset := len(fw) - bytesAfterTableFooter; guid := fw[offset-16:offset].
	finalLen := len(fw) + len(tables) + 2 + wire.GUIDSize + bytesAfterTableFooter
	metadataEOFOffset := finalLen - metaOffset
	binary.LittleEndian.PutUint32(tables[0:4], uint32(metadataEOFOffset))

	footer, err := wire.EncodeGUID(footerGUID)
	require.NoError(t, err)

	tableLenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(tableLenBuf, uint16(len(tables)))

	fw = append(fw, tables...)
	fw = append(fw, tableLenBuf...)
	fw = append(fw, footer...)
	fw = append(fw, make([]byte, bytesAfterTableFooter)...)

	require.Len(t, fw, finalLen)
	return fw
}

func TestParseRoundTripsSingleSection(t *testing.T) {
	raw := make([]byte, 0x1000)
	fw := buildFixture(t, []MetadataSection{
		{RawOffset: 0, RawSize: 0x1000, MemBase: 0x1000, MemSize: 0x1000, Type: SectionBFV, ExtendMR: false},
	}, raw)

	parsed, err := Parse(fw)
	require.NoError(t, err)
	require.Len(t, parsed.Sections, 1)
	require.Equal(t, SectionBFV, parsed.Sections[0].Type)
	require.EqualValues(t, 0x1000, parsed.Sections[0].MemBase)
}

func TestParseRejectsBadFooter(t *testing.T) {
	fw := buildFixture(t, []MetadataSection{
		{RawOffset: 0, RawSize: 0x1000, MemBase: 0, MemSize: 0x1000, Type: SectionBFV},
	}, make([]byte, 0x1000))
	fw[len(fw)-bytesAfterTableFooter-1] ^= 0xFF // last byte of the footer GUID

	_, err := Parse(fw)
	require.Error(t, err)
}

func TestTDHOBSectionMissing(t *testing.T) {
	fw := Firmware{Sections: []MetadataSection{{Type: SectionBFV}}}
	_, err := fw.TDHOBSection()
	require.Error(t, err)
}

func TestCFVSectionsPreservesOrder(t *testing.T) {
	fw := Firmware{Sections: []MetadataSection{
		{Type: SectionBFV},
		{Type: SectionCFV, RawOffset: 1},
		{Type: SectionTempMem},
		{Type: SectionCFV, RawOffset: 2},
	}}
	cfv := fw.CFVSections()
	require.Len(t, cfv, 2)
	require.EqualValues(t, 1, cfv[0].RawOffset)
	require.EqualValues(t, 2, cfv[1].RawOffset)
}

// TestComputeMRTDSinglePage is spec.md §8 scenario S5.
func TestComputeMRTDSinglePage(t *testing.T) {
	fw := Firmware{
		Bytes: make([]byte, 0x2000),
		Sections: []MetadataSection{
			{MemBase: 0x1000, MemSize: 0x1000, ExtendMR: false},
		},
	}

	var want [128]byte
	copy(want[:12], []byte("MEM.PAGE.ADD"))
	binary.LittleEndian.PutUint64(want[16:24], 0x1000)
	expected := wire.SHA384(want[:])

	got := fw.ComputeMRTD()
	require.Equal(t, expected, got)
}

func TestComputeMRTDDeterministic(t *testing.T) {
	fw := Firmware{
		Bytes: make([]byte, 0x3000),
		Sections: []MetadataSection{
			{MemBase: 0, MemSize: 0x2000, ExtendMR: true, RawOffset: 0},
		},
	}
	a := fw.ComputeMRTD()
	b := fw.ComputeMRTD()
	require.Equal(t, a, b)
}

func TestComputeMRTDVariantsDiffer(t *testing.T) {
	raw := make([]byte, 0x3000)
	for i := range raw {
		raw[i] = byte(i)
	}
	fw := Firmware{
		Bytes: raw,
		Sections: []MetadataSection{
			{MemBase: 0, MemSize: 0x2000, ExtendMR: true, RawOffset: 0},
		},
	}
	twoPass := fw.ComputeMRTDVariant(MRTDTwoPass)
	singlePass := fw.ComputeMRTDVariant(MRTDSinglePass)
	require.NotEqual(t, twoPass, singlePass)
}
