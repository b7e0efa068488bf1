package hob

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quex-tech/td-measure/internal/tdvf"
)

func TestBuildPreimageRequiresTDHOB(t *testing.T) {
	fw := tdvf.Firmware{Sections: []tdvf.MetadataSection{{Type: tdvf.SectionBFV}}}
	_, err := BuildPreimage(fw, 0x1000)
	require.Error(t, err)
}

func TestBuildPreimageCoversMemoryWithoutOverlap(t *testing.T) {
	fw := tdvf.Firmware{
		Sections: []tdvf.MetadataSection{
			{Type: tdvf.SectionTDHOB, MemBase: 0x800000, MemSize: 0x2000},
			{Type: tdvf.SectionTempMem, MemBase: 0x809000, MemSize: 0x1000},
		},
	}

	buf, err := BuildPreimage(fw, 0x1000000)
	require.NoError(t, err)
	require.True(t, len(buf) >= hobLenHandoff)
	require.Equal(t, uint16(hobTypeHandoff), binary.LittleEndian.Uint16(buf[0:2]))

	total := uint64(0)
	reservedTotal := uint64(0)
	for off := hobLenHandoff; off+hobLenResource <= len(buf); off += hobLenResource {
		rec := buf[off : off+hobLenResource]
		require.Equal(t, uint16(hobTypeResource), binary.LittleEndian.Uint16(rec[0:2]))
		length := binary.LittleEndian.Uint64(rec[40:48])
		total += length
		if binary.LittleEndian.Uint32(rec[24:28]) == resourceTypeReserved {
			reservedTotal += length
		}
	}
	require.EqualValues(t, 0x1000000, total)
	require.EqualValues(t, 0x3000, reservedTotal)
}

func TestBuildPreimageExcludesEndHOB(t *testing.T) {
	fw := tdvf.Firmware{
		Sections: []tdvf.MetadataSection{
			{Type: tdvf.SectionTDHOB, MemBase: 0x800000, MemSize: 0x2000},
		},
	}
	buf, err := BuildPreimage(fw, 0x800000+0x2000)
	require.NoError(t, err)
	// No trailing 0xffff END HOB marker bytes are present.
	require.NotEqual(t, uint16(hobTypeEnd), binary.LittleEndian.Uint16(buf[len(buf)-hobLenEnd:len(buf)-hobLenEnd+2]))
}
