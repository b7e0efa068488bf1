package acpi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildTable(sig string, length uint32) []byte {
	buf := make([]byte, length)
	copy(buf[0:4], sig)
	binary.LittleEndian.PutUint32(buf[4:8], length)
	return buf
}

func TestParseStopsAtEOF(t *testing.T) {
	blob := append(buildTable("RSDT", 44), buildTable("FACP", 244)...)
	tables := Parse(blob)
	require.Len(t, tables, 2)
	require.Equal(t, "RSDT", tables[0].Signature)
	require.EqualValues(t, 0, tables[0].Offset)
	require.Equal(t, "FACP", tables[1].Signature)
	require.EqualValues(t, 44, tables[1].Offset)
}

func TestParseStopsOnNulRun(t *testing.T) {
	blob := append(buildTable("RSDT", 44), make([]byte, 8)...)
	tables := Parse(blob)
	require.Len(t, tables, 1)
}

// TestRSDPShape is spec.md §8 scenario S4.
func TestRSDPShape(t *testing.T) {
	blob := buildTable("RSDT", 44)
	tables := Parse(blob)
	rsdp := RSDPPreimage(tables)

	require.Len(t, rsdp, 20)
	require.Equal(t, "RSD PTR ", string(rsdp[0:8]))
	require.EqualValues(t, 0, rsdp[8])
	require.Equal(t, "BOCHS \x00", string(rsdp[9:16]))
	require.Equal(t, []byte{0, 0, 0, 0}, rsdp[16:20])
}

func TestRSDPNoRSDTDefaultsToZero(t *testing.T) {
	blob := buildTable("FACP", 244)
	rsdp := RSDPPreimage(Parse(blob))
	require.EqualValues(t, 0, binary.LittleEndian.Uint32(rsdp[16:20]))
}

func TestTableLoaderPreimagePaddedTo4096(t *testing.T) {
	blob := append(buildTable("FACP", 244), buildTable("RSDT", 44)...)
	ldr := TableLoaderPreimage(Parse(blob))
	require.Len(t, ldr, loaderSize)
	require.EqualValues(t, cmdAllocate, binary.LittleEndian.Uint32(ldr[0:4]))
	require.Equal(t, "etc/acpi/rsdp", string(ldr[4:17]))
}

func TestTableLoaderSkipsFACS(t *testing.T) {
	blob := append(buildTable("FACS", 64), buildTable("RSDT", 44)...)
	ldr := TableLoaderPreimage(Parse(blob))
	// Two ALLOCATE commands, then directly the RSDT pointer commands with
	// no ADD_CHECKSUM for FACS.
	require.EqualValues(t, cmdAddPointer, binary.LittleEndian.Uint32(ldr[2*commandSize:2*commandSize+4]))
}
