// Package acpi parses a caller-supplied ACPI table blob and serializes the
// QEMU `etc/table-loader` command stream and `etc/acpi/rsdp` block that
// firmware replays to assemble those tables in guest memory (spec.md §4.4).
//
// Grounded on scrtlabs-reproduce-mr's internal/acpi.go findAcpiTable and
// qemuLoaderCmd*/qemuLoaderAppend encoders, but redesigned to PARSE a
// caller-supplied blob rather than synthesize one from an embedded
// per-CPU-count template: template synthesis is an out-of-scope external
// collaborator responsibility (spec.md §1), while table discovery and
// loader-command encoding are this engine's job.
package acpi

import "encoding/binary"

// Table is a discovered ACPI table descriptor: its 4-char signature and its
// absolute byte offset and length within the blob.
type Table struct {
	Signature string
	Offset    uint32
	Length    uint32
}

// Parse walks an ACPI blob from offset 0, recording each table's signature,
// offset, and length, stopping at EOF or a four-NUL-byte signature.
func Parse(blob []byte) []Table {
	var tables []Table
	offset := 0
	for offset+8 <= len(blob) {
		sig := blob[offset : offset+4]
		if sig[0] == 0 && sig[1] == 0 && sig[2] == 0 && sig[3] == 0 {
			break
		}
		length := binary.LittleEndian.Uint32(blob[offset+4 : offset+8])
		if length == 0 || offset+int(length) > len(blob) {
			break
		}
		tables = append(tables, Table{Signature: string(sig), Offset: uint32(offset), Length: length})
		offset += int(length)
	}
	return tables
}

// RSDPPreimage builds the 20-byte RSDP measurement block: the "RSD PTR "
// signature, a zeroed checksum slot, the "BOCHS \0" OEM ID, and the LE u32
// offset of the first RSDT table (0 if none is present).
func RSDPPreimage(tables []Table) []byte {
	rsdtOffset := uint32(0)
	for _, t := range tables {
		if t.Signature == "RSDT" {
			rsdtOffset = t.Offset
			break
		}
	}

	buf := make([]byte, 20)
	copy(buf[0:8], "RSD PTR ")
	buf[8] = 0
	copy(buf[9:16], "BOCHS \x00")
	binary.LittleEndian.PutUint32(buf[16:20], rsdtOffset)
	return buf
}

const (
	cmdAllocate    uint32 = 1
	cmdAddPointer  uint32 = 2
	cmdAddChecksum uint32 = 3

	commandSize = 128
	loaderSize  = 4096

	zoneHigh = 1
	zoneFSEG = 2
)

func appendFixedString(cmd []byte, s string) []byte {
	const fieldLen = 56
	cmd = append(cmd, []byte(s)...)
	if len(s) < fieldLen {
		cmd = append(cmd, make([]byte, fieldLen-len(s))...)
	}
	return cmd
}

func allocateCmd(file string, align uint32, zone byte) []byte {
	cmd := make([]byte, 0, commandSize)
	cmd = binary.LittleEndian.AppendUint32(cmd, cmdAllocate)
	cmd = appendFixedString(cmd, file)
	cmd = binary.LittleEndian.AppendUint32(cmd, align)
	cmd = append(cmd, zone)
	cmd = append(cmd, make([]byte, commandSize-len(cmd))...)
	return cmd
}

func addPointerCmd(destFile, srcFile string, destOffset uint32, size byte) []byte {
	cmd := make([]byte, 0, commandSize)
	cmd = binary.LittleEndian.AppendUint32(cmd, cmdAddPointer)
	cmd = appendFixedString(cmd, destFile)
	cmd = appendFixedString(cmd, srcFile)
	cmd = binary.LittleEndian.AppendUint32(cmd, destOffset)
	cmd = append(cmd, size)
	cmd = append(cmd, make([]byte, commandSize-len(cmd))...)
	return cmd
}

func addChecksumCmd(file string, checksumByte, start, length uint32) []byte {
	cmd := make([]byte, 0, commandSize)
	cmd = binary.LittleEndian.AppendUint32(cmd, cmdAddChecksum)
	cmd = appendFixedString(cmd, file)
	cmd = binary.LittleEndian.AppendUint32(cmd, checksumByte)
	cmd = binary.LittleEndian.AppendUint32(cmd, start)
	cmd = binary.LittleEndian.AppendUint32(cmd, length)
	cmd = append(cmd, make([]byte, commandSize-len(cmd))...)
	return cmd
}

// TableLoaderPreimage emits the fixed command sequence of spec.md §4.4 over
// the discovered tables, zero-padded to 4096 bytes.
func TableLoaderPreimage(tables []Table) []byte {
	const tablesFile = "etc/acpi/tables"
	const rsdpFile = "etc/acpi/rsdp"

	var out []byte
	out = append(out, allocateCmd(rsdpFile, 16, zoneFSEG)...)
	out = append(out, allocateCmd(tablesFile, 64, zoneHigh)...)

	for _, t := range tables {
		switch t.Signature {
		case "FACP":
			out = append(out, addPointerCmd(tablesFile, tablesFile, t.Offset+36, 4)...)
			out = append(out, addPointerCmd(tablesFile, tablesFile, t.Offset+40, 4)...)
			out = append(out, addPointerCmd(tablesFile, tablesFile, t.Offset+140, 8)...)
		case "RSDT":
			out = append(out, addPointerCmd(tablesFile, tablesFile, t.Offset+36, 4)...)
			out = append(out, addPointerCmd(tablesFile, tablesFile, t.Offset+40, 4)...)
			out = append(out, addPointerCmd(tablesFile, tablesFile, t.Offset+44, 4)...)
			out = append(out, addPointerCmd(tablesFile, tablesFile, t.Offset+48, 4)...)
		}
		if t.Signature != "FACS" {
			out = append(out, addChecksumCmd(tablesFile, t.Offset+9, t.Offset, t.Length)...)
		}
	}

	out = append(out, addPointerCmd(rsdpFile, tablesFile, 16, 4)...)
	out = append(out, addChecksumCmd(rsdpFile, 8, 0, 20)...)

	if len(out) < loaderSize {
		out = append(out, make([]byte, loaderSize-len(out))...)
	}
	return out
}
