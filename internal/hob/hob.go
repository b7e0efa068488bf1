// Package hob builds the TD Hand-Off Block hash preimage firmware passes to
// the guest OS, describing the TD's memory resources (spec.md §4.3).
//
// Grounded on scrtlabs-reproduce-mr's internal/mr.go measureTdxQemuTdHob,
// generalized from its hardcoded seven-region QEMU memory map to a general
// algorithm over the parsed TD_HOB and TempMem metadata sections, since a
// reproduction engine must not assume one specific QEMU memory layout.
package hob

import (
	"encoding/binary"
	"sort"

	"github.com/quex-tech/td-measure/internal/measureerr"
	"github.com/quex-tech/td-measure/internal/tdvf"
)

const (
	resourceTypeSystemMemory uint32 = 0x00000007
	resourceTypeReserved     uint32 = 0x00000000
	resourceAttribute        uint32 = 0x00000007

	hobTypeHandoff  = 0x0001
	hobLenHandoff   = 56
	hobTypeResource = 0x0003
	hobLenResource  = 48
	hobTypeEnd      = 0xffff
	hobLenEnd       = 8
)

// reservedRange is a contiguous [start, end) region claimed by firmware.
type reservedRange struct {
	start, end uint64
}

// BuildPreimage constructs the byte slice hashed by the HOB event: a PHIT
// handoff header followed by one resource-descriptor HOB per reserved or
// free range covering [0, totalMemoryBytes), with the END HOB accounted for
// in the handoff header's end-of-list pointer but excluded from the
// returned bytes, per spec.md §4.3.
func BuildPreimage(fw tdvf.Firmware, totalMemoryBytes uint64) ([]byte, error) {
	tdHobSection, err := fw.TDHOBSection()
	if err != nil {
		return nil, err
	}

	var reserved []reservedRange
	for _, s := range fw.Sections {
		if s.Type == tdvf.SectionTDHOB || s.Type == tdvf.SectionTempMem {
			reserved = append(reserved, reservedRange{start: s.MemBase, end: s.MemBase + s.MemSize})
		}
	}
	sort.Slice(reserved, func(i, j int) bool { return reserved[i].start < reserved[j].start })

	buf := make([]byte, hobLenHandoff)
	binary.LittleEndian.PutUint16(buf[0:2], hobTypeHandoff)
	binary.LittleEndian.PutUint16(buf[2:4], hobLenHandoff)
	binary.LittleEndian.PutUint32(buf[8:12], 0x0009)

	appendResource := func(resourceType uint32, start, length uint64) {
		rec := make([]byte, hobLenResource)
		binary.LittleEndian.PutUint16(rec[0:2], hobTypeResource)
		binary.LittleEndian.PutUint16(rec[2:4], hobLenResource)
		binary.LittleEndian.PutUint32(rec[24:28], resourceType)
		binary.LittleEndian.PutUint32(rec[28:32], resourceAttribute)
		binary.LittleEndian.PutUint64(rec[32:40], start)
		binary.LittleEndian.PutUint64(rec[40:48], length)
		buf = append(buf, rec...)
	}

	cursor := uint64(0)
	for _, r := range reserved {
		if r.start > cursor {
			appendResource(resourceTypeSystemMemory, cursor, r.start-cursor)
		}
		if r.start < cursor {
			return nil, measureerr.NewHobError("overlapping reserved range at 0x%x", r.start)
		}
		appendResource(resourceTypeReserved, r.start, r.end-r.start)
		cursor = r.end
	}
	if cursor > totalMemoryBytes {
		return nil, measureerr.NewHobError("reserved ranges exceed total memory (0x%x > 0x%x)", cursor, totalMemoryBytes)
	}
	if cursor < totalMemoryBytes {
		appendResource(resourceTypeSystemMemory, cursor, totalMemoryBytes-cursor)
	}

	endOfList := tdHobSection.MemBase + uint64(len(buf)) + hobLenEnd
	binary.LittleEndian.PutUint64(buf[48:56], endOfList)

	return buf, nil
}
