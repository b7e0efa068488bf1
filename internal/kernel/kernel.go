// Package kernel patches a Linux kernel image's boot-protocol header the way
// QEMU's x86_load_linux does before handing it to firmware, so the
// PE/COFF measurement taken afterward reflects what an honest QEMU launch
// would have measured (spec.md §4.6).
//
// Grounded on scrtlabs-reproduce-mr's internal/mr.go
// MeasureTdxQemuKernelImageData, generalized from its hardcoded
// cmdlineAddr=0x9a000 and configurable acpiDataSize parameter to spec.md's
// cmdlineSize-derived low-kernel address and fixed 0x28000 ACPI reservation,
// since the reproduction engine must match the exact QEMU constant rather
// than accept it as caller-supplied slack.
package kernel

import (
	"encoding/binary"

	"github.com/quex-tech/td-measure/internal/measureerr"
)

const (
	hdrMagicOffset    = 0x202
	hdrProtocolOffset = 0x206
	minHeaderLength   = 0x238

	lowmemThreshold  = 0xB0000000
	acpiReservation  = 0x28000
	pageAlignment    = 0xFFF
	cmdlineAlignment = 0xF
)

// Patch mutates a copy of kernelData in place per spec.md §4.6 and returns
// it. cmdline and initrd may be empty.
func Patch(kernelData []byte, cmdline string, initrd []byte, totalMemoryBytes uint64) ([]byte, error) {
	if len(kernelData) < minHeaderLength {
		return nil, measureerr.NewKernelPatchError("kernel image too short for boot-protocol header: %d bytes", len(kernelData))
	}

	kd := make([]byte, len(kernelData))
	copy(kd, kernelData)

	var protocol uint16
	if string(kd[hdrMagicOffset:hdrMagicOffset+4]) == "HdrS" {
		protocol = binary.LittleEndian.Uint16(kd[hdrProtocolOffset : hdrProtocolOffset+2])
	}

	cmdlineSize := uint32((len(cmdline) + 16) &^ 15)

	ramSize := totalMemoryBytes
	lowmem := uint64(0x80000000)
	if ramSize < lowmemThreshold {
		lowmem = lowmemThreshold
	}
	below4gMemSize := ramSize
	if below4gMemSize > lowmem {
		below4gMemSize = lowmem
	}

	var realAddr, cmdlineAddr uint32
	if protocol < 0x202 || kd[0x211]&0x01 == 0 {
		realAddr = 0x90000
		cmdlineAddr = 0x9A000 - cmdlineSize
	} else {
		realAddr = 0x10000
		cmdlineAddr = 0x20000
	}

	var initrdMax uint32
	if protocol >= 0x20c && binary.LittleEndian.Uint16(kd[0x236:0x238])&0x02 != 0 {
		initrdMax = 0xFFFFFFFF
	} else if protocol >= 0x203 {
		initrdMax = binary.LittleEndian.Uint32(kd[0x22C:0x230])
	} else {
		initrdMax = 0x37FFFFFF
	}
	cap := uint32(below4gMemSize) - acpiReservation - 1
	if initrdMax > cap {
		initrdMax = cap
	}

	if protocol >= 0x202 {
		binary.LittleEndian.PutUint32(kd[0x228:0x22C], cmdlineAddr)
	} else {
		binary.LittleEndian.PutUint16(kd[0x20:0x22], 0xA33F)
		binary.LittleEndian.PutUint16(kd[0x22:0x24], uint16(cmdlineAddr-realAddr))
	}

	if protocol >= 0x200 {
		kd[0x210] = 0xB0
	}
	if protocol >= 0x201 {
		kd[0x211] |= 0x80
		binary.LittleEndian.PutUint16(kd[0x224:0x226], uint16(cmdlineAddr-realAddr-0x200))
	}

	if len(initrd) > 0 {
		if protocol < 0x200 {
			return nil, measureerr.NewKernelPatchError("kernel protocol 0x%x too old to carry an initrd", protocol)
		}
		if uint32(len(initrd)) >= initrdMax {
			return nil, measureerr.NewKernelPatchError("initrd size %d exceeds max %d", len(initrd), initrdMax)
		}
		initrdAddr := (initrdMax - uint32(len(initrd))) &^ pageAlignment
		binary.LittleEndian.PutUint32(kd[0x218:0x21C], initrdAddr)
		binary.LittleEndian.PutUint32(kd[0x21C:0x220], uint32(len(initrd)))
	}

	return kd, nil
}
