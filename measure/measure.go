// Package measure is the public surface of the measurement reproduction
// engine (spec.md §6): parsing a firmware image, reproducing its MRTD, and
// reproducing the four RTMR registers and event log for a complete trust
// domain configuration.
package measure

import (
	"github.com/quex-tech/td-measure/internal/eventlog"
	"github.com/quex-tech/td-measure/internal/tdvf"
	"github.com/quex-tech/td-measure/internal/wire"
)

// Hardware is the hardware-configuration portion of a TrustDomain: total
// guest RAM and the raw ACPI table blob (spec.md §3).
type Hardware struct {
	TotalMemoryBytes uint64
	ACPITables       []byte
}

// Software is the payload portion of a TrustDomain. Kernel may be a bare
// Linux kernel or a Unified Kernel Image; that case is detected by section
// scan, not by a flag (spec.md §3).
type Software struct {
	Kernel  []byte
	Initrd  []byte
	Cmdline string
}

// TrustDomain is the complete reproduction input (spec.md §3).
type TrustDomain struct {
	Hardware Hardware
	Firmware tdvf.Firmware
	Software Software
}

// Event mirrors eventlog.Event in the public surface so callers never need
// to import the internal package directly.
type Event = eventlog.Event

// RTMRResult is the output of ReproduceRTMR: the four final register values
// plus the ordered event list that produced them.
type RTMRResult struct {
	Registers [4][48]byte
	Events    []Event
}

// ParseFirmware locates and decodes the TDX metadata table in a firmware
// image (spec.md §4.1).
func ParseFirmware(fw []byte) (tdvf.Firmware, error) {
	return tdvf.Parse(fw)
}

// ReproduceMRTD computes the build-time MRTD digest for parsed firmware
// (spec.md §4.2), using the default two-pass MEM.PAGE.ADD/MR.EXTEND
// ordering.
func ReproduceMRTD(fw tdvf.Firmware) [48]byte {
	return fw.ComputeMRTD()
}

// MRTDVariant re-exports tdvf.MRTDVariant so callers never need to import
// the internal package directly.
type MRTDVariant = tdvf.MRTDVariant

// MRTD variant selectors, mirroring tdvf.MRTDTwoPass/tdvf.MRTDSinglePass.
const (
	MRTDTwoPass    = tdvf.MRTDTwoPass
	MRTDSinglePass = tdvf.MRTDSinglePass
)

// ReproduceMRTDVariant computes the build-time MRTD digest with an explicit
// page/extend ordering, for operators reproducing TD modules that order
// MEM.PAGE.ADD/MR.EXTEND differently than the two-pass default.
func ReproduceMRTDVariant(fw tdvf.Firmware, variant MRTDVariant) [48]byte {
	return fw.ComputeMRTDVariant(variant)
}

// ReproduceRTMR runs the event-log generator and RTMR folder over a
// complete trust domain configuration (spec.md §4.7, §4.8).
func ReproduceRTMR(td TrustDomain) (RTMRResult, error) {
	events, err := eventlog.Generate(td.Firmware, eventlog.Hardware{
		TotalMemoryBytes: td.Hardware.TotalMemoryBytes,
		ACPITables:       td.Hardware.ACPITables,
	}, eventlog.Software{
		Kernel:  td.Software.Kernel,
		Initrd:  td.Software.Initrd,
		Cmdline: td.Software.Cmdline,
	})
	if err != nil {
		return RTMRResult{}, err
	}

	return RTMRResult{
		Registers: eventlog.Fold(events),
		Events:    events,
	}, nil
}

// BytesToHex renders a byte slice as lowercase hex (spec.md §6).
func BytesToHex(b []byte) string {
	return wire.BytesToHex(b)
}
