// Package eventlog emits the canonical ordered RTMR event log (spec.md
// §4.7) by orchestrating the HOB builder, ACPI serializer, PE/COFF parser,
// kernel header patcher, and EFI variable/boot-option preimage encoders,
// then folds the resulting digests into the four RTMR registers (spec.md
// §4.8).
//
// Grounded on scrtlabs-reproduce-mr's internal/mr.go MeasureTdxQemu
// orchestration and measureLog folder, generalized to iterate real CFV
// sections and detect UKIs via the hand-rolled pecoff parser instead of the
// teacher's single hardcoded CFV-blob literal and absent UKI support.
package eventlog

import (
	"github.com/sirupsen/logrus"

	"github.com/quex-tech/td-measure/internal/acpi"
	"github.com/quex-tech/td-measure/internal/hob"
	"github.com/quex-tech/td-measure/internal/kernel"
	"github.com/quex-tech/td-measure/internal/measureerr"
	"github.com/quex-tech/td-measure/internal/pecoff"
	"github.com/quex-tech/td-measure/internal/tdvf"
	"github.com/quex-tech/td-measure/internal/wire"
)

// Event log entry type tags, per spec.md §3.
const (
	EvEfiHandoffTables2          = "EV_EFI_HANDOFF_TABLES2"
	EvEfiPlatformFirmwareBlob2   = "EV_EFI_PLATFORM_FIRMWARE_BLOB2"
	EvEfiVariableDriverConfig    = "EV_EFI_VARIABLE_DRIVER_CONFIG"
	EvSeparator                  = "EV_SEPARATOR"
	EvPlatformConfigFlags        = "EV_PLATFORM_CONFIG_FLAGS"
	EvEfiBootServicesApplication = "EV_EFI_BOOT_SERVICES_APPLICATION"
	EvEfiVariableBoot            = "EV_EFI_VARIABLE_BOOT"
	EvEfiAction                  = "EV_EFI_ACTION"
	EvEventTag                   = "EV_EVENT_TAG"
)

// Event is one log entry: its display name, TCG type tag, target register,
// informative metadata, and the SHA-384 digest of its canonical preimage.
type Event struct {
	Name     string
	Type     string
	Register int
	Metadata map[string]string
	Digest   [48]byte
}

// Hardware is the RAM and ACPI portion of a reproduction input.
type Hardware struct {
	TotalMemoryBytes uint64
	ACPITables       []byte
}

// Software is the payload portion of a reproduction input: a kernel image
// (possibly a UKI), and optionally a separate initrd and cmdline.
type Software struct {
	Kernel  []byte
	Initrd  []byte
	Cmdline string
}

var secureBootGUID = "8be4df61-93ca-11d2-aa0d-00e098032b8c"
var imageSecurityDatabaseGUID = "d719b2cb-3d3a-4596-a3bc-dad00e67656f"

// Generate produces the fixed-order event list of spec.md §4.7 for the
// given firmware, hardware configuration, and software payload.
func Generate(fw tdvf.Firmware, hw Hardware, sw Software) ([]Event, error) {
	var events []Event

	hobPreimage, err := hob.BuildPreimage(fw, hw.TotalMemoryBytes)
	if err != nil {
		return nil, err
	}
	events = append(events, mkEvent("HOB", EvEfiHandoffTables2, 0, nil, hobPreimage))

	for _, s := range fw.CFVSections() {
		if int(s.RawOffset)+int(s.RawSize) > len(fw.Bytes) {
			return nil, measureerr.NewFirmwareDecodeError("CFV section out of range")
		}
		blob := fw.Bytes[s.RawOffset : s.RawOffset+s.RawSize]
		events = append(events, mkEvent("CFV blob", EvEfiPlatformFirmwareBlob2, 0, nil, blob))
	}

	for _, v := range []struct{ guid, name string }{
		{secureBootGUID, "SecureBoot"},
		{secureBootGUID, "PK"},
		{secureBootGUID, "KEK"},
		{imageSecurityDatabaseGUID, "db"},
		{imageSecurityDatabaseGUID, "dbx"},
	} {
		preimage, err := wire.EFIVariablePreimage(v.guid, v.name)
		if err != nil {
			return nil, err
		}
		events = append(events, mkEvent(v.name, EvEfiVariableDriverConfig, 0, map[string]string{"name": v.name}, preimage))
	}

	events = append(events, mkEvent("Separator", EvSeparator, 0, nil, wire.SeparatorPreimage()))

	acpiTables := acpi.Parse(hw.ACPITables)
	events = append(events, mkEvent("QEMU ACPI table loader", EvPlatformConfigFlags, 0,
		map[string]string{"fileName": "etc/table-loader"}, acpi.TableLoaderPreimage(acpiTables)))
	events = append(events, mkEvent("RSDP", EvPlatformConfigFlags, 0,
		map[string]string{"fileName": "etc/acpi/rsdp"}, acpi.RSDPPreimage(acpiTables)))
	events = append(events, mkEvent("ACPI tables", EvPlatformConfigFlags, 0,
		map[string]string{"fileName": "etc/acpi/tables"}, hw.ACPITables))

	patchedKernel, err := kernel.Patch(sw.Kernel, sw.Cmdline, sw.Initrd, hw.TotalMemoryBytes)
	if err != nil {
		return nil, err
	}

	kernelPE, err := pecoff.Parse(patchedKernel)
	if err != nil {
		return nil, err
	}
	isUKI := kernelPE.HasUKISections()

	kernelName := "Linux kernel"
	if isUKI {
		kernelName = "Linux unified kernel image"
	}
	kernelPreimage, err := kernelPE.MeasurementPreimage()
	if err != nil {
		return nil, err
	}
	events = append(events, mkEvent(kernelName, EvEfiBootServicesApplication, 1, nil, kernelPreimage))

	events = append(events, mkEvent("BootOrder", EvEfiVariableBoot, 0, nil, wire.BootOrderPreimage()))
	events = append(events, mkEvent("Boot0000", EvEfiVariableBoot, 0, nil, wire.UiAppBootOptionPreimage()))
	events = append(events, mkEvent("EFI action", EvEfiAction, 1, nil, []byte("Calling EFI Application from Boot Option")))
	events = append(events, mkEvent("Separator", EvSeparator, 0, nil, wire.SeparatorPreimage()))

	if isUKI {
		linuxSection := kernelPE.Section(".linux\x00\x00")
		innerPE, err := pecoff.Parse(linuxSection.Body)
		if err != nil {
			return nil, measureerr.WrapPeDecodeError(err, "parsing UKI .linux section")
		}
		innerPreimage, err := innerPE.MeasurementPreimage()
		if err != nil {
			return nil, err
		}
		events = append(events, mkEvent("Linux kernel", EvEfiBootServicesApplication, 1, nil, innerPreimage))
	}

	initrd := sw.Initrd
	cmdline := sw.Cmdline
	if isUKI {
		if s := kernelPE.Section(".initrd\x00"); s != nil {
			initrd = s.Body
		} else {
			initrd = nil
		}
		if s := kernelPE.Section(".cmdline"); s != nil {
			cmdline = string(s.Body)
		} else {
			cmdline = ""
		}
	} else if len(initrd) > 0 {
		cmdline = cmdline + " initrd=initrd"
	}

	if cmdline != "" {
		events = append(events, mkEvent("cmdline", EvEventTag, 2, nil, wire.UTF16LE(cmdline+"\x00")))
	}
	if len(initrd) > 0 {
		events = append(events, mkEvent("initrd", EvEventTag, 2, nil, initrd))
	}

	events = append(events, mkEvent("EFI action", EvEfiAction, 1, nil, []byte("Exit Boot Services Invocation")))
	events = append(events, mkEvent("EFI action", EvEfiAction, 1, nil, []byte("Exit Boot Services Returned with Success")))

	logrus.WithField("events", len(events)).Debug("eventlog: generated event list")
	return events, nil
}

func mkEvent(name, evType string, register int, metadata map[string]string, preimage []byte) Event {
	return Event{
		Name:     name,
		Type:     evType,
		Register: register,
		Metadata: metadata,
		Digest:   wire.SHA384(preimage),
	}
}

// Fold chain-hashes the event list into the four RTMR registers (spec.md
// §4.8): register[e.Register] = SHA-384(register[e.Register] || e.Digest).
func Fold(events []Event) [4][48]byte {
	var registers [4][48]byte
	for _, e := range events {
		registers[e.Register] = wire.SHA384(wire.Concat(registers[e.Register][:], e.Digest[:]))
	}
	return registers
}
