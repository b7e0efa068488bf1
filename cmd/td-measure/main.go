// Command td-measure reproduces the MRTD and RTMR measurements of a TDX
// launch from a firmware image, ACPI blob, and kernel/initrd/cmdline
// payload, matching dstack-mr's CLI shape (spec.md §6).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quex-tech/td-measure/measure"
)

type measurementOutput struct {
	MRTD   string   `json:"mrtd"`
	RTMR0  string   `json:"rtmr0"`
	RTMR1  string   `json:"rtmr1"`
	RTMR2  string   `json:"rtmr2"`
	RTMR3  string   `json:"rtmr3"`
	Events []string `json:"events,omitempty"`
}

type memoryValue uint64

func (m *memoryValue) String() string {
	mb := uint64(*m) / (1024 * 1024)
	const gib = 1024
	if mb >= gib && mb%gib == 0 {
		return fmt.Sprintf("%dG", mb/gib)
	}
	return fmt.Sprintf("%dM", mb)
}

// mrtdVariantValue is a flag.Value wrapping measure.MRTDVariant so the CLI
// can accept the human-readable "two-pass"/"single-pass" spellings.
type mrtdVariantValue measure.MRTDVariant

func (v *mrtdVariantValue) String() string {
	if measure.MRTDVariant(*v) == measure.MRTDSinglePass {
		return "single-pass"
	}
	return "two-pass"
}

func (v *mrtdVariantValue) Set(value string) error {
	switch value {
	case "two-pass":
		*v = mrtdVariantValue(measure.MRTDTwoPass)
	case "single-pass":
		*v = mrtdVariantValue(measure.MRTDSinglePass)
	default:
		return fmt.Errorf("invalid mrtd-variant %q, must be one of: two-pass, single-pass", value)
	}
	return nil
}

func (m *memoryValue) Set(value string) error {
	value = strings.TrimSpace(strings.ToUpper(value))
	if len(value) == 0 {
		return fmt.Errorf("empty memory size")
	}
	unit := value[len(value)-1:]
	num, err := strconv.ParseUint(value[:len(value)-1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid memory size number: %w", err)
	}
	switch unit {
	case "G":
		*m = memoryValue(num * 1024 * 1024 * 1024)
	case "M":
		*m = memoryValue(num * 1024 * 1024)
	default:
		return fmt.Errorf("invalid memory unit %q, must be one of: G, M", unit)
	}
	return nil
}

func main() {
	var (
		fwPath        string
		acpiPath      string
		kernelPath    string
		initrdPath    string
		memorySize    memoryValue      = 2 * 1024 * 1024 * 1024
		mrtdVariant   mrtdVariantValue = mrtdVariantValue(measure.MRTDTwoPass)
		kernelCmdline string
		jsonOutput    bool
		debug         bool
	)

	flag.StringVar(&fwPath, "fw", "", "Path to firmware file (required)")
	flag.StringVar(&acpiPath, "acpi", "", "Path to raw ACPI table blob (required for RTMR)")
	flag.StringVar(&kernelPath, "kernel", "", "Path to kernel or UKI file (required for RTMR)")
	flag.StringVar(&initrdPath, "initrd", "", "Path to initrd file")
	flag.Var(&memorySize, "memory", "Memory size (e.g., 512M, 1G, 2G)")
	flag.Var(&mrtdVariant, "mrtd-variant", "MEM.PAGE.ADD/MR.EXTEND ordering: two-pass (default) or single-pass")
	flag.StringVar(&kernelCmdline, "cmdline", "", "Kernel command line")
	flag.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if fwPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -fw is required")
		flag.Usage()
		os.Exit(1)
	}

	fwData, err := os.ReadFile(fwPath)
	if err != nil {
		logrus.WithError(err).Fatal("reading firmware file")
	}

	fw, err := measure.ParseFirmware(fwData)
	if err != nil {
		logrus.WithError(err).Fatal("parsing firmware")
	}

	mrtd := measure.ReproduceMRTDVariant(fw, measure.MRTDVariant(mrtdVariant))
	output := measurementOutput{MRTD: measure.BytesToHex(mrtd[:])}

	if kernelPath != "" {
		if acpiPath == "" {
			fmt.Fprintln(os.Stderr, "Error: -acpi is required with -kernel")
			flag.Usage()
			os.Exit(1)
		}

		kernelData, err := os.ReadFile(kernelPath)
		if err != nil {
			logrus.WithError(err).Fatal("reading kernel file")
		}

		var acpiData []byte
		if acpiPath != "" {
			acpiData, err = os.ReadFile(acpiPath)
			if err != nil {
				logrus.WithError(err).Fatal("reading ACPI blob")
			}
		}

		var initrdData []byte
		if initrdPath != "" {
			initrdData, err = os.ReadFile(initrdPath)
			if err != nil {
				logrus.WithError(err).Fatal("reading initrd file")
			}
		}

		result, err := measure.ReproduceRTMR(measure.TrustDomain{
			Hardware: measure.Hardware{TotalMemoryBytes: uint64(memorySize), ACPITables: acpiData},
			Firmware: fw,
			Software: measure.Software{Kernel: kernelData, Initrd: initrdData, Cmdline: kernelCmdline},
		})
		if err != nil {
			logrus.WithError(err).Fatal("reproducing RTMR")
		}

		output.RTMR0 = measure.BytesToHex(result.Registers[0][:])
		output.RTMR1 = measure.BytesToHex(result.Registers[1][:])
		output.RTMR2 = measure.BytesToHex(result.Registers[2][:])
		output.RTMR3 = measure.BytesToHex(result.Registers[3][:])

		if debug {
			for _, e := range result.Events {
				output.Events = append(output.Events, fmt.Sprintf("%s[%d]=%s", e.Name, e.Register, measure.BytesToHex(e.Digest[:])))
			}
		}
	}

	if jsonOutput {
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			logrus.WithError(err).Fatal("encoding JSON")
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("MRTD: %s\n", output.MRTD)
	if output.RTMR0 != "" {
		fmt.Printf("RTMR0: %s\n", output.RTMR0)
		fmt.Printf("RTMR1: %s\n", output.RTMR1)
		fmt.Printf("RTMR2: %s\n", output.RTMR2)
		fmt.Printf("RTMR3: %s\n", output.RTMR3)
	}
}
