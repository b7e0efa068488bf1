package measure

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quex-tech/td-measure/internal/tdvf"
	"github.com/quex-tech/td-measure/internal/wire"
)

// TestBytesToHexLowercase is spec.md §6's bytes_to_hex operation.
func TestBytesToHexLowercase(t *testing.T) {
	require.Equal(t, "deadbeef", BytesToHex([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
}

// TestGUIDRoundTrip is spec.md §8 property #2, exercised through the public
// wire codec every component relies on.
func TestGUIDRoundTrip(t *testing.T) {
	uuids := []string{
		"96b582de-1fb2-45f7-baea-a366c55a082d",
		"e47a6535-984a-4798-865e-4685a7bf8ec2",
		"e9eaf9f3-168e-44d5-a8eb-7f4d8738f6ae",
		"8be4df61-93ca-11d2-aa0d-00e098032b8c",
		"d719b2cb-3d3a-4596-a3bc-dad00e67656f",
	}
	for _, u := range uuids {
		encoded, err := wire.EncodeGUID(u)
		require.NoError(t, err)
		require.Len(t, encoded, wire.GUIDSize)

		decoded, err := wire.DecodeGUID(encoded)
		require.NoError(t, err)
		require.Equal(t, u, decoded)
	}
}

// TestReproduceMRTDDeterministic is spec.md §8 property #1.
func TestReproduceMRTDDeterministic(t *testing.T) {
	fw := tdvf.Firmware{
		Bytes: make([]byte, 0x3000),
		Sections: []tdvf.MetadataSection{
			{MemBase: 0x1000, MemSize: 0x2000, ExtendMR: false},
		},
	}
	a := ReproduceMRTD(fw)
	b := ReproduceMRTD(fw)
	require.Equal(t, a, b)
}

func TestParseFirmwareRejectsEmptyInput(t *testing.T) {
	_, err := ParseFirmware(nil)
	require.Error(t, err)
}

// TestReproduceMRTDVariantDiffersFromDefault confirms the CLI-exposed
// single-pass knob actually selects the alternate algorithm rather than
// silently aliasing the two-pass default.
func TestReproduceMRTDVariantDiffersFromDefault(t *testing.T) {
	fw := tdvf.Firmware{
		Bytes: make([]byte, 0x3000),
		Sections: []tdvf.MetadataSection{
			{MemBase: 0x1000, MemSize: 0x2000, ExtendMR: true, RawOffset: 0x1000},
		},
	}
	twoPass := ReproduceMRTDVariant(fw, MRTDTwoPass)
	singlePass := ReproduceMRTDVariant(fw, MRTDSinglePass)
	require.Equal(t, twoPass, ReproduceMRTD(fw))
	require.NotEqual(t, twoPass, singlePass)
}
