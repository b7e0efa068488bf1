package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func minimalHeader(protocol uint16) []byte {
	kd := make([]byte, 0x1000)
	copy(kd[hdrMagicOffset:hdrMagicOffset+4], "HdrS")
	binary.LittleEndian.PutUint16(kd[hdrProtocolOffset:hdrProtocolOffset+2], protocol)
	return kd
}

func TestPatchNoHdrSMeansProtocolZero(t *testing.T) {
	kd := make([]byte, 0x1000)
	out, err := Patch(kd, "", nil, 0x40000000)
	require.NoError(t, err)
	require.NotEqual(t, byte(0xB0), out[0x210])
}

func TestPatchSetsLoaderTypeForModernProtocol(t *testing.T) {
	kd := minimalHeader(0x202)
	kd[0x211] = 0x01
	out, err := Patch(kd, "console=ttyS0", nil, 0x40000000)
	require.NoError(t, err)
	require.Equal(t, byte(0xB0), out[0x210])
	require.NotEqual(t, byte(0), out[0x211]&0x80)
}

func TestPatchDoesNotMutateInput(t *testing.T) {
	kd := minimalHeader(0x202)
	kd[0x211] = 0x01
	orig := append([]byte{}, kd...)
	_, err := Patch(kd, "", nil, 0x40000000)
	require.NoError(t, err)
	require.Equal(t, orig, kd)
}

func TestPatchRejectsInitrdOnOldProtocol(t *testing.T) {
	kd := minimalHeader(0x100)
	_, err := Patch(kd, "", []byte("initrd-bytes"), 0x40000000)
	require.Error(t, err)
}

func TestPatchInitrdSetsAddrAndSize(t *testing.T) {
	kd := minimalHeader(0x203)
	kd[0x211] = 0x01
	binary.LittleEndian.PutUint32(kd[0x22C:0x230], 0x37FFFFFF) // initrd_addr_max
	initrd := make([]byte, 1024)
	out, err := Patch(kd, "", initrd, 0x40000000)
	require.NoError(t, err)
	size := binary.LittleEndian.Uint32(out[0x21C:0x220])
	require.EqualValues(t, 1024, size)
	addr := binary.LittleEndian.Uint32(out[0x218:0x21C])
	require.NotZero(t, addr)
}

// TestPatchIndependentOfLargeRAMSize is spec.md §8 property #7.
func TestPatchIndependentOfLargeRAMSize(t *testing.T) {
	kd1 := minimalHeader(0x202)
	kd1[0x211] = 0x01
	kd2 := append([]byte{}, kd1...)

	out1, err := Patch(kd1, "root=/dev/vda1", nil, 0xB0000000)
	require.NoError(t, err)
	out2, err := Patch(kd2, "root=/dev/vda1", nil, 0x200000000)
	require.NoError(t, err)
	require.Equal(t, out1, out2)
}
