package huawei_modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractBits(t *testing.T) {

	assert := assert.New(t)

	assert.Equal([]uint8{1, 0, 1}, ExtractBits(0b101, 3))
	assert.Equal([]uint8{0, 0, 1}, ExtractBits(1, 3))
	assert.Equal([]uint8{1, 0, 0, 0}, ExtractBits(0b1000, 4))
	assert.Equal([]uint8{1}, ExtractBits(0xFFFF, 1), "only the low bits are kept")
	assert.Equal("1.0.1", FormatBits(ExtractBits(5, 3)))
}

func TestExtractBitsRoundTrip(t *testing.T) {

	for _, n := range []int{1, 2, 3, 10, 14, 16} {
		for v := uint32(0); v < uint32(1)<<n; v += 1 + uint32(n)*7 {
			bits := ExtractBits(v, n)
			require.Len(t, bits, n)
			var back uint32
			for i := 0; i < n; i++ {
				back |= uint32(bits[n-1-i]) << i
			}
			require.Equal(t, v, back, "n=%d", n)
		}
	}
}

func TestDecode(t *testing.T) {

	assert := assert.New(t)

	u32, err := DecodeU32([]byte{0x00, 0x00, 0x27, 0x0F})
	assert.NoError(err)
	assert.Equal(uint32(9999), u32)

	i32, err := DecodeI32([]byte{0xFF, 0xFF, 0xFC, 0x18})
	assert.NoError(err)
	assert.Equal(-1.0, float64(i32)/1000.0)

	u16, err := DecodeU16([]byte{0x01, 0x02})
	assert.NoError(err)
	assert.Equal(uint16(0x0102), u16)

	_, err = DecodeU32([]byte{0x01})
	assert.Error(err)
}

func TestReadInverter(t *testing.T) {

	assert := assert.New(t)

	reader := CreateTestRegisterReader()
	reader.SetU32(32080, 0xFFFFFC18)
	require.NoError(t, Open(reader))

	inv := NewInverterReader(reader, zap.NewNop())
	r, err := inv.ReadInverter()
	require.NoError(t, err)

	assert.Equal(uint16(1), r.DeviceStatus)
	assert.Equal(uint16(0b101), r.State1)
	assert.Equal(uint16(0b011), r.State2)
	assert.Equal(uint32(0b10), r.State3)
	assert.Equal(uint16(0x8001), r.Alarm1)
	assert.Equal(uint16(0x2000), r.Alarm3)
	assert.Equal(-1.0, r.InstantProd, "signed production is kept as is")
	assert.Equal(12.34, r.DailyProd)
	assert.Equal([]uint16{32089, 32000, 32002, 32003, 32008, 32009, 32010, 32080, 32114}, reader.Reads)

	bits := r.Bits()
	assert.Equal([]uint8{0, 0, 0, 0, 0, 0, 0, 1, 0, 1}, bits["state1"])
	assert.Equal([]uint8{1, 0}, bits["state3"])
	assert.Len(bits["alarm3"], 14)
	assert.Equal(uint8(1), bits["alarm3"][0])
	_, hasProd := bits["instant_prod"]
	assert.False(hasProd)
}

func TestReadInverterAbortsOnFailure(t *testing.T) {

	reader := CreateTestRegisterReader()
	reader.Fail(32008, errors.New("timeout"))
	require.NoError(t, Open(reader))

	inv := NewInverterReader(reader, nil)
	r, err := inv.ReadInverter()

	assert.Nil(t, r)
	var readErr *ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Equal(t, uint16(32008), readErr.Address)
	assert.Equal(t, 5, reader.ReadCount(), "no reads after the failing one")
}

func TestReadBeforeSettle(t *testing.T) {

	reader := CreateTestRegisterReader()
	require.NoError(t, reader.Connect())

	_, err := reader.ReadRegisters(32000, 1)
	assert.Error(t, err)
}

func TestConnectError(t *testing.T) {

	reader := CreateTestRegisterReader()
	reader.ConnectErr = errors.New("refused")

	err := Open(reader)
	var connErr *ConnectionError
	assert.True(t, errors.As(err, &connErr))
	assert.False(t, reader.Settled)
}
