package huawei_modbus

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

func DecodeU16(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("u16 needs 2 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint16(data), nil
}

func DecodeU32(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("u32 needs 4 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint32(data), nil
}

func DecodeI32(data []byte) (int32, error) {
	v, err := DecodeU32(data)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ExtractBits returns the n low bits of value, most significant first:
// bit i of value lands at position n-1-i.
func ExtractBits(value uint32, n int) []uint8 {
	bits := make([]uint8, n)
	for i := 0; i < n; i++ {
		bit := uint32(1) << i
		if value&bit == bit {
			bits[n-1-i] = 1
		}
	}
	return bits
}

// FormatBits renders a bit vector as "1.0.1".
func FormatBits(bits []uint8) string {
	parts := make([]string, len(bits))
	for i, b := range bits {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ".")
}
