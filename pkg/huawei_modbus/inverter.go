package huawei_modbus

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

type RegisterDecoding int

const (
	DECODE_U16 RegisterDecoding = iota
	DECODE_U32
	DECODE_I32_DIV_1000
	DECODE_U32_DIV_100
)

type RegisterField struct {
	Name     string
	Address  uint16
	Quantity uint16
	Decoding RegisterDecoding
	// number of status bits worth displaying, 0 for measurements
	Bits int
}

// InverterRegisterMap is read in order on every cycle.
var InverterRegisterMap = []RegisterField{
	{Name: "device_status", Address: 32089, Quantity: 1, Decoding: DECODE_U16, Bits: 1},
	{Name: "state1", Address: 32000, Quantity: 1, Decoding: DECODE_U16, Bits: 10},
	{Name: "state2", Address: 32002, Quantity: 1, Decoding: DECODE_U16, Bits: 3},
	{Name: "state3", Address: 32003, Quantity: 2, Decoding: DECODE_U32, Bits: 2},
	{Name: "alarm1", Address: 32008, Quantity: 1, Decoding: DECODE_U16, Bits: 16},
	{Name: "alarm2", Address: 32009, Quantity: 1, Decoding: DECODE_U16, Bits: 16},
	{Name: "alarm3", Address: 32010, Quantity: 1, Decoding: DECODE_U16, Bits: 14},
	{Name: "instant_prod", Address: 32080, Quantity: 2, Decoding: DECODE_I32_DIV_1000},
	{Name: "daily_prod", Address: 32114, Quantity: 2, Decoding: DECODE_U32_DIV_100},
}

type InverterReading struct {
	Time         time.Time
	DeviceStatus uint16
	State1       uint16
	State2       uint16
	State3       uint32
	Alarm1       uint16
	Alarm2       uint16
	Alarm3       uint16
	// kW, signed as reported by the inverter
	InstantProd float64
	// kWh
	DailyProd float64
}

// Values returns every field keyed by its register map name.
func (r InverterReading) Values() map[string]float64 {
	return map[string]float64{
		"device_status": float64(r.DeviceStatus),
		"state1":        float64(r.State1),
		"state2":        float64(r.State2),
		"state3":        float64(r.State3),
		"alarm1":        float64(r.Alarm1),
		"alarm2":        float64(r.Alarm2),
		"alarm3":        float64(r.Alarm3),
		"instant_prod":  r.InstantProd,
		"daily_prod":    r.DailyProd,
	}
}

// Bits returns the display bit vectors of the status/alarm fields.
func (r InverterReading) Bits() map[string][]uint8 {
	values := r.Values()
	bits := make(map[string][]uint8)
	for _, f := range InverterRegisterMap {
		if f.Bits > 0 {
			bits[f.Name] = ExtractBits(uint32(values[f.Name]), f.Bits)
		}
	}
	return bits
}

type InverterReader struct {
	reader RegisterReader
	logger *zap.Logger
	now    func() time.Time
}

func NewInverterReader(reader RegisterReader, logger *zap.Logger) *InverterReader {
	return &InverterReader{
		reader: reader,
		logger: logger,
		now:    time.Now,
	}
}

// ReadInverter performs one poll cycle. Any failed read aborts the whole cycle.
func (inv *InverterReader) ReadInverter() (*InverterReading, error) {
	reading := InverterReading{Time: inv.now()}

	for _, f := range InverterRegisterMap {
		data, err := inv.reader.ReadRegisters(f.Address, f.Quantity)
		if err != nil {
			return nil, err
		}
		if err := reading.set(f, data); err != nil {
			return nil, &ReadError{Address: f.Address, Quantity: f.Quantity, Err: err}
		}
	}

	inv.logReading(&reading)
	return &reading, nil
}

func (r *InverterReading) set(f RegisterField, data []byte) error {
	switch f.Decoding {
	case DECODE_U16:
		v, err := DecodeU16(data)
		if err != nil {
			return err
		}
		switch f.Name {
		case "device_status":
			r.DeviceStatus = v
		case "state1":
			r.State1 = v
		case "state2":
			r.State2 = v
		case "alarm1":
			r.Alarm1 = v
		case "alarm2":
			r.Alarm2 = v
		case "alarm3":
			r.Alarm3 = v
		default:
			return fmt.Errorf("unknown u16 field %s", f.Name)
		}
	case DECODE_U32:
		v, err := DecodeU32(data)
		if err != nil {
			return err
		}
		if f.Name != "state3" {
			return fmt.Errorf("unknown u32 field %s", f.Name)
		}
		r.State3 = v
	case DECODE_I32_DIV_1000:
		v, err := DecodeI32(data)
		if err != nil {
			return err
		}
		r.InstantProd = float64(v) / 1000.0
	case DECODE_U32_DIV_100:
		v, err := DecodeU32(data)
		if err != nil {
			return err
		}
		r.DailyProd = float64(v) / 100.0
	}
	return nil
}

func (inv *InverterReader) logReading(r *InverterReading) {
	if inv.logger == nil {
		return
	}
	inv.logger.Debug("device status", zap.String("value", fmt.Sprintf("0x%x", r.DeviceStatus)))
	values := r.Values()
	bits := r.Bits()
	for _, f := range InverterRegisterMap {
		if f.Bits == 0 || f.Name == "device_status" {
			continue
		}
		inv.logger.Debug(f.Name, zap.Float64("value", values[f.Name]), zap.String("bits", FormatBits(bits[f.Name])))
	}
	inv.logger.Debug("production", zap.Float64("instant_kw", r.InstantProd), zap.Float64("daily_kwh", r.DailyProd))
}
