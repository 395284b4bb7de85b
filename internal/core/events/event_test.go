package events

import (
	"testing"
	"time"

	"github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/pkg/huawei_modbus"
	"github.com/berfenger/powermon/pkg/p1_serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInverterReadingToRecord(t *testing.T) {

	assert := assert.New(t)

	ts := time.Now()
	rec := InverterReadingToRecord(&huawei_modbus.InverterReading{
		Time:         ts,
		DeviceStatus: 1,
		State1:       0b101,
		InstantProd:  3.512,
		DailyProd:    12.34,
	})

	assert.Equal(domain.SOURCE_INVERTER, rec.Source())
	assert.Equal(ts, rec.Time())
	assert.Equal(domain.InverterFields, rec.Fields())
	v, ok := rec.Value(domain.FIELD_DAILY_PROD)
	assert.True(ok)
	assert.Equal(12.34, v)
	assert.Equal([]uint8{0, 0, 0, 0, 0, 0, 0, 1, 0, 1}, rec.Bits(domain.FIELD_STATE1))
}

func TestMeterFrameToRecord(t *testing.T) {

	assert := assert.New(t)

	pull := 0.5
	rec := MeterFrameToRecord(&p1_serial.MeterFrame{
		Time:   time.Now(),
		Values: map[string]*float64{"pull_instant": &pull, "push_day": nil},
	})

	assert.Equal(domain.SOURCE_ENERGY_METER, rec.Source())
	assert.Equal([]string{domain.FIELD_PULL_INSTANT, domain.FIELD_PUSH_DAY}, rec.Fields())
	assert.True(rec.Has(domain.FIELD_PUSH_DAY))
}

func TestBatchToUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	batch := domain.Batch{
		domain.SOURCE_ENERGY_METER: domain.NewReadingRecord(domain.SOURCE_ENERGY_METER, time.Now(),
			map[string]*float64{domain.FIELD_PULL_INSTANT: domain.Float(1.25), domain.FIELD_PUSH_DAY: nil}, nil),
		domain.SOURCE_INVERTER: domain.NewReadingRecord(domain.SOURCE_INVERTER, time.Now(),
			map[string]*float64{domain.FIELD_INSTANT_PROD: domain.Float(2)}, nil),
	}

	evs := BatchToUpdateEvents(batch)
	require.Len(t, evs, 3)

	first, ok := evs[0].(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal("energy_meter_pull_instant", first.SensorId())
	assert.Equal(1.25, first.Value)

	null, ok := evs[1].(domain.NullSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal("energy_meter_push_day", null.SensorId())

	inv, ok := evs[2].(domain.FloatSensorUpdateEvent)
	require.True(t, ok)
	assert.Equal("inverter_instant_prod", inv.SensorId())
}

func TestSensors(t *testing.T) {

	assert := assert.New(t)

	bridge := BridgeDevice("powermon")
	assert.Len(bridge.Id, len("powermon_bridge_")+8)

	inv := InverterSensors(InverterDevice("192.168.1.2:502"))
	assert.Len(inv, len(domain.InverterFields))
	for _, s := range inv {
		assert.NotEmpty(s.UniqueId)
	}

	meter := MeterSensors(MeterDevice("/dev/ttyUSB0"))
	assert.Len(meter, len(domain.MeterFields))
	assert.Equal("kW", meter[0].UnitOfMeasurement)
	assert.Equal("kWh", meter[5].UnitOfMeasurement)
}
