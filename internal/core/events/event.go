package events

import (
	"fmt"

	. "github.com/berfenger/powermon/internal/core/domain"
	"github.com/berfenger/powermon/pkg/huawei_modbus"
	"github.com/berfenger/powermon/pkg/p1_serial"
)

func InverterReadingToRecord(r *huawei_modbus.InverterReading) ReadingRecord {
	values := make(map[string]*float64)
	for name, v := range r.Values() {
		values[name] = Float(v)
	}
	return NewReadingRecord(SOURCE_INVERTER, r.Time, values, r.Bits())
}

func MeterFrameToRecord(f *p1_serial.MeterFrame) ReadingRecord {
	return NewReadingRecord(SOURCE_ENERGY_METER, f.Time, f.Values, nil)
}

func SensorId(source Source, field string) string {
	return fmt.Sprintf("%s_%s", source, field)
}

// BatchToUpdateEvents maps every field of the batch to a sensor update.
func BatchToUpdateEvents(batch Batch) []any {
	var events []any
	for _, source := range batch.Sources() {
		rec := batch[source]
		for _, field := range rec.Fields() {
			id := SensorId(source, field)
			v, ok := rec.Value(field)
			if !ok {
				events = append(events, NullSensorUpdateEvent{
					SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: id},
				})
				continue
			}
			events = append(events, FloatSensorUpdateEvent{
				SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: id},
				Value:                  v,
				Decimals:               fieldDecimals(field),
			})
		}
	}
	return events
}

func BridgeStateEvent(online bool) BridgeStateUpdateEvent {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: SENSOR_ID_BRIDGE_STATE},
		Value:                  online,
	}
}

func fieldDecimals(field string) uint {
	switch field {
	case FIELD_INSTANT_PROD, FIELD_PULL_INSTANT, FIELD_PUSH_INSTANT,
		FIELD_PULL_DAY, FIELD_PULL_NIGHT, FIELD_PUSH_DAY, FIELD_PUSH_NIGHT:
		return 3
	case FIELD_DAILY_PROD:
		return 2
	default:
		return 0
	}
}
