package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	. "github.com/berfenger/powermon/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE       = "bridge"
	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("powermon_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Powermon",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Powermon %s", md5HashShort(baseTopic)),
	}
}

func InverterDevice(endpoint string) Device {
	return Device{
		Id:           fmt.Sprintf("pwm_inverter_%s", md5HashShort(endpoint)),
		Manufacturer: "Huawei",
		Model:        "SUN2000",
		Name:         fmt.Sprintf("Huawei SUN2000 %s", md5HashShort(endpoint)),
	}
}

func MeterDevice(serialPath string) Device {
	return Device{
		Id:           fmt.Sprintf("pwm_meter_%s", md5HashShort(serialPath)),
		Manufacturer: "Sagemcom",
		Model:        "T211",
		Name:         fmt.Sprintf("Sagemcom T211 %s", md5HashShort(serialPath)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

func InverterSensors(inverterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	sensors = append(sensors, GenericSensor{
		Device:            inverterDevice,
		Id:                SensorId(SOURCE_INVERTER, FIELD_INSTANT_PROD),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Instant production",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "kW",
		Icon:              "mdi:solar-power",
	})
	sensors = append(sensors, GenericSensor{
		Device:            IdDevice(inverterDevice),
		Id:                SensorId(SOURCE_INVERTER, FIELD_DAILY_PROD),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Daily production",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
	})

	// status and alarm words
	for _, field := range InverterFields[2:] {
		sensors = append(sensors, GenericSensor{
			Device:           IdDevice(inverterDevice),
			Id:               SensorId(SOURCE_INVERTER, field),
			SensorType:       SENSOR_TYPE_SENSOR,
			Name:             fmt.Sprintf("Inverter %s", field),
			EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
			EnabledByDefault: optionalBool(false),
		})
	}

	for i := range sensors {
		sensors[i].UniqueId = uniqueId(inverterDevice.Id, sensors[i].Id)
	}
	return sensors
}

func MeterSensors(meterDevice Device) []GenericSensor {

	names := map[string]string{
		FIELD_PULL_INSTANT: "Grid import power",
		FIELD_PUSH_INSTANT: "Grid export power",
		FIELD_PULL_DAY:     "Grid import energy (day tariff)",
		FIELD_PULL_NIGHT:   "Grid import energy (night tariff)",
		FIELD_PUSH_DAY:     "Grid export energy (day tariff)",
		FIELD_PUSH_NIGHT:   "Grid export energy (night tariff)",
	}

	var sensors []GenericSensor
	for i, field := range MeterFields {
		sensor := GenericSensor{
			Device:     meterDevice,
			Id:         SensorId(SOURCE_ENERGY_METER, field),
			SensorType: SENSOR_TYPE_SENSOR,
			Name:       names[field],
			UniqueId:   uniqueId(meterDevice.Id, SensorId(SOURCE_ENERGY_METER, field)),
		}
		if i > 0 {
			sensor.Device = IdDevice(meterDevice)
		}
		switch field {
		case FIELD_PULL_INSTANT, FIELD_PUSH_INSTANT:
			sensor.StateClass = STATE_CLASS_MEASUREMENT
			sensor.DeviceClass = DEVICE_CLASS_POWER
			sensor.UnitOfMeasurement = "kW"
		default:
			sensor.StateClass = STATE_CLASS_TOTAL_INCREASING
			sensor.DeviceClass = DEVICE_CLASS_ENERGY
			sensor.UnitOfMeasurement = "kWh"
		}
		sensors = append(sensors, sensor)
	}
	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
