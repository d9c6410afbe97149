package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/chargepilot/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE        = "bridge"
	SENSOR_ID_BATTERY_SOC         = "battery_soc"
	SENSOR_ID_LAST_RUN_OUTCOME    = "last_run_outcome"
	SENSOR_ID_REQUIRED_ENERGY     = "required_charge_energy"
	SENSOR_ID_NEXT_LOW_COST_START = "next_low_cost_start"
	SENSOR_ID_CHARGE_SCHEDULED    = "charge_scheduled"
	STATE_CLASS_MEASUREMENT       = "measurement"
	DEVICE_CLASS_BATTERY          = "battery"
	DEVICE_CLASS_ENERGY           = "energy"
	DEVICE_CLASS_TIMESTAMP        = "timestamp"
	DEVICE_CLASS_CONNECTIVITY     = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC       = "diagnostic"
	SENSOR_TYPE_SENSOR            = "sensor"
	SENSOR_TYPE_BINARY            = "binary_sensor"
)

func BridgeDevice(baseTopic string) domain.Device {
	return domain.Device{
		Id:           fmt.Sprintf("chargepilot_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "ChargePilot",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("ChargePilot %s", md5HashShort(baseTopic)),
	}
}

// EngineSensors describes the entities the bridge exposes for the
// charge engine: the last run verdict plus the numbers behind it.
func EngineSensors(bridgeDevice domain.Device) []domain.GenericSensor {

	var sensors []domain.GenericSensor

	sensors = append(sensors, domain.GenericSensor{
		Device:     bridgeDevice,
		Id:         SENSOR_ID_LAST_RUN_OUTCOME,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Last charge check outcome",
		UniqueId:   uniqueId(bridgeDevice.Id, SENSOR_ID_LAST_RUN_OUTCOME),
		Icon:       "mdi:clipboard-text-clock",
	})

	sensors = append(sensors, domain.GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_BATTERY_SOC,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Battery state of charge",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_BATTERY,
		UnitOfMeasurement: "%",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_BATTERY_SOC),
	})

	sensors = append(sensors, domain.GenericSensor{
		Device:            bridgeDevice,
		Id:                SENSOR_ID_REQUIRED_ENERGY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Required charge energy",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(bridgeDevice.Id, SENSOR_ID_REQUIRED_ENERGY),
	})

	sensors = append(sensors, domain.GenericSensor{
		Device:      bridgeDevice,
		Id:          SENSOR_ID_NEXT_LOW_COST_START,
		SensorType:  SENSOR_TYPE_SENSOR,
		Name:        "Next low-cost window start",
		DeviceClass: DEVICE_CLASS_TIMESTAMP,
		UniqueId:    uniqueId(bridgeDevice.Id, SENSOR_ID_NEXT_LOW_COST_START),
	})

	sensors = append(sensors, domain.GenericSensor{
		Device:     bridgeDevice,
		Id:         SENSOR_ID_CHARGE_SCHEDULED,
		SensorType: SENSOR_TYPE_BINARY,
		Name:       "Force charge scheduled",
		UniqueId:   uniqueId(bridgeDevice.Id, SENSOR_ID_CHARGE_SCHEDULED),
		Icon:       "mdi:battery-charging",
	})

	return sensors
}

func BridgeSensors(bridgeDevice domain.Device) []domain.GenericSensor {
	return []domain.GenericSensor{
		{
			Device:         bridgeDevice,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Bridge state",
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
			UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
		},
	}
}

func uniqueId(deviceId, sensorId string) string {
	return fmt.Sprintf("%s_%s", deviceId, sensorId)
}

func md5HashShort(value string) string {
	hash := md5.Sum([]byte(value))
	return hex.EncodeToString(hash[:])[:8]
}
