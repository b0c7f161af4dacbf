package entities

import (
	"fmt"
	"time"
)

const (
	CoordinatorID   uint8 = 0
	DefaultUnitType       = "lurker"
)

// PipeAddress is the 40-bit logical radio address a node transmits on or
// filters for.
type PipeAddress uint64

const (
	DefaultBroadcastPipe PipeAddress = 0x90909090FF
	DefaultBasePipe      PipeAddress = 0x9090909000
	pipeAddressMask      PipeAddress = 0xFFFFFFFFFF
)

func (p PipeAddress) String() string {
	return fmt.Sprintf("0x%010X", uint64(p))
}

// Offset returns the pipe assigned to the unit with the given id.
func (p PipeAddress) Offset(id uint8) PipeAddress {
	return (p + PipeAddress(id)) & pipeAddressMask
}

// UnitIdentity is provisioned once and never changes.
type UnitIdentity struct {
	Class string `yaml:"class"`
	ID    uint8  `yaml:"id"`
}

func (u UnitIdentity) String() string {
	return fmt.Sprintf("%s%d", u.Class, u.ID)
}

func (u UnitIdentity) IsCoordinator() bool {
	return u.ID == CoordinatorID
}

// SensorCode identifies a sensor on the wire. The codes double as frame
// type codes for single-reading frames.
type SensorCode byte

const (
	SensorTemperature SensorCode = 'T'
	SensorHumidity    SensorCode = 'H'
	SensorIlluminance SensorCode = 'I'
	SensorSound       SensorCode = 'Z'
	SensorMotion      SensorCode = 'M'
)

var sensorNames = map[SensorCode]string{
	SensorTemperature: "temperature",
	SensorHumidity:    "humidity",
	SensorIlluminance: "illuminance",
	SensorSound:       "sound",
	SensorMotion:      "motion",
}

func (c SensorCode) String() string {
	if name, ok := sensorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("sensor(%q)", byte(c))
}

func (c SensorCode) Valid() bool {
	_, ok := sensorNames[c]
	return ok
}

// SensorReading is produced by the scheduler, encoded into a frame and then
// discarded. Value is already fixed-point scaled by DecimalShift.
type SensorReading struct {
	Unit         uint8
	Sensor       SensorCode
	Value        int64
	DecimalShift int
	Timestamp    time.Time
}
