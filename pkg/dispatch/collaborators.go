package dispatch

import (
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
)

// Transmitter puts an encoded frame on the air.
type Transmitter interface {
	Transmit(pipe entities.PipeAddress, frame []byte) error
}

// Sampler takes an immediate reading of every sensor.
type Sampler interface {
	Sample(now time.Time) []entities.SensorReading
}

// ReadingSink consumes readings received by the coordinator. source carries
// the provisioned identity of the sender when it is in the roster.
type ReadingSink interface {
	Deliver(source entities.UnitIdentity, readings []entities.SensorReading) error
}

// Actuators drives the buzzer and LEDs of a leaf unit.
type Actuators interface {
	Buzzer(on bool) error
	Led(led uint8, on bool) error
}

// MultiSink fans readings out to several sinks. Every sink is called; the
// first error is returned.
type MultiSink []ReadingSink

func (m MultiSink) Deliver(source entities.UnitIdentity, readings []entities.SensorReading) error {
	var first error
	for _, sink := range m {
		if err := sink.Deliver(source, readings); err != nil && first == nil {
			first = err
		}
	}
	return first
}
