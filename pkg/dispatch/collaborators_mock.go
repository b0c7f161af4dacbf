package dispatch

import (
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type TransmitterMock struct {
	mock.Mock
}

func (t *TransmitterMock) Transmit(pipe entities.PipeAddress, frame []byte) error {
	args := t.Called(pipe, string(frame))
	return args.Error(0)
}

type ReadingSinkMock struct {
	mock.Mock
}

func (r *ReadingSinkMock) Deliver(source entities.UnitIdentity, readings []entities.SensorReading) error {
	args := r.Called(source, readings)
	return args.Error(0)
}

type ActuatorsMock struct {
	mock.Mock
}

func (a *ActuatorsMock) Buzzer(on bool) error {
	args := a.Called(on)
	return args.Error(0)
}

func (a *ActuatorsMock) Led(led uint8, on bool) error {
	args := a.Called(led, on)
	return args.Error(0)
}

type SamplerMock struct {
	mock.Mock
}

func (s *SamplerMock) Sample(now time.Time) []entities.SensorReading {
	args := s.Called(now)
	return args.Get(0).([]entities.SensorReading)
}
