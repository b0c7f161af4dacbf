package mocks

import (
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/stretchr/testify/mock"
)

type PublisherMock struct {
	mock.Mock
}

func (p *PublisherMock) PublishReadings(source entities.UnitIdentity, readings []entities.SensorReading) error {
	args := p.Called(source, readings)
	return args.Error(0)
}

func (p *PublisherMock) PublishUnitJoined(unit entities.UnitIdentity, assigned uint8, pipe entities.PipeAddress) error {
	args := p.Called(unit, assigned, pipe)
	return args.Error(0)
}
