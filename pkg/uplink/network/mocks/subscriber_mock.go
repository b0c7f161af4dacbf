package mocks

import (
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/uplink/network"
	"github.com/stretchr/testify/mock"
)

type SubscriberMock struct {
	mock.Mock
}

func (s *SubscriberMock) SubscribeToCommands(msgChan chan network.InMsg) error {
	args := s.Called(msgChan)
	return args.Error(0)
}
