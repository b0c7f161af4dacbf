package node

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/dispatch"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/logging"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/mesh"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/radio"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/sensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var epoch = time.Date(2024, 7, 13, 12, 0, 0, 0, time.UTC)

var leafIdentity = entities.UnitIdentity{Class: entities.DefaultUnitType, ID: 2}

type networkSuite struct {
	suite.Suite
	leafConf    entities.NodeConfig
	coordConf   entities.NodeConfig
	leafRadio   *radio.MockDriver
	coordRadio  *radio.MockDriver
	temperature *sensors.SensorMock
	flag        *sensors.MotionFlag
	actuators   *dispatch.ActuatorsMock
	sink        *dispatch.ReadingSinkMock
	commands    chan entities.Command
	joined      []mesh.Member
	leaf        *Node
	coordinator *Node
}

func (s *networkSuite) SetupTest() {
	logger := logging.NewLogrus("panic", io.Discard)
	air := radio.NewAir()
	s.leafRadio = air.Attach()
	s.coordRadio = air.Attach()

	s.leafConf = entities.DefaultNodeConfig()
	s.leafConf.Unit = leafIdentity
	s.leafConf.Sensors = []entities.SensorConfig{{Code: "T", DecimalShift: 2}}
	s.coordConf = entities.DefaultNodeConfig()
	s.coordConf.Unit.ID = entities.CoordinatorID

	s.temperature = new(sensors.SensorMock)
	s.temperature.On("Read").Return(21.37, nil)
	s.flag = &sensors.MotionFlag{}
	scheduler := sensors.NewScheduler(s.leafConf, map[entities.SensorCode]sensors.Sensor{
		entities.SensorTemperature: s.temperature,
	}, nil, s.flag, logger.Get("scheduler"))
	s.actuators = new(dispatch.ActuatorsMock)
	s.sink = new(dispatch.ReadingSinkMock)
	s.commands = make(chan entities.Command, 4)
	s.joined = nil

	var err error
	s.leaf, err = NewLeaf(s.leafConf, s.leafRadio, scheduler, s.actuators, logger)
	s.Require().NoError(err)
	s.coordinator, err = NewCoordinator(s.coordConf, s.coordRadio, s.sink, logger)
	s.Require().NoError(err)
	s.coordinator.SetCommands(s.commands)
	s.coordinator.OnJoin(func(m mesh.Member) { s.joined = append(s.joined, m) })
}

func (s *networkSuite) step(now time.Time) {
	s.leaf.Tick(now)
	s.coordinator.Tick(now)
}

func (s *networkSuite) join() {
	s.step(epoch)
	s.step(epoch.Add(10 * time.Millisecond))
	s.Require().True(s.leaf.Session().Joined())
}

func (s *networkSuite) TestGivenNewLeafThenListensOnBroadcastAndUnitPipe() {
	assert.True(s.T(), s.leafRadio.Listening(s.leafConf.Network.BroadcastPipe))
	assert.True(s.T(), s.leafRadio.Listening(s.leafConf.UnitPipe()))
	assert.True(s.T(), s.coordRadio.Listening(s.coordConf.CoordinatorPipe()))
}

func (s *networkSuite) TestGivenLeafAndCoordinatorThenLeafJoins() {
	s.join()

	id, err := s.leaf.Session().AssignedID()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint8(2), id)
	member, ok := s.coordinator.Roster().Lookup(2)
	require.True(s.T(), ok)
	assert.Equal(s.T(), leafIdentity, member.Identity)
	require.Len(s.T(), s.joined, 1)

	assert.Equal(s.T(), radio.Transmission{Pipe: s.leafConf.Network.BroadcastPipe, Frame: "#j,lurker,2$"}, s.leafRadio.Sent()[0])
	assert.Equal(s.T(), radio.Transmission{Pipe: s.leafConf.UnitPipe(), Frame: "#J,lurker,2,2$"}, s.coordRadio.Sent()[0])
}

func (s *networkSuite) TestGivenTakenIDThenLeafJoinsOnReassignedPipe() {
	s.coordRadio.Inject([]byte("#j,other,2$"))
	s.coordinator.Tick(epoch)

	s.step(epoch.Add(time.Millisecond))
	s.step(epoch.Add(2 * time.Millisecond))

	require.True(s.T(), s.leaf.Session().Joined())
	id, _ := s.leaf.Session().AssignedID()
	assert.Equal(s.T(), uint8(1), id)
	assert.True(s.T(), s.leafRadio.Listening(s.leafConf.Network.BasePipe.Offset(1)))
	assert.Equal(s.T(), 2, s.coordinator.Roster().Len())
}

func (s *networkSuite) TestGivenJoinedThenReadingsReachSinkEverySampleInterval() {
	s.join()
	s.sink.On("Deliver", leafIdentity, mock.Anything).Return(nil)

	at := epoch.Add(s.leafConf.SampleInterval)
	s.step(at)

	s.sink.AssertCalled(s.T(), "Deliver", leafIdentity, []entities.SensorReading{
		{Unit: 2, Sensor: entities.SensorTemperature, Value: 2137, DecimalShift: 2, Timestamp: at},
	})
	last := s.leafRadio.Sent()[len(s.leafRadio.Sent())-1]
	assert.Equal(s.T(), radio.Transmission{Pipe: s.leafConf.CoordinatorPipe(), Frame: "#d,2,T,2137$"}, last)
}

func (s *networkSuite) TestGivenUnjoinedThenReadingsNotSent() {
	s.leaf.Tick(epoch)

	sent := s.leafRadio.Sent()
	require.Len(s.T(), sent, 1)
	assert.Equal(s.T(), "#j,lurker,2$", sent[0].Frame)
}

func (s *networkSuite) TestGivenMotionThenNotificationDelivered() {
	s.join()
	s.sink.On("Deliver", leafIdentity, mock.Anything).Return(nil)

	s.flag.Set()
	at := epoch.Add(5 * time.Second)
	s.step(at)

	s.sink.AssertCalled(s.T(), "Deliver", leafIdentity, []entities.SensorReading{
		{Unit: 2, Sensor: entities.SensorMotion, Value: 1, Timestamp: at},
	})
}

func (s *networkSuite) TestGivenMotionBeforeJoinThenFirstMotionAfterJoinSent() {
	s.leaf.Tick(epoch)
	s.flag.Set()
	s.leaf.Tick(epoch.Add(3 * time.Second))
	s.coordinator.Tick(epoch.Add(3 * time.Second))
	s.leaf.Tick(epoch.Add(4 * time.Second))
	s.Require().True(s.leaf.Session().Joined())

	s.flag.Set()
	s.leaf.Tick(epoch.Add(10 * time.Second))

	sent := s.leafRadio.Sent()
	assert.Equal(s.T(), radio.Transmission{Pipe: s.leafConf.CoordinatorPipe(), Frame: "#M,2,1$"}, sent[len(sent)-1])
}

func (s *networkSuite) TestGivenConfirmMovingJoinedLeafThenListensOnNewPipe() {
	s.join()

	s.leafRadio.Inject([]byte("#J,lurker,2,5$"))
	s.leaf.Tick(epoch.Add(time.Second))

	id, err := s.leaf.Session().AssignedID()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint8(5), id)
	assert.True(s.T(), s.leafRadio.Listening(s.leafConf.Network.BasePipe.Offset(5)))
}

func (s *networkSuite) TestGivenResetWithBadTargetThenLeafStaysJoined() {
	s.join()

	s.leafRadio.Inject([]byte("#R,xyz$"))
	s.leaf.Tick(epoch.Add(time.Second))

	assert.Equal(s.T(), mesh.Joined, s.leaf.Session().State())
}

func (s *networkSuite) TestGivenNetworkResetThenLeafRejoins() {
	s.join()

	s.coordinator.ResetNetwork()
	assert.Equal(s.T(), 0, s.coordinator.Roster().Len())

	s.step(epoch.Add(time.Second))
	s.step(epoch.Add(2 * time.Second))
	assert.Equal(s.T(), epoch.Add(2*time.Second), s.leaf.Session().LastReset())

	s.step(epoch.Add(3 * time.Second))
	assert.True(s.T(), s.leaf.Session().Joined())
	assert.Equal(s.T(), 1, s.coordinator.Roster().Len())
}

func (s *networkSuite) TestGivenBuzzerCommandThenLeafDrivesBuzzer() {
	s.join()
	s.actuators.On("Buzzer", true).Return(nil)

	s.commands <- entities.Command{Unit: 2, Action: entities.ActionBuzzer, On: true}
	s.step(epoch.Add(time.Second))
	s.step(epoch.Add(2 * time.Second))

	s.actuators.AssertCalled(s.T(), "Buzzer", true)
}

func (s *networkSuite) TestGivenLedCommandThenLeafDrivesLed() {
	s.join()
	s.actuators.On("Led", uint8(1), false).Return(nil)

	s.commands <- entities.Command{Unit: 2, Action: entities.ActionLed, Led: 1}
	s.step(epoch.Add(time.Second))
	s.step(epoch.Add(2 * time.Second))

	s.actuators.AssertCalled(s.T(), "Led", uint8(1), false)
}

func (s *networkSuite) TestGivenPollCommandThenReadingsDelivered() {
	s.join()
	s.sink.On("Deliver", leafIdentity, mock.Anything).Return(nil)

	s.commands <- entities.Command{Unit: 2, Action: entities.ActionPoll}
	s.step(epoch.Add(time.Second))
	at := epoch.Add(2 * time.Second)
	s.step(at)

	s.sink.AssertCalled(s.T(), "Deliver", leafIdentity, []entities.SensorReading{
		{Unit: 2, Sensor: entities.SensorTemperature, Value: 2137, DecimalShift: 2, Timestamp: at},
	})
}

func (s *networkSuite) TestGivenResetCommandThenUnitRemovedAndRejoins() {
	s.join()

	s.commands <- entities.Command{Unit: 2, Action: entities.ActionReset}
	s.step(epoch.Add(time.Second))
	assert.Equal(s.T(), 0, s.coordinator.Roster().Len())

	s.step(epoch.Add(2 * time.Second))
	s.step(epoch.Add(3 * time.Second))
	assert.True(s.T(), s.leaf.Session().Joined())
	assert.Equal(s.T(), 1, s.coordinator.Roster().Len())
}

func (s *networkSuite) TestGivenCommandForUnknownUnitThenError() {
	err := s.coordinator.Execute(entities.Command{Unit: 5, Action: entities.ActionBuzzer, On: true})

	assert.ErrorIs(s.T(), err, mesh.ErrNotJoined)
}

func (s *networkSuite) TestGivenCommandOnLeafThenIgnored() {
	err := s.leaf.Execute(entities.Command{Unit: 2, Action: entities.ActionPoll})

	assert.ErrorIs(s.T(), err, dispatch.ErrIgnored)
}

func (s *networkSuite) TestGivenNoiseAroundFrameThenFrameHandled() {
	s.coordRadio.Inject([]byte("noise#j,lur#j,lurker,3$"))

	s.coordinator.Tick(epoch)

	_, ok := s.coordinator.Roster().Lookup(3)
	assert.True(s.T(), ok)
}

func (s *networkSuite) TestGivenMalformedFrameThenNothingSent() {
	s.coordRadio.Inject([]byte("#x,1$"))

	s.coordinator.Tick(epoch)

	assert.Empty(s.T(), s.coordRadio.Sent())
	assert.Equal(s.T(), 0, s.coordinator.Roster().Len())
}

func (s *networkSuite) TestGivenTwoFramesThenOneHandledPerTick() {
	s.coordRadio.Inject([]byte("#j,lurker,3$#j,lurker,4$"))

	s.coordinator.Tick(epoch)
	assert.Equal(s.T(), 1, s.coordinator.Roster().Len())
	_, ok := s.coordinator.Roster().Lookup(3)
	assert.True(s.T(), ok)

	s.coordinator.Tick(epoch.Add(time.Millisecond))
	assert.Equal(s.T(), 2, s.coordinator.Roster().Len())
	assert.Len(s.T(), s.coordRadio.Sent(), 2)
}

func TestNetworkSuite(t *testing.T) {
	suite.Run(t, new(networkSuite))
}

func TestGivenLeafIDThenCoordinatorRejected(t *testing.T) {
	conf := entities.DefaultNodeConfig()
	conf.Unit.ID = 3

	_, err := NewCoordinator(conf, radio.NewMockDriver(), nil, logging.NewLogrus("panic", io.Discard))

	assert.ErrorIs(t, err, entities.ErrInvalidConfig)
}

func TestGivenCancelledContextThenRunStops(t *testing.T) {
	conf := entities.DefaultNodeConfig()
	conf.Unit.ID = 2
	conf.Sensors = nil
	conf.LoopInterval = time.Millisecond
	logger := logging.NewLogrus("panic", io.Discard)
	driver := radio.NewMockDriver()
	scheduler := sensors.NewScheduler(conf, nil, nil, nil, logger.Get("scheduler"))
	n, err := NewLeaf(conf, driver, scheduler, nil, logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(driver.Sent()) > 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}
