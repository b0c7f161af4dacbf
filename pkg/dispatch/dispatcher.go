package dispatch

import (
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/mesh"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrIgnored = errors.New("message ignored")

type handlerFunc func(m protocol.Message, now time.Time) error

// Dispatcher routes decoded messages to their handlers and serialises
// outgoing frames: one frame in the send buffer, one pending slot behind it
// where the last request wins.
type Dispatcher struct {
	conf      entities.NodeConfig
	session   *mesh.Session
	roster    *mesh.Roster
	sampler   Sampler
	sink      ReadingSink
	actuators Actuators
	radio     Transmitter
	routes    map[protocol.MessageType]handlerFunc
	shifts    map[entities.SensorCode]int

	send       protocol.SendBuffer
	inflight   entities.PipeAddress
	pending    protocol.Envelope
	hasPending bool
	assembled  bool
	replaced   int
	log        *logrus.Entry
}

// NewLeafDispatcher answers data requests and actuator commands for a leaf
// unit and hands join traffic to its session.
func NewLeafDispatcher(conf entities.NodeConfig, session *mesh.Session, sampler Sampler, actuators Actuators, radio Transmitter, log *logrus.Entry) *Dispatcher {
	d := newDispatcher(conf, radio, log)
	d.session = session
	d.sampler = sampler
	d.actuators = actuators
	d.routes[protocol.TypeJoinConfirm] = d.handleJoinConfirm
	d.routes[protocol.TypeReset] = d.handleReset
	d.routes[protocol.TypeDataRequest] = d.handleDataRequest
	for _, t := range []protocol.MessageType{protocol.TypeBuzzerOn, protocol.TypeBuzzerOff, protocol.TypeLedOn, protocol.TypeLedOff} {
		d.routes[t] = d.handleActuator
	}
	return d
}

// NewCoordinatorDispatcher admits units into the roster and delivers every
// reading it receives to sink.
func NewCoordinatorDispatcher(conf entities.NodeConfig, roster *mesh.Roster, sink ReadingSink, radio Transmitter, log *logrus.Entry) *Dispatcher {
	d := newDispatcher(conf, radio, log)
	d.roster = roster
	d.sink = sink
	d.routes[protocol.TypeJoinRequest] = d.handleJoinRequest
	for _, t := range []protocol.MessageType{protocol.TypeDataResponse, protocol.TypeTemperature, protocol.TypeHumidity, protocol.TypeIlluminance, protocol.TypeSound, protocol.TypeMotion} {
		d.routes[t] = d.handleReadings
	}
	return d
}

func newDispatcher(conf entities.NodeConfig, radio Transmitter, log *logrus.Entry) *Dispatcher {
	shifts := make(map[entities.SensorCode]int, len(conf.Sensors))
	for _, sc := range conf.Sensors {
		if len(sc.Code) == 1 {
			shifts[entities.SensorCode(sc.Code[0])] = sc.DecimalShift
		}
	}
	return &Dispatcher{
		conf:   conf,
		radio:  radio,
		routes: make(map[protocol.MessageType]handlerFunc),
		shifts: shifts,
		log:    log,
	}
}

// Handle routes one decoded message. Messages this role does not handle
// return ErrIgnored.
func (d *Dispatcher) Handle(m protocol.Message, now time.Time) error {
	handler, ok := d.routes[m.Type]
	if !ok {
		return errors.Wrapf(ErrIgnored, "no route for type %s", m.Type)
	}
	return handler(m, now)
}

func (d *Dispatcher) handleJoinRequest(m protocol.Message, now time.Time) error {
	confirm, err := d.roster.HandleJoinRequest(m, now)
	if err != nil {
		return err
	}
	return d.Send(confirm)
}

func (d *Dispatcher) handleJoinConfirm(m protocol.Message, now time.Time) error {
	return d.session.HandleJoinConfirm(m, now)
}

func (d *Dispatcher) handleReset(m protocol.Message, now time.Time) error {
	return d.session.HandleReset(m, now)
}

func (d *Dispatcher) handleDataRequest(m protocol.Message, now time.Time) error {
	if err := d.addressedToUs(m); err != nil {
		return err
	}
	return d.SendReadings(d.sampler.Sample(now))
}

func (d *Dispatcher) handleActuator(m protocol.Message, _ time.Time) error {
	if err := d.addressedToUs(m); err != nil {
		return err
	}
	if d.actuators == nil {
		return errors.Wrap(ErrIgnored, "no actuators")
	}
	switch m.Type {
	case protocol.TypeBuzzerOn, protocol.TypeBuzzerOff:
		return d.actuators.Buzzer(m.Type == protocol.TypeBuzzerOn)
	}
	led, err := m.LedNumber()
	if err != nil {
		return err
	}
	return d.actuators.Led(led, m.Type == protocol.TypeLedOn)
}

func (d *Dispatcher) handleReadings(m protocol.Message, now time.Time) error {
	readings, err := m.Readings(now)
	if err != nil {
		return err
	}
	for i := range readings {
		readings[i].DecimalShift = d.shifts[readings[i].Sensor]
	}
	unit, _ := m.UnitID()
	source := entities.UnitIdentity{ID: unit}
	if member, ok := d.roster.Lookup(unit); ok {
		source = member.Identity
	} else {
		d.log.Debugf("readings from unit %d outside the roster", unit)
	}
	if d.sink == nil {
		return nil
	}
	return d.sink.Deliver(source, readings)
}

// addressedToUs rejects a message while unjoined or when it names another
// unit than the one the coordinator assigned us.
func (d *Dispatcher) addressedToUs(m protocol.Message) error {
	own, err := d.session.AssignedID()
	if err != nil {
		return errors.Wrapf(ErrIgnored, "%s while %s", m.Type, d.session.State())
	}
	if id, ok := m.UnitID(); !ok || id != own {
		return errors.Wrapf(ErrIgnored, "%s for unit %d", m.Type, id)
	}
	return nil
}

// SendReadings queues a data response to the coordinator. Readings are
// dropped while unjoined.
func (d *Dispatcher) SendReadings(readings []entities.SensorReading) error {
	own, err := d.session.AssignedID()
	if err != nil {
		return err
	}
	return d.Send(protocol.Envelope{
		Pipe:    d.conf.CoordinatorPipe(),
		Message: protocol.NewDataResponse(own, readings),
	})
}

// Notify queues a single-reading frame such as a motion notification.
func (d *Dispatcher) Notify(r entities.SensorReading) error {
	own, err := d.session.AssignedID()
	if err != nil {
		return err
	}
	r.Unit = own
	return d.Send(protocol.Envelope{Pipe: d.conf.CoordinatorPipe(), Message: protocol.NewReading(r)})
}

// Send assembles env into the send buffer when it is free and nothing was
// assembled this tick; otherwise env takes the pending slot.
func (d *Dispatcher) Send(env protocol.Envelope) error {
	frame, err := protocol.Encode(env.Message)
	if err != nil {
		return err
	}
	if len(frame) > protocol.BufferCapacity {
		return errors.Wrapf(protocol.ErrBufferFull, "frame of %d bytes", len(frame))
	}
	if d.send.Empty() && !d.assembled {
		return d.load(env.Pipe, frame)
	}
	if d.hasPending {
		d.replaced++
		d.log.Debugf("pending %s frame replaced by %s", d.pending.Message.Type, env.Message.Type)
	}
	d.pending = env
	d.hasPending = true
	return nil
}

func (d *Dispatcher) load(pipe entities.PipeAddress, frame []byte) error {
	if err := d.send.Load(frame); err != nil {
		return err
	}
	d.inflight = pipe
	d.assembled = true
	return nil
}

// BeginTick opens a new assembly slot.
func (d *Dispatcher) BeginTick() {
	d.assembled = false
}

// Pump promotes the pending frame when the send buffer is free and the tick
// still has an assembly slot, then transmits the frame in flight. A failed
// transmission drops the frame.
func (d *Dispatcher) Pump() {
	if d.send.Empty() && d.hasPending && !d.assembled {
		d.promote()
	}
	if d.send.Empty() {
		return
	}
	if err := d.radio.Transmit(d.inflight, d.send.Bytes()); err != nil {
		d.log.WithError(err).Warnf("transmit to %s", d.inflight)
	}
	d.send.Reset()
}

func (d *Dispatcher) promote() {
	env := d.pending
	d.hasPending = false
	frame, err := protocol.Encode(env.Message)
	if err == nil {
		err = d.load(env.Pipe, frame)
	}
	if err != nil {
		d.log.WithError(err).Warnln("drop pending frame")
	}
}

// Abandon discards the frame in flight and the pending one.
func (d *Dispatcher) Abandon() {
	if !d.send.Empty() || d.hasPending {
		d.log.Debugln("outstanding sends abandoned")
	}
	d.send.Reset()
	d.hasPending = false
}

// Busy reports whether a frame is in flight or pending.
func (d *Dispatcher) Busy() bool {
	return !d.send.Empty() || d.hasPending
}

// Replaced counts pending frames overwritten before they were sent.
func (d *Dispatcher) Replaced() int {
	return d.replaced
}
