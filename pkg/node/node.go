package node

import (
	"context"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/dispatch"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/logging"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/mesh"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/radio"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/sensors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Node is the cooperative main loop of one unit. Every component is owned
// by the goroutine calling Tick.
type Node struct {
	conf       entities.NodeConfig
	radio      radio.Driver
	rx         protocol.ReceiveBuffer
	session    *mesh.Session
	roster     *mesh.Roster
	scheduler  *sensors.Scheduler
	dispatcher *dispatch.Dispatcher
	commands   <-chan entities.Command
	log        *logrus.Entry
}

// NewLeaf builds a sensor unit. It listens on the broadcast pipe and on its
// own unit pipe until the coordinator assigns one.
func NewLeaf(conf entities.NodeConfig, driver radio.Driver, scheduler *sensors.Scheduler, actuators dispatch.Actuators, logger *logging.Logrus) (*Node, error) {
	n := &Node{
		conf:      conf,
		radio:     driver,
		scheduler: scheduler,
		log:       logger.ForUnit("node", conf.Unit),
	}
	n.session = mesh.NewSession(conf, logger.ForUnit("session", conf.Unit))
	n.dispatcher = dispatch.NewLeafDispatcher(conf, n.session, scheduler, actuators, driver, logger.ForUnit("dispatcher", conf.Unit))
	n.session.OnTransition(n.onTransition)
	if scheduler != nil {
		scheduler.EmitWhen(n.session.Joined)
	}
	if err := n.listen(conf.Network.BroadcastPipe, conf.UnitPipe()); err != nil {
		return nil, err
	}
	return n, nil
}

// NewCoordinator builds the unit that runs the roster and receives readings.
func NewCoordinator(conf entities.NodeConfig, driver radio.Driver, sink dispatch.ReadingSink, logger *logging.Logrus) (*Node, error) {
	if !conf.Unit.IsCoordinator() {
		return nil, errors.Wrapf(entities.ErrInvalidConfig, "coordinator needs unit id %d", entities.CoordinatorID)
	}
	n := &Node{
		conf:  conf,
		radio: driver,
		log:   logger.ForUnit("node", conf.Unit),
	}
	n.roster = mesh.NewRoster(conf, logger.ForUnit("roster", conf.Unit))
	n.dispatcher = dispatch.NewCoordinatorDispatcher(conf, n.roster, sink, driver, logger.ForUnit("dispatcher", conf.Unit))
	if err := n.listen(conf.Network.BroadcastPipe, conf.CoordinatorPipe()); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Node) listen(pipes ...entities.PipeAddress) error {
	for _, pipe := range pipes {
		if err := n.radio.Listen(pipe); err != nil {
			return errors.Wrapf(err, "listen on %s", pipe)
		}
	}
	return nil
}

func (n *Node) onTransition(from, to mesh.State, _ time.Time) {
	switch to {
	case mesh.Joined:
		address, err := n.session.Address()
		if err == nil {
			err = n.listen(address)
		}
		if err != nil {
			n.log.WithError(err).Errorln("listen on assigned pipe")
		}
	case mesh.Unjoined:
		if from == mesh.Joined {
			n.dispatcher.Abandon()
		}
	}
}

// OnJoin registers a callback for roster admissions and renewals. It only
// has an effect on the coordinator.
func (n *Node) OnJoin(fn func(mesh.Member)) {
	if n.roster != nil {
		n.roster.OnJoin(fn)
	}
}

// SetCommands attaches a source of remote commands, polled once per tick.
func (n *Node) SetCommands(commands <-chan entities.Command) {
	n.commands = commands
}

func (n *Node) Session() *mesh.Session { return n.session }

func (n *Node) Roster() *mesh.Roster { return n.roster }

func (n *Node) Dispatcher() *dispatch.Dispatcher { return n.dispatcher }

// Tick runs one loop iteration: receive at most one frame, advance the
// session or roster, run the scheduler, then transmit.
func (n *Node) Tick(now time.Time) {
	n.dispatcher.BeginTick()
	n.receive(now)
	if n.session != nil {
		for _, env := range n.session.Tick(now) {
			n.send(env)
		}
	}
	if n.roster != nil {
		n.tickRoster(now)
	}
	if n.scheduler != nil {
		n.tickScheduler(now)
	}
	n.dispatcher.Pump()
}

func (n *Node) receive(now time.Time) {
	var b [1]byte
	for {
		read, err := n.radio.Read(b[:])
		if err != nil {
			n.log.WithError(err).Warnln("read radio")
			return
		}
		if read == 0 {
			return
		}
		if !n.rx.Feed(b[0]) {
			continue
		}
		m, err := protocol.Decode(n.rx.Bytes())
		n.rx.Reset()
		if err != nil {
			n.log.WithError(err).Debugln("frame dropped")
			return
		}
		n.handle(m, now)
		return
	}
}

func (n *Node) handle(m protocol.Message, now time.Time) {
	err := n.dispatcher.Handle(m, now)
	switch {
	case err == nil:
	case errors.Is(err, dispatch.ErrIgnored), errors.Is(err, mesh.ErrNotForUnit):
		n.log.WithError(err).Debugf("%s frame ignored", m.Type)
	case errors.Is(err, mesh.ErrRosterFull):
		n.log.WithError(err).Warnln("join request ignored")
	default:
		n.log.WithError(err).Warnf("handle %s frame", m.Type)
	}
}

func (n *Node) send(env protocol.Envelope) {
	if err := n.dispatcher.Send(env); err != nil {
		n.log.WithError(err).Warnf("send %s frame", env.Message.Type)
	}
}

func (n *Node) tickRoster(now time.Time) {
	n.roster.Expire(now)
	n.pollCommand()
	if env, ok := n.roster.Poll(now); ok {
		n.send(env)
	}
}

func (n *Node) tickScheduler(now time.Time) {
	result := n.scheduler.Tick(now)
	if !n.session.Joined() {
		if len(result.Readings) > 0 {
			n.log.Debugln("not joined, readings dropped")
		}
		return
	}
	if len(result.Readings) > 0 {
		if err := n.dispatcher.SendReadings(result.Readings); err != nil {
			n.log.WithError(err).Warnln("send readings")
		}
	}
	for _, r := range result.Notifications {
		if err := n.dispatcher.Notify(r); err != nil {
			n.log.WithError(err).Warnf("send %s notification", r.Sensor)
		}
	}
}

func (n *Node) pollCommand() {
	if n.commands == nil {
		return
	}
	select {
	case cmd := <-n.commands:
		if err := n.Execute(cmd); err != nil {
			n.log.WithError(err).Warnf("command %s for unit %d", cmd.Action, cmd.Unit)
		}
	default:
	}
}

// Execute turns a remote command into a frame for the target unit.
func (n *Node) Execute(cmd entities.Command) error {
	if n.roster == nil {
		return errors.Wrap(dispatch.ErrIgnored, "commands run on the coordinator")
	}
	if cmd.Action == entities.ActionReset && cmd.Unit == entities.CoordinatorID {
		n.ResetNetwork()
		return nil
	}
	member, ok := n.roster.Lookup(cmd.Unit)
	if !ok {
		return errors.Wrapf(mesh.ErrNotJoined, "unit %d", cmd.Unit)
	}
	var m protocol.Message
	switch cmd.Action {
	case entities.ActionBuzzer:
		m = protocol.NewBuzzer(member.Assigned, cmd.On)
	case entities.ActionLed:
		m = protocol.NewLed(member.Assigned, cmd.Led, cmd.On)
	case entities.ActionPoll:
		m = protocol.NewDataRequest(member.Assigned)
	case entities.ActionReset:
		m = protocol.NewResetFor(member.Assigned)
		n.roster.Remove(member.Assigned)
	default:
		return errors.Errorf("unknown action %q", cmd.Action)
	}
	return n.dispatcher.Send(protocol.Envelope{Pipe: member.Pipe, Message: m})
}

// ResetNetwork clears the roster and broadcasts a reset so every unit
// rejoins.
func (n *Node) ResetNetwork() {
	if n.roster == nil {
		return
	}
	n.send(n.roster.Reset())
}

// Run calls Tick every LoopInterval until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.conf.LoopInterval)
	defer ticker.Stop()
	n.log.Infof("running as %s", n.role())
	for {
		select {
		case <-ctx.Done():
			n.log.Infoln("stopped")
			return nil
		case now := <-ticker.C:
			n.Tick(now)
		}
	}
}

func (n *Node) role() string {
	if n.roster != nil {
		return "coordinator"
	}
	return "leaf"
}
