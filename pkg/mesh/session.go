package mesh

import (
	"time"

	"github.com/cenkalti/backoff"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotJoined   = errors.New("unit is not joined")
	ErrNotForUnit  = errors.New("message addressed to another unit")
	ErrRosterFull  = errors.New("roster full")
	ErrInvalidUnit = errors.New("invalid unit identity")
)

type State int

const (
	Unjoined State = iota
	Joining
	Joined
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	default:
		return "unjoined"
	}
}

// TransitionFunc observes session state changes. A move to a new address
// while joined is reported as Joined to Joined.
type TransitionFunc func(from, to State, now time.Time)

// Session is the leaf side of the join protocol. It is owned by the main
// loop and is not safe for concurrent use.
type Session struct {
	conf        entities.NodeConfig
	state       State
	address     entities.PipeAddress
	lastJoin    time.Time
	lastRenewal time.Time
	lastReset   time.Time
	nextAttempt time.Time
	retry       backoff.BackOff
	handlers    stateHandler
	observers   []TransitionFunc
	log         *logrus.Entry
}

// NewSession creates a session in Unjoined whose first join attempt goes out
// on the first tick.
func NewSession(conf entities.NodeConfig, log *logrus.Entry) *Session {
	s := &Session{
		conf:  conf,
		state: Unjoined,
		retry: backoff.NewConstantBackOff(conf.Network.JoinInterval),
		log:   log,
	}
	s.handlers = newStateHandlerChain(s)
	return s
}

func (s *Session) OnTransition(fn TransitionFunc) {
	s.observers = append(s.observers, fn)
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Joined() bool {
	return s.state == Joined
}

// Address returns the pipe assigned by the coordinator.
func (s *Session) Address() (entities.PipeAddress, error) {
	if s.state != Joined {
		return 0, ErrNotJoined
	}
	return s.address, nil
}

// AssignedID is the id the coordinator handed out, which may differ from the
// provisioned one.
func (s *Session) AssignedID() (uint8, error) {
	addr, err := s.Address()
	if err != nil {
		return 0, err
	}
	return uint8(addr - s.conf.Network.BasePipe), nil
}

func (s *Session) Identity() entities.UnitIdentity {
	return s.conf.Unit
}

func (s *Session) LastJoin() time.Time    { return s.lastJoin }
func (s *Session) LastRenewal() time.Time { return s.lastRenewal }
func (s *Session) LastReset() time.Time   { return s.lastReset }

// Tick advances the timers and returns the frames the session wants sent.
func (s *Session) Tick(now time.Time) []protocol.Envelope {
	return s.handlers.execute(now)
}

// HandleJoinConfirm accepts a confirm for this unit in any state; while
// joined it counts as a renewal.
func (s *Session) HandleJoinConfirm(m protocol.Message, now time.Time) error {
	identity, err := m.Identity()
	if err != nil {
		return err
	}
	if identity != s.conf.Unit {
		return errors.Wrapf(ErrNotForUnit, "confirm for %s", identity)
	}
	assigned, err := m.AssignedID()
	if err != nil {
		return err
	}
	if assigned == entities.CoordinatorID || int(assigned) >= s.conf.Network.MaxSize {
		return errors.Wrapf(ErrInvalidUnit, "assigned id %d", assigned)
	}
	address := s.conf.Network.BasePipe.Offset(assigned)
	moved := address != s.address
	s.address = address
	s.lastRenewal = now
	if s.state == Joined {
		if moved {
			s.log.Infof("coordinator moved unit to %s", s.address)
			s.notify(Joined, Joined, now)
			return nil
		}
		s.log.Debugf("session renewed on %s", s.address)
		return nil
	}
	s.log.Infof("joined network on %s", s.address)
	s.transition(Joined, now)
	return nil
}

// HandleReset drops the session back to Unjoined. A reset naming another
// unit is ignored and one whose target does not parse is rejected.
func (s *Session) HandleReset(m protocol.Message, now time.Time) error {
	if len(m.Fields) > 0 {
		id, ok := m.UnitID()
		if !ok {
			return errors.Wrapf(protocol.ErrInvalidField, "reset target %q", m.Fields[0])
		}
		own, err := s.AssignedID()
		if err != nil {
			own = s.conf.Unit.ID
		}
		if id != own {
			return errors.Wrapf(ErrNotForUnit, "reset for unit %d", id)
		}
	}
	if s.state == Unjoined {
		return nil
	}
	s.log.Infoln("connection reset by coordinator")
	s.reset(now)
	return nil
}

func (s *Session) reset(now time.Time) {
	s.address = 0
	s.lastReset = now
	s.retry.Reset()
	s.nextAttempt = now
	s.transition(Unjoined, now)
}

func (s *Session) transition(to State, now time.Time) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.log.WithFields(logrus.Fields{"from": from, "to": to}).Debug("session state changed")
	s.notify(from, to, now)
}

// notify also runs for Joined to Joined when the assigned address moves.
func (s *Session) notify(from, to State, now time.Time) {
	for _, fn := range s.observers {
		fn(from, to, now)
	}
}

func (s *Session) joinRequest(now time.Time) protocol.Envelope {
	s.lastJoin = now
	s.nextAttempt = now.Add(s.retry.NextBackOff())
	return protocol.Envelope{
		Pipe:    s.conf.Network.BroadcastPipe,
		Message: protocol.NewJoinRequest(s.conf.Unit),
	}
}
