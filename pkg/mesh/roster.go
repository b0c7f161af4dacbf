package mesh

import (
	"sort"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Member is one joined unit as seen by the coordinator.
type Member struct {
	Identity    entities.UnitIdentity
	Assigned    uint8
	Pipe        entities.PipeAddress
	LastRenewal time.Time
}

// Roster is the coordinator's routing table: assigned id to member.
type Roster struct {
	conf     entities.NodeConfig
	members  map[uint8]*Member
	lastPoll uint8
	polledAt time.Time
	onJoin   []func(Member)
	log      *logrus.Entry
}

func NewRoster(conf entities.NodeConfig, log *logrus.Entry) *Roster {
	return &Roster{
		conf:    conf,
		members: make(map[uint8]*Member),
		log:     log,
	}
}

// OnJoin registers a callback run for every new or renewed member.
func (r *Roster) OnJoin(fn func(Member)) {
	r.onJoin = append(r.onJoin, fn)
}

func (r *Roster) capacity() int {
	return r.conf.Network.MaxSize - 1
}

func (r *Roster) Len() int {
	return len(r.members)
}

func (r *Roster) Lookup(id uint8) (Member, bool) {
	m, ok := r.members[id]
	if !ok {
		return Member{}, false
	}
	return *m, true
}

// Members returns a snapshot ordered by assigned id.
func (r *Roster) Members() []Member {
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Assigned < out[j].Assigned })
	return out
}

// HandleJoinRequest admits or renews a unit and returns the confirm to send.
// A unit keeps its requested id when that id is valid and free; otherwise it
// gets the lowest free id and the confirm goes out on the broadcast pipe,
// since the unit is not yet listening on its new address.
func (r *Roster) HandleJoinRequest(m protocol.Message, now time.Time) (protocol.Envelope, error) {
	identity, err := m.Identity()
	if err != nil {
		return protocol.Envelope{}, err
	}
	if identity.Class == "" {
		return protocol.Envelope{}, errors.Wrap(ErrInvalidUnit, "empty class")
	}

	member := r.find(identity)
	if member == nil {
		assigned, ok := r.assign(identity)
		if !ok {
			return protocol.Envelope{}, errors.Wrapf(ErrRosterFull, "%d of %d slots used", len(r.members), r.capacity())
		}
		member = &Member{
			Identity: identity,
			Assigned: assigned,
			Pipe:     r.conf.Network.BasePipe.Offset(assigned),
		}
		r.members[assigned] = member
		r.log.Infof("admitted %s as unit %d", identity, assigned)
	} else {
		r.log.Debugf("renewed %s", identity)
	}
	member.LastRenewal = now
	for _, fn := range r.onJoin {
		fn(*member)
	}

	pipe := r.conf.Network.BasePipe.Offset(identity.ID)
	if member.Assigned != identity.ID {
		pipe = r.conf.Network.BroadcastPipe
	}
	return protocol.Envelope{Pipe: pipe, Message: protocol.NewJoinConfirm(identity, member.Assigned)}, nil
}

func (r *Roster) find(identity entities.UnitIdentity) *Member {
	for _, m := range r.members {
		if m.Identity == identity {
			return m
		}
	}
	return nil
}

func (r *Roster) assign(identity entities.UnitIdentity) (uint8, bool) {
	if len(r.members) >= r.capacity() {
		return 0, false
	}
	if r.valid(identity.ID) {
		if _, taken := r.members[identity.ID]; !taken {
			return identity.ID, true
		}
	}
	for id := 1; id < r.conf.Network.MaxSize; id++ {
		if _, taken := r.members[uint8(id)]; !taken {
			return uint8(id), true
		}
	}
	return 0, false
}

func (r *Roster) valid(id uint8) bool {
	return id != entities.CoordinatorID && int(id) < r.conf.Network.MaxSize
}

// Expire removes members not renewed within the reset interval and returns
// their ids.
func (r *Roster) Expire(now time.Time) []uint8 {
	var expired []uint8
	for id, m := range r.members {
		if now.Sub(m.LastRenewal) >= r.conf.Network.ResetInterval {
			expired = append(expired, id)
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	for _, id := range expired {
		r.log.Infof("unit %d expired from roster", id)
		delete(r.members, id)
	}
	return expired
}

// Remove drops one member, for example after telling it to reset.
func (r *Roster) Remove(id uint8) bool {
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	r.log.Infof("unit %d removed from roster", id)
	return true
}

// Reset clears the roster and returns the broadcast that tells every unit to
// rejoin.
func (r *Roster) Reset() protocol.Envelope {
	r.members = make(map[uint8]*Member)
	r.log.Infoln("roster cleared")
	return protocol.Envelope{Pipe: r.conf.Network.BroadcastPipe, Message: protocol.NewReset()}
}

// Poll returns the next data request in round-robin order, at most one per
// poll interval. A zero poll interval disables polling.
func (r *Roster) Poll(now time.Time) (protocol.Envelope, bool) {
	if r.conf.Network.PollInterval <= 0 || len(r.members) == 0 {
		return protocol.Envelope{}, false
	}
	if !r.polledAt.IsZero() && now.Sub(r.polledAt) < r.conf.Network.PollInterval {
		return protocol.Envelope{}, false
	}
	members := r.Members()
	next := members[0]
	for _, m := range members {
		if m.Assigned > r.lastPoll {
			next = m
			break
		}
	}
	r.lastPoll = next.Assigned
	r.polledAt = now
	return protocol.Envelope{Pipe: next.Pipe, Message: protocol.NewDataRequest(next.Assigned)}, true
}
