package mesh

import (
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
)

type stateHandler interface {
	execute(now time.Time) []protocol.Envelope
	setNext(stateHandler)
}

type baseState struct {
	next    stateHandler
	session *Session
}

func (bs *baseState) execute(now time.Time) []protocol.Envelope { return nil }

func (bs *baseState) setNext(next stateHandler) {
	bs.next = next
}

func newStateHandlerChain(s *Session) stateHandler {
	unjoined := &unjoinedStateHandler{baseState{session: s}}
	joining := &joiningStateHandler{baseState{session: s}}
	joined := &joinedStateHandler{baseState{session: s}}
	unjoined.setNext(joining)
	joining.setNext(joined)
	joined.setNext(&baseState{session: s})
	return unjoined
}

type unjoinedStateHandler struct {
	baseState
}

func (h *unjoinedStateHandler) execute(now time.Time) []protocol.Envelope {
	s := h.session
	if s.state != Unjoined {
		return h.next.execute(now)
	}
	if !s.lastJoin.IsZero() && now.Before(s.nextAttempt) {
		return nil
	}
	s.log.Debugf("send a join request as %s", s.conf.Unit)
	request := s.joinRequest(now)
	s.transition(Joining, now)
	return []protocol.Envelope{request}
}

type joiningStateHandler struct {
	baseState
}

func (h *joiningStateHandler) execute(now time.Time) []protocol.Envelope {
	s := h.session
	if s.state != Joining {
		return h.next.execute(now)
	}
	if now.Before(s.nextAttempt) {
		return nil
	}
	s.log.Warnln("join request timed out")
	s.transition(Unjoined, now)
	return nil
}

type joinedStateHandler struct {
	baseState
}

func (h *joinedStateHandler) execute(now time.Time) []protocol.Envelope {
	s := h.session
	if s.state != Joined {
		return h.next.execute(now)
	}
	if now.Sub(s.lastRenewal) < s.conf.Network.ResetInterval {
		return nil
	}
	s.log.Infoln("session expired without renewal")
	s.reset(now)
	return nil
}
