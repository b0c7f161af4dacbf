package mesh

import (
	"testing"
	"time"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lurker(id uint8) entities.UnitIdentity {
	return entities.UnitIdentity{Class: "lurker", ID: id}
}

func TestGivenRoomThenJoinConfirmOnUnitPipe(t *testing.T) {
	conf := testConfig(entities.CoordinatorID)
	roster := NewRoster(conf, nullLog())

	out, err := roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(2)), epoch)

	require.NoError(t, err)
	assert.Equal(t, conf.Network.BasePipe+2, out.Pipe)
	assert.Equal(t, protocol.NewJoinConfirm(lurker(2), 2), out.Message)
	member, ok := roster.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, epoch, member.LastRenewal)
}

func TestJoinScenarioEndToEnd(t *testing.T) {
	leafConf := testConfig(2)
	session := NewSession(leafConf, nullLog())
	roster := NewRoster(testConfig(entities.CoordinatorID), nullLog())

	request := session.Tick(epoch)
	require.Len(t, request, 1)
	confirm, err := roster.HandleJoinRequest(request[0].Message, epoch)
	require.NoError(t, err)
	require.NoError(t, session.HandleJoinConfirm(confirm.Message, epoch))

	addr, err := session.Address()
	require.NoError(t, err)
	assert.Equal(t, leafConf.Network.BasePipe+2, addr)
	assert.Equal(t, confirm.Pipe, addr)
}

func TestGivenFullRosterThenJoinIgnored(t *testing.T) {
	conf := testConfig(entities.CoordinatorID)
	conf.Network.MaxSize = 3
	roster := NewRoster(conf, nullLog())

	for _, id := range []uint8{1, 2} {
		_, err := roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(id)), epoch)
		require.NoError(t, err)
	}
	_, err := roster.HandleJoinRequest(protocol.NewJoinRequest(entities.UnitIdentity{Class: "other", ID: 1}), epoch)

	assert.ErrorIs(t, err, ErrRosterFull)
	assert.Equal(t, 2, roster.Len())
}

func TestGivenMemberRejoinsThenRenewedNotDuplicated(t *testing.T) {
	roster := NewRoster(testConfig(entities.CoordinatorID), nullLog())
	_, err := roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(4)), epoch)
	require.NoError(t, err)

	later := epoch.Add(time.Minute)
	_, err = roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(4)), later)
	require.NoError(t, err)

	assert.Equal(t, 1, roster.Len())
	member, _ := roster.Lookup(4)
	assert.Equal(t, later, member.LastRenewal)
}

func TestGivenTakenIDThenNextFreeOnBroadcast(t *testing.T) {
	conf := testConfig(entities.CoordinatorID)
	roster := NewRoster(conf, nullLog())
	_, err := roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(1)), epoch)
	require.NoError(t, err)

	intruder := entities.UnitIdentity{Class: "owl", ID: 1}
	out, err := roster.HandleJoinRequest(protocol.NewJoinRequest(intruder), epoch)

	require.NoError(t, err)
	assert.Equal(t, conf.Network.BroadcastPipe, out.Pipe)
	assigned, err := out.Message.AssignedID()
	require.NoError(t, err)
	assert.Equal(t, uint8(2), assigned)
}

func TestGivenOutOfRangeIDThenReassigned(t *testing.T) {
	roster := NewRoster(testConfig(entities.CoordinatorID), nullLog())
	out, err := roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(40)), epoch)

	require.NoError(t, err)
	assigned, _ := out.Message.AssignedID()
	assert.Equal(t, uint8(1), assigned)
}

func TestExpireRemovesStaleMembers(t *testing.T) {
	conf := testConfig(entities.CoordinatorID)
	roster := NewRoster(conf, nullLog())
	_, _ = roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(1)), epoch)
	_, _ = roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(2)), epoch.Add(time.Minute))

	expired := roster.Expire(epoch.Add(conf.Network.ResetInterval))

	assert.Equal(t, []uint8{1}, expired)
	assert.Equal(t, 1, roster.Len())
	assert.Empty(t, roster.Expire(epoch.Add(conf.Network.ResetInterval)))
}

func TestResetBroadcastsAndClears(t *testing.T) {
	conf := testConfig(entities.CoordinatorID)
	roster := NewRoster(conf, nullLog())
	_, _ = roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(1)), epoch)

	out := roster.Reset()

	assert.Equal(t, conf.Network.BroadcastPipe, out.Pipe)
	assert.Equal(t, protocol.TypeReset, out.Message.Type)
	assert.Zero(t, roster.Len())
}

func TestOnJoinCallback(t *testing.T) {
	roster := NewRoster(testConfig(entities.CoordinatorID), nullLog())
	var joined []Member
	roster.OnJoin(func(m Member) { joined = append(joined, m) })

	_, _ = roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(3)), epoch)

	require.Len(t, joined, 1)
	assert.Equal(t, lurker(3), joined[0].Identity)
}

func TestPollRoundRobin(t *testing.T) {
	conf := testConfig(entities.CoordinatorID)
	conf.Network.PollInterval = 5 * time.Second
	roster := NewRoster(conf, nullLog())
	for _, id := range []uint8{1, 3} {
		_, _ = roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(id)), epoch)
	}

	var polled []uint8
	for i := 0; i < 3; i++ {
		out, ok := roster.Poll(epoch.Add(time.Duration(i) * 5 * time.Second))
		require.True(t, ok)
		id, _ := out.Message.UnitID()
		polled = append(polled, id)
	}
	_, ok := roster.Poll(epoch.Add(11 * time.Second))

	assert.Equal(t, []uint8{1, 3, 1}, polled)
	assert.False(t, ok)
}

func TestPollDisabledByDefault(t *testing.T) {
	roster := NewRoster(testConfig(entities.CoordinatorID), nullLog())
	_, _ = roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(1)), epoch)
	_, ok := roster.Poll(epoch)
	assert.False(t, ok)
}

func TestRemoveMember(t *testing.T) {
	roster := NewRoster(testConfig(entities.CoordinatorID), nullLog())
	_, err := roster.HandleJoinRequest(protocol.NewJoinRequest(lurker(3)), epoch)
	require.NoError(t, err)

	assert.True(t, roster.Remove(3))
	assert.False(t, roster.Remove(3))
	assert.Zero(t, roster.Len())
}
