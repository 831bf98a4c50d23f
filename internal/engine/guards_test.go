package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func roomWith(phase Phase, roles map[string]Role) Room {
	players := map[string]Player{}
	for id := range roles {
		players[id] = Player{ID: id, Name: id, Ready: true}
	}
	return Room{
		Code:      "GUARDS",
		Players:   players,
		Status:    StatusInProgress,
		GameState: GameState{Phase: phase, Round: 1, Roles: roles},
	}
}

func TestCanStart(t *testing.T) {
	lobby := func(n int, ready bool) Room {
		r := Room{Players: map[string]Player{}, Status: StatusWaiting, GameState: GameState{Phase: PhaseLobby}}
		for _, id := range playerIDs(n) {
			r.Players[id] = Player{ID: id, Ready: ready}
		}
		return r
	}

	cases := []struct {
		name string
		room Room
		want error
	}{
		{name: "four ready players", room: lobby(4, true)},
		{name: "ten ready players", room: lobby(10, true)},
		{name: "three players", room: lobby(3, true), want: ErrInvalidPlayerCount},
		{name: "eleven players", room: lobby(11, true), want: ErrInvalidPlayerCount},
		{name: "someone not ready", room: lobby(5, false), want: ErrPlayersNotReady},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CanStart(tc.room)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestNightGuard(t *testing.T) {
	r := roomWith(PhaseNight, fivePlayerRoles)
	r.GameState.Eliminated = []string{"rosie"}
	r.GameState.Jailed = []string{"remy"}
	r.GameState.NightActions = map[string]NightAction{
		"nina": act(RoleNaughty, ptr("hana"), 1),
		"sam":  act(RoleSheriff, ptr("nina"), 2),
		"hana": act(RoleHealer, ptr("hana"), 3),
	}

	assert.Equal(t, []string{"remy"}, PendingNightActors(r), "jailed players still submit a no-op")
	assert.False(t, AllNightActionsIn(r))

	r.GameState.NightActions["remy"] = act(RoleRegular, nil, 4)
	assert.True(t, AllNightActionsIn(r))
}

func TestDiscussionAndVotingGuards(t *testing.T) {
	r := roomWith(PhaseDiscussion, fivePlayerRoles)
	r.GameState.Jailed = []string{"remy"}
	r.GameState.DiscussionReady = map[string]bool{"nina": true, "sam": true, "hana": true}
	assert.False(t, AllDiscussionReady(r))

	r.GameState.DiscussionReady["rosie"] = true
	assert.True(t, AllDiscussionReady(r), "jailed players are not waited for")

	r.GameState.Phase = PhaseVoting
	r.GameState.Votes = map[string]string{"nina": "sam", "sam": "nina", "hana": Skip}
	assert.False(t, AllVotesIn(r))

	r.GameState.Votes["rosie"] = "nina"
	assert.True(t, AllVotesIn(r))
}

func TestEarliestJoined(t *testing.T) {
	r := Room{Players: map[string]Player{
		"host": {ID: "host", JoinedAt: 1},
		"b":    {ID: "b", JoinedAt: 5},
		"a":    {ID: "a", JoinedAt: 3},
	}}
	next, ok := r.EarliestJoined("host")
	assert.True(t, ok)
	assert.Equal(t, "a", next)
}
