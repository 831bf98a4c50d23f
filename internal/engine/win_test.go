package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateWin(t *testing.T) {
	fourPlayers := map[string]Role{
		"P1": RoleNaughty, "P2": RoleRegular, "P3": RoleRegular, "P4": RoleRegular,
	}

	cases := []struct {
		name       string
		roles      map[string]Role
		eliminated []string
		jailed     []string
		want       Outcome
	}{
		{
			name:       "good wins once the naughty player is out",
			roles:      map[string]Role{"P1": RoleNaughty, "P2": RoleSheriff},
			eliminated: []string{"P1"},
			want:       OutcomeGoodWins,
		},
		{
			name:       "naughty wins at parity",
			roles:      fourPlayers,
			eliminated: []string{"P2", "P3"},
			want:       OutcomeNaughtyWins,
		},
		{
			name:  "game continues at start",
			roles: fourPlayers,
			want:  OutcomeOngoing,
		},
		{
			name:       "jailed naughty blocks a good win",
			roles:      fourPlayers,
			eliminated: []string{"P2", "P3"},
			jailed:     []string{"P1"},
			want:       OutcomeOngoing,
		},
		{
			name:   "jailed good players count against good",
			roles:  fourPlayers,
			jailed: []string{"P2", "P3"},
			want:   OutcomeNaughtyWins,
		},
		{
			name: "two naughty need parity among active players",
			roles: map[string]Role{
				"N1": RoleNaughty, "N2": RoleNaughty, "G1": RoleRegular, "G2": RoleRegular, "G3": RoleRegular,
			},
			eliminated: []string{"G1"},
			jailed:     []string{"N2"},
			want:       OutcomeOngoing,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateWin(tc.roles, tc.eliminated, tc.jailed)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPhase_CanTransitionTo(t *testing.T) {
	assert.True(t, PhaseTransition.CanTransitionTo(PhaseNight))
	assert.True(t, PhaseResult.CanTransitionTo(PhaseLobby))
	assert.False(t, PhaseNight.CanTransitionTo(PhaseVoting))
	assert.False(t, PhaseVoting.CanTransitionTo(PhaseNight))
}
