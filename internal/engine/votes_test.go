package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTallyVotes(t *testing.T) {
	g := GameState{
		Roles: map[string]Role{
			"A": RoleRegular, "B": RoleRegular, "C": RoleSheriff,
			"X": RoleNaughty, "Y": RoleRegular, "J": RoleRegular, "E": RoleRegular,
		},
		Jailed:     []string{"J"},
		Eliminated: []string{"E"},
	}

	cases := []struct {
		name     string
		votes    map[string]string
		want     *string
		wantTie  bool
		wantSeen map[string]int
	}{
		{
			name:     "split vote is a tie",
			votes:    map[string]string{"A": "X", "B": "Y"},
			wantTie:  true,
			wantSeen: map[string]int{"X": 1, "Y": 1},
		},
		{
			name:     "plurality eliminates",
			votes:    map[string]string{"A": "X", "B": "X", "C": "Y"},
			want:     ptr("X"),
			wantSeen: map[string]int{"X": 2, "Y": 1},
		},
		{
			name:     "all skip eliminates nobody",
			votes:    map[string]string{"A": Skip, "B": Skip},
			wantSeen: map[string]int{},
		},
		{
			name:     "votes for jailed player do not count",
			votes:    map[string]string{"A": "J", "B": "J", "C": "Y"},
			want:     ptr("Y"),
			wantSeen: map[string]int{"Y": 1},
		},
		{
			name:     "jailed and eliminated voters do not count",
			votes:    map[string]string{"J": "X", "E": "X", "A": "Y"},
			want:     ptr("Y"),
			wantSeen: map[string]int{"Y": 1},
		},
		{
			name:     "votes for eliminated or unknown players do not count",
			votes:    map[string]string{"A": "E", "B": "ghost"},
			wantSeen: map[string]int{},
		},
		{
			name:     "skip mixed with a single vote",
			votes:    map[string]string{"A": Skip, "B": Skip, "C": "X"},
			want:     ptr("X"),
			wantSeen: map[string]int{"X": 1},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := TallyVotes(tc.votes, g)
			assert.Equal(t, tc.want, res.Eliminated)
			assert.Equal(t, tc.wantTie, res.Tie)
			assert.Equal(t, tc.wantSeen, res.Counts)
		})
	}
}

func TestWithElimination_NoDuplicates(t *testing.T) {
	once := WithElimination([]string{"A"}, "X")
	twice := WithElimination(once, "X")
	assert.Equal(t, []string{"A", "X"}, twice)
	assert.Equal(t, once, twice)
}
