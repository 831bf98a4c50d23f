package engine

import (
	"cmp"
	"hash/fnv"
	"math/rand/v2"
	"slices"
	"strconv"
)

var clueTemplates = []string{
	"The darkness surrounds someone whose name is short...",
	"The darkness surrounds someone whose name contains the letter A...",
	"A trail of knocked-over plants leads toward the window...",
	"Someone smelled faintly of catnip last night...",
	"The spirits whisper that chaos sleeps closer than you think...",
}

// NightInput is everything the night resolver reads. Jailed is the set as it was
// when the night began.
type NightInput struct {
	Code       string
	Round      int
	Roles      map[string]Role
	Actions    map[string]NightAction
	Jailed     []string
	Eliminated []string
}

func NightInputFor(r Room) NightInput {
	return NightInput{
		Code:       r.Code,
		Round:      r.GameState.Round,
		Roles:      r.GameState.Roles,
		Actions:    r.GameState.NightActions,
		Jailed:     r.GameState.Jailed,
		Eliminated: r.GameState.Eliminated,
	}
}

type SheriffVerdict struct {
	Target    string `json:"target"`
	Role      Role   `json:"role"`
	IsNaughty bool   `json:"isNaughty"`
}

// NightResult is derived on demand and never stored. Verdicts and Clues are
// keyed by the acting player and must only be shown to that player.
type NightResult struct {
	Framed       *string
	Protected    *string
	WasProtected bool
	Jailed       []string
	Verdicts     map[string]SheriffVerdict
	Clues        map[string]string
}

// ResolveNight applies the night's actions. When more than one naughty player
// acted, the earliest action with a legal target wins; equal timestamps fall
// back to the lower player id.
func ResolveNight(in NightInput) NightResult {
	g := GameState{Roles: in.Roles, Jailed: in.Jailed, Eliminated: in.Eliminated}
	res := NightResult{
		Jailed:   slices.Clone(in.Jailed),
		Verdicts: map[string]SheriffVerdict{},
		Clues:    map[string]string{},
	}

	res.Framed = canonicalTarget(in, g, RoleNaughty, func(target string) bool {
		return g.IsAlive(target)
	})
	res.Protected = canonicalTarget(in, g, RoleHealer, func(target string) bool {
		return g.IsAlive(target)
	})
	res.WasProtected = res.Framed != nil && res.Protected != nil && *res.Framed == *res.Protected

	if res.Framed != nil && !res.WasProtected && !slices.Contains(res.Jailed, *res.Framed) {
		res.Jailed = append(res.Jailed, *res.Framed)
	}

	for _, actor := range actorsWithRole(in, g, RoleSheriff) {
		target := in.Actions[actor].Target
		if target == nil {
			continue
		}
		role, ok := in.Roles[*target]
		if !ok {
			continue
		}
		res.Verdicts[actor] = SheriffVerdict{Target: *target, Role: role, IsNaughty: role == RoleNaughty}
	}

	for _, actor := range actorsWithRole(in, g, RoleOracle) {
		res.Clues[actor] = OracleClue(in.Code, in.Round, actor)
	}

	return res
}

// OracleClue picks a clue template deterministically from the room, round and
// oracle so every client shows the same text.
func OracleClue(code string, round int, oracle string) string {
	h := fnv.New64a()
	h.Write([]byte(code))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(round)))
	h.Write([]byte{0})
	h.Write([]byte(oracle))
	sum := h.Sum64()
	rng := rand.New(rand.NewPCG(sum, sum>>7|1))
	return clueTemplates[rng.IntN(len(clueTemplates))]
}

// actorsWithRole returns, in submission order, the players whose action counts
// for role: they hold the role, are alive and were not jailed at nightfall.
func actorsWithRole(in NightInput, g GameState, role Role) []string {
	var actors []string
	for id, a := range in.Actions {
		if in.Roles[id] != role || a.Role != role {
			continue
		}
		if !g.IsActive(id) {
			continue
		}
		actors = append(actors, id)
	}
	slices.SortFunc(actors, func(a, b string) int {
		if c := cmp.Compare(in.Actions[a].Timestamp, in.Actions[b].Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return actors
}

func canonicalTarget(in NightInput, g GameState, role Role, legal func(string) bool) *string {
	for _, actor := range actorsWithRole(in, g, role) {
		target := in.Actions[actor].Target
		if target != nil && legal(*target) {
			t := *target
			return &t
		}
	}
	return nil
}
