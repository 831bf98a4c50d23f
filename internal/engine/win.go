package engine

type Outcome string

const (
	OutcomeOngoing     Outcome = "ongoing"
	OutcomeGoodWins    Outcome = "good_wins"
	OutcomeNaughtyWins Outcome = "naughty_wins"
)

// EvaluateWin decides the game. Jailed naughty players still block a good win
// but do not count toward naughty parity.
func EvaluateWin(roles map[string]Role, eliminated, jailed []string) Outcome {
	g := GameState{Roles: roles, Eliminated: eliminated, Jailed: jailed}

	aliveNaughty, activeNaughty, activeGood := 0, 0, 0
	for id, role := range roles {
		if !g.IsAlive(id) {
			continue
		}
		naughty := role.Faction() == FactionNaughty
		if naughty {
			aliveNaughty++
		}
		if g.IsJailed(id) {
			continue
		}
		if naughty {
			activeNaughty++
		} else {
			activeGood++
		}
	}

	switch {
	case aliveNaughty == 0:
		return OutcomeGoodWins
	case activeNaughty > 0 && activeNaughty >= activeGood:
		return OutcomeNaughtyWins
	default:
		return OutcomeOngoing
	}
}

func (r Room) Outcome() Outcome {
	if r.GameState.Phase == PhaseLobby || len(r.GameState.Roles) == 0 {
		return OutcomeOngoing
	}
	return EvaluateWin(r.GameState.Roles, r.GameState.Eliminated, r.GameState.Jailed)
}
