package room

import (
	"context"
	"fmt"

	"github.com/kittynight/naughty-kitty/internal/engine"
)

// Reveal is what one player may privately know about themselves.
type Reveal struct {
	Role       engine.Role    `json:"role"`
	Faction    engine.Faction `json:"faction"`
	Phase      engine.Phase   `json:"phase"`
	Round      int            `json:"round"`
	Jailed     bool           `json:"jailed"`
	Eliminated bool           `json:"eliminated"`

	// Set only during the morning, for the player who acted.
	Verdict *engine.SheriffVerdict `json:"verdict,omitempty"`
	Clue    string                 `json:"clue,omitempty"`
	Saved   *bool                  `json:"saved,omitempty"`
}

// MorningSummary is the public account of the night.
type MorningSummary struct {
	Framed    *string `json:"framed"`
	Protected bool    `json:"protected"`
}

// Summarize returns the public night summary while r is in the morning.
func Summarize(r engine.Room) *MorningSummary {
	if r.GameState.Phase != engine.PhaseMorning {
		return nil
	}
	res := engine.ResolveNight(engine.NightInputFor(r))
	return &MorningSummary{Framed: res.Framed, Protected: res.WasProtected}
}

// PrivateReveal derives id's private view from r.
func PrivateReveal(r engine.Room, id string) (Reveal, error) {
	if _, ok := r.Players[id]; !ok {
		return Reveal{}, engine.ErrNotInRoom
	}
	g := r.GameState
	if g.Phase == engine.PhaseLobby {
		return Reveal{}, fmt.Errorf("%w: the game has not started", engine.ErrWrongPhase)
	}
	role, ok := g.Roles[id]
	if !ok {
		return Reveal{}, engine.ErrMissingRole
	}

	out := Reveal{
		Role:       role,
		Faction:    role.Faction(),
		Phase:      g.Phase,
		Round:      g.Round,
		Jailed:     g.IsJailed(id),
		Eliminated: g.IsEliminated(id),
	}
	if g.Phase != engine.PhaseMorning {
		return out, nil
	}

	res := engine.ResolveNight(engine.NightInputFor(r))
	if v, ok := res.Verdicts[id]; ok {
		out.Verdict = &v
	}
	out.Clue = res.Clues[id]
	if role == engine.RoleHealer && res.Protected != nil {
		if a, acted := g.NightActions[id]; acted && a.Target != nil && *a.Target == *res.Protected {
			saved := res.WasProtected
			out.Saved = &saved
		}
	}
	return out, nil
}

func (s *Service) Reveal(ctx context.Context, code, id string) (Reveal, error) {
	r, _, err := s.Load(ctx, code)
	if err != nil {
		return Reveal{}, err
	}
	return PrivateReveal(r, id)
}

// Redact returns the copy of r that viewer may see: their own role and night
// action, and everyone's roles once the game is decided. Other night actions
// only show that they were submitted.
func Redact(r engine.Room, viewer string) engine.Room {
	g := r.GameState
	if g.Phase == engine.PhaseResult && r.Outcome() != engine.OutcomeOngoing {
		return r
	}

	out := r
	out.GameState.Roles = nil
	if role, ok := g.Roles[viewer]; ok {
		out.GameState.Roles = map[string]engine.Role{viewer: role}
	}
	if g.NightActions != nil {
		out.GameState.NightActions = make(map[string]engine.NightAction, len(g.NightActions))
		for id, a := range g.NightActions {
			if id != viewer {
				a = engine.NightAction{Timestamp: a.Timestamp}
			}
			out.GameState.NightActions[id] = a
		}
	}
	return out
}
