package engine

// Guard predicates evaluated on every observed snapshot. They only read the
// document; writing the transition is the coordinator's job.

// CanStart reports why the lobby cannot start yet, or nil.
func CanStart(r Room) error {
	if r.GameState.Phase != PhaseLobby || r.Status != StatusWaiting {
		return ErrGameAlreadyInProgress
	}
	if n := len(r.Players); n < MinPlayers || n > MaxPlayers {
		return ErrInvalidPlayerCount
	}
	for _, p := range r.Players {
		if !p.Ready {
			return ErrPlayersNotReady
		}
	}
	return nil
}

// PendingNightActors lists alive players who have not submitted tonight.
func PendingNightActors(r Room) []string {
	var pending []string
	for _, id := range r.AlivePlayers() {
		if _, ok := r.GameState.NightActions[id]; !ok {
			pending = append(pending, id)
		}
	}
	return pending
}

func AllNightActionsIn(r Room) bool {
	return r.GameState.Phase == PhaseNight && len(PendingNightActors(r)) == 0
}

func AllDiscussionReady(r Room) bool {
	if r.GameState.Phase != PhaseDiscussion {
		return false
	}
	for _, id := range r.ActivePlayers() {
		if !r.GameState.DiscussionReady[id] {
			return false
		}
	}
	return true
}

func AllVotesIn(r Room) bool {
	if r.GameState.Phase != PhaseVoting {
		return false
	}
	active := r.ActivePlayers()
	if len(active) == 0 {
		return false
	}
	for _, id := range active {
		if _, ok := r.GameState.Votes[id]; !ok {
			return false
		}
	}
	return true
}
