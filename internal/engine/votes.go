package engine

import "slices"

type VoteResult struct {
	Counts     map[string]int
	Eliminated *string
	Tie        bool
}

// TallyVotes counts votes from active voters for active targets. SKIP, votes for
// jailed or eliminated players and ties never eliminate anyone.
func TallyVotes(votes map[string]string, g GameState) VoteResult {
	res := VoteResult{Counts: map[string]int{}}
	for voter, target := range votes {
		if target == Skip || !g.IsActive(voter) || !g.IsActive(target) {
			continue
		}
		res.Counts[target]++
	}

	top := 0
	var leaders []string
	for target, n := range res.Counts {
		switch {
		case n > top:
			top = n
			leaders = []string{target}
		case n == top:
			leaders = append(leaders, target)
		}
	}

	if len(leaders) == 1 {
		winner := leaders[0]
		res.Eliminated = &winner
	}
	res.Tie = len(leaders) > 1
	return res
}

// WithElimination appends id to eliminated unless it is already there.
func WithElimination(eliminated []string, id string) []string {
	out := slices.Clone(eliminated)
	if !slices.Contains(out, id) {
		out = append(out, id)
	}
	return out
}
