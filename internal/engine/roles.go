package engine

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

type RoleCount struct {
	Role  Role
	Count int
}

// Distribution is the role multiset for each supported player count.
var Distribution = map[int][]RoleCount{
	4: {
		{RoleNaughty, 1}, {RoleSheriff, 1}, {RoleRegular, 2},
	},
	5: {
		{RoleNaughty, 1}, {RoleSheriff, 1}, {RoleHealer, 1}, {RoleRegular, 2},
	},
	6: {
		{RoleNaughty, 1}, {RoleSheriff, 1}, {RoleHealer, 1}, {RoleRegular, 3},
	},
	7: {
		{RoleNaughty, 1}, {RoleSheriff, 1}, {RoleHealer, 1}, {RoleOracle, 1}, {RoleRegular, 3},
	},
	8: {
		{RoleNaughty, 1}, {RoleSheriff, 1}, {RoleHealer, 1}, {RoleOracle, 1}, {RoleRegular, 4},
	},
	9: {
		{RoleNaughty, 2}, {RoleSheriff, 1}, {RoleHealer, 1}, {RoleOracle, 1}, {RoleRegular, 4},
	},
	10: {
		{RoleNaughty, 2}, {RoleSheriff, 1}, {RoleHealer, 1}, {RoleOracle, 1}, {RoleRegular, 5},
	},
}

// RolePool expands the distribution for n players into role tokens.
func RolePool(n int) ([]Role, error) {
	dist, ok := Distribution[n]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPlayerCount, n)
	}
	pool := make([]Role, 0, n)
	for _, rc := range dist {
		for range rc.Count {
			pool = append(pool, rc.Role)
		}
	}
	return pool, nil
}

// AssignRoles deals the role pool for len(playerIDs) players. Both the roles and
// the players are Fisher-Yates shuffled with rng before being zipped.
func AssignRoles(playerIDs []string, rng *rand.Rand) (map[string]Role, error) {
	pool, err := RolePool(len(playerIDs))
	if err != nil {
		return nil, err
	}

	players := slices.Clone(playerIDs)
	slices.Sort(players)
	if len(slices.Compact(slices.Clone(players))) != len(players) {
		return nil, fmt.Errorf("%w: duplicate player ids", ErrInvalidPlayerCount)
	}

	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	rng.Shuffle(len(players), func(i, j int) { players[i], players[j] = players[j], players[i] })

	roles := make(map[string]Role, len(players))
	for i, id := range players {
		roles[id] = pool[i]
	}
	return roles, nil
}
