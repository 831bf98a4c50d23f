package engine

// Document paths used for partial updates. They mirror the JSON tags on Room.
const (
	PathHostID          = "hostId"
	PathPlayers         = "players"
	PathStatus          = "status"
	PathPhase           = "gameState/phase"
	PathRound           = "gameState/round"
	PathRoles           = "gameState/roles"
	PathNightActions    = "gameState/nightActions"
	PathVotes           = "gameState/votes"
	PathJailed          = "gameState/jailed"
	PathEliminated      = "gameState/eliminated"
	PathDiscussionReady = "gameState/discussionReady"
	PathLastEliminated  = "gameState/lastEliminated"
)

func PlayerPath(id string) string      { return "players/" + id }
func ReadyPath(id string) string       { return "players/" + id + "/ready" }
func IsHostPath(id string) string      { return "players/" + id + "/isHost" }
func NightActionPath(id string) string { return PathNightActions + "/" + id }
func VotePath(id string) string        { return PathVotes + "/" + id }
func DiscussionReadyPath(id string) string {
	return PathDiscussionReady + "/" + id
}
