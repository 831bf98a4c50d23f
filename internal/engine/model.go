package engine

import "slices"

const (
	MinPlayers = 4
	MaxPlayers = 10

	// Skip is the vote target for abstaining.
	Skip = "SKIP"
)

type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseRoleReveal Phase = "role_reveal"
	PhaseNight      Phase = "night"
	PhaseMorning    Phase = "morning"
	PhaseDiscussion Phase = "discussion"
	PhaseVoting     Phase = "voting"
	PhaseResult     Phase = "result"
	PhaseTransition Phase = "transition"
)

// phaseOrder lists the legal successors of each phase. result may also return to
// lobby on an explicit reset.
var phaseOrder = map[Phase][]Phase{
	PhaseLobby:      {PhaseRoleReveal},
	PhaseRoleReveal: {PhaseNight},
	PhaseNight:      {PhaseMorning},
	PhaseMorning:    {PhaseDiscussion},
	PhaseDiscussion: {PhaseVoting},
	PhaseVoting:     {PhaseResult},
	PhaseResult:     {PhaseTransition, PhaseLobby},
	PhaseTransition: {PhaseNight},
}

func (p Phase) CanTransitionTo(next Phase) bool {
	return slices.Contains(phaseOrder[p], next)
}

type Role string

const (
	RoleRegular Role = "regular"
	RoleNaughty Role = "naughty"
	RoleSheriff Role = "sheriff"
	RoleHealer  Role = "healer"
	RoleOracle  Role = "oracle"
)

type Faction string

const (
	FactionGood    Faction = "good"
	FactionNaughty Faction = "naughty"
)

func (r Role) Faction() Faction {
	if r == RoleNaughty {
		return FactionNaughty
	}
	return FactionGood
}

type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusInProgress RoomStatus = "in_progress"
)

// Avatars is the fixed set a player may pick from.
var Avatars = []string{
	"orange_tabby",
	"black_cat",
	"white_cat",
	"gray_cat",
	"calico",
	"siamese",
	"tuxedo",
	"brown_tabby",
}

type Player struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	IsHost   bool   `json:"isHost"`
	Ready    bool   `json:"ready"`
	JoinedAt int64  `json:"joinedAt"`
}

type NightAction struct {
	Role      Role    `json:"role"`
	Target    *string `json:"target"`
	Timestamp int64   `json:"timestamp"`
}

type GameState struct {
	Phase           Phase                  `json:"phase"`
	Round           int                    `json:"round"`
	Roles           map[string]Role        `json:"roles,omitempty"`
	NightActions    map[string]NightAction `json:"nightActions,omitempty"`
	Votes           map[string]string      `json:"votes,omitempty"`
	Jailed          []string               `json:"jailed,omitempty"`
	Eliminated      []string               `json:"eliminated,omitempty"`
	DiscussionReady map[string]bool        `json:"discussionReady,omitempty"`
	LastEliminated  *string                `json:"lastEliminated"`
}

// Room is the shared document every client reads and partially writes.
type Room struct {
	Code      string            `json:"code"`
	HostID    string            `json:"hostId"`
	Players   map[string]Player `json:"players"`
	GameState GameState         `json:"gameState"`
	Status    RoomStatus        `json:"status"`
	CreatedAt int64             `json:"createdAt"`
}

// NewRoom builds the initial document for a room created by host.
func NewRoom(code string, host Player, now int64) Room {
	host.IsHost = true
	host.Ready = false
	host.JoinedAt = now
	return Room{
		Code:      code,
		HostID:    host.ID,
		Players:   map[string]Player{host.ID: host},
		GameState: GameState{Phase: PhaseLobby, Round: 0},
		Status:    StatusWaiting,
		CreatedAt: now,
	}
}

func (g GameState) IsEliminated(id string) bool { return slices.Contains(g.Eliminated, id) }
func (g GameState) IsJailed(id string) bool     { return slices.Contains(g.Jailed, id) }

// IsAlive reports whether id holds a role and has not been voted out.
func (g GameState) IsAlive(id string) bool {
	_, ok := g.Roles[id]
	return ok && !g.IsEliminated(id)
}

// IsActive reports whether id is alive and not jailed.
func (g GameState) IsActive(id string) bool {
	return g.IsAlive(id) && !g.IsJailed(id)
}

// AlivePlayers returns the sorted ids of alive players still in the room.
func (r Room) AlivePlayers() []string {
	return r.present(r.GameState.IsAlive)
}

// ActivePlayers returns the sorted ids of active players still in the room.
func (r Room) ActivePlayers() []string {
	return r.present(r.GameState.IsActive)
}

func (r Room) present(keep func(string) bool) []string {
	ids := make([]string, 0, len(r.GameState.Roles))
	for id := range r.GameState.Roles {
		if _, inRoom := r.Players[id]; inRoom && keep(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// PlayerIDs returns the sorted ids of everyone in the room.
func (r Room) PlayerIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for id := range r.Players {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// EarliestJoined returns the id of the longest-present player, excluding skip.
func (r Room) EarliestJoined(skip string) (string, bool) {
	var best Player
	found := false
	for _, id := range r.PlayerIDs() {
		if id == skip {
			continue
		}
		p := r.Players[id]
		if !found || p.JoinedAt < best.JoinedAt {
			best, found = p, true
		}
	}
	return best.ID, found
}
