package types

import (
	"github.com/kittynight/naughty-kitty/internal/engine"
	"github.com/kittynight/naughty-kitty/internal/room"
)

// Client -> server command types.
const (
	CmdSetReady        = "SetReady"
	CmdStart           = "StartGame"
	CmdNightAction     = "NightAction"
	CmdProceed         = "ProceedToDiscussion"
	CmdDiscussionReady = "DiscussionReady"
	CmdVote            = "Vote"
	CmdContinue        = "Continue"
	CmdReset           = "ResetToLobby"
)

// Server -> client message types.
const (
	MsgRoomSnapshot = "RoomSnapshot"
	MsgError        = "Error"
)

type ClientMessage struct {
	Type   string  `json:"type"`
	Ready  bool    `json:"ready,omitempty"`
	Target *string `json:"target,omitempty"`
}

// RoomView is the public state of a room plus what can be derived from it.
type RoomView struct {
	Version int64                `json:"version"`
	Room    engine.Room          `json:"room"`
	Outcome engine.Outcome       `json:"outcome"`
	Summary *room.MorningSummary `json:"summary,omitempty"`
}

// NewRoomView derives the view of r for viewer; an empty viewer sees no roles.
func NewRoomView(version int64, r engine.Room, viewer string) RoomView {
	return RoomView{
		Version: version,
		Room:    room.Redact(r, viewer),
		Outcome: r.Outcome(),
		Summary: room.Summarize(r),
	}
}

type ServerMessage struct {
	Type   string       `json:"type"` // "RoomSnapshot" | "Error"
	View   *RoomView    `json:"view,omitempty"`
	Reveal *room.Reveal `json:"reveal,omitempty"`
	Error  string       `json:"error,omitempty"`
	Code   string       `json:"code,omitempty"`
}
