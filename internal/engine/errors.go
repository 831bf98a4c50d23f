package engine

import "errors"

var ErrInvalidPlayerCount = errors.New("invalid player count")
var ErrRoomNotFound = errors.New("room not found")
var ErrRoomFull = errors.New("room is full")
var ErrGameAlreadyInProgress = errors.New("game already in progress")
var ErrStaleTransition = errors.New("stale transition")
var ErrMissingRole = errors.New("no role assigned, please rejoin")
var ErrNotHost = errors.New("only the host can do that")
var ErrPlayersNotReady = errors.New("not every player is ready")
var ErrNotInRoom = errors.New("player is not in this room")
var ErrNotActive = errors.New("player cannot act right now")
var ErrIllegalTarget = errors.New("illegal target")
var ErrGameOver = errors.New("game is over")
var ErrWrongPhase = errors.New("action not allowed in this phase")
