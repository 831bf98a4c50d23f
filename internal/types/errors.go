package types

import (
	"errors"
	"net/http"

	"github.com/kittynight/naughty-kitty/internal/engine"
	"github.com/kittynight/naughty-kitty/internal/room"
)

var ErrUnknownCommand = errors.New("unknown type")

type errorClass struct {
	target error
	status int
	code   string
}

var errorClasses = []errorClass{
	{engine.ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
	{engine.ErrRoomFull, http.StatusConflict, "room_full"},
	{engine.ErrGameAlreadyInProgress, http.StatusConflict, "game_in_progress"},
	{engine.ErrMissingRole, http.StatusConflict, "missing_role"},
	{engine.ErrNotHost, http.StatusForbidden, "not_host"},
	{engine.ErrNotInRoom, http.StatusForbidden, "not_in_room"},
	{room.ErrInvalidName, http.StatusBadRequest, "invalid_profile"},
	{room.ErrInvalidAvatar, http.StatusBadRequest, "invalid_profile"},
	{engine.ErrIllegalTarget, http.StatusBadRequest, "illegal_target"},
	{engine.ErrNotActive, http.StatusConflict, "not_active"},
	{engine.ErrWrongPhase, http.StatusConflict, "wrong_phase"},
	{engine.ErrPlayersNotReady, http.StatusConflict, "players_not_ready"},
	{engine.ErrInvalidPlayerCount, http.StatusConflict, "invalid_player_count"},
	{engine.ErrGameOver, http.StatusConflict, "game_over"},
	{ErrUnknownCommand, http.StatusBadRequest, "unknown_type"},
	{room.ErrCodeExhausted, http.StatusServiceUnavailable, "no_free_code"},
}

// Classify maps an error to an HTTP status and a stable client-facing code.
// Unknown errors are internal.
func Classify(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, "internal"
}
