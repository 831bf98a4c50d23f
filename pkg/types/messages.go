// Package types holds the JSON bodies of the HTTP API.
package types

type CreateRoomRequest struct {
	PlayerID string `json:"playerId,omitempty"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

type CreateRoomResponse struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
	JoinURL  string `json:"joinUrl"`
}

type JoinRoomRequest struct {
	PlayerID string `json:"playerId,omitempty"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
}

type JoinRoomResponse struct {
	Code     string `json:"code"`
	PlayerID string `json:"playerId"`
}

type ReadyRequest struct {
	Ready bool `json:"ready"`
}

// NightActionRequest carries the chosen target; omit it for roles without one.
type NightActionRequest struct {
	Target *string `json:"target"`
}

// VoteRequest targets a player id or "SKIP".
type VoteRequest struct {
	Target string `json:"target"`
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}
