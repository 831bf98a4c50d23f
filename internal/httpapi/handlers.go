package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kittynight/naughty-kitty/internal/engine"
	"github.com/kittynight/naughty-kitty/internal/room"
	"github.com/kittynight/naughty-kitty/internal/types"
	api "github.com/kittynight/naughty-kitty/pkg/types"
)

const PlayerHeader = "X-Player-ID"

type ctxKey struct{}

func withCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, ctxKey{}, code)
}

func roomCodeFrom(r *http.Request) string {
	code, _ := r.Context().Value(ctxKey{}).(string)
	return code
}

func playerID(r *http.Request) string {
	if id := r.Header.Get(PlayerHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("player")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string, details []string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg, Code: code, Details: details})
}

// writeError maps err to a response. Internal errors are logged, not echoed.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, code := types.Classify(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		writeJSONError(w, status, code, "internal error", nil)
		return
	}
	var details []string
	if errs := multierr.Errors(err); len(errs) > 1 {
		for _, e := range errs {
			details = append(details, e.Error())
		}
	}
	writeJSONError(w, status, code, err.Error(), details)
}

// done answers a write. A stale write lost a race it did not need to win, so
// it is reported as success.
func done(w http.ResponseWriter, log *zap.Logger, err error) {
	if err != nil && !errors.Is(err, engine.ErrStaleTransition) {
		writeError(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_json", "bad json", nil)
		return false
	}
	return true
}

func (d Deps) joinURL(r *http.Request, code string) string {
	base := strings.TrimRight(d.PublicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host
	}
	return base + "/join/" + code
}

func CreateRoom(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateRoomRequest
		if !decode(w, r, &req) {
			return
		}
		created, err := d.Rooms.Create(r.Context(), room.Profile{ID: req.PlayerID, Name: req.Name, Avatar: req.Avatar})
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		if d.Watches != nil {
			d.Watches.Ensure(created.Code)
		}
		writeJSON(w, http.StatusCreated, api.CreateRoomResponse{
			Code:     created.Code,
			PlayerID: created.HostID,
			JoinURL:  d.joinURL(r, created.Code),
		})
	}
}

func GetRoom(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, snap, err := d.Rooms.Load(r.Context(), roomCodeFrom(r))
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, types.NewRoomView(snap.Version, current, playerID(r)))
	}
}

func JoinRoom(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.JoinRoomRequest
		if !decode(w, r, &req) {
			return
		}
		code := roomCodeFrom(r)
		p, err := d.Rooms.Join(r.Context(), code, room.Profile{ID: req.PlayerID, Name: req.Name, Avatar: req.Avatar})
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusCreated, api.JoinRoomResponse{Code: code, PlayerID: p.ID})
	}
}

// LeaveRoom removes {playerID}. Players remove themselves; the host may
// remove anyone.
func LeaveRoom(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCodeFrom(r)
		target := chi.URLParam(r, "playerID")
		caller := playerID(r)
		if caller != target {
			current, _, err := d.Rooms.Load(r.Context(), code)
			if err != nil {
				writeError(w, d.Log, err)
				return
			}
			if caller == "" || current.HostID != caller {
				writeError(w, d.Log, engine.ErrNotHost)
				return
			}
		}
		done(w, d.Log, d.Rooms.Leave(r.Context(), code, target))
	}
}

func Me(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rev, err := d.Rooms.Reveal(r.Context(), roomCodeFrom(r), playerID(r))
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, rev)
	}
}

func SetReady(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.ReadyRequest
		if !decode(w, r, &req) {
			return
		}
		done(w, d.Log, d.Rooms.SetReady(r.Context(), roomCodeFrom(r), playerID(r), req.Ready))
	}
}

// HostAction wraps a host-only coordinator operation.
func HostAction(d Deps, op func(ctx context.Context, code, requester string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done(w, d.Log, op(r.Context(), roomCodeFrom(r), playerID(r)))
	}
}

func SubmitNightAction(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.NightActionRequest
		if !decode(w, r, &req) {
			return
		}
		done(w, d.Log, d.Rooms.SubmitNightAction(r.Context(), roomCodeFrom(r), playerID(r), req.Target))
	}
}

func DiscussionReady(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		done(w, d.Log, d.Rooms.MarkDiscussionReady(r.Context(), roomCodeFrom(r), playerID(r)))
	}
}

func CastVote(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.VoteRequest
		if !decode(w, r, &req) {
			return
		}
		done(w, d.Log, d.Rooms.CastVote(r.Context(), roomCodeFrom(r), playerID(r), req.Target))
	}
}

// JoinQR renders the room's join link as a PNG.
func JoinQR(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCodeFrom(r)
		if _, _, err := d.Rooms.Load(r.Context(), code); err != nil {
			writeError(w, d.Log, err)
			return
		}

		const qrSize = 320
		png, err := qrcode.Encode(d.joinURL(r, code), qrcode.Medium, qrSize)
		if err != nil {
			writeError(w, d.Log, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
