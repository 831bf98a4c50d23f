package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/kittynight/naughty-kitty/internal/coordinator"
	"github.com/kittynight/naughty-kitty/internal/engine"
	"github.com/kittynight/naughty-kitty/internal/room"
	"github.com/kittynight/naughty-kitty/internal/store"
	"github.com/kittynight/naughty-kitty/internal/types"
)

type Deps struct {
	Store store.Store
	Rooms *room.Service
	Coord *coordinator.Coordinator
	Log   *zap.Logger
}

// Handler streams room snapshots to one player and accepts their commands.
// The player is named by ?player=<id>; without it the stream is read-only.
func Handler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))
		player := r.URL.Query().Get("player")

		if _, _, err := d.Rooms.Load(r.Context(), code); err != nil {
			status, _ := types.Classify(err)
			http.Error(w, err.Error(), status)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := d.Log.With(zap.String("room", code), zap.String("player", player))
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		go func() {
			defer cancel()
			if err := stream(ctx, d.Store, conn, code, player); err != nil && ctx.Err() == nil {
				log.Debug("stream ended", zap.Error(err))
			}
			conn.Close(websocket.StatusGoingAway, "room closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				// Clean close/going-away and cancellation all end the session.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = writeMessage(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: "bad json", Code: "bad_json"})
				continue
			}
			if player == "" {
				_ = writeMessage(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: "read-only connection", Code: "missing_player"})
				continue
			}

			err = dispatch(ctx, d, code, player, cm)
			if err == nil || errors.Is(err, engine.ErrStaleTransition) {
				continue
			}
			_, errCode := types.Classify(err)
			if errCode == "internal" {
				log.Warn("command failed", zap.String("type", cm.Type), zap.Error(err))
			}
			_ = writeMessage(ctx, conn, types.ServerMessage{Type: types.MsgError, Error: err.Error(), Code: errCode})
		}
	}
}

func dispatch(ctx context.Context, d Deps, code, player string, m types.ClientMessage) error {
	switch m.Type {
	case types.CmdSetReady:
		return d.Rooms.SetReady(ctx, code, player, m.Ready)
	case types.CmdStart:
		return d.Coord.StartGame(ctx, code, player)
	case types.CmdNightAction:
		return d.Rooms.SubmitNightAction(ctx, code, player, m.Target)
	case types.CmdProceed:
		return d.Coord.ProceedToDiscussion(ctx, code, player)
	case types.CmdDiscussionReady:
		return d.Rooms.MarkDiscussionReady(ctx, code, player)
	case types.CmdVote:
		if m.Target == nil {
			return engine.ErrIllegalTarget
		}
		return d.Rooms.CastVote(ctx, code, player, *m.Target)
	case types.CmdContinue:
		return d.Coord.ContinueAfterResult(ctx, code, player)
	case types.CmdReset:
		return d.Coord.ResetToLobby(ctx, code, player)
	default:
		return types.ErrUnknownCommand
	}
}

// stream forwards snapshots until the room goes away or ctx ends, subscribing
// again whenever the store drops a slow subscription.
func stream(ctx context.Context, st store.Store, conn *websocket.Conn, code, player string) error {
	for {
		sub, unsubscribe, err := st.Subscribe(ctx, code)
		if err != nil {
			return err
		}
		err = forward(ctx, sub, conn, player)
		unsubscribe()
		if err != nil {
			return err
		}
		if _, err := st.Get(ctx, code); err != nil {
			return err
		}
	}
}

// forward returns nil when sub is closed.
func forward(ctx context.Context, sub <-chan store.Snapshot, conn *websocket.Conn, player string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-sub:
			if !ok {
				return nil
			}
			if err := writeSnapshot(ctx, conn, snap, player); err != nil {
				return err
			}
		}
	}
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, snap store.Snapshot, player string) error {
	var current engine.Room
	if err := snap.Decode(&current); err != nil {
		return err
	}
	view := types.NewRoomView(snap.Version, current, player)
	msg := types.ServerMessage{Type: types.MsgRoomSnapshot, View: &view}
	if player != "" {
		if rev, err := room.PrivateReveal(current, player); err == nil {
			msg.Reveal = &rev
		}
	}
	return writeMessage(ctx, conn, msg)
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
