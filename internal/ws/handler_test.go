package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/kittynight/naughty-kitty/internal/coordinator"
	"github.com/kittynight/naughty-kitty/internal/room"
	"github.com/kittynight/naughty-kitty/internal/store"
	"github.com/kittynight/naughty-kitty/internal/types"
)

type fixture struct {
	srv   *httptest.Server
	rooms *room.Service
	code  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	log := zap.NewNop()
	st := store.NewMemory(ctx, log)
	rooms := room.NewService(st, log)
	coord := coordinator.New(st, coordinator.DefaultTimings(), log)

	r := chi.NewRouter()
	r.Get("/rooms/{code}/ws", Handler(Deps{Store: st, Rooms: rooms, Coord: coord, Log: log}))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = st.Close()
	})

	created, err := rooms.Create(ctx, room.Profile{ID: "p1", Name: "Host", Avatar: "calico"})
	require.NoError(t, err)
	return fixture{srv: srv, rooms: rooms, code: created.Code}
}

func dial(t *testing.T, f fixture, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/rooms/" + f.code + "/ws" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, m types.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, raw))
}

func TestHandler_SnapshotThenCommands(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f, "?player=p1")

	first := readMsg(t, conn)
	require.Equal(t, types.MsgRoomSnapshot, first.Type)
	require.NotNil(t, first.View)
	assert.Equal(t, f.code, first.View.Room.Code)
	assert.False(t, first.View.Room.Players["p1"].Ready)
	// Nothing to reveal in the lobby.
	assert.Nil(t, first.Reveal)

	send(t, conn, types.ClientMessage{Type: types.CmdSetReady, Ready: true})
	next := readMsg(t, conn)
	require.Equal(t, types.MsgRoomSnapshot, next.Type)
	assert.Greater(t, next.View.Version, first.View.Version)
	assert.True(t, next.View.Room.Players["p1"].Ready)

	send(t, conn, types.ClientMessage{Type: "Dance"})
	errMsg := readMsg(t, conn)
	assert.Equal(t, types.MsgError, errMsg.Type)
	assert.Equal(t, "unknown_type", errMsg.Code)

	send(t, conn, types.ClientMessage{Type: types.CmdStart})
	errMsg = readMsg(t, conn)
	assert.Equal(t, types.MsgError, errMsg.Type)
	assert.Equal(t, "invalid_player_count", errMsg.Code)
}

func TestHandler_ReadOnlyWithoutPlayer(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f, "")

	first := readMsg(t, conn)
	require.Equal(t, types.MsgRoomSnapshot, first.Type)

	send(t, conn, types.ClientMessage{Type: types.CmdSetReady, Ready: true})
	msg := readMsg(t, conn)
	assert.Equal(t, types.MsgError, msg.Type)
	assert.Equal(t, "missing_player", msg.Code)
}

func TestHandler_SeesOtherPlayersJoin(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f, "?player=p1")
	_ = readMsg(t, conn)

	_, err := f.rooms.Join(context.Background(), f.code, room.Profile{ID: "p2", Name: "Nina", Avatar: "tuxedo"})
	require.NoError(t, err)

	msg := readMsg(t, conn)
	require.Equal(t, types.MsgRoomSnapshot, msg.Type)
	assert.Contains(t, msg.View.Room.Players, "p2")
}

func TestHandler_UnknownRoom(t *testing.T) {
	f := newFixture(t)
	f.code = "ZZZZZZ"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/rooms/" + f.code + "/ws"
	_, res, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 404, res.StatusCode)
}
