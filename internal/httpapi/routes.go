package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kittynight/naughty-kitty/internal/coordinator"
	"github.com/kittynight/naughty-kitty/internal/room"
	"github.com/kittynight/naughty-kitty/internal/store"
	"github.com/kittynight/naughty-kitty/internal/ws"
)

// Deps is everything the HTTP layer needs.
type Deps struct {
	Store   store.Store
	Rooms   *room.Service
	Coord   *coordinator.Coordinator
	Watches *coordinator.Manager
	Log     *zap.Logger
	// PublicURL is where players open the game, used for join links and QR
	// codes. When empty it is derived from the request.
	PublicURL string
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/rooms", CreateRoom(d))

	r.Route("/rooms/{code}", func(r chi.Router) {
		r.Use(roomCode(d))

		r.Get("/", GetRoom(d))
		r.Get("/qr.png", JoinQR(d))
		r.Get("/ws", ws.Handler(ws.Deps{Store: d.Store, Rooms: d.Rooms, Coord: d.Coord, Log: d.Log}))

		r.Post("/players", JoinRoom(d))
		r.Delete("/players/{playerID}", LeaveRoom(d))

		// Everything below acts as the X-Player-ID caller.
		r.Group(func(r chi.Router) {
			r.Use(requirePlayer)
			r.Get("/me", Me(d))
			r.Put("/ready", SetReady(d))
			r.Post("/start", HostAction(d, d.Coord.StartGame))
			r.Post("/proceed", HostAction(d, d.Coord.ProceedToDiscussion))
			r.Post("/continue", HostAction(d, d.Coord.ContinueAfterResult))
			r.Post("/reset", HostAction(d, d.Coord.ResetToLobby))
			r.Post("/night-actions", SubmitNightAction(d))
			r.Post("/discussion-ready", DiscussionReady(d))
			r.Post("/votes", CastVote(d))
		})
	})
	return r
}

// roomCode normalizes {code}, rejects malformed ones and makes sure a
// coordinator is following the room.
func roomCode(d Deps) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code := strings.ToUpper(chi.URLParam(r, "code"))
			if !room.ValidCode(code) {
				writeJSONError(w, http.StatusNotFound, "room_not_found", "room not found", nil)
				return
			}
			if d.Watches != nil {
				d.Watches.Ensure(code)
			}
			next.ServeHTTP(w, r.WithContext(withCode(r.Context(), code)))
		})
	}
}

func requirePlayer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if playerID(r) == "" {
			writeJSONError(w, http.StatusUnauthorized, "missing_player", "X-Player-ID header is required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
