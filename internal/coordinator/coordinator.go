// Package coordinator performs every phase-advancing write. Writes carry the
// phase and round the writer observed as preconditions, so a transition
// applied twice, or raced by several watchers, lands at most once.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kittynight/naughty-kitty/internal/engine"
	"github.com/kittynight/naughty-kitty/internal/store"
)

// ErrHostChanged ends a Watch whose identity is no longer the room's host.
var ErrHostChanged = errors.New("host changed")

type Timings struct {
	RoleReveal        time.Duration
	NightTimeout      time.Duration
	DiscussionTimeout time.Duration
	DiscussionSettle  time.Duration
	Transition        time.Duration
	// MorningAutoProceed moves morning on to discussion without the host when
	// positive.
	MorningAutoProceed time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		RoleReveal:        3 * time.Second,
		NightTimeout:      30 * time.Second,
		DiscussionTimeout: 60 * time.Second,
		DiscussionSettle:  2 * time.Second,
		Transition:        5 * time.Second,
	}
}

type Coordinator struct {
	store   store.Store
	timings Timings
	log     *zap.Logger
	now     func() time.Time

	mu  sync.Mutex // guards rng
	rng *rand.Rand

	writeAttempts int
	retryBackoff  time.Duration
}

type Option func(*Coordinator)

func WithRand(rng *rand.Rand) Option {
	return func(c *Coordinator) { c.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(s store.Store, timings Timings, log *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         s,
		timings:       timings,
		log:           log,
		now:           time.Now,
		rng:           rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		writeAttempts: 4,
		retryBackoff:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Timings() Timings { return c.timings }

// Load reads and decodes the room document.
func (c *Coordinator) Load(ctx context.Context, code string) (engine.Room, error) {
	snap, err := c.store.Get(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return engine.Room{}, engine.ErrRoomNotFound
	}
	if err != nil {
		return engine.Room{}, err
	}
	var room engine.Room
	if err := snap.Decode(&room); err != nil {
		return engine.Room{}, fmt.Errorf("decode room %s: %w", code, err)
	}
	return room, nil
}

// guardedBy returns the expectations pinning room's phase and round.
func guardedBy(room engine.Room) map[string]any {
	return map[string]any{
		engine.PathPhase: room.GameState.Phase,
		engine.PathRound: room.GameState.Round,
	}
}

// write applies u with the phase/round of from as preconditions, retrying
// transient store failures.
func (c *Coordinator) write(ctx context.Context, from engine.Room, u store.Update) error {
	if u.Expect == nil {
		u.Expect = map[string]any{}
	}
	for path, v := range guardedBy(from) {
		u.Expect[path] = v
	}
	return applyWithRetry(ctx, c.store, from.Code, u, c.writeAttempts, c.retryBackoff)
}

func applyWithRetry(ctx context.Context, s store.Store, code string, u store.Update, attempts int, backoff time.Duration) error {
	_, err := store.ApplyWithRetry(ctx, s, code, u, attempts, backoff)
	switch {
	case errors.Is(err, store.ErrPreconditionFailed):
		return fmt.Errorf("%w: %v", engine.ErrStaleTransition, err)
	case errors.Is(err, store.ErrNotFound):
		return engine.ErrRoomNotFound
	}
	return err
}

func (c *Coordinator) hostOnly(ctx context.Context, code, requester string, phase engine.Phase) (engine.Room, error) {
	room, err := c.Load(ctx, code)
	if err != nil {
		return room, err
	}
	if room.HostID != requester {
		return room, engine.ErrNotHost
	}
	if room.GameState.Phase != phase {
		return room, fmt.Errorf("%w: room is in %s", engine.ErrWrongPhase, room.GameState.Phase)
	}
	return room, nil
}

// StartGame assigns roles and moves the lobby into role_reveal. The write is
// conditioned on the player set the host saw, so a late join or an unready
// toggle makes it stale rather than leaving someone without a role.
func (c *Coordinator) StartGame(ctx context.Context, code, requester string) error {
	room, err := c.Load(ctx, code)
	if err != nil {
		return err
	}
	if room.HostID != requester {
		return engine.ErrNotHost
	}
	if err := engine.CanStart(room); err != nil {
		return err
	}

	c.mu.Lock()
	roles, err := engine.AssignRoles(room.PlayerIDs(), c.rng)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	err = c.write(ctx, room, store.Update{
		Expect: map[string]any{
			engine.PathStatus:  engine.StatusWaiting,
			engine.PathPlayers: room.Players,
		},
		Set: map[string]any{
			engine.PathStatus:          engine.StatusInProgress,
			engine.PathPhase:           engine.PhaseRoleReveal,
			engine.PathRound:           1,
			engine.PathRoles:           roles,
			engine.PathNightActions:    nil,
			engine.PathVotes:           nil,
			engine.PathJailed:          nil,
			engine.PathEliminated:      nil,
			engine.PathDiscussionReady: nil,
			engine.PathLastEliminated:  nil,
		},
	})
	if err != nil {
		return err
	}
	c.log.Info("game started", zap.String("room", code), zap.Int("players", len(roles)))
	return nil
}

// ProceedToDiscussion applies the night's jail delta and opens discussion.
func (c *Coordinator) ProceedToDiscussion(ctx context.Context, code, requester string) error {
	room, err := c.hostOnly(ctx, code, requester, engine.PhaseMorning)
	if err != nil {
		return err
	}
	return c.toDiscussion(ctx, room)
}

// ContinueAfterResult starts the next round, or reports ErrGameOver when the
// game has been decided.
func (c *Coordinator) ContinueAfterResult(ctx context.Context, code, requester string) error {
	room, err := c.hostOnly(ctx, code, requester, engine.PhaseResult)
	if err != nil {
		return err
	}
	if outcome := room.Outcome(); outcome != engine.OutcomeOngoing {
		return fmt.Errorf("%w: %s", engine.ErrGameOver, outcome)
	}
	return c.write(ctx, room, store.Update{Set: map[string]any{
		engine.PathPhase: engine.PhaseTransition,
	}})
}

// ResetToLobby clears every game field and unreadies everyone. A player
// leaving while the reset is in flight makes it start over from a fresh read.
func (c *Coordinator) ResetToLobby(ctx context.Context, code, requester string) error {
	for attempt := 1; ; attempt++ {
		room, err := c.hostOnly(ctx, code, requester, engine.PhaseResult)
		if err != nil {
			return err
		}
		err = c.toLobby(ctx, room)
		if errors.Is(err, engine.ErrStaleTransition) && attempt < c.writeAttempts {
			continue
		}
		if err != nil {
			return err
		}
		c.log.Info("room reset", zap.String("room", code))
		return nil
	}
}

// toLobby is pinned to the players of room as well as its phase, so ready
// flags are only written for players still there.
func (c *Coordinator) toLobby(ctx context.Context, room engine.Room) error {
	set := map[string]any{
		engine.PathStatus:          engine.StatusWaiting,
		engine.PathPhase:           engine.PhaseLobby,
		engine.PathRound:           0,
		engine.PathRoles:           nil,
		engine.PathNightActions:    nil,
		engine.PathVotes:           nil,
		engine.PathJailed:          nil,
		engine.PathEliminated:      nil,
		engine.PathDiscussionReady: nil,
		engine.PathLastEliminated:  nil,
	}
	for _, id := range room.PlayerIDs() {
		set[engine.ReadyPath(id)] = false
	}
	return c.write(ctx, room, store.Update{
		Expect: map[string]any{engine.PathPlayers: room.Players},
		Set:    set,
	})
}

func (c *Coordinator) toNight(ctx context.Context, room engine.Room) error {
	return c.write(ctx, room, store.Update{Set: map[string]any{
		engine.PathPhase:        engine.PhaseNight,
		engine.PathNightActions: nil,
	}})
}

// toMorning closes the night. On timeout every alive player still missing an
// action gets a null one; SetIfAbsent keeps a real action that landed first.
func (c *Coordinator) toMorning(ctx context.Context, room engine.Room, timedOut bool) error {
	u := store.Update{Set: map[string]any{engine.PathPhase: engine.PhaseMorning}}
	if timedOut {
		u.SetIfAbsent = map[string]any{}
		ts := c.now().UnixMilli()
		for _, id := range engine.PendingNightActors(room) {
			u.SetIfAbsent[engine.NightActionPath(id)] = engine.NightAction{
				Role:      room.GameState.Roles[id],
				Target:    nil,
				Timestamp: ts,
			}
		}
	}
	return c.write(ctx, room, u)
}

func (c *Coordinator) toDiscussion(ctx context.Context, room engine.Room) error {
	res := engine.ResolveNight(engine.NightInputFor(room))
	err := c.write(ctx, room, store.Update{Set: map[string]any{
		engine.PathPhase:           engine.PhaseDiscussion,
		engine.PathJailed:          res.Jailed,
		engine.PathDiscussionReady: nil,
	}})
	if err != nil {
		return err
	}
	if res.Framed != nil {
		c.log.Debug("night resolved",
			zap.String("room", room.Code),
			zap.Int("round", room.GameState.Round),
			zap.Bool("protected", res.WasProtected))
	}
	return nil
}

func (c *Coordinator) toVoting(ctx context.Context, room engine.Room) error {
	return c.write(ctx, room, store.Update{Set: map[string]any{
		engine.PathPhase: engine.PhaseVoting,
		engine.PathVotes: nil,
	}})
}

// toResult tallies the votes and writes the outcome together with the phase
// change, so it can only ever land once per round.
func (c *Coordinator) toResult(ctx context.Context, room engine.Room) error {
	g := room.GameState
	tally := engine.TallyVotes(g.Votes, g)

	set := map[string]any{
		engine.PathPhase:          engine.PhaseResult,
		engine.PathVotes:          nil,
		engine.PathLastEliminated: nil,
	}
	if tally.Eliminated != nil {
		set[engine.PathEliminated] = engine.WithElimination(g.Eliminated, *tally.Eliminated)
		set[engine.PathLastEliminated] = *tally.Eliminated
	}
	if err := c.write(ctx, room, store.Update{Set: set}); err != nil {
		return err
	}
	c.log.Info("votes tallied",
		zap.String("room", room.Code),
		zap.Int("round", g.Round),
		zap.Bool("tie", tally.Tie),
		zap.Bool("eliminated", tally.Eliminated != nil))
	return nil
}

// toNextNight starts the next round.
func (c *Coordinator) toNextNight(ctx context.Context, room engine.Room) error {
	return c.write(ctx, room, store.Update{Set: map[string]any{
		engine.PathPhase:           engine.PhaseNight,
		engine.PathRound:           room.GameState.Round + 1,
		engine.PathNightActions:    nil,
		engine.PathDiscussionReady: nil,
		engine.PathVotes:           nil,
	}})
}
