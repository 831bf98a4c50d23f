// Package room holds the writes a player makes for themselves: creating,
// joining and leaving rooms, readiness, night actions, discussion readiness and
// votes. Writes made during play are conditioned on the phase and round the
// player saw, so a straggler arriving after the phase moved on is discarded.
package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kittynight/naughty-kitty/internal/engine"
	"github.com/kittynight/naughty-kitty/internal/store"
)

var ErrCodeExhausted = errors.New("could not find a free room code")

type Profile struct {
	ID     string
	Name   string
	Avatar string
}

type Service struct {
	store store.Store
	log   *zap.Logger

	now          func() time.Time
	newCode      func() (string, error)
	newID        func() string
	codeAttempts int
	attempts     int
	backoff      time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCodeGenerator(gen func() (string, error)) Option {
	return func(s *Service) { s.newCode = gen }
}

func WithCodeAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.codeAttempts = n
		}
	}
}

func NewService(st store.Store, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:        st,
		log:          log,
		now:          time.Now,
		newCode:      GenerateCode,
		newID:        uuid.NewString,
		codeAttempts: 10,
		attempts:     5,
		backoff:      20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Load(ctx context.Context, code string) (engine.Room, store.Snapshot, error) {
	snap, err := s.store.Get(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return engine.Room{}, snap, engine.ErrRoomNotFound
	}
	if err != nil {
		return engine.Room{}, snap, err
	}
	var r engine.Room
	if err := snap.Decode(&r); err != nil {
		return engine.Room{}, snap, fmt.Errorf("decode room %s: %w", code, err)
	}
	return r, snap, nil
}

func (s *Service) apply(ctx context.Context, code string, u store.Update) error {
	_, err := store.ApplyWithRetry(ctx, s.store, code, u, s.attempts, s.backoff)
	switch {
	case errors.Is(err, store.ErrPreconditionFailed):
		return fmt.Errorf("%w: %v", engine.ErrStaleTransition, err)
	case errors.Is(err, store.ErrNotFound):
		return engine.ErrRoomNotFound
	}
	return err
}

// retry runs fn again while it loses a race to a concurrent write.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < s.attempts; i++ {
		err = fn()
		if !errors.Is(err, engine.ErrStaleTransition) {
			return err
		}
		select {
		case <-time.After(s.backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (s *Service) player(p Profile) (engine.Player, error) {
	name, err := ValidateProfile(p.Name, p.Avatar)
	if err != nil {
		return engine.Player{}, err
	}
	id := p.ID
	if id == "" {
		id = s.newID()
	}
	return engine.Player{ID: id, Name: name, Avatar: p.Avatar, JoinedAt: s.now().UnixMilli()}, nil
}

// Create opens a new room with p as host under a fresh code.
func (s *Service) Create(ctx context.Context, p Profile) (engine.Room, error) {
	host, err := s.player(p)
	if err != nil {
		return engine.Room{}, err
	}

	for i := 0; i < s.codeAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return engine.Room{}, fmt.Errorf("generate code: %w", err)
		}
		r := engine.NewRoom(code, host, s.now().UnixMilli())
		err = s.store.Create(ctx, code, r)
		if errors.Is(err, store.ErrAlreadyExists) {
			s.log.Debug("collision on code, regenerating", zap.String("room", code))
			continue
		}
		if err != nil {
			return engine.Room{}, err
		}
		s.log.Info("room created", zap.String("room", code), zap.String("host", host.ID))
		return r, nil
	}
	return engine.Room{}, ErrCodeExhausted
}

// Join adds p to the lobby. Joining again with the same id is a no-op. The
// write is conditioned on the player set seen, so the room can never overfill.
func (s *Service) Join(ctx context.Context, code string, p Profile) (engine.Player, error) {
	joining, err := s.player(p)
	if err != nil {
		return engine.Player{}, err
	}

	var out engine.Player
	err = s.retry(ctx, func() error {
		r, _, err := s.Load(ctx, code)
		if err != nil {
			return err
		}
		if existing, ok := r.Players[joining.ID]; ok {
			out = existing
			return nil
		}
		if r.Status != engine.StatusWaiting {
			return engine.ErrGameAlreadyInProgress
		}
		if len(r.Players) >= engine.MaxPlayers {
			return engine.ErrRoomFull
		}

		out = joining
		return s.apply(ctx, code, store.Update{
			Expect: map[string]any{
				engine.PathStatus:  engine.StatusWaiting,
				engine.PathPlayers: r.Players,
			},
			Set: map[string]any{engine.PlayerPath(joining.ID): joining},
		})
	})
	if err != nil {
		return engine.Player{}, err
	}
	s.log.Info("player joined", zap.String("room", code), zap.String("player", out.ID))
	return out, nil
}

// Leave removes id from the room. The last one out removes the room; a
// departing host hands over to whoever joined earliest. Leaving mid-game drops
// the player's pending night action, vote and discussion flag; their role stays,
// since roles are fixed for the whole game.
func (s *Service) Leave(ctx context.Context, code, id string) error {
	removed := false
	err := s.retry(ctx, func() error {
		r, _, err := s.Load(ctx, code)
		if err != nil {
			return err
		}
		if _, ok := r.Players[id]; !ok {
			return engine.ErrNotInRoom
		}

		next, ok := r.EarliestJoined(id)
		if !ok {
			removed = true
			err := s.store.Remove(ctx, code)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}

		set := map[string]any{
			engine.PlayerPath(id):          nil,
			engine.NightActionPath(id):     nil,
			engine.VotePath(id):            nil,
			engine.DiscussionReadyPath(id): nil,
		}
		if r.HostID == id {
			set[engine.PathHostID] = next
			set[engine.IsHostPath(next)] = true
		}
		return s.apply(ctx, code, store.Update{
			Expect: map[string]any{
				engine.PathHostID:     r.HostID,
				engine.PlayerPath(id): r.Players[id],
			},
			Set: set,
		})
	})
	if err != nil {
		return err
	}
	if removed {
		s.log.Info("room removed", zap.String("room", code))
	} else {
		s.log.Info("player left", zap.String("room", code), zap.String("player", id))
	}
	return nil
}

func (s *Service) SetReady(ctx context.Context, code, id string, ready bool) error {
	r, _, err := s.Load(ctx, code)
	if err != nil {
		return err
	}
	if _, ok := r.Players[id]; !ok {
		return engine.ErrNotInRoom
	}
	if r.Status != engine.StatusWaiting {
		return engine.ErrGameAlreadyInProgress
	}
	return s.apply(ctx, code, store.Update{
		Expect: map[string]any{
			engine.PathStatus:             engine.StatusWaiting,
			engine.PlayerPath(id) + "/id": id,
		},
		Set: map[string]any{engine.ReadyPath(id): ready},
	})
}

// playing loads the room and checks id may act in phase.
func (s *Service) playing(ctx context.Context, code, id string, phase engine.Phase) (engine.Room, engine.Role, error) {
	r, _, err := s.Load(ctx, code)
	if err != nil {
		return r, "", err
	}
	if _, ok := r.Players[id]; !ok {
		return r, "", engine.ErrNotInRoom
	}
	if r.GameState.Phase != phase {
		return r, "", fmt.Errorf("%w: room is in %s", engine.ErrWrongPhase, r.GameState.Phase)
	}
	role, ok := r.GameState.Roles[id]
	if !ok {
		return r, "", engine.ErrMissingRole
	}
	return r, role, nil
}

func guarded(r engine.Room) map[string]any {
	return map[string]any{
		engine.PathPhase: r.GameState.Phase,
		engine.PathRound: r.GameState.Round,
	}
}

// SubmitNightAction records id's action for tonight. It may be revised until
// morning. Jailed players submit a no-op.
func (s *Service) SubmitNightAction(ctx context.Context, code, id string, target *string) error {
	r, role, err := s.playing(ctx, code, id, engine.PhaseNight)
	if err != nil {
		return err
	}
	g := r.GameState
	if !g.IsAlive(id) {
		return engine.ErrNotActive
	}

	if g.IsJailed(id) {
		target = nil
	} else if target, err = legalNightTarget(r, id, role, target); err != nil {
		return err
	}

	return s.apply(ctx, code, store.Update{
		Expect: guarded(r),
		Set: map[string]any{engine.NightActionPath(id): engine.NightAction{
			Role:      role,
			Target:    target,
			Timestamp: s.now().UnixMilli(),
		}},
	})
}

func legalNightTarget(r engine.Room, id string, role engine.Role, target *string) (*string, error) {
	g := r.GameState
	present := false
	if target != nil {
		_, present = r.Players[*target]
	}

	switch role {
	case engine.RoleNaughty, engine.RoleSheriff:
		if target == nil || *target == id || !present || !g.IsActive(*target) {
			return nil, fmt.Errorf("%w: %s must pick another active player", engine.ErrIllegalTarget, role)
		}
		return target, nil
	case engine.RoleHealer:
		if target == nil || !present || !g.IsAlive(*target) {
			return nil, fmt.Errorf("%w: healer must pick a living player", engine.ErrIllegalTarget)
		}
		return target, nil
	default:
		// Regular kitties and the oracle have nothing to aim at.
		return nil, nil
	}
}

func (s *Service) MarkDiscussionReady(ctx context.Context, code, id string) error {
	r, _, err := s.playing(ctx, code, id, engine.PhaseDiscussion)
	if err != nil {
		return err
	}
	if !r.GameState.IsActive(id) {
		return engine.ErrNotActive
	}
	return s.apply(ctx, code, store.Update{
		Expect: guarded(r),
		Set:    map[string]any{engine.DiscussionReadyPath(id): true},
	})
}

// CastVote records id's vote for target or engine.Skip. It may be revised
// until every active player has voted.
func (s *Service) CastVote(ctx context.Context, code, id, target string) error {
	r, _, err := s.playing(ctx, code, id, engine.PhaseVoting)
	if err != nil {
		return err
	}
	g := r.GameState
	if !g.IsActive(id) {
		return engine.ErrNotActive
	}
	if target != engine.Skip {
		if _, ok := r.Players[target]; !ok || target == id || !g.IsActive(target) {
			return fmt.Errorf("%w: vote for another active player or %s", engine.ErrIllegalTarget, engine.Skip)
		}
	}
	return s.apply(ctx, code, store.Update{
		Expect: guarded(r),
		Set:    map[string]any{engine.VotePath(id): target},
	})
}
