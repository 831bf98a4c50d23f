package coordinator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kittynight/naughty-kitty/internal/engine"
	"github.com/kittynight/naughty-kitty/internal/store"
)

type phaseKey struct {
	phase engine.Phase
	round int
}

func keyOf(room engine.Room) phaseKey {
	return phaseKey{phase: room.GameState.Phase, round: room.GameState.Round}
}

// Watch follows code on behalf of self and performs the automatic transitions
// while self is the host. It returns nil once the room is removed,
// ErrHostChanged when someone else becomes host, or the context error.
func (c *Coordinator) Watch(ctx context.Context, code, self string) error {
	log := c.log.With(zap.String("room", code), zap.String("host", self))
	for {
		sub, unsubscribe, err := c.store.Subscribe(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		err = c.follow(ctx, log, self, sub)
		unsubscribe()
		if err != nil {
			return err
		}

		// The subscription was closed: either the room is gone or we fell behind.
		if _, err := c.store.Get(ctx, code); errors.Is(err, store.ErrNotFound) {
			log.Debug("room removed, watch done")
			return nil
		}
		log.Debug("resubscribing")
	}
}

type watchState struct {
	key      phaseKey
	latest   engine.Room
	timer    *time.Timer
	settling bool
}

func (w *watchState) stopTimer() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *watchState) resetTimer(d time.Duration) {
	w.stopTimer()
	if d > 0 {
		w.timer = time.NewTimer(d)
	}
}

func (w *watchState) fired() <-chan time.Time {
	if w.timer == nil {
		return nil
	}
	return w.timer.C
}

func (c *Coordinator) follow(ctx context.Context, log *zap.Logger, self string, sub <-chan store.Snapshot) error {
	var w watchState
	first := true
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap, ok := <-sub:
			if !ok {
				return nil
			}
			var room engine.Room
			if err := snap.Decode(&room); err != nil {
				log.Warn("undecodable snapshot", zap.Int64("version", snap.Version), zap.Error(err))
				continue
			}
			if room.HostID != self {
				return ErrHostChanged
			}
			w.latest = room
			if k := keyOf(room); first || k != w.key {
				first = false
				w.key = k
				w.settling = false
				w.resetTimer(c.timerFor(k.phase))
			}
			c.onChange(ctx, log, &w)

		case <-w.fired():
			w.timer = nil
			c.onTimer(ctx, log, &w)
		}
	}
}

func (c *Coordinator) timerFor(phase engine.Phase) time.Duration {
	switch phase {
	case engine.PhaseRoleReveal:
		return c.timings.RoleReveal
	case engine.PhaseNight:
		return c.timings.NightTimeout
	case engine.PhaseMorning:
		return c.timings.MorningAutoProceed
	case engine.PhaseDiscussion:
		return c.timings.DiscussionTimeout
	case engine.PhaseTransition:
		return c.timings.Transition
	}
	return 0
}

// onChange evaluates the guards that can fire on a new snapshot.
func (c *Coordinator) onChange(ctx context.Context, log *zap.Logger, w *watchState) {
	room := w.latest
	switch room.GameState.Phase {
	case engine.PhaseNight:
		if engine.AllNightActionsIn(room) {
			c.report(log, "night complete", c.toMorning(ctx, room, false))
		}
	case engine.PhaseDiscussion:
		if !w.settling && engine.AllDiscussionReady(room) {
			w.settling = true
			if c.timings.DiscussionSettle <= 0 {
				c.report(log, "discussion ready", c.toVoting(ctx, room))
				return
			}
			w.resetTimer(c.timings.DiscussionSettle)
		}
	case engine.PhaseVoting:
		if engine.AllVotesIn(room) {
			c.report(log, "votes in", c.toResult(ctx, room))
		}
	}
}

// onTimer handles the deadline of the phase the watch last observed.
func (c *Coordinator) onTimer(ctx context.Context, log *zap.Logger, w *watchState) {
	room := w.latest
	switch room.GameState.Phase {
	case engine.PhaseRoleReveal:
		c.report(log, "roles revealed", c.toNight(ctx, room))
	case engine.PhaseNight:
		c.report(log, "night timeout", c.toMorning(ctx, room, true))
	case engine.PhaseMorning:
		c.report(log, "morning auto-proceed", c.toDiscussion(ctx, room))
	case engine.PhaseDiscussion:
		c.report(log, "discussion over", c.toVoting(ctx, room))
	case engine.PhaseTransition:
		c.report(log, "next round", c.toNextNight(ctx, room))
	}
}

func (c *Coordinator) report(log *zap.Logger, what string, err error) {
	switch {
	case err == nil:
		log.Debug(what)
	case errors.Is(err, engine.ErrStaleTransition):
		log.Debug(what+": superseded", zap.Error(err))
	case errors.Is(err, context.Canceled):
	default:
		log.Warn(what+": transition failed", zap.Error(err))
	}
}
