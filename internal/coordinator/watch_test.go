package coordinator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kittynight/naughty-kitty/internal/engine"
	"github.com/kittynight/naughty-kitty/internal/room"
	"github.com/kittynight/naughty-kitty/internal/store"
)

func waitForPhase(t *testing.T, c *Coordinator, code string, phase engine.Phase) engine.Room {
	t.Helper()
	var got engine.Room
	require.Eventually(t, func() bool {
		r, err := c.Load(context.Background(), code)
		if err != nil {
			return false
		}
		got = r
		return r.GameState.Phase == phase
	}, 2*time.Second, 5*time.Millisecond, "room never reached %s", phase)
	return got
}

func roleHolders(r engine.Room) (naughty, sheriff string, regulars []string) {
	for _, id := range r.PlayerIDs() {
		switch r.GameState.Roles[id] {
		case engine.RoleNaughty:
			naughty = id
		case engine.RoleSheriff:
			sheriff = id
		case engine.RoleRegular:
			regulars = append(regulars, id)
		}
	}
	return naughty, sheriff, regulars
}

// Four kitties play one full round: the naughty one frames a regular, the
// jailed regular sits out the vote and the other three vote the naughty one out.
func TestEndToEnd_FourPlayersGoodWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, st := newTestCoordinator(t, fastTimings())
	svc := room.NewService(st, zap.NewNop())
	mgr := NewManager(ctx, c, zap.NewNop())
	defer mgr.Wait()
	defer cancel()

	r, err := svc.Create(ctx, room.Profile{ID: "p1", Name: "Mittens", Avatar: "calico"})
	require.NoError(t, err)
	code := r.Code
	for i := 2; i <= 4; i++ {
		_, err := svc.Join(ctx, code, room.Profile{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Kitty %d", i), Avatar: "tuxedo"})
		require.NoError(t, err)
	}
	for i := 1; i <= 4; i++ {
		require.NoError(t, svc.SetReady(ctx, code, fmt.Sprintf("p%d", i), true))
	}

	mgr.Ensure(code)
	require.NoError(t, c.StartGame(ctx, code, "p1"))

	night := waitForPhase(t, c, code, engine.PhaseNight)
	naughty, sheriff, regulars := roleHolders(night)
	require.NotEmpty(t, naughty)
	require.NotEmpty(t, sheriff)
	require.Len(t, regulars, 2)
	framed, bystander := regulars[0], regulars[1]

	require.NoError(t, svc.SubmitNightAction(ctx, code, naughty, &framed))
	require.NoError(t, svc.SubmitNightAction(ctx, code, sheriff, &naughty))
	require.NoError(t, svc.SubmitNightAction(ctx, code, framed, nil))
	require.NoError(t, svc.SubmitNightAction(ctx, code, bystander, nil))

	morning := waitForPhase(t, c, code, engine.PhaseMorning)
	rev, err := room.PrivateReveal(morning, sheriff)
	require.NoError(t, err)
	require.NotNil(t, rev.Verdict)
	assert.True(t, rev.Verdict.IsNaughty)

	host := morning.HostID
	require.NoError(t, c.ProceedToDiscussion(ctx, code, host))
	discussion := waitForPhase(t, c, code, engine.PhaseDiscussion)
	assert.Equal(t, []string{framed}, discussion.GameState.Jailed)

	assert.ErrorIs(t, svc.MarkDiscussionReady(ctx, code, framed), engine.ErrNotActive)
	for _, id := range []string{naughty, sheriff, bystander} {
		require.NoError(t, svc.MarkDiscussionReady(ctx, code, id))
	}

	waitForPhase(t, c, code, engine.PhaseVoting)
	assert.ErrorIs(t, svc.CastVote(ctx, code, framed, naughty), engine.ErrNotActive)
	require.NoError(t, svc.CastVote(ctx, code, sheriff, naughty))
	require.NoError(t, svc.CastVote(ctx, code, bystander, naughty))
	require.NoError(t, svc.CastVote(ctx, code, naughty, sheriff))

	result := waitForPhase(t, c, code, engine.PhaseResult)
	assert.Equal(t, []string{naughty}, result.GameState.Eliminated)
	require.NotNil(t, result.GameState.LastEliminated)
	assert.Equal(t, naughty, *result.GameState.LastEliminated)
	assert.Equal(t, engine.OutcomeGoodWins, result.Outcome())
	assert.ErrorIs(t, c.ContinueAfterResult(ctx, code, host), engine.ErrGameOver)
}

func TestWatch_NightTimeoutFillsMissingActions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timings := fastTimings()
	timings.NightTimeout = 30 * time.Millisecond
	c, st := newTestCoordinator(t, timings)
	r := seed(t, st, engine.PhaseNight, nil)

	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, r.Code, r.HostID) }()

	got := waitForPhase(t, c, r.Code, engine.PhaseMorning)
	assert.Len(t, got.GameState.NightActions, 4)
	assert.Equal(t, 1, got.GameState.Round)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_StopsWhenHostChanges(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t, fastTimings())
	r := seed(t, st, engine.PhaseMorning, nil)

	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, r.Code, "sam") }()

	_, err := st.ApplyPartialUpdate(ctx, r.Code, store.Update{Set: map[string]any{engine.PathHostID: "nina"}})
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrHostChanged)
	case <-time.After(time.Second):
		t.Fatal("watch did not notice the new host")
	}
}

func TestWatch_ReturnsWhenRoomRemoved(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t, fastTimings())
	r := seed(t, st, engine.PhaseMorning, nil)

	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, r.Code, "sam") }()

	// Give the watch a moment to subscribe before removing.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, st.Remove(ctx, r.Code))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop after removal")
	}
}

func TestManager_RestartsForNewHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	timings := fastTimings()
	timings.Transition = 50 * time.Millisecond
	c, st := newTestCoordinator(t, timings)
	r := seed(t, st, engine.PhaseTransition, nil)
	mgr := NewManager(ctx, c, zap.NewNop())

	mgr.Ensure(r.Code)
	mgr.Ensure(r.Code)
	assert.True(t, mgr.Watching(r.Code))

	// sam hands over before the transition timer fires; the next night must
	// still start, now driven on nina's behalf.
	_, err := st.ApplyPartialUpdate(ctx, r.Code, store.Update{Set: map[string]any{engine.PathHostID: "nina"}})
	require.NoError(t, err)

	got := waitForPhase(t, c, r.Code, engine.PhaseNight)
	assert.Equal(t, 2, got.GameState.Round)

	require.NoError(t, st.Remove(ctx, r.Code))
	require.Eventually(t, func() bool { return !mgr.Watching(r.Code) }, time.Second, 5*time.Millisecond)

	cancel()
	mgr.Wait()
}
