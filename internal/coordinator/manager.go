package coordinator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kittynight/naughty-kitty/internal/engine"
)

// Manager runs one Watch per room on behalf of whoever is host, restarting it
// when the host changes.
type Manager struct {
	coord *Coordinator
	log   *zap.Logger
	ctx   context.Context

	mu      sync.Mutex
	watches map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(ctx context.Context, coord *Coordinator, log *zap.Logger) *Manager {
	return &Manager{
		coord:   coord,
		log:     log,
		ctx:     ctx,
		watches: make(map[string]context.CancelFunc),
	}
}

// Ensure starts watching code unless a watch is already running.
func (m *Manager) Ensure(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watches[code]; ok || m.ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.watches[code] = cancel
	m.wg.Add(1)
	go m.run(ctx, code, cancel)
}

// Watching reports whether a watch is running for code.
func (m *Manager) Watching(code string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watches[code]
	return ok
}

func (m *Manager) Stop(code string) {
	m.mu.Lock()
	cancel, ok := m.watches[code]
	m.mu.Unlock()
	if ok {
		cancel()
	}
}

// Wait blocks until every watch has returned. Cancel the parent context first.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) run(ctx context.Context, code string, cancel context.CancelFunc) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.watches, code)
		m.mu.Unlock()
		cancel()
	}()

	log := m.log.With(zap.String("room", code))
	for {
		room, err := m.coord.Load(ctx, code)
		if errors.Is(err, engine.ErrRoomNotFound) {
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("load room for watch", zap.Error(err))
			}
			return
		}

		err = m.coord.Watch(ctx, code, room.HostID)
		switch {
		case errors.Is(err, ErrHostChanged):
			log.Info("host changed, restarting watch")
			continue
		case err != nil && ctx.Err() == nil:
			log.Warn("watch stopped", zap.Error(err))
		}
		return
	}
}
