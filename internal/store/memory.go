package store

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

type hubMsg interface{ isHubMsg() }

type createRoom struct {
	ID    string
	Doc   tree
	Reply chan error
}

type getRoom struct {
	ID    string
	Reply chan *room
}

type removeRoom struct {
	ID    string
	Reply chan bool
}

type shutdownHub struct{}

func (createRoom) isHubMsg()  {}
func (getRoom) isHubMsg()     {}
func (removeRoom) isHubMsg()  {}
func (shutdownHub) isHubMsg() {}

// Memory is an in-process Store. A hub goroutine owns the id -> room registry
// and each room goroutine owns its document.
type Memory struct {
	inbox  chan hubMsg
	rooms  map[string]*room
	nextID atomic.Int64
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Store = (*Memory)(nil)

func NewMemory(parent context.Context, log *zap.Logger) *Memory {
	ctx, cancel := context.WithCancel(parent)
	m := &Memory{
		inbox:  make(chan hubMsg, 64),
		rooms:  make(map[string]*room),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go m.loop()
	return m
}

func (m *Memory) loop() {
	for {
		select {
		case <-m.ctx.Done():
			for id, r := range m.rooms {
				r.cancel()
				delete(m.rooms, id)
			}
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case createRoom:
				if m.rooms[msg.ID] != nil {
					msg.Reply <- ErrAlreadyExists
					break
				}
				r, err := newRoom(m.ctx, msg.Doc)
				if err != nil {
					msg.Reply <- err
					break
				}
				m.rooms[msg.ID] = r
				m.log.Debug("document created", zap.String("id", msg.ID))
				msg.Reply <- nil

			case getRoom:
				msg.Reply <- m.rooms[msg.ID] // May be nil

			case removeRoom:
				r := m.rooms[msg.ID]
				if r != nil {
					r.cancel()
					delete(m.rooms, msg.ID)
					m.log.Debug("document removed", zap.String("id", msg.ID))
				}
				msg.Reply <- r != nil

			case shutdownHub:
				for _, r := range m.rooms {
					r.cancel()
				}
				clear(m.rooms)
				m.cancel()
			}
		}
	}
}

func (m *Memory) send(ctx context.Context, msg hubMsg) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-m.ctx.Done():
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) lookup(ctx context.Context, id string) (*room, error) {
	reply := make(chan *room, 1)
	if err := m.send(ctx, getRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		if r == nil {
			return nil, ErrNotFound
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Memory) Create(ctx context.Context, id string, doc any) error {
	t, err := toTree(doc)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := m.send(ctx, createRoom{ID: id, Doc: t, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Get(ctx context.Context, id string) (Snapshot, error) {
	r, err := m.lookup(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.get(ctx)
}

func (m *Memory) ApplyPartialUpdate(ctx context.Context, id string, u Update) (Snapshot, error) {
	r, err := m.lookup(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.applyUpdate(ctx, u)
}

func (m *Memory) Subscribe(ctx context.Context, id string) (<-chan Snapshot, func(), error) {
	r, err := m.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	subID := m.nextID.Add(1)
	out := make(chan Snapshot, 16)
	if err := r.send(ctx, joinMsg{SubscriberID: subID, Outbox: out}); err != nil {
		return nil, nil, err
	}

	unsubscribe := func() {
		select {
		case r.inbox <- leaveMsg{SubscriberID: subID}:
		case <-r.ctx.Done():
		}
	}
	return out, unsubscribe, nil
}

func (m *Memory) Remove(ctx context.Context, id string) error {
	reply := make(chan bool, 1)
	if err := m.send(ctx, removeRoom{ID: id, Reply: reply}); err != nil {
		return err
	}
	select {
	case ok := <-reply:
		if !ok {
			return ErrNotFound
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) RemovePath(ctx context.Context, id, path string) error {
	_, err := m.ApplyPartialUpdate(ctx, id, Update{Set: map[string]any{path: nil}})
	return err
}

func (m *Memory) Close() error {
	select {
	case m.inbox <- shutdownHub{}:
	case <-m.ctx.Done():
	}
	return nil
}
