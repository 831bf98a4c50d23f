package store

import (
	"context"
	"encoding/json"
)

type roomMsg interface{ isRoomMsg() }

type applyMsg struct {
	Update Update
	Reply  chan applyResult
}

func (applyMsg) isRoomMsg() {}

type applyResult struct {
	Snap Snapshot
	Err  error
}

type joinMsg struct {
	SubscriberID int64
	Outbox       chan Snapshot // where this subscriber receives snapshots
}

func (joinMsg) isRoomMsg() {}

type leaveMsg struct{ SubscriberID int64 }

func (leaveMsg) isRoomMsg() {}

type shutdownMsg struct{}

func (shutdownMsg) isRoomMsg() {}

type getMsg struct {
	Reply chan Snapshot
}

func (getMsg) isRoomMsg() {}

// room owns one document. All reads and writes go through its inbox so updates
// are applied one at a time.
type room struct {
	inbox   chan roomMsg
	doc     tree
	version int64
	current Snapshot
	subs    map[int64]chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
}

func newRoom(parent context.Context, doc tree) (*room, error) {
	ctx, cancel := context.WithCancel(parent)

	r := &room{
		inbox:  make(chan roomMsg, 64),
		doc:    doc,
		subs:   make(map[int64]chan Snapshot),
		ctx:    ctx,
		cancel: cancel,
	}
	if err := r.snapshot(); err != nil {
		cancel()
		return nil, err
	}

	go r.loop()
	return r, nil
}

func (r *room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case joinMsg:
				r.subs[msg.SubscriberID] = msg.Outbox
				r.deliver(msg.SubscriberID, msg.Outbox, r.current)

			case leaveMsg:
				if ch, ok := r.subs[msg.SubscriberID]; ok {
					close(ch)
					delete(r.subs, msg.SubscriberID)
				}

			case applyMsg:
				msg.Reply <- r.apply(msg.Update)

			case getMsg:
				msg.Reply <- r.current

			case shutdownMsg:
				r.shutdown()
				return
			}
		}
	}
}

func (r *room) apply(u Update) applyResult {
	// Work on a copy so a failed update cannot leave a half-written document.
	next, err := decodeTree(r.current.Data)
	if err != nil {
		return applyResult{Err: err}
	}
	if err := applyUpdate(next, u); err != nil {
		return applyResult{Snap: r.current, Err: err}
	}

	prev := r.doc
	r.doc = next
	r.version++
	if err := r.snapshot(); err != nil {
		r.doc = prev
		r.version--
		return applyResult{Err: err}
	}
	r.broadcast(r.current)
	return applyResult{Snap: r.current}
}

func (r *room) snapshot() error {
	data, err := json.Marshal(r.doc)
	if err != nil {
		return err
	}
	r.current = Snapshot{Version: r.version, Data: data}
	return nil
}

func (r *room) shutdown() {
	for id, ch := range r.subs {
		close(ch) // no more snapshots
		delete(r.subs, id)
	}
	r.cancel()
}

func (r *room) broadcast(snap Snapshot) {
	for id, ch := range r.subs {
		r.deliver(id, ch, snap)
	}
}

func (r *room) deliver(id int64, ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
	default:
		// Subscriber is slow/full - drop it, it will resubscribe.
		close(ch)
		delete(r.subs, id)
	}
}

// send hands msg to the room unless it or the caller has gone away.
func (r *room) send(ctx context.Context, msg roomMsg) error {
	select {
	case r.inbox <- msg:
		return nil
	case <-r.ctx.Done():
		return ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *room) get(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := r.send(ctx, getMsg{Reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-r.ctx.Done():
		return Snapshot{}, ErrNotFound
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (r *room) applyUpdate(ctx context.Context, u Update) (Snapshot, error) {
	reply := make(chan applyResult, 1)
	if err := r.send(ctx, applyMsg{Update: u, Reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case res := <-reply:
		return res.Snap, res.Err
	case <-r.ctx.Done():
		// The reply may have raced the shutdown.
		select {
		case res := <-reply:
			return res.Snap, res.Err
		default:
			return Snapshot{}, ErrNotFound
		}
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}
