package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const notifyChannel = "room_changes"

type roomRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Version   int64  `gorm:"not null;default:0"`
	Document  []byte `gorm:"type:jsonb;not null"`
	UpdatedAt time.Time
}

func (roomRecord) TableName() string { return "rooms" }

func (r roomRecord) snapshot() Snapshot {
	return Snapshot{Version: r.Version, Data: json.RawMessage(r.Document)}
}

type pgSub struct {
	out  chan Snapshot
	last int64
}

// Postgres keeps each document in one jsonb row. Writes lock the row, and
// every commit fires a NOTIFY so all server instances can push snapshots to
// their local subscribers.
type Postgres struct {
	db  *gorm.DB
	dsn string
	log *zap.Logger

	mu     sync.Mutex
	subs   map[string]map[int64]*pgSub
	nextID int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ Store = (*Postgres)(nil)

func NewPostgres(parent context.Context, dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.WithContext(parent).AutoMigrate(&roomRecord{}); err != nil {
		return nil, fmt.Errorf("migrate rooms: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	p := &Postgres{
		db:     db,
		dsn:    dsn,
		log:    log,
		subs:   make(map[string]map[int64]*pgSub),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.listen()
	return p, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrAlreadyExists
	}
	return err
}

func notify(tx *gorm.DB, id string) error {
	return tx.Exec("SELECT pg_notify(?, ?)", notifyChannel, id).Error
}

func (p *Postgres) Create(ctx context.Context, id string, doc any) error {
	t, err := toTree(doc)
	if err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := roomRecord{ID: id, Document: data}
		if err := tx.Create(&rec).Error; err != nil {
			return translate(err)
		}
		return notify(tx, id)
	})
}

func (p *Postgres) Get(ctx context.Context, id string) (Snapshot, error) {
	var rec roomRecord
	if err := p.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return Snapshot{}, translate(err)
	}
	return rec.snapshot(), nil
}

func (p *Postgres) ApplyPartialUpdate(ctx context.Context, id string, u Update) (Snapshot, error) {
	var out Snapshot
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec roomRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, "id = ?", id).Error
		if err != nil {
			return translate(err)
		}

		t, err := decodeTree(rec.Document)
		if err != nil {
			return err
		}
		if err := applyUpdate(t, u); err != nil {
			out = rec.snapshot()
			return err
		}
		data, err := json.Marshal(t)
		if err != nil {
			return err
		}

		rec.Version++
		rec.Document = data
		err = tx.Model(&roomRecord{}).Where("id = ?", id).Updates(map[string]any{
			"version":    rec.Version,
			"document":   data,
			"updated_at": time.Now(),
		}).Error
		if err != nil {
			return err
		}
		out = rec.snapshot()
		return notify(tx, id)
	})
	return out, err
}

func (p *Postgres) Subscribe(ctx context.Context, id string) (<-chan Snapshot, func(), error) {
	p.mu.Lock()
	p.nextID++
	subID := p.nextID
	sub := &pgSub{out: make(chan Snapshot, 16), last: -1}
	if p.subs[id] == nil {
		p.subs[id] = make(map[int64]*pgSub)
	}
	p.subs[id][subID] = sub
	p.mu.Unlock()

	unsubscribe := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.dropLocked(id, subID)
	}

	snap, err := p.Get(ctx, id)
	if err != nil {
		unsubscribe()
		return nil, nil, err
	}
	p.mu.Lock()
	p.deliverLocked(id, subID, sub, snap)
	p.mu.Unlock()
	return sub.out, unsubscribe, nil
}

func (p *Postgres) Remove(ctx context.Context, id string) error {
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&roomRecord{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return notify(tx, id)
	})
}

func (p *Postgres) RemovePath(ctx context.Context, id, path string) error {
	_, err := p.ApplyPartialUpdate(ctx, id, Update{Set: map[string]any{path: nil}})
	return err
}

func (p *Postgres) Close() error {
	p.cancel()
	<-p.done

	p.mu.Lock()
	for id := range p.subs {
		p.closeAllLocked(id)
	}
	p.mu.Unlock()

	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// listen holds a dedicated connection on LISTEN and reconnects until Close.
func (p *Postgres) listen() {
	defer close(p.done)
	backoff := 250 * time.Millisecond
	for {
		err := p.listenOnce()
		if p.ctx.Err() != nil {
			return
		}
		p.log.Warn("notification listener stopped", zap.Error(err), zap.Duration("retry_in", backoff))
		select {
		case <-time.After(backoff):
		case <-p.ctx.Done():
			return
		}
		backoff = min(backoff*2, 5*time.Second)
	}
}

func (p *Postgres) listenOnce() error {
	conn, err := pgx.Connect(p.ctx, p.dsn)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(p.ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	p.log.Debug("listening for document changes", zap.String("channel", notifyChannel))

	// Anything missed while disconnected is picked up here.
	p.refreshAll()

	for {
		n, err := conn.WaitForNotification(p.ctx)
		if err != nil {
			return err
		}
		p.refresh(n.Payload)
	}
}

func (p *Postgres) refreshAll() {
	p.mu.Lock()
	ids := make([]string, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	for _, id := range ids {
		p.refresh(id)
	}
}

func (p *Postgres) refresh(id string) {
	p.mu.Lock()
	n := len(p.subs[id])
	p.mu.Unlock()
	if n == 0 {
		return
	}

	snap, err := p.Get(p.ctx, id)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case errors.Is(err, ErrNotFound):
		p.closeAllLocked(id)
	case err != nil:
		p.log.Warn("refresh document", zap.String("id", id), zap.Error(err))
	default:
		for subID, sub := range p.subs[id] {
			p.deliverLocked(id, subID, sub, snap)
		}
	}
}

func (p *Postgres) deliverLocked(id string, subID int64, sub *pgSub, snap Snapshot) {
	if snap.Version <= sub.last {
		return
	}
	select {
	case sub.out <- snap:
		sub.last = snap.Version
	default:
		p.dropLocked(id, subID)
	}
}

func (p *Postgres) dropLocked(id string, subID int64) {
	sub, ok := p.subs[id][subID]
	if !ok {
		return
	}
	close(sub.out)
	delete(p.subs[id], subID)
	if len(p.subs[id]) == 0 {
		delete(p.subs, id)
	}
}

func (p *Postgres) closeAllLocked(id string) {
	for subID := range p.subs[id] {
		p.dropLocked(id, subID)
	}
}
