// Package gormstorage implements storage.Backend on top of GORM with
// in-memory queues drained by a background batch writer. The postgres and
// sqlite backends wrap it.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tarkov-map/tracker/internal/database"
	"github.com/tarkov-map/tracker/internal/model"
	"github.com/tarkov-map/tracker/internal/model/convert"
	"github.com/tarkov-map/tracker/internal/queue"
	"github.com/tarkov-map/tracker/pkg/core"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
const DefaultFlushInterval = 2 * time.Second

// DefaultQueueLimit bounds each write queue while the DB is unreachable.
const DefaultQueueLimit = 50_000

// ErrNoSession is returned when recording without an active session.
var ErrNoSession = errors.New("no active session")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
	QueueLimit    int
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	Positions *queue.Queue[model.Position]
	Events    *queue.Queue[model.Event]
	Status    *queue.Queue[model.Status]
}

func newQueues(limit int) *queues {
	return &queues{
		Positions: queue.NewBounded[model.Position](limit),
		Events:    queue.NewBounded[model.Event](limit),
		Status:    queue.NewBounded[model.Status](limit),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	mu      sync.Mutex
	session *model.Session

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.QueueLimit <= 0 {
		deps.QueueLimit = DefaultQueueLimit
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(deps.QueueLimit),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB { return b.deps.DB }

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return fmt.Errorf("no database connection")
	}
	b.deps.Logger.Info("Migrating schema")
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.writerLoop()
	return nil
}

// Close stops the writer after a final flush.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.wg.Wait()
		b.stopChan = nil
	}
	return nil
}

// StartSession inserts the session row, assigning an ID when s has none.
// Any queued rows of the previous session are flushed first.
func (b *Backend) StartSession(s *core.Session) error {
	b.Flush()

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	b.mu.Lock()
	b.session = &row
	b.mu.Unlock()
	return nil
}

// EndSession flushes the queues and stamps the end time.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	s := b.session
	b.session = nil
	b.mu.Unlock()
	if s == nil {
		return ErrNoSession
	}

	b.Flush()
	return b.deps.DB.Model(&model.Session{}).
		Where("id = ?", s.ID).
		Update("ended_at", time.Now()).Error
}

func (b *Backend) sessionID() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return "", ErrNoSession
	}
	return b.session.ID, nil
}

// RecordPosition queues a position.
func (b *Backend) RecordPosition(p *core.TrackedPosition) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	b.queues.Positions.Push(convert.CoreToPosition(id, *p))
	return nil
}

// RecordEvent queues an event.
func (b *Backend) RecordEvent(e *core.SessionEvent) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	b.queues.Events.Push(convert.CoreToEvent(id, *e))
	return nil
}

// RecordStatus queues a pipeline snapshot.
func (b *Backend) RecordStatus(s *core.PipelineStatus) error {
	id, err := b.sessionID()
	if err != nil {
		return err
	}
	b.queues.Status.Push(convert.CoreToStatus(id, *s))
	return nil
}

// QueueLen returns the number of rows waiting to be written.
func (b *Backend) QueueLen() int {
	return b.queues.Positions.Len() + b.queues.Events.Len() + b.queues.Status.Len()
}

// Dropped returns rows discarded because a queue hit its limit.
func (b *Backend) Dropped() uint64 {
	return b.queues.Positions.Dropped() + b.queues.Events.Dropped() + b.queues.Status.Dropped()
}

// Flush writes all queued rows now.
func (b *Backend) Flush() {
	writeQueue(b.deps.DB, b.queues.Positions, "positions", b.deps.Logger)
	writeQueue(b.deps.DB, b.queues.Events, "events", b.deps.Logger)
	writeQueue(b.deps.DB, b.queues.Status, "status", b.deps.Logger)
}

func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) {
	if q.Empty() {
		return
	}

	items := q.GetAndEmpty()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error writing batch", "table", name, "rows", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items...)
		return
	}
	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing batch", "table", name, "error", err)
		q.Requeue(items...)
		return
	}
	log.Debug("Wrote batch", "table", name, "rows", len(items))
}

func (b *Backend) writerLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		}
	}
}
