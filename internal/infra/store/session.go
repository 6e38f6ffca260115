package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/osa030/exitcall/internal/domain/call"
)

type SessionEntity struct {
	ID            string     `gorm:"primaryKey;column:id;size:36"`
	Caller        string     `gorm:"column:caller;not null"`
	Status        string     `gorm:"column:status;not null"`
	StartTime     time.Time  `gorm:"column:start_time;not null"`
	ActivatedTime *time.Time `gorm:"column:activated_time"`
	EndedTime     *time.Time `gorm:"column:ended_time"`
}

func (SessionEntity) TableName() string {
	return "call_sessions"
}

func toSessionEntity(s *call.Session) *SessionEntity {
	if s == nil {
		return nil
	}
	return &SessionEntity{
		ID:            s.ID,
		Caller:        s.Caller,
		Status:        string(s.Status),
		StartTime:     s.StartTime,
		ActivatedTime: s.ActivatedTime,
		EndedTime:     s.EndedTime,
	}
}

func toSessionModel(e *SessionEntity) *call.Session {
	if e == nil {
		return nil
	}
	return &call.Session{
		ID:            e.ID,
		Caller:        e.Caller,
		Status:        call.Status(e.Status),
		StartTime:     e.StartTime,
		ActivatedTime: e.ActivatedTime,
		EndedTime:     e.EndedTime,
	}
}

func toSessionModels(entities []*SessionEntity) []*call.Session {
	if entities == nil {
		return nil
	}
	models := make([]*call.Session, len(entities))
	for i, e := range entities {
		models[i] = toSessionModel(e)
	}
	return models
}

// SessionRepository persists call session records.
type SessionRepository struct {
	*DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{
		db,
	}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, s *call.Session) error {
	if err := r.Conn(ctx).Create(toSessionEntity(s)).Error; err != nil {
		return call.StoreUnavailable(err, "failed to create session")
	}
	return nil
}

// Get returns the session with the given id.
func (r *SessionRepository) Get(ctx context.Context, id string) (*call.Session, error) {
	return r.get(r.Conn(ctx), id)
}

func (r *SessionRepository) get(tx *gorm.DB, id string) (*call.Session, error) {
	var entity SessionEntity
	if err := tx.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(call.ErrSessionNotFound, "session %s", id)
		}
		return nil, call.StoreUnavailable(err, "failed to load session")
	}
	return toSessionModel(&entity), nil
}

// List returns the most recent sessions first.
func (r *SessionRepository) List(ctx context.Context, limit int) ([]*call.Session, error) {
	var entities []*SessionEntity
	q := r.Conn(ctx).Order("start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entities).Error; err != nil {
		return nil, call.StoreUnavailable(err, "failed to list sessions")
	}
	return toSessionModels(entities), nil
}

// ListStarted returns sessions in the given status that started before the cutoff.
func (r *SessionRepository) ListStarted(ctx context.Context, status call.Status, before time.Time) ([]*call.Session, error) {
	var entities []*SessionEntity
	err := r.Conn(ctx).
		Where("status = ? AND start_time < ?", string(status), before).
		Order("start_time ASC").
		Find(&entities).
		Error
	if err != nil {
		return nil, call.StoreUnavailable(err, "failed to list sessions")
	}
	return toSessionModels(entities), nil
}

// Transition applies t as a conditional update: the row changes only if it
// is still in the transition's source status. When two transitions race,
// the first write wins and the other gets ErrInvalidTransition.
func (r *SessionRepository) Transition(ctx context.Context, id string, t call.Transition, now time.Time) (*call.Session, error) {
	updates := map[string]interface{}{
		"status": string(t.To()),
	}
	switch t.To() {
	case call.StatusActive:
		updates["activated_time"] = now
	case call.StatusEnded:
		updates["ended_time"] = now
	}

	var updated *call.Session
	err := r.Conn(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&SessionEntity{}).
			Where("id = ? AND status = ?", id, string(t.From())).
			Updates(updates)
		if result.Error != nil {
			return call.StoreUnavailable(result.Error, "failed to update session")
		}

		current, err := r.get(tx, id)
		if err != nil {
			return err
		}

		if result.RowsAffected == 0 {
			return call.NewInvalidTransition(id, t, current.Status)
		}

		updated = current
		return nil
	})
	if err != nil {
		if errors.IsAny(err, call.ErrInvalidTransition, call.ErrSessionNotFound, call.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, call.StoreUnavailable(err, "failed to commit session transition")
	}

	return updated, nil
}
