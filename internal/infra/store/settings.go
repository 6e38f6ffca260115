package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/osa030/exitcall/internal/domain/call"
)

// settingsID is the primary key of the singleton settings row.
const settingsID = 1

type SettingsEntity struct {
	ID                uint      `gorm:"primaryKey;autoIncrement:false;column:id"`
	SelectedCaller    string    `gorm:"column:selected_caller;not null"`
	DelaySeconds      int       `gorm:"column:delay_seconds;not null"`
	Ringtone          string    `gorm:"column:ringtone;not null"`
	CustomRingtoneURL *string   `gorm:"column:custom_ringtone_url"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null"`
}

func (SettingsEntity) TableName() string {
	return "settings"
}

func toSettingsEntity(s call.Settings) *SettingsEntity {
	e := &SettingsEntity{
		ID:             settingsID,
		SelectedCaller: s.SelectedCaller,
		DelaySeconds:   s.DelaySeconds,
		Ringtone:       s.Ringtone,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.CustomRingtoneURL != "" {
		url := s.CustomRingtoneURL
		e.CustomRingtoneURL = &url
	}
	return e
}

func toSettingsModel(e *SettingsEntity) call.Settings {
	s := call.Settings{
		SelectedCaller: e.SelectedCaller,
		DelaySeconds:   e.DelaySeconds,
		Ringtone:       e.Ringtone,
		UpdatedAt:      e.UpdatedAt,
	}
	if e.CustomRingtoneURL != nil {
		s.CustomRingtoneURL = *e.CustomRingtoneURL
	}
	return s
}

// SettingsRepository persists the singleton settings record.
type SettingsRepository struct {
	*DB
	now func() time.Time
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{
		DB:  db,
		now: time.Now,
	}
}

// Load returns the stored settings, or the defaults if none were saved yet.
func (r *SettingsRepository) Load(ctx context.Context) (call.Settings, error) {
	var entity SettingsEntity
	err := r.Conn(ctx).Where("id = ?", settingsID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return call.DefaultSettings(), nil
		}
		return call.Settings{}, call.StoreUnavailable(err, "failed to load settings")
	}
	return toSettingsModel(&entity), nil
}

// Save merges the patch into the stored settings with a single upsert.
// When no record exists one is created from the defaults plus the patch;
// otherwise only the patched columns are overwritten.
func (r *SettingsRepository) Save(ctx context.Context, patch call.SettingsPatch) (call.Settings, error) {
	if err := patch.Validate(); err != nil {
		return call.Settings{}, err
	}
	if patch.IsEmpty() {
		return r.Load(ctx)
	}

	initial := call.DefaultSettings().Merge(patch)
	initial.UpdatedAt = r.now()
	entity := toSettingsEntity(initial)

	err := r.Conn(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(patchedColumns(patch)),
		}).
		Create(entity).
		Error
	if err != nil {
		return call.Settings{}, call.StoreUnavailable(err, "failed to save settings")
	}

	return r.Load(ctx)
}

// patchedColumns lists the columns an upsert overwrites for the patch.
func patchedColumns(p call.SettingsPatch) []string {
	cols := make([]string, 0, 5)
	if p.SelectedCaller != nil {
		cols = append(cols, "selected_caller")
	}
	if p.DelaySeconds != nil {
		cols = append(cols, "delay_seconds")
	}
	if p.Ringtone != nil {
		cols = append(cols, "ringtone")
	}
	if p.CustomRingtoneURL != nil {
		cols = append(cols, "custom_ringtone_url")
	}
	return append(cols, "updated_at")
}
