package call

import (
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// Built-in ringtone identifiers.
const (
	RingtoneClassic   = "Classic iPhone"
	RingtoneUrgent    = "Urgent"
	RingtoneVibration = "Vibration Only"
)

// Default values used when no settings record exists.
const (
	DefaultCaller       = "Mom"
	DefaultDelaySeconds = 5
	DefaultRingtone     = RingtoneClassic
	MaxDelaySeconds     = 3600
)

var (
	// Callers is the fixed set of contact profiles.
	Callers = []string{"Mom", "Dad", "Yamini"}
	// Delays are the delays offered on the staging screen.
	Delays = []int{2, 5, 10}
	// Ringtones is the set of built-in ringtones.
	Ringtones = []string{RingtoneClassic, RingtoneUrgent, RingtoneVibration}
)

// IsKnownCaller reports whether name belongs to the caller set.
func IsKnownCaller(name string) bool {
	return slices.Contains(Callers, name)
}

// IsBuiltinRingtone reports whether id names a built-in ringtone.
func IsBuiltinRingtone(id string) bool {
	return slices.Contains(Ringtones, id)
}

// Settings is the single persisted user preference record.
type Settings struct {
	SelectedCaller    string    `validate:"required,caller"`
	DelaySeconds      int       `validate:"gte=1,lte=3600"`
	Ringtone          string    `validate:"required,ringtone"`
	CustomRingtoneURL string    `validate:"omitempty,max=2048"`
	UpdatedAt         time.Time `validate:"-"`
}

// DefaultSettings returns the values equivalent to an absent record.
func DefaultSettings() Settings {
	return Settings{
		SelectedCaller: DefaultCaller,
		DelaySeconds:   DefaultDelaySeconds,
		Ringtone:       DefaultRingtone,
	}
}

// Delay returns the configured delay as a duration.
func (s Settings) Delay() time.Duration {
	return time.Duration(s.DelaySeconds) * time.Second
}

// RingtoneRef returns the reference used for playback.
// A custom ringtone takes precedence over the built-in selection.
func (s Settings) RingtoneRef() RingtoneRef {
	return RingtoneRef{CustomURL: s.CustomRingtoneURL, Builtin: s.Ringtone}
}

// Merge returns a copy of s with the patched fields applied.
func (s Settings) Merge(p SettingsPatch) Settings {
	if p.SelectedCaller != nil {
		s.SelectedCaller = *p.SelectedCaller
	}
	if p.DelaySeconds != nil {
		s.DelaySeconds = *p.DelaySeconds
	}
	if p.Ringtone != nil {
		s.Ringtone = *p.Ringtone
	}
	if p.CustomRingtoneURL != nil {
		s.CustomRingtoneURL = *p.CustomRingtoneURL
	}
	return s
}

// Validate validates the settings values.
func (s Settings) Validate() error {
	if err := validate().Struct(s); err != nil {
		return errors.Mark(errors.Wrap(err, "settings validation failed"), ErrInvalidSettings)
	}
	return nil
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
// An empty CustomRingtoneURL clears the custom ringtone.
type SettingsPatch struct {
	SelectedCaller    *string `mapstructure:"selected_caller"`
	DelaySeconds      *int    `mapstructure:"delay_seconds"`
	Ringtone          *string `mapstructure:"ringtone"`
	CustomRingtoneURL *string `mapstructure:"custom_ringtone_url"`
}

// IsEmpty returns true if the patch changes nothing.
func (p SettingsPatch) IsEmpty() bool {
	return p.SelectedCaller == nil && p.DelaySeconds == nil && p.Ringtone == nil && p.CustomRingtoneURL == nil
}

// Validate checks every patched field. Unpatched fields are not inspected.
func (p SettingsPatch) Validate() error {
	return DefaultSettings().Merge(p).Validate()
}

// RingtoneRef identifies the audio to play for a call.
type RingtoneRef struct {
	CustomURL string // Uploaded asset, takes priority
	Builtin   string // Built-in ringtone id
}

// IsCustom returns true if the reference points at an uploaded asset.
func (r RingtoneRef) IsCustom() bool {
	return r.CustomURL != ""
}

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func validate() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("caller", func(fl validator.FieldLevel) bool {
			return IsKnownCaller(fl.Field().String())
		})
		_ = v.RegisterValidation("ringtone", func(fl validator.FieldLevel) bool {
			return IsBuiltinRingtone(fl.Field().String())
		})
		validatorInst = v
	})
	return validatorInst
}
