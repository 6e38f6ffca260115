// Package upload stores custom ringtones and selects them in the settings.
package upload

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/exitcall/internal/domain/call"
	"github.com/osa030/exitcall/internal/infra/metrics"
)

// DefaultMaxBytes limits the size of an uploaded ringtone.
const DefaultMaxBytes = 10 << 20

// containers may hold audio or video; they are accepted only when the
// client declared an audio type.
var containers = []string{"video/mp4", "video/webm", "video/ogg", "application/ogg", "video/quicktime"}

// Config holds upload configuration.
type Config struct {
	Dir        string // Where files are written
	PublicPath string // URL path files are served under
	MaxBytes   int64
}

// SettingsSaver persists the selected custom ringtone.
type SettingsSaver interface {
	Save(ctx context.Context, patch call.SettingsPatch) (call.Settings, error)
}

// Service accepts ringtone uploads.
type Service struct {
	config   Config
	settings SettingsSaver
	metrics  *metrics.Metrics
	newName  func() string
}

// NewService creates a new upload service.
func NewService(config Config, settings SettingsSaver, m *metrics.Metrics) *Service {
	if config.MaxBytes <= 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if config.PublicPath == "" {
		config.PublicPath = "/ringtones/"
	}
	return &Service{
		config:   config,
		settings: settings,
		metrics:  m,
		newName:  func() string { return uuid.New().String() },
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}

// Upload stores an audio file and saves its public URL as the custom
// ringtone. Non-audio content returns call.ErrUnsupportedUpload and the
// previous ringtone is kept.
func (s *Service) Upload(ctx context.Context, filename, declaredType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.config.MaxBytes+1))
	if err != nil {
		s.metrics.Upload(metrics.OutcomeError)
		return "", errors.Wrap(err, "failed to read upload")
	}
	if int64(len(data)) > s.config.MaxBytes {
		s.metrics.Upload(metrics.OutcomeRejected)
		return "", errors.Mark(errors.Newf("file exceeds %d bytes", s.config.MaxBytes), call.ErrUnsupportedUpload)
	}

	mtype := mimetype.Detect(data)
	if !isAudio(mtype, declaredType) {
		s.metrics.Upload(metrics.OutcomeRejected)
		zlog.Warn().Msgf("Rejected ringtone upload: file=%s detected=%s declared=%s", filename, mtype.String(), declaredType)
		return "", errors.Mark(errors.Newf("%s is not an audio file", mtype.String()), call.ErrUnsupportedUpload)
	}

	if err := os.MkdirAll(s.config.Dir, 0o755); err != nil {
		s.metrics.Upload(metrics.OutcomeError)
		return "", errors.Wrap(err, "failed to create uploads directory")
	}

	name := s.newName() + extension(mtype, filename)
	dst := filepath.Join(s.config.Dir, name)
	if err := writeFile(dst, data); err != nil {
		s.metrics.Upload(metrics.OutcomeError)
		return "", err
	}

	url := s.PublicURL(name)
	if _, err := s.settings.Save(ctx, call.SettingsPatch{CustomRingtoneURL: &url}); err != nil {
		_ = os.Remove(dst)
		s.metrics.Upload(metrics.OutcomeError)
		return "", errors.Wrap(err, "failed to save custom ringtone")
	}

	s.metrics.Upload(metrics.OutcomeOK)
	zlog.Info().Msgf("Custom ringtone uploaded: file=%s type=%s url=%s", filename, mtype.String(), url)
	return url, nil
}

// PublicURL returns the URL path a stored file is served under.
func (s *Service) PublicURL(name string) string {
	return path.Join("/", s.config.PublicPath, name)
}

// LocalPath returns the stored file for a served name, rejecting names
// that would escape the uploads directory.
func (s *Service) LocalPath(name string) (string, bool) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base != name {
		return "", false
	}
	return filepath.Join(s.config.Dir, base), true
}

func isAudio(mtype *mimetype.MIME, declaredType string) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
	}
	if !strings.HasPrefix(strings.ToLower(declaredType), "audio/") {
		return false
	}
	return slices.ContainsFunc(containers, mtype.Is)
}

func extension(mtype *mimetype.MIME, filename string) string {
	if ext := mtype.Extension(); ext != "" {
		return ext
	}
	return strings.ToLower(filepath.Ext(filename))
}

func writeFile(dst string, data []byte) error {
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "failed to create ringtone file")
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return errors.Wrap(err, "failed to write ringtone file")
	}
	return errors.Wrap(f.Close(), "failed to close ringtone file")
}
