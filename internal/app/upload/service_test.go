package upload

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/exitcall/internal/domain/call"
	"github.com/osa030/exitcall/internal/infra/store"
)

var (
	mp3Bytes  = append([]byte("ID3\x03\x00\x00\x00\x00\x00\x0f"), bytes.Repeat([]byte{0}, 64)...)
	wavBytes  = append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), bytes.Repeat([]byte{0}, 64)...)
	mp4Bytes  = append([]byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom"), bytes.Repeat([]byte{0}, 64)...)
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)
	textBytes = []byte("definitely not a ringtone\n")
)

func newTestService(t *testing.T) (*Service, *store.SettingsRepository, string) {
	t.Helper()
	settings := store.NewSettingsRepository(store.OpenTest(t))
	dir := filepath.Join(t.TempDir(), "ringtones")
	svc := NewService(Config{Dir: dir, PublicPath: "/ringtones/", MaxBytes: 1024}, settings, nil)
	svc.newName = func() string { return "fixed" }
	return svc, settings, dir
}

func TestService_UploadAccepted(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
		wantURL  string
	}{
		{"mp3", mp3Bytes, "audio/mpeg", "/ringtones/fixed.mp3"},
		{"wav without declared type", wavBytes, "", "/ringtones/fixed.wav"},
		{"mp4 container declared as audio", mp4Bytes, "audio/mp4", "/ringtones/fixed.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, settings, dir := newTestService(t)
			ctx := context.Background()

			url, err := svc.Upload(ctx, "tone"+filepath.Ext(tt.wantURL), tt.declared, bytes.NewReader(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, url)

			stored, err := os.ReadFile(filepath.Join(dir, filepath.Base(tt.wantURL)))
			require.NoError(t, err)
			assert.Equal(t, tt.data, stored)

			loaded, err := settings.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, loaded.CustomRingtoneURL)
		})
	}
}

func TestService_UploadRejectedKeepsPreviousRingtone(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		declared string
	}{
		{"plain text", textBytes, "text/plain"},
		{"image declared as audio", pngBytes, "audio/mpeg"},
		{"video container declared as video", mp4Bytes, "video/mp4"},
		{"too large", append(mp3Bytes, bytes.Repeat([]byte{0}, 2048)...), "audio/mpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, settings, dir := newTestService(t)
			ctx := context.Background()

			previous := "/ringtones/previous.mp3"
			_, err := settings.Save(ctx, call.SettingsPatch{CustomRingtoneURL: &previous})
			require.NoError(t, err)

			_, err = svc.Upload(ctx, "upload.bin", tt.declared, bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, call.ErrUnsupportedUpload))

			loaded, err := settings.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, previous, loaded.CustomRingtoneURL)

			_, statErr := os.Stat(dir)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

type failingSaver struct{}

func (failingSaver) Save(context.Context, call.SettingsPatch) (call.Settings, error) {
	return call.Settings{}, call.StoreUnavailable(errors.New("database is locked"), "failed to save settings")
}

func TestService_SaveFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(Config{Dir: dir}, failingSaver{}, nil)

	_, err := svc.Upload(context.Background(), "a.mp3", "audio/mpeg", bytes.NewReader(mp3Bytes))
	require.Error(t, err)
	assert.True(t, errors.Is(err, call.ErrStoreUnavailable))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_LocalPath(t *testing.T) {
	svc := NewService(Config{Dir: "/data/ringtones"}, failingSaver{}, nil)

	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"abc.mp3", filepath.Join("/data/ringtones", "abc.mp3"), true},
		{"../secret", "", false},
		{"", "", false},
		{"a/b.mp3", "", false},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.name, "/", "_"), func(t *testing.T) {
			got, ok := svc.LocalPath(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(Config{Dir: "x"}, failingSaver{}, nil)
	assert.Equal(t, int64(DefaultMaxBytes), svc.Config().MaxBytes)
	assert.Equal(t, "/ringtones/", svc.Config().PublicPath)
	assert.Equal(t, "/ringtones/a.mp3", svc.PublicURL("a.mp3"))
}
