package ringtone

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/osa030/exitcall/internal/domain/call"
)

// Source is a resolved playable location.
type Source struct {
	Label    string // Ringtone id or custom URL, for logs
	Location string // File path or URL handed to the backend
	Silent   bool   // Nothing to play (e.g. Vibration Only)
}

// Catalog maps ringtone references to sources.
type Catalog struct {
	// Builtin maps built-in ringtone ids to a sound path or URL.
	// An empty value means the ringtone is silent.
	Builtin map[string]string
	// Fallback is played for a built-in id missing from Builtin.
	Fallback string
	// UploadsPublicPath and UploadsDir map uploaded ringtone URLs to local files.
	UploadsPublicPath string
	UploadsDir        string
}

// Resolve returns the source for ref. A custom URL takes precedence.
func (c Catalog) Resolve(ref call.RingtoneRef) Source {
	if ref.IsCustom() {
		return Source{Label: ref.CustomURL, Location: c.localUpload(ref.CustomURL)}
	}

	loc, ok := c.Builtin[ref.Builtin]
	if !ok {
		if ref.Builtin == call.RingtoneVibration {
			return Source{Label: ref.Builtin, Silent: true}
		}
		loc = c.Fallback
	}
	return Source{Label: ref.Builtin, Location: loc, Silent: loc == ""}
}

// localUpload turns a public upload URL into its file path.
// URLs outside the public path are returned unchanged.
func (c Catalog) localUpload(raw string) string {
	if c.UploadsPublicPath == "" || c.UploadsDir == "" {
		return raw
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	p = path.Clean(p)
	prefix := strings.TrimSuffix(c.UploadsPublicPath, "/") + "/"
	if !strings.HasPrefix(p, prefix) {
		return raw
	}
	return filepath.Join(c.UploadsDir, path.Base(p))
}
