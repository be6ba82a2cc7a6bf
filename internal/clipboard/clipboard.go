// Package clipboard reads and writes the system clipboard. The pipeline only
// depends on the Source/Writer/Paster interfaces; the exec-based
// implementations live in system.go.
package clipboard

import (
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
)

// ErrEmpty is returned when the clipboard holds neither text nor an image.
var ErrEmpty = errors.New("clipboard: no available text or image content")

// Snapshot is one immutable capture of the clipboard.
type Snapshot struct {
	Text             string
	ImageData        []byte
	ImageMIME        string
	OriginalHasImage bool
}

func (s *Snapshot) HasText() bool  { return s != nil && s.Text != "" }
func (s *Snapshot) HasImage() bool { return s != nil && len(s.ImageData) > 0 }

// ImageDataURL encodes the image payload as a data URL for inline model
// messages. Empty when the snapshot carries no image.
func (s *Snapshot) ImageDataURL() string {
	if !s.HasImage() {
		return ""
	}
	mime := s.ImageMIME
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(s.ImageData))
}

// Source captures a snapshot on demand. A nil snapshot with a nil error means
// the clipboard was empty.
type Source interface {
	Read(textOnly bool) (*Snapshot, error)
}

// Writer copies text back to the clipboard.
type Writer interface {
	Copy(text string) error
}

// Paster triggers a best-effort OS paste keystroke. The returned bool reports
// whether the simulation ran.
type Paster interface {
	Paste() bool
}

// CopyError wraps a platform copy failure so the protocol layer can report it
// with the ws_copy_failed code.
type CopyError struct {
	Err error
}

func (e *CopyError) Error() string { return "clipboard copy failed: " + e.Err.Error() }
func (e *CopyError) Unwrap() error { return e.Err }
