package clipboard

import (
	"bytes"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

const maxImageBytes = 10 * 1024 * 1024

// SystemSource reads the clipboard through pbpaste. Image payloads are taken
// as-is when they already are PNG; format conversion is out of scope.
type SystemSource struct{}

func (SystemSource) Read(textOnly bool) (*Snapshot, error) {
	text := readText()
	image := readImage()

	if textOnly {
		if text != "" {
			return &Snapshot{Text: text, OriginalHasImage: len(image) > 0}, nil
		}
		if len(image) > 0 {
			// Image ignored in text-only mode; keep the marker so the
			// manual candidate can still describe it.
			return &Snapshot{Text: "", OriginalHasImage: true}, nil
		}
		return nil, nil
	}

	if len(image) > 0 {
		return &Snapshot{Text: text, ImageData: image, ImageMIME: "image/png", OriginalHasImage: true}, nil
	}
	if text == "" {
		return nil, nil
	}
	return &Snapshot{Text: text}, nil
}

func readText() string {
	out, err := exec.Command("pbpaste").Output()
	if err != nil {
		return ""
	}
	return strings.Trim(string(out), "\x00")
}

func readImage() []byte {
	out, err := exec.Command("pbpaste", "-Prefer", "png").Output()
	if err != nil {
		return nil
	}
	if !bytes.HasPrefix(out, pngMagic) || len(out) > maxImageBytes {
		return nil
	}
	return out
}

// SystemWriter copies through pbcopy.
type SystemWriter struct{}

func (SystemWriter) Copy(text string) error {
	cmd := exec.Command("pbcopy")
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return &CopyError{Err: err}
	}
	return nil
}

// SystemPaster sends a cmd-V keystroke via osascript.
type SystemPaster struct{}

func (SystemPaster) Paste() bool {
	script := `tell application "System Events" to keystroke "v" using {command down}`
	if err := exec.Command("/usr/bin/osascript", "-e", script).Run(); err != nil {
		log.Warn().Err(err).Msg("auto paste failed")
		return false
	}
	return true
}
