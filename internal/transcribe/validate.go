package transcribe

import (
	"os"
	"path/filepath"
	"strings"
)

// supportedFormats lists the accepted audio extensions, without the dot.
var supportedFormats = []string{"mp3", "wav", "ogg", "m4a", "flac", "aac"}

// SupportedFormats returns the accepted audio extensions.
func SupportedFormats() []string {
	return append([]string(nil), supportedFormats...)
}

// AudioReference is an audio file that passed validation.
type AudioReference struct {
	Path   string
	Format string // lower-case extension without the dot
	Size   int64
}

// Validate checks that path names an existing, non-empty file in a supported
// format. Only file metadata is read. Checks run in order: existence, format,
// size.
func Validate(path string) (AudioReference, error) {
	info, err := os.Stat(path)
	if err != nil {
		return AudioReference{}, newError(KindNotFound, path, "file not found: %w", err)
	}
	if info.IsDir() {
		return AudioReference{}, newError(KindNotFound, path, "file not found: %s is a directory", path)
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !isSupported(format) {
		shown := "." + format
		if format == "" {
			shown = "(none)"
		}
		return AudioReference{}, newError(KindUnsupportedFormat, path,
			"unsupported format: %s (supported: %s)", shown, strings.Join(supportedFormats, ", "))
	}

	if info.Size() == 0 {
		return AudioReference{}, newError(KindEmptyArtifact, path, "empty file: %s", path)
	}

	return AudioReference{Path: path, Format: format, Size: info.Size()}, nil
}

func isSupported(format string) bool {
	for _, f := range supportedFormats {
		if f == format {
			return true
		}
	}
	return false
}
