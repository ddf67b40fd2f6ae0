//go:build !whisper

package transcribe

import (
	"context"

	"github.com/chaz8081/transcrever/internal/config"
)

// WhisperLoader is unavailable in builds without the whisper tag.
type WhisperLoader struct{}

// NewWhisperLoader returns a loader whose Load always fails, so the error
// surfaces as ModelUnavailable for the file being transcribed.
func NewWhisperLoader(_ config.EngineConfig) (*WhisperLoader, error) {
	return &WhisperLoader{}, nil
}

func (l *WhisperLoader) Load(_ context.Context, tier ModelTier) (Engine, error) {
	return nil, newError(KindModelUnavailable, "",
		"whisper backend (model %s) is not compiled in; rebuild with '-tags whisper' or use backend exec", tier.orDefault())
}
