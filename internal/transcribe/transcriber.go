// Package transcribe turns a single audio file into text with a whisper
// speech-recognition engine, using a fixed decoding policy for informal
// Brazilian Portuguese.
//
// Supported backends:
//   - exec: the whisper command-line program run as a subprocess (default)
//   - whisper: whisper.cpp via Go bindings (build with -tags whisper)
package transcribe

import (
	"context"
	"fmt"

	"github.com/chaz8081/transcrever/internal/config"
)

// Segment is a time-aligned piece of an engine result.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result is the raw output of an engine.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Engine converts an audio file to text.
type Engine interface {
	// Transcribe runs recognition on ref with the given options. It blocks
	// for a time proportional to the audio length and model size.
	Transcribe(ctx context.Context, ref AudioReference, opts DecodingOptions) (Result, error)
	// Close releases backend resources.
	Close() error
}

// Loader resolves an engine bound to a model tier.
type Loader interface {
	Load(ctx context.Context, tier ModelTier) (Engine, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, tier ModelTier) (Engine, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, tier ModelTier) (Engine, error) {
	return f(ctx, tier)
}

// NewLoader creates a Loader based on the config backend setting.
func NewLoader(cfg config.EngineConfig) (Loader, error) {
	switch cfg.Backend {
	case "whisper":
		return NewWhisperLoader(cfg)
	case "exec", "":
		return NewExecLoader(cfg)
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: exec, whisper)", cfg.Backend)
	}
}
