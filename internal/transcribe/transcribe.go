package transcribe

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// Transcriber validates an audio file, runs it through an engine with the
// fixed decoding policy and checks the result. It holds no per-run state and
// is safe to reuse; each call loads and closes its own engine unless the
// Loader shares engines.
type Transcriber struct {
	loader Loader
	logger *slog.Logger
	diag   io.Writer
	now    func() time.Time
}

// Option configures a Transcriber.
type Option func(*Transcriber)

// WithLogger sets the logger used for progress lines.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transcriber) { t.logger = l }
}

// WithDiagnostics sets where failure records are written.
func WithDiagnostics(w io.Writer) Option {
	return func(t *Transcriber) { t.diag = w }
}

// WithClock overrides the time source used to stamp failure records.
func WithClock(now func() time.Time) Option {
	return func(t *Transcriber) { t.now = now }
}

// New creates a Transcriber that resolves engines through loader.
func New(loader Loader, opts ...Option) *Transcriber {
	t := &Transcriber{
		loader: loader,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		diag:   io.Discard,
		now:    time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transcribe returns the trimmed transcription of the audio file at path.
// A zero tier selects DefaultTier. Every failure is an *Error and is written
// as a FailureRecord to the diagnostics writer before being returned; no
// partial text is ever returned with an error.
func (t *Transcriber) Transcribe(ctx context.Context, path string, tier ModelTier) (text string, err error) {
	defer func() {
		if err != nil {
			t.recordFailure(err, path)
		}
	}()

	ref, err := Validate(path)
	if err != nil {
		return "", err
	}

	tier = tier.orDefault()
	t.logger.Info("loading model", "model", tier.String())
	loadStart := time.Now()
	engine, err := t.loader.Load(ctx, tier)
	if err != nil {
		return "", classify(err, KindModelUnavailable, path)
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			t.logger.Warn("closing engine", "error", cerr)
		}
	}()
	t.logger.Debug("model loaded", "model", tier.String(), "elapsed", time.Since(loadStart).Round(time.Millisecond))

	opts := PortugueseInformal()
	t.logger.Info("transcribing audio", "file", filepath.Base(ref.Path), "format", ref.Format, "bytes", ref.Size)
	start := time.Now()
	res, err := engine.Transcribe(ctx, ref, opts)
	if err != nil {
		return "", classify(err, KindEngineFailure, path)
	}

	text = strings.TrimSpace(res.Text)
	if text == "" {
		return "", newError(KindEmptyTranscription, path, "transcription produced empty text")
	}

	t.logger.Info("transcription complete",
		"chars", utf8.RuneCountInString(text),
		"elapsed", time.Since(start).Round(time.Millisecond))
	t.logger.Info("transcript", "text", text)
	return text, nil
}

func (t *Transcriber) recordFailure(err error, path string) {
	rec := NewFailureRecord(err, path, t.now())
	if _, werr := rec.WriteTo(t.diag); werr != nil {
		t.logger.Error("writing failure record", "error", werr)
	}
}
