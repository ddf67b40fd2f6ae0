package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// stubEngine returns a scripted result and records what it was called with.
type stubEngine struct {
	text   string
	err    error
	calls  int
	gotRef AudioReference
	gotOpt DecodingOptions
	closed bool
}

func (e *stubEngine) Transcribe(_ context.Context, ref AudioReference, opts DecodingOptions) (Result, error) {
	e.calls++
	e.gotRef = ref
	e.gotOpt = opts
	if e.err != nil {
		return Result{}, e.err
	}
	return Result{Text: e.text, Language: "pt"}, nil
}

func (e *stubEngine) Close() error {
	e.closed = true
	return nil
}

// stubLoader hands out a single engine and records the requested tiers.
type stubLoader struct {
	engine *stubEngine
	err    error
	tiers  []ModelTier
}

func (l *stubLoader) Load(_ context.Context, tier ModelTier) (Engine, error) {
	l.tiers = append(l.tiers, tier)
	if l.err != nil {
		return nil, l.err
	}
	return l.engine, nil
}

var fixedNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func newTestTranscriber(loader Loader) (*Transcriber, *bytes.Buffer, *bytes.Buffer) {
	var logs, diag bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	tr := New(loader,
		WithLogger(logger),
		WithDiagnostics(&diag),
		WithClock(func() time.Time { return fixedNow }),
	)
	return tr, &logs, &diag
}

// decodeRecord parses the single failure line written to diag.
func decodeRecord(t *testing.T, diag string) FailureRecord {
	t.Helper()
	line := strings.TrimSpace(diag)
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("expected exactly one failure line, got %q", diag)
	}
	payload, ok := strings.CutPrefix(line, "failure: ")
	if !ok {
		t.Fatalf("failure line missing prefix: %q", line)
	}
	var rec FailureRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("failure record is not JSON: %v", err)
	}
	return rec
}

func TestTranscribeSuccess(t *testing.T) {
	path := writeAudio(t, "sample.wav", []byte("RIFF....WAVE"))
	engine := &stubEngine{text: "  olá, tudo bem?\n"}
	loader := &stubLoader{engine: engine}
	tr, logs, diag := newTestTranscriber(loader)

	text, err := tr.Transcribe(context.Background(), path, TierBase)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "olá, tudo bem?" {
		t.Errorf("Transcribe() = %q, want trimmed text", text)
	}
	if len(loader.tiers) != 1 || loader.tiers[0] != TierBase {
		t.Errorf("loader tiers = %v, want [base]", loader.tiers)
	}
	if engine.gotRef.Path != path || engine.gotRef.Format != "wav" {
		t.Errorf("engine got ref %+v", engine.gotRef)
	}
	if !engine.closed {
		t.Error("engine should be closed after the run")
	}
	if diag.Len() != 0 {
		t.Errorf("no failure record expected, got %q", diag.String())
	}
	// 14 runes, not 15 bytes.
	if !strings.Contains(logs.String(), "chars=14") {
		t.Errorf("logs should contain the character count, got:\n%s", logs.String())
	}
}

func TestTranscribeDefaultTier(t *testing.T) {
	path := writeAudio(t, "sample.ogg", []byte("OggS"))
	loader := &stubLoader{engine: &stubEngine{text: "oi"}}
	tr, _, _ := newTestTranscriber(loader)

	if _, err := tr.Transcribe(context.Background(), path, 0); err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if loader.tiers[0] != DefaultTier {
		t.Errorf("tier = %v, want %v", loader.tiers[0], DefaultTier)
	}
}

func TestTranscribePassesFixedOptions(t *testing.T) {
	path := writeAudio(t, "sample.mp3", []byte("ID3"))

	for i := 0; i < 3; i++ {
		engine := &stubEngine{text: "texto"}
		tr, _, _ := newTestTranscriber(&stubLoader{engine: engine})
		if _, err := tr.Transcribe(context.Background(), path, TierTiny); err != nil {
			t.Fatalf("Transcribe() error = %v", err)
		}

		if engine.gotOpt != PortugueseInformal() {
			t.Fatalf("run %d: engine options = %+v, want %+v", i, engine.gotOpt, PortugueseInformal())
		}
		opt := engine.gotOpt
		if opt.Language != "pt" || opt.Task != "transcribe" {
			t.Errorf("language/task = %q/%q, want pt/transcribe", opt.Language, opt.Task)
		}
		if opt.Temperature != 0 || opt.TemperatureIncrement != 0 {
			t.Errorf("temperature = %v (+%v), want 0 with no fallback", opt.Temperature, opt.TemperatureIncrement)
		}
		if opt.BestOf != 5 || opt.BeamSize != 5 {
			t.Errorf("best_of/beam_size = %d/%d, want 5/5", opt.BestOf, opt.BeamSize)
		}
		if !opt.ConditionOnPreviousText {
			t.Error("condition on previous text should be enabled")
		}
		if opt.SuppressTokens != "-1" {
			t.Errorf("suppress tokens = %q, want -1", opt.SuppressTokens)
		}
		if opt.InitialPrompt != "Transcrição em português brasileiro informal: " {
			t.Errorf("initial prompt = %q", opt.InitialPrompt)
		}
	}
}

func TestPortugueseInformalReturnsCopy(t *testing.T) {
	opts := PortugueseInformal()
	opts.Language = "en"
	opts.Temperature = 0.8
	if got := PortugueseInformal(); got.Language != "pt" || got.Temperature != 0 {
		t.Errorf("mutating a copy changed the policy: %+v", got)
	}
}

func TestTranscribeValidationFailuresSkipEngine(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		want Kind
	}{
		{"missing", filepath.Join(dir, "missing.mp3"), KindNotFound},
		{"unsupported", writeAudio(t, "clip.xyz", []byte("x")), KindUnsupportedFormat},
		{"empty", writeAudio(t, "empty.flac", nil), KindEmptyArtifact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &stubLoader{engine: &stubEngine{text: "never"}}
			tr, _, diag := newTestTranscriber(loader)

			text, err := tr.Transcribe(context.Background(), tt.path, TierSmall)
			if text != "" {
				t.Errorf("no text expected on failure, got %q", text)
			}
			if got := KindOf(err); got != tt.want {
				t.Fatalf("KindOf = %v, want %v (err = %v)", got, tt.want, err)
			}
			if len(loader.tiers) != 0 {
				t.Error("engine must not be loaded for invalid input")
			}

			// The validator error is propagated as is.
			_, verr := Validate(tt.path)
			if err.Error() != verr.Error() {
				t.Errorf("error was rewrapped: %q vs %q", err, verr)
			}

			rec := decodeRecord(t, diag.String())
			if rec.Type != tt.want {
				t.Errorf("record type = %v, want %v", rec.Type, tt.want)
			}
			if rec.File != tt.path {
				t.Errorf("record file = %q, want %q", rec.File, tt.path)
			}
		})
	}
}

func TestTranscribeModelUnavailable(t *testing.T) {
	path := writeAudio(t, "sample.wav", []byte("RIFF"))
	loader := &stubLoader{err: errors.New("weights missing")}
	tr, _, diag := newTestTranscriber(loader)

	_, err := tr.Transcribe(context.Background(), path, TierLarge)
	if got := KindOf(err); got != KindModelUnavailable {
		t.Fatalf("KindOf = %v, want %v", got, KindModelUnavailable)
	}
	if len(loader.tiers) != 1 {
		t.Errorf("load should be attempted exactly once, got %d", len(loader.tiers))
	}
	rec := decodeRecord(t, diag.String())
	if rec.Error != "weights missing" {
		t.Errorf("record error = %q, want original message", rec.Error)
	}
	if rec.Timestamp != fixedNow.Format(time.RFC3339Nano) {
		t.Errorf("record timestamp = %q", rec.Timestamp)
	}
}

func TestTranscribeKeepsLoaderKind(t *testing.T) {
	path := writeAudio(t, "sample.wav", []byte("RIFF"))
	loaderErr := &Error{Kind: KindEngineFailure, Err: errors.New("driver crashed")}
	tr, _, _ := newTestTranscriber(&stubLoader{err: loaderErr})

	_, err := tr.Transcribe(context.Background(), path, TierSmall)
	if got := KindOf(err); got != KindEngineFailure {
		t.Errorf("KindOf = %v, want classified loader kind %v", got, KindEngineFailure)
	}
}

func TestTranscribeEngineFailure(t *testing.T) {
	path := writeAudio(t, "sample.m4a", []byte("ftyp"))
	engine := &stubEngine{err: errors.New("out of memory")}
	tr, _, diag := newTestTranscriber(&stubLoader{engine: engine})

	_, err := tr.Transcribe(context.Background(), path, TierMedium)
	if got := KindOf(err); got != KindEngineFailure {
		t.Fatalf("KindOf = %v, want %v", got, KindEngineFailure)
	}
	if engine.calls != 1 {
		t.Errorf("engine calls = %d, want 1 (no retries)", engine.calls)
	}
	if !engine.closed {
		t.Error("engine should be closed after a failed run")
	}
	if rec := decodeRecord(t, diag.String()); rec.Error != "out of memory" {
		t.Errorf("record error = %q", rec.Error)
	}
}

func TestTranscribeEmptyTranscription(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		path := writeAudio(t, "sample.wav", []byte("RIFF"))
		tr, _, diag := newTestTranscriber(&stubLoader{engine: &stubEngine{text: text}})

		got, err := tr.Transcribe(context.Background(), path, TierSmall)
		if got != "" {
			t.Errorf("text = %q, want empty on failure", got)
		}
		if kind := KindOf(err); kind != KindEmptyTranscription {
			t.Fatalf("engine text %q: KindOf = %v, want %v", text, kind, KindEmptyTranscription)
		}
		if rec := decodeRecord(t, diag.String()); rec.Type != KindEmptyTranscription {
			t.Errorf("record type = %v", rec.Type)
		}
	}
}

func TestErrorIsMatchesKind(t *testing.T) {
	err := newError(KindNotFound, "a.wav", "file not found")
	if !errors.Is(err, &Error{Kind: KindNotFound}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, &Error{Kind: KindEmptyArtifact}) {
		t.Error("errors.Is should not match a different kind")
	}
	if KindOf(errors.New("plain")) != KindEngineFailure {
		t.Error("unclassified errors should report EngineFailure")
	}
}
