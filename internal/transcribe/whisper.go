//go:build whisper

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go"

	"github.com/chaz8081/transcrever/internal/audio"
	"github.com/chaz8081/transcrever/internal/config"
	"github.com/chaz8081/transcrever/internal/models"
)

// WhisperLoader loads ggml weights from a models directory into whisper.cpp.
type WhisperLoader struct {
	modelsDir  string
	ffmpegPath string
	threads    int
}

// NewWhisperLoader creates a loader for the in-process whisper.cpp backend.
func NewWhisperLoader(cfg config.EngineConfig) (*WhisperLoader, error) {
	return &WhisperLoader{
		modelsDir:  cfg.ModelsDir,
		ffmpegPath: cfg.FFmpegPath,
		threads:    cfg.Threads,
	}, nil
}

// Load reads the weights for tier. A missing weights file is reported as
// ModelUnavailable with a hint to download it.
func (l *WhisperLoader) Load(_ context.Context, tier ModelTier) (Engine, error) {
	tier = tier.orDefault()
	path := models.Path(l.modelsDir, tier.String())
	if _, err := os.Stat(path); err != nil {
		return nil, newError(KindModelUnavailable, "",
			"whisper model %q not found at %s (run 'transcrever models download %s'): %w", tier, path, tier, err)
	}

	wctx := whisper.Whisper_init(path)
	if wctx == nil {
		return nil, newError(KindModelUnavailable, "", "load whisper model %q: whisper_init failed", path)
	}
	return &WhisperEngine{ctx: wctx, ffmpegPath: l.ffmpegPath, threads: l.threads}, nil
}

// WhisperEngine runs whisper.cpp through its low-level bindings, which unlike
// the pkg/whisper wrapper allow choosing the beam search strategy.
type WhisperEngine struct {
	mu         sync.Mutex
	ctx        *whisper.Context
	ffmpegPath string
	threads    int
}

// Close releases the whisper model resources.
func (e *WhisperEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		e.ctx.Whisper_free()
		e.ctx = nil
	}
	return nil
}

// Transcribe decodes the audio file and runs one whisper_full pass over it.
func (e *WhisperEngine) Transcribe(ctx context.Context, ref AudioReference, opts DecodingOptions) (Result, error) {
	samples, err := audio.LoadSamples(ctx, ref.Path, e.ffmpegPath)
	if err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return Result{}, errors.New("whisper model is closed")
	}

	params, err := e.params(opts)
	if err != nil {
		return Result{}, err
	}

	// whisper.cpp cannot be interrupted mid-run; honor cancellation before starting.
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := e.ctx.Whisper_full(params, samples, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	res := Result{Language: opts.Language}
	n := e.ctx.Whisper_full_n_segments()
	texts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text := e.ctx.Whisper_full_get_segment_text(i)
		texts = append(texts, text)
		// Segment timestamps are in 10 ms units.
		res.Segments = append(res.Segments, Segment{
			Start: float64(e.ctx.Whisper_full_get_segment_t0(i)) / 100,
			End:   float64(e.ctx.Whisper_full_get_segment_t1(i)) / 100,
			Text:  text,
		})
	}
	res.Text = strings.TrimSpace(strings.Join(texts, " "))
	return res, nil
}

// samplingStrategy picks beam search whenever the policy asks for more than
// one beam; greedy decoding would silently ignore the beam size.
func samplingStrategy(opts DecodingOptions) whisper.SamplingStrategy {
	if opts.BeamSize > 1 {
		return whisper.SAMPLING_BEAM_SEARCH
	}
	return whisper.SAMPLING_GREEDY
}

// params maps the decoding policy onto whisper_full parameters. The bindings
// expose no patience, length penalty or suppress-token knobs; whisper.cpp
// uses its defaults for those.
func (e *WhisperEngine) params(opts DecodingOptions) (whisper.Params, error) {
	params := e.ctx.Whisper_full_default_params(samplingStrategy(opts))

	if opts.Language != "" {
		id := e.ctx.Whisper_lang_id(opts.Language)
		if id < 0 {
			return params, fmt.Errorf("unsupported language %q", opts.Language)
		}
		if err := params.SetLanguage(id); err != nil {
			return params, fmt.Errorf("set language %q: %w", opts.Language, err)
		}
	}
	params.SetTranslate(opts.Task == "translate")
	params.SetTemperature(opts.Temperature)
	params.SetTemperatureFallback(opts.TemperatureIncrement)
	params.SetBeamSize(opts.BeamSize)
	params.SetInitialPrompt(opts.InitialPrompt)
	params.SetNoContext(!opts.ConditionOnPreviousText)
	params.SetPrintProgress(false)
	params.SetPrintRealtime(false)
	if e.threads > 0 {
		params.SetThreads(e.threads)
	}
	return params, nil
}
