package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/gokit/process"
	"github.com/mattn/go-shellwords"

	"github.com/chaz8081/transcrever/internal/config"
)

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// defaultGracePeriod is how long whisper gets to exit after SIGTERM on
// cancellation before its process group is killed.
const defaultGracePeriod = 5 * time.Second

// execRunner executes commands in their own process group: on cancellation
// the whole group (whisper and the ffmpeg it spawns) gets SIGTERM, then
// SIGKILL once the grace period ends.
type execRunner struct {
	gracePeriod time.Duration
}

// Run executes one command and captures stdout/stderr and exit code.
func (r execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	res, err := process.Run(ctx, process.Command{
		Binary:      name,
		Args:        args,
		GracePeriod: r.gracePeriod,
	})
	if res == nil {
		return commandResult{ExitCode: -1}, err
	}
	return commandResult{
		Stdout:   string(res.Stdout),
		Stderr:   string(res.Stderr),
		ExitCode: res.ExitCode,
	}, err
}

// ExecLoader resolves engines that run the whisper command-line program.
type ExecLoader struct {
	argv      []string
	modelsDir string
	threads   int

	runner   commandRunner
	lookPath func(file string) (string, error)
	stat     func(name string) (os.FileInfo, error)
}

// NewExecLoader parses cfg.Command with shell word rules, so values like
// "python3 -m whisper" work.
func NewExecLoader(cfg config.EngineConfig) (*ExecLoader, error) {
	argv, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("transcribe: parse engine command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("transcribe: engine command is empty")
	}
	return &ExecLoader{
		argv:      argv,
		modelsDir: cfg.ModelsDir,
		threads:   cfg.Threads,
		runner:    execRunner{gracePeriod: defaultGracePeriod},
		lookPath:  exec.LookPath,
		stat:      os.Stat,
	}, nil
}

// Load checks that the whisper program can be found. Model weights are
// fetched by the program itself on first use.
func (l *ExecLoader) Load(_ context.Context, tier ModelTier) (Engine, error) {
	bin, err := l.lookPath(l.argv[0])
	if err != nil {
		return nil, newError(KindModelUnavailable, "", "whisper program %q not found: %w", l.argv[0], err)
	}

	modelsDir := ""
	if l.modelsDir != "" {
		if info, err := l.stat(l.modelsDir); err == nil && info.IsDir() {
			modelsDir = l.modelsDir
		}
	}

	return &execEngine{
		bin:       bin,
		baseArgs:  l.argv[1:],
		tier:      tier.orDefault(),
		modelsDir: modelsDir,
		threads:   l.threads,
		runner:    l.runner,
		mkdirTemp: os.MkdirTemp,
		removeAll: os.RemoveAll,
		readFile:  os.ReadFile,
	}, nil
}

// execEngine runs one whisper process per transcription.
type execEngine struct {
	bin       string
	baseArgs  []string
	tier      ModelTier
	modelsDir string
	threads   int

	runner    commandRunner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	readFile  func(name string) ([]byte, error)
}

func (e *execEngine) Transcribe(ctx context.Context, ref AudioReference, opts DecodingOptions) (Result, error) {
	outDir, err := e.mkdirTemp("", "transcrever-*")
	if err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	defer func() { _ = e.removeAll(outDir) }()

	args := append(append([]string{}, e.baseArgs...), buildWhisperArgs(ref.Path, e.tier, opts, outDir)...)
	if e.modelsDir != "" {
		args = append(args, "--model_dir", e.modelsDir)
	}
	if e.threads > 0 {
		args = append(args, "--threads", strconv.Itoa(e.threads))
	}

	res, err := e.runner.Run(ctx, e.bin, args...)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("whisper killed by context: %w", ctx.Err())
		}
		if missingEngine(res) {
			return Result{}, newError(KindModelUnavailable, ref.Path,
				"whisper is not installed for %s: %w%s", e.bin, err, stderrTail(res.Stderr))
		}
		return Result{}, fmt.Errorf("whisper exited with code %d: %w%s", res.ExitCode, err, stderrTail(res.Stderr))
	}

	outPath := filepath.Join(outDir, outputBase(ref.Path)+".json")
	data, err := e.readFile(outPath)
	if err != nil {
		return Result{}, fmt.Errorf("whisper completed but output is missing: %w%s", err, stderrTail(res.Stderr))
	}

	var out Result
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("decode whisper output: %w", err)
	}
	return out, nil
}

// Close is a no-op; nothing stays loaded between runs.
func (e *execEngine) Close() error { return nil }

// buildWhisperArgs builds whisper CLI args for JSON output in outDir.
func buildWhisperArgs(audioPath string, tier ModelTier, opts DecodingOptions, outDir string) []string {
	return []string{
		audioPath,
		"--model", tier.String(),
		"--language", opts.Language,
		"--task", opts.Task,
		"--temperature", formatFloat(opts.Temperature),
		"--temperature_increment_on_fallback", fallbackIncrement(opts.TemperatureIncrement),
		"--best_of", strconv.Itoa(opts.BestOf),
		"--beam_size", strconv.Itoa(opts.BeamSize),
		"--patience", formatFloat(opts.Patience),
		"--length_penalty", formatFloat(opts.LengthPenalty),
		"--suppress_tokens", opts.SuppressTokens,
		"--condition_on_previous_text", pyBool(opts.ConditionOnPreviousText),
		"--initial_prompt", opts.InitialPrompt,
		"--fp16", pyBool(opts.FP16),
		"--verbose", "False",
		"--output_format", "json",
		"--output_dir", outDir,
	}
}

// fallbackIncrement maps a zero increment to "None", which disables
// temperature fallback in the whisper CLI.
func fallbackIncrement(inc float32) string {
	if inc <= 0 {
		return "None"
	}
	return formatFloat(inc)
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'f', -1, 32)
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// outputBase is the name whisper gives its output files: the audio base
// name without extension.
func outputBase(audioPath string) string {
	base := filepath.Base(audioPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// missingEngine reports whether a failed run means the engine itself is
// absent: a command the shell could not run, or an interpreter without the
// whisper module ("python3 -m whisper" with openai-whisper not installed).
func missingEngine(res commandResult) bool {
	if res.ExitCode == 126 || res.ExitCode == 127 {
		return true
	}
	return strings.Contains(res.Stderr, "No module named whisper") ||
		strings.Contains(res.Stderr, "No module named 'whisper'")
}

// stderrTail returns the last line of stderr formatted for an error suffix.
func stderrTail(stderr string) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return ": " + s
}
