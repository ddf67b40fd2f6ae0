// Command transcrever transcribes one audio file of informal Brazilian
// Portuguese speech with whisper. The text goes to stdout; progress and
// failure records go to stderr.
//
// Usage:
//
//	transcrever [--config path] [--backend exec|whisper] <audio> [tiny|base|small|medium|large]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chaz8081/transcrever/internal/config"
	"github.com/chaz8081/transcrever/internal/transcribe"
)

// errReported marks failures whose message has already been written to stderr.
var errReported = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, transcribe.NewLoader)
	stop()
	os.Exit(code)
}

// loaderFactory builds the engine loader for a backend config.
type loaderFactory func(cfg config.EngineConfig) (transcribe.Loader, error)

// app carries the process-wide dependencies shared by every subcommand.
type app struct {
	stdout    io.Writer
	stderr    io.Writer
	newLoader loaderFactory

	configPath string
	logLevel   string
	backend    string
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, newLoader loaderFactory) int {
	a := &app{stdout: stdout, stderr: stderr, newLoader: newLoader}

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "transcrever <audio> [model]",
		Short: "Transcribe an audio file to text with whisper",
		Long: "Transcribes one audio file (" + strings.Join(transcribe.SupportedFormats(), ", ") + ") of informal\n" +
			"Brazilian Portuguese speech and prints the text to stdout.\n\n" +
			"Models: " + strings.Join(transcribe.TierNames(), ", ") + " (default: " + transcribe.DefaultTier.String() + ")",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          a.transcribe,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to config file (default: ~/.config/transcrever/config.yaml)")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	flags.StringVar(&a.backend, "backend", "", "exec or whisper (overrides config)")

	root.AddCommand(a.modelsCmd(), a.configCmd())
	return root
}

// usage is printed when the audio path is missing or the model is invalid.
func usage() string {
	return fmt.Sprintf("Usage: transcrever <audio> [model]\nAvailable models: %s (default: %s)\n",
		strings.Join(transcribe.TierNames(), ", "), transcribe.DefaultTier)
}

func (a *app) transcribe(cmd *cobra.Command, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprint(a.stderr, usage())
		return errReported
	}

	cfg, err := a.loadConfig()
	if err != nil {
		fmt.Fprintf(a.stderr, "config: %v\n", err)
		return errReported
	}
	logger := newLogger(a.stderr, cfg.LogLevel).With("run_id", uuid.NewString())

	model := cfg.Model
	if len(args) == 2 {
		model = args[1]
	}
	tier, err := transcribe.ParseModelTier(model)
	if err != nil {
		fmt.Fprintf(a.stderr, "%v\n%s", err, usage())
		return errReported
	}

	loader, err := a.newLoader(cfg.Engine)
	if err != nil {
		fmt.Fprintf(a.stderr, "config: %v\n", err)
		return errReported
	}

	logger.Debug("starting", "backend", cfg.Engine.Backend, "model", tier.String())
	tr := transcribe.New(loader,
		transcribe.WithLogger(logger),
		transcribe.WithDiagnostics(a.stderr),
	)

	text, err := tr.Transcribe(cmd.Context(), args[0], tier)
	if err != nil {
		fmt.Fprintf(a.stderr, "transcription failed: %v\n", err)
		return errReported
	}

	fmt.Fprintln(a.stdout, text)
	return nil
}

// loadConfig loads the config from --config, or falls back to the default
// config path, or uses built-in defaults. Environment and flag overrides are
// applied on top and the result is validated.
func (a *app) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case a.configPath != "":
		c, err := config.Load(a.configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		defaultPath := config.DefaultConfigPath()
		if _, err := os.Stat(defaultPath); err == nil {
			c, err := config.Load(defaultPath)
			if err != nil {
				return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
			}
			cfg = c
		} else {
			cfg = config.Default()
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.backend != "" {
		cfg.Engine.Backend = a.backend
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: config.ParseLogLevel(level)}))
}
