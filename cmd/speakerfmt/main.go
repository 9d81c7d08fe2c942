// Command speakerfmt formats raw transcripts into "Speaker: statement" turns.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/speakerfmt/internal/config"
	"github.com/MrWong99/speakerfmt/internal/observe"
	"github.com/MrWong99/speakerfmt/internal/transcript"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{v: viper.New(), stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if cerr := a.close(); cerr != nil {
		fmt.Fprintf(stderr, "speakerfmt: %v\n", cerr)
	}
	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "speakerfmt: %v\n", err)
		}
		return 1
	}
	return 0
}

// errReported marks a failure that has already been printed.
var errReported = errors.New("failure reported")

// app carries the state shared by all subcommands. setup fills it in before
// any subcommand runs.
type app struct {
	v      *viper.Viper
	stderr io.Writer

	cfg       *config.Config
	reg       *config.Registry
	telemetry *observe.Telemetry
	logClose  io.Closer
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "speakerfmt",
		Short:         "Format raw transcripts into consistent speaker turns",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML file overlaying the built-in defaults")
	pf.String("mode", "", "processing mode: fast, balanced or thorough")
	pf.String("provider", "", "LLM provider name, e.g. openai or gemini")
	pf.String("model", "", "LLM model name")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-file", "", "write JSON logs to this file with rotation instead of stderr")
	pf.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	_ = a.v.BindPFlags(pf)

	bindEnv(a.v)

	root.AddCommand(
		a.processCmd(),
		a.batchCmd(),
		a.validateCmd(),
		a.checkCmd(),
	)
	return root
}

// bindEnv maps SPEAKERFMT_* variables onto the flag keys, plus the provider
// variables commonly set for the OpenAI and Gemini SDKs.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("SPEAKERFMT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("provider", "SPEAKERFMT_PROVIDER", "LLM_PROVIDER")
	_ = v.BindEnv("api-key", "SPEAKERFMT_API_KEY")
	_ = v.BindEnv("openai.api-key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.model", "OPENAI_MODEL")
	_ = v.BindEnv("gemini.api-key", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.model", "GEMINI_MODEL")
}

// setup loads the configuration, applies flag and environment overrides and
// initialises logging and telemetry.
func (a *app) setup(ctx context.Context) error {
	var (
		cfg *config.Config
		err error
	)
	if path := a.v.GetString("config"); path != "" {
		cfg, err = config.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %q not found", path)
		}
	} else {
		cfg = config.Default()
	}
	if err != nil {
		return err
	}
	if err := applyOverrides(cfg, a.v); err != nil {
		return err
	}
	a.cfg = cfg

	logger, closer := newLogger(cfg.LogLevel, a.v.GetString("log-file"), a.stderr)
	slog.SetDefault(logger)
	a.logClose = closer

	a.telemetry, err = observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return err
	}

	a.reg = config.NewRegistry()
	registerBuiltinProviders(a.reg)

	slog.Debug("speakerfmt configured",
		"mode", cfg.Processing.Mode,
		"provider", cfg.LLM.Provider.Name,
		"model", cfg.LLM.Provider.Model,
		"fallbacks", len(cfg.LLM.Fallbacks),
	)
	return nil
}

// applyOverrides layers flags and environment variables over cfg and
// re-validates it. Empty values leave the file or default value alone.
func applyOverrides(cfg *config.Config, v *viper.Viper) error {
	if s := v.GetString("mode"); s != "" {
		cfg.Processing.Mode = config.Mode(strings.ToLower(s))
	}
	if s := v.GetString("log-level"); s != "" {
		cfg.LogLevel = config.LogLevel(strings.ToLower(s))
	}
	if s := v.GetString("provider"); s != "" {
		cfg.LLM.Provider.Name = strings.ToLower(s)
	}

	p := &cfg.LLM.Provider
	if s := v.GetString("model"); s != "" {
		p.Model = s
	}
	switch p.Name {
	case "openai", "gemini":
		if p.Model == "" {
			p.Model = v.GetString(p.Name + ".model")
		}
		if p.APIKey == "" {
			p.APIKey = v.GetString(p.Name + ".api-key")
		}
	}
	if p.APIKey == "" {
		p.APIKey = v.GetString("api-key")
	}
	for i := range cfg.LLM.Fallbacks {
		fb := &cfg.LLM.Fallbacks[i]
		if fb.APIKey == "" && (fb.Name == "openai" || fb.Name == "gemini") {
			fb.APIKey = v.GetString(fb.Name + ".api-key")
		}
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// newProcessor builds a processor from the loaded configuration. A resolver
// is attached only when the configuration enables one.
func (a *app) newProcessor() (*transcript.Processor, error) {
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, err
	}
	opts := []transcript.Option{transcript.WithMetrics(metrics)}

	switch {
	case a.cfg.Enabled():
		provider, err := a.reg.BuildLLM(a.cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", a.cfg.LLM.Provider.Name, err)
		}
		r, err := transcript.NewResolver(a.cfg, provider, metrics)
		if err != nil {
			return nil, err
		}
		opts = append(opts, transcript.WithResolver(r))
		slog.Info("resolver enabled", "provider", a.cfg.LLM.Provider.Name, "model", a.cfg.LLM.Provider.Model)
	case a.cfg.Processing.UseLLM && a.cfg.Processing.Mode != config.ModeFast:
		slog.Warn("no llm provider configured, running without resolver", "mode", a.cfg.Processing.Mode)
	}
	return transcript.New(a.cfg, opts...)
}

// close writes the metrics file and releases logging and telemetry.
func (a *app) close() error {
	var errs []error
	if a.telemetry != nil {
		if path := a.v.GetString("metrics-file"); path != "" {
			if err := writeMetricsFile(a.telemetry, path); err != nil {
				errs = append(errs, err)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if a.logClose != nil {
		if err := a.logClose.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	return errors.Join(errs...)
}

// writeMetricsFile writes to a temporary file beside path and renames it so
// a textfile collector never reads a partial file.
func writeMetricsFile(t *observe.Telemetry, path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".speakerfmt-metrics-*")
	if err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	defer os.Remove(f.Name())

	if err := t.WriteMetrics(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
