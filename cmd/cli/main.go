// Command arena runs multi-agent game episodes in which every player shares
// one model conversation.
//
// Usage:
//
//	arena run --config task.yaml
//	arena run --mock
//	arena serve --addr :8080
//	arena watch --config task.yaml
//	arena overall --task avalon
//	arena models
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nstogner/arena/pkg/backend/docker"
	"github.com/nstogner/arena/pkg/config"
	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/models/gemini"
	"github.com/nstogner/arena/pkg/models/openai"
	"github.com/nstogner/arena/pkg/runner"
	"github.com/nstogner/arena/pkg/store"
	"github.com/nstogner/arena/pkg/store/jsonl"
	"github.com/nstogner/arena/pkg/store/sqlite"
)

type rootFlags struct {
	configPath string
	logLevel   string
	mock       bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "arena",
		Short:         "Run multi-agent game episodes over one shared model conversation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML task config")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	cmd.PersistentFlags().BoolVar(&flags.mock, "mock", false, "Use the built-in mock model instead of the configured provider")

	cmd.AddCommand(
		newRunCmd(&flags),
		newServeCmd(&flags),
		newWatchCmd(&flags),
		newOverallCmd(&flags),
		newModelsCmd(&flags),
	)
	return cmd
}

// load reads the config and applies the flags that override it.
func (f *rootFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		cfg.LogLevel = strings.ToUpper(f.logLevel)
	}
	if f.mock {
		cfg.Provider.Name = config.ProviderMock
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return models.LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func setupLogging(w io.Writer, level string) {
	lv := parseLevel(level)
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: lv})
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logging initialized", "level", lv)
}

// newProvider builds the model provider named by the config. The returned
// cleanup releases its clients.
func newProvider(ctx context.Context, cfg *config.Config) (models.ModelProvider, func(), error) {
	switch cfg.Provider.Name {
	case config.ProviderMock:
		return runner.MockModel(), func() {}, nil
	case config.ProviderGemini:
		m, err := gemini.New(ctx, cfg.Provider.APIKey)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	case config.ProviderOpenAI:
		baseURL := cfg.Provider.BaseURL
		cleanup := func() {}
		if cfg.Provider.Backend != "" {
			mgr, err := docker.New()
			if err != nil {
				return nil, nil, err
			}
			cleanup = func() { mgr.Close() }
			if baseURL, err = mgr.Endpoint(ctx, cfg.Provider.Backend); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("starting backend %s: %w", cfg.Provider.Backend, err)
			}
			if err := mgr.Pull(ctx, cfg.Provider.Backend, cfg.Provider.Model); err != nil {
				cleanup()
				return nil, nil, err
			}
			slog.Info("Using local backend", "backend", cfg.Provider.Backend, "endpoint", baseURL)
		}
		return openai.New(cfg.Provider.APIKey, baseURL), cleanup, nil
	}
	return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
}

func modelName(cfg *config.Config) string {
	if cfg.Provider.Name == config.ProviderMock {
		return "mock"
	}
	return cfg.Provider.Model
}

// openStores opens the episode log directory and the result database under dir.
func openStores(dir string) (*jsonl.Manager, *sqlite.Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, nil, err
	}
	results, err := sqlite.New(filepath.Join(dir, "results.db"))
	if err != nil {
		return nil, nil, err
	}
	return jsonl.NewManager(dir), results, nil
}

func newRunner(cfg *config.Config, provider models.ModelProvider, mgr store.Manager, results store.ResultStore, observers ...runner.Observer) *runner.Runner {
	opts := []runner.Option{runner.WithManager(mgr), runner.WithResultStore(results)}
	for _, o := range observers {
		opts = append(opts, runner.WithObserver(o))
	}
	return runner.New(provider, runner.Options{
		Model:               modelName(cfg),
		MaxContextTokens:    cfg.Provider.MaxContextTokens,
		Parallelism:         cfg.Run.Parallelism,
		Kinds:               cfg.AvalonKinds(),
		Discussion:          cfg.Avalon.Discussion,
		Strategy:            cfg.AvalonStrategy(),
		SkipQuestReflection: !cfg.Avalon.ReflectEachQuest,
		NumCards:            cfg.GOPS.NumCards,
		GOPSKinds:           cfg.GOPSKinds(),
		Seed:                cfg.Run.Seed,
	}, opts...)
}

// runTask plays the episodes the config asks for.
func runTask(ctx context.Context, cfg *config.Config, r *runner.Runner) ([]store.Record, error) {
	if cfg.Task == store.TaskGOPS {
		return r.RunGOPS(ctx, cfg.Run.Episodes)
	}
	presets, err := cfg.AvalonPresets()
	if err != nil {
		return nil, err
	}
	return r.RunAvalon(ctx, presets)
}
