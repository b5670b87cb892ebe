package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gptd/internal/config"
	"gptd/internal/httpapi"
	"gptd/internal/lifecycle"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "gptd",
		Short:         "HTTP serving daemon for a quantization-enforced causal language model",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// .env is a convenience for local runs; absence is fine.
			_ = godotenv.Load()

			cfg := config.Default()
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath, cfg)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			cfg.ApplyEnv()
			applyFlags(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "Path to config file (yaml/json/toml)")
	root.Flags().String("addr", "", "HTTP listen address, e.g. :8080 (defaults GPTD_ADDR or :8080)")
	root.Flags().String("model", "", "Model id to serve (defaults GPTD_MODEL or gpt-oss:120b)")
	root.Flags().String("models-dir", "", "Directory holding *.gguf model weights")
	root.Flags().Bool("eager", false, "Load the model at startup and exit non-zero on failure")
	root.Flags().Bool("allow-model-override", false, "Honor per-request model selection")
	root.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	root.Flags().Int("llama-ctx", 0, "Context window for the llama runtime")
	root.Flags().Int("llama-threads", 0, "Threads for the llama runtime (0 = runtime default)")
	root.Flags().Int("gpu-layers", 0, "Layers to offload to the accelerator (0 = CPU)")
	return root
}

// applyFlags overlays only flags the caller actually set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr, _ = f.GetString("addr")
	}
	if f.Changed("model") {
		cfg.Model, _ = f.GetString("model")
	}
	if f.Changed("models-dir") {
		cfg.ModelsDir, _ = f.GetString("models-dir")
	}
	if f.Changed("eager") {
		cfg.EagerLoad, _ = f.GetBool("eager")
	}
	if f.Changed("allow-model-override") {
		cfg.AllowModelOverride, _ = f.GetBool("allow-model-override")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
	if f.Changed("llama-ctx") {
		cfg.LlamaCtx, _ = f.GetInt("llama-ctx")
	}
	if f.Changed("llama-threads") {
		cfg.LlamaThreads, _ = f.GetInt("llama-threads")
	}
	if f.Changed("gpu-layers") {
		cfg.GPULayers, _ = f.GetInt("gpu-layers")
	}
}

func run(cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	backend := lifecycle.NewLlamaBackend(cfg.ModelsDir, cfg.LlamaCtx, cfg.LlamaThreads, cfg.GPULayers)
	mgr := lifecycle.New(lifecycle.ManagerConfig{
		Backend:       backend,
		DefaultModel:  cfg.Model,
		RequiredQuant: cfg.RequiredQuant,
		EnforceQuant:  cfg.EnforceQuant,
		Aliases:       cfg.Aliases,
		MaxQueueDepth: cfg.MaxQueueDepth,
		MaxWait:       time.Duration(cfg.MaxWaitSeconds) * time.Second,
	})
	mgr.SetLogger(logger)
	defer mgr.Close()

	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.EagerLoad {
		// A supervisor should see the non-zero exit instead of a degraded
		// instance serving without the required quantization.
		if err := mgr.Load(baseCtx, ""); err != nil {
			logger.Fatal().Err(err).Str("model", mgr.Resolve("")).Msg("startup load failed")
		}
	}

	httpapi.SetLogger(logger)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins,
		[]string{http.MethodGet, http.MethodPost}, []string{"Content-Type"})
	mux := httpapi.NewMux(mgr, httpapi.GatewayConfig{
		AllowModelOverride: cfg.AllowModelOverride,
		TrimStrategy:       cfg.TrimStrategy,
		RequiredQuant:      cfg.RequiredQuant,
		BaseContext:        baseCtx,
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("model", mgr.Resolve("")).Msg("gptd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-baseCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
		return err
	}
	return nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var out io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
