package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/config"
	zaplog "github.com/unkn0wn-root/tiercache/log/zap"
)

var errNotFound = errors.New("not found")

// App is the CLI. Every command opens the cache, runs, and closes it.
type App struct {
	root   *cobra.Command
	stdout io.Writer
	stderr io.Writer

	configPath string
	envFile    string
	logLevel   string
}

func NewApp() *App {
	a := &App{stdout: os.Stdout, stderr: os.Stderr}
	a.root = &cobra.Command{
		Use:   "tiercache",
		Short: "Inspect and operate a tiered cache",
		Long: `tiercache reads, writes and maintains a tiered cache configured by YAML.

Entries written to the local (badger) or structured (sqlite) tiers survive
between invocations; memory and session tiers live only for one command.

Examples:
  tiercache -c tiercache.yaml set user:1 '{"name":"Ann"}' --ttl 10m
  tiercache -c tiercache.yaml get user:1
  tiercache -c tiercache.yaml health`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := a.root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", os.Getenv("TIERCACHE_CONFIG"), "Path to YAML configuration")
	pf.StringVar(&a.envFile, "env-file", ".env", "Load environment variables from this file if it exists")
	pf.StringVar(&a.logLevel, "log-level", "", "Override log.level from the configuration")

	a.root.AddCommand(
		a.newSetCmd(),
		a.newGetCmd(),
		a.newDelCmd(),
		a.newTouchCmd(),
		a.newStatsCmd(),
		a.newHealthCmd(),
		a.newClearCmd(),
	)
	return a
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

// withCache opens the configured cache, runs fn and closes the cache.
func (a *App) withCache(ctx context.Context, fn func(tiercache.Cache[[]byte]) error) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	f := &config.File{}
	if a.configPath != "" {
		var err error
		if f, err = config.LoadFile(a.configPath); err != nil {
			return err
		}
	}
	// one-shot process: background work and async promotion would be cut off
	f.CleanupInterval = -1
	f.SyncPromotion = true

	zl, err := newZap(coalesce(a.logLevel, f.Log.Level), f.Log.Development, a.stderr)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	opts, err := config.Build(f, tiercache.Options[[]byte]{
		Codec:  codec.Bytes{},
		Logger: zaplog.New(zl),
	})
	if err != nil {
		return err
	}
	c, err := tiercache.New(opts)
	if err != nil {
		if cerr := config.CloseBackends(ctx, opts); cerr != nil {
			zl.Warn("close backends", zap.Error(cerr))
		}
		return err
	}
	runErr := fn(c)
	if err := c.Close(ctx); err != nil {
		zl.Warn("close", zap.Error(err))
	}
	return runErr
}

func newZap(level string, dev bool, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(coalesce(level, "warn"))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewJSONEncoder(encCfg)
	if dev {
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), lvl)), nil
}

func coalesce(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
