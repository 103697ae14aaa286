package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mvolodin/teleterm/internal/auth"
	"github.com/mvolodin/teleterm/internal/config"
	"github.com/mvolodin/teleterm/internal/ingest"
	"github.com/mvolodin/teleterm/internal/queue"
	"github.com/mvolodin/teleterm/internal/store"
	"github.com/mvolodin/teleterm/internal/telegram"
	"github.com/mvolodin/teleterm/internal/ui"
)

// updateQueueCap bounds buffered updates between the ingest goroutine and
// the event loop; oldest entries are dropped past this.
const updateQueueCap = 1024

// shutdownGrace is how long we wait for background goroutines after quit.
const shutdownGrace = 3 * time.Second

func main() {
	cfgDir := config.Dir()
	cfgPath := filepath.Join(cfgDir, "config.yaml")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", cfgPath, err)
		fmt.Fprintf(os.Stderr, "\nCreate the config file with:\n")
		fmt.Fprintf(os.Stderr, "  mkdir -p %s\n", cfgDir)
		fmt.Fprintf(os.Stderr, "  cat > %s << 'EOF'\n", cfgPath)
		fmt.Fprintf(os.Stderr, "telegram:\n  api_id: YOUR_API_ID\n  api_hash: \"YOUR_API_HASH\"\nEOF\n")
		fmt.Fprintf(os.Stderr, "\nGet API credentials from https://my.telegram.org\n")
		os.Exit(1)
	}

	// Log to a file; stdout belongs to the TUI.
	logPath := filepath.Join(cfgDir, "teleterm.log")
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{logPath}
	logCfg.ErrorOutputPaths = []string{logPath}
	if lvl, perr := zapcore.ParseLevel(cfg.LogLevel); perr == nil {
		logCfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sessionDir := cfgDir
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", sessionDir, err)
		os.Exit(1)
	}

	client := telegram.NewGotdClient(cfg.Telegram.APIID, cfg.Telegram.APIHash, sessionDir, logger)
	st := store.New()
	machine := auth.NewMachine(client.AuthBackend())

	// The queue wakes the event loop; the app does not exist yet when the
	// queue is created, so route the wake through a late-bound pointer.
	var app *ui.App
	updates := queue.New[store.Update](updateQueueCap, func() {
		if app != nil {
			app.Send(ui.UpdatesQueuedMsg{})
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := ingest.New(client, updates, logger, func() {
		if app != nil {
			app.Send(ui.AuthLostMsg{})
		}
	})
	loop.SetOnRetry(func(err error, wait time.Duration) {
		if app != nil {
			app.Send(ui.ConnStateMsg{Text: "Reconnecting"})
		}
	})

	// The ingest loop stops when the session dies; a successful re-login
	// kicks it back into motion.
	reauth := make(chan struct{}, 1)
	app = ui.NewApp(ui.Deps{
		Store:   st,
		Machine: machine,
		Client:  client,
		Updates: updates,
		Log:     logger,
		OnReauth: func() {
			select {
			case reauth <- struct{}{}:
			default:
			}
		},
	})

	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("telegram client stopped", zap.Error(err))
		}
	}()

	go func() {
		defer func() { done <- struct{}{} }()
		for {
			err := loop.Run(ctx)
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ingest.ErrAuthInvalidated) {
				select {
				case <-reauth:
					continue
				case <-ctx.Done():
					return
				}
			}
			return
		}
	}()

	runErr := app.Run()

	// Stop background goroutines, but never hang the terminal restore.
	cancel()
	timeout := time.After(shutdownGrace)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-timeout:
			logger.Warn("shutdown grace period expired")
			i = 2
		}
	}
	logger.Info("bye", zap.Uint64("dropped_updates", updates.Dropped()))

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
