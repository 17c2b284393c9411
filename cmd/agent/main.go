package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dmitrijs2005/gophbeat/internal/app"
	"github.com/dmitrijs2005/gophbeat/internal/cli"
	"github.com/dmitrijs2005/gophbeat/internal/config"
	"github.com/dmitrijs2005/gophbeat/internal/filex"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/notify"
)

func main() {
	cfg := config.LoadConfig()

	if _, err := filex.EnsureDir(cfg.DataDir); err != nil {
		log.Fatalf("%v", err)
	}
	// the terminal belongs to the REPL, structured logs go to a file
	logFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "agent.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer logFile.Close()
	logger := logging.New(logFile, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := notify.Fallback{
		Primary:   notify.NewCommand(cfg.NotifyCommand),
		Secondary: notify.NewTerminal(os.Stdout),
	}
	a, err := app.New(ctx, cfg, logger, cli.Options(logger, notifier))
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if err := cli.NewApp(a, os.Stdin, os.Stdout).Run(ctx); err != nil {
		logger.Error(ctx, "agent stopped with error", "error", err)
	}
}
