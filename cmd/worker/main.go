package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/dmitrijs2005/gophbeat/internal/app"
	"github.com/dmitrijs2005/gophbeat/internal/common"
	"github.com/dmitrijs2005/gophbeat/internal/config"
	"github.com/dmitrijs2005/gophbeat/internal/flagx"
	"github.com/dmitrijs2005/gophbeat/internal/logging"
	"github.com/dmitrijs2005/gophbeat/internal/models"
	"github.com/dmitrijs2005/gophbeat/internal/notify"
	"github.com/dmitrijs2005/gophbeat/internal/worker"
)

func main() {
	cfg := config.LoadConfig()

	var once, arg string
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.StringVar(&once, "once", "", "handle a single event (install, activate, sync, periodicsync, push, message) and exit")
	fs.StringVar(&arg, "arg", "", "event argument: sync tag, push payload or message json")
	if err := fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-once", "-arg"})); err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	notifier := notify.Fallback{
		Primary:   notify.NewCommand(cfg.NotifyCommand),
		Secondary: notify.NewLog(logger.With("module", "notify")),
	}
	a, err := app.New(ctx, cfg, logger, app.Options{
		Role:      models.RoleBackground,
		UserAgent: common.WorkerUserAgent,
		Notifier:  notifier,
	})
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	rt, err := worker.NewRuntime(a)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if once != "" {
		if err := rt.RunOnce(ctx, once, arg); err != nil {
			logger.Error(ctx, "event failed", "event", once, "error", err)
			_ = a.Close()
			os.Exit(1)
		}
		return
	}

	if err := rt.Run(ctx); err != nil {
		logger.Error(ctx, "worker stopped with error", "error", err)
	}
}
