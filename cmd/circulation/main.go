package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/emzola/circulation/clients"
	"github.com/emzola/circulation/config"
	"github.com/emzola/circulation/handler"
	"github.com/emzola/circulation/internal/jsonlog"
	"github.com/emzola/circulation/internal/mailer"
	"github.com/emzola/circulation/internal/seed"
	"github.com/emzola/circulation/repository"
	"github.com/emzola/circulation/repository/postgres"
	"github.com/emzola/circulation/service"
)

// app defines the application's layers and shared resources.
type app struct {
	config  config.Config
	repo    repository.Repository
	service service.Service
	handler *handler.Handler
}

// @title  Circulation API
// @version 1.0.0
// @description This is an API service for lending a library's books to its members.
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @BasePath /
func main() {
	var configFile, seedFile string
	flag.StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "Path to a yaml config file")
	flag.StringVar(&seedFile, "seed", "", "Path to a yaml file with the initial admin and books")
	flag.Parse()

	logger := jsonlog.New(os.Stdout, jsonlog.LevelInfo)

	// Initialize configuration
	cfg, err := config.Decode(configFile)
	if err != nil {
		logger.PrintFatal(err, nil)
	}

	// Initialize database connection
	db, err := postgres.OpenDBConn(cfg)
	if err != nil {
		logger.PrintFatal(err, nil)
	}
	defer db.Close()
	logger.PrintInfo("database connection pool established", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional collaborators
	var opts []service.Option
	if cfg.SMTPEnabled() {
		m, err := mailer.New(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender)
		if err != nil {
			logger.PrintFatal(err, nil)
		}
		opts = append(opts, service.WithNotifier(m))
	}
	if cfg.S3Enabled() {
		store, err := clients.NewS3Store(ctx, cfg)
		if err != nil {
			logger.PrintFatal(err, nil)
		}
		opts = append(opts, service.WithObjectStore(store))
	}

	// Application layers
	var wg sync.WaitGroup
	repo := repository.New(db)
	svc := service.New(cfg, &wg, logger, repo, opts...)
	h := handler.New(cfg, logger, svc)

	if seedFile != "" {
		file, err := seed.Load(seedFile)
		if err != nil {
			logger.PrintFatal(err, nil)
		}
		if err := seed.Apply(ctx, svc, file, logger); err != nil {
			logger.PrintFatal(err, nil)
		}
	}

	// No-op unless reminders are enabled and SMTP is configured
	svc.StartReminders(ctx)
	svc.StartTokenCleanup(ctx)

	app := &app{
		config:  cfg,
		repo:    repo,
		service: svc,
		handler: h,
	}

	// Start HTTP server; SIGINT or SIGTERM begins a graceful shutdown
	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	err = app.serve(sigCtx, &wg, cancel, logger)
	if err != nil {
		logger.PrintFatal(err, nil)
	}
}
