package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cyber-digest/pkg/classifier"
	"cyber-digest/pkg/config"
	"cyber-digest/pkg/db"
	"cyber-digest/pkg/digestservice"
	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/feeds"
	"cyber-digest/pkg/httpclient"
	"cyber-digest/pkg/logger"
	"cyber-digest/pkg/mailer"
	"cyber-digest/pkg/metrics"
	"cyber-digest/pkg/pipeline"
	"cyber-digest/pkg/sites"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return digestservice.ExitSetup
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, OutputPaths: []string{cfg.LogFile, "stderr"}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log: %v\n", err)
		return digestservice.ExitSetup
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openStore := func(ctx context.Context) (digestservice.Store, error) {
		return db.Open(ctx, cfg.StoreBackend, cfg.StoreDSN)
	}

	cls, err := classifier.New(cfg.Categories, cfg.MatchMode)
	if err != nil {
		log.Error("Failed to build classifier", logger.Error(err))
		return digestservice.ExitSetup
	}

	m := metrics.New()
	opts := httpclient.Options{
		Timeout:     cfg.RequestTimeout,
		MaxAttempts: cfg.MaxAttempts,
		OnAttempt:   m.ObserveAttempt,
	}
	api := httpclient.NewClient(httpclient.APIClient, opts)

	if !cfg.CanSend() {
		log.Warn("Sender, password or recipients missing; digests will not be delivered")
	}
	hostname, _ := os.Hostname()

	svc, err := digestservice.NewService(digestservice.Config{
		OpenStore: openStore,
		Sender: mailer.New(mailer.Config{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Password:   cfg.Password,
			From:       cfg.Sender,
			Recipients: cfg.Recipients,
		}),
		Clients: func(src domain.Source) pipeline.SourceClient {
			return httpclient.NewClient(sites.ClientTypeFor(src.Name), opts)
		},
		Classifier: cls,
		Categories: cfg.Categories,
		Providers: []feeds.Provider{
			feeds.NewNVD(api, cfg.NVDAPIKey),
			feeds.NewNewsAPI(api, cfg.NewsAPIKey, cfg.NewsQuery),
		},
		Pipeline: pipeline.Config{
			Sources:        cfg.Sources,
			Concurrency:    cfg.Concurrency,
			ArticleWorkers: cfg.ArticleWorkers,
			SourceDelay:    cfg.SourceDelay,
			MatchSummary:   cfg.MatchSummary,
		},
		RetentionDays:  cfg.RetentionDays,
		Metrics:        m,
		PushgatewayURL: cfg.PushgatewayURL,
		Instance:       hostname,
		Logger:         log,
	})
	if err != nil {
		log.Error("Failed to build digest service", logger.Error(err))
		return digestservice.ExitSetup
	}

	if cfg.Schedule == "" {
		return svc.Run(ctx).ExitCode
	}

	// fail at startup rather than at the first tick
	store, err := openStore(ctx)
	if err != nil {
		log.Error("Failed to open record store",
			logger.String("backend", string(cfg.StoreBackend)),
			logger.Error(err))
		return digestservice.ExitSetup
	}
	if err := store.Close(ctx); err != nil {
		log.Warn("Failed to close record store", logger.Error(err))
	}

	scheduler, err := svc.Schedule(ctx, cfg.Schedule, nil)
	if err != nil {
		log.Error("Failed to schedule digest", logger.Error(err))
		return digestservice.ExitSetup
	}
	scheduler.Start()
	log.Info("Digest scheduler started", logger.String("schedule", cfg.Schedule))

	<-ctx.Done()
	<-scheduler.Stop().Done()
	log.Info("Digest scheduler stopped")
	return digestservice.ExitOK
}
