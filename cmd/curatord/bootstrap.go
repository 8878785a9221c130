package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"curator/internal/api"
	"curator/internal/archive"
	"curator/internal/config"
	"curator/internal/creds"
	"curator/internal/daemon"
	"curator/internal/dedup"
	"curator/internal/events"
	"curator/internal/extraction"
	"curator/internal/lifecycle"
	"curator/internal/notifications"
	"curator/internal/queue"
	"curator/internal/scheduler"
	"curator/internal/tagging"
)

// buildDaemon wires the full pipeline: adapters, dedup engine, lifecycle
// machine, scheduler, and the shared job service.
func buildDaemon(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*daemon.Daemon, error) {
	extractor, err := extraction.NewHTTPExtractor(cfg.Extractor)
	if err != nil {
		return nil, fmt.Errorf("configure extractor: %w", err)
	}
	tagger, err := tagging.NewTagger(cfg.Tagging)
	if err != nil {
		return nil, fmt.Errorf("configure tagger: %w", err)
	}
	credStore := creds.NewStore(cfg.Archive.CredentialsPath, cfg.Archive.KeyPath)
	publisher, err := archive.NewHTTPPublisher(cfg.Archive, credStore)
	if err != nil {
		return nil, fmt.Errorf("configure archive publisher: %w", err)
	}

	hub := events.NewHub(cfg.Events.SubscriberBuffer, logger)
	machine := lifecycle.NewMachine(store, hub, cfg.Workers.MaxRetries, logger)
	engine := dedup.NewEngine(publisher, nil, logger)
	notifier := notifications.NewService(cfg.Notifications)

	sched := scheduler.New(scheduler.Options{
		Config:    cfg,
		Store:     store,
		Machine:   machine,
		Hub:       hub,
		Extractor: extractor,
		Tagger:    tagger,
		Engine:    engine,
		Notifier:  notifier,
		Logger:    logger,
	})
	service := api.NewJobService(store, machine, sched, hub, logger)

	return daemon.New(cfg, store, sched, hub, service, logger)
}

func buildSocketPath(cfg *config.Config) string {
	if cfg == nil {
		return filepath.Join("", "curator.sock")
	}
	return filepath.Join(cfg.Paths.LogDir, "curator.sock")
}
