// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RelayDesk Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/relaydesk/relaydesk/internal/cache"
	"github.com/relaydesk/relaydesk/internal/chat"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/directory"
	"github.com/relaydesk/relaydesk/internal/realtime"
	"github.com/relaydesk/relaydesk/internal/server"
	"github.com/relaydesk/relaydesk/internal/store"

	// Registers the sqlite storage backend.
	_ "github.com/relaydesk/relaydesk/internal/store/sqlite"
)

// closeTimeout bounds how long shutdown waits on external backends.
const closeTimeout = 5 * time.Second

// app holds the wired subsystems of a running server.
type app struct {
	log *slog.Logger

	store       store.ChannelStore
	dir         directory.Directory
	caches      *cache.Caches
	sweeper     *cache.Sweeper
	hub         *realtime.Hub
	broadcaster *realtime.Broadcaster
	srv         *server.Server
}

// buildApp constructs every subsystem leaf-first: storage and directory,
// then caches, then the realtime hub and outbox, then the lifecycle
// manager and HTTP server on top.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	if log == nil {
		log = slog.Default()
	}

	dataDir, err := ensureDataDir(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	st, err := store.NewChannelStore(&store.StorageConfig{Backend: cfg.Storage.Backend}, dataDir)
	if err != nil {
		return nil, err
	}

	dir, err := buildDirectory(ctx, cfg.Directory)
	if err != nil {
		st.Close()
		return nil, err
	}

	clk := clock.New()
	caches := cache.New(clk, cache.Options{
		ChannelListTTL:     cfg.Cache.ChannelListTTL,
		MessageTTL:         cfg.Cache.MessageTTL,
		UserTTL:            cfg.Cache.UserTTL,
		MaxMessageChannels: cfg.Cache.MaxMessageChannels,
	})
	sweeper := cache.NewSweeper(caches, clk, cfg.Cache.SweepInterval, log)

	hub := realtime.NewHub(log)
	broadcaster := realtime.NewBroadcaster(hub, log)
	broadcaster.SetSendTimeout(cfg.Realtime.SendTimeout)

	mgr, err := chat.NewManager(chat.Options{
		Store:     st,
		Directory: dir,
		Caches:    caches,
		Events:    broadcaster,
		Presence:  hub,
		Clock:     clk,
		Log:       log,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	srv, err := server.New(server.Config{
		ListenAddr:      cfg.Server.Listen,
		CORSOrigins:     cfg.Server.AllowedOrigins,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Version:         version,
	}, mgr, hub, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{
		log:         log,
		store:       st,
		dir:         dir,
		caches:      caches,
		sweeper:     sweeper,
		hub:         hub,
		broadcaster: broadcaster,
		srv:         srv,
	}, nil
}

func buildDirectory(ctx context.Context, cfg config.DirectoryConfig) (directory.Directory, error) {
	switch cfg.Backend {
	case "mongo":
		return directory.NewMongo(ctx, directory.MongoConfig{
			URI:          cfg.URI,
			Database:     cfg.Database,
			Collection:   cfg.Collection,
			QueryTimeout: cfg.QueryTimeout,
		})
	default:
		return directory.NewMemory(), nil
	}
}

// Run serves until ctx is cancelled, sweeping caches in the background.
func (a *app) Run(ctx context.Context) error {
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go a.sweeper.Run(sweepCtx)

	return a.srv.Start(ctx)
}

// Close tears the subsystems down in reverse construction order.
func (a *app) Close() {
	a.broadcaster.Close()
	a.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.dir.Close(ctx); err != nil {
		a.log.Warn("closing directory", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", "error", err)
	}
}
