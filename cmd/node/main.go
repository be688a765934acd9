package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thanhnp/family-currency/internal/api"
	"github.com/thanhnp/family-currency/internal/config"
	"github.com/thanhnp/family-currency/internal/keys"
	"github.com/thanhnp/family-currency/internal/ledger"
	"github.com/thanhnp/family-currency/internal/metrics"
	"github.com/thanhnp/family-currency/internal/miner"
	"github.com/thanhnp/family-currency/internal/notifier"
	"github.com/thanhnp/family-currency/internal/p2p"
	"github.com/thanhnp/family-currency/internal/storage"
	"github.com/thanhnp/family-currency/internal/sync"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Criticalf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	setLogLevels(cfg.Log.Level)

	log.Infof("Starting family currency node...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	km := keys.New()
	l := ledger.New(ledger.Config{
		Difficulty:   cfg.Ledger.Difficulty,
		MiningReward: cfg.Ledger.MiningReward,
	}, km)
	m.Attach(l)

	// Peer-to-peer server
	server := p2p.NewServer(l, p2p.Config{
		ListenAddr: cfg.P2P.Addr(),
		Observer:   m,
	})
	if err := server.Start(); err != nil {
		log.Criticalf("Failed to start P2P server: %v", err)
		os.Exit(1)
	}
	for _, peer := range cfg.P2P.Peers {
		dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := server.Connect(dialCtx, peer); err != nil {
			log.Warnf("Failed to connect to peer %s: %v", peer, err)
		}
		dialCancel()
	}

	// Explorer index
	var stores *storage.Stores
	var syncer *sync.Syncer
	if cfg.Pebble.Enabled {
		log.Infof("Opening Pebble database at %s", cfg.Pebble.Path)
		db, err := storage.NewPebbleDB(cfg.Pebble.Path)
		if err != nil {
			log.Criticalf("Failed to open Pebble database: %v", err)
			os.Exit(1)
		}
		// The chain is not persisted, so the index restarts from genesis.
		if err := db.Reset(); err != nil {
			log.Criticalf("Failed to reset Pebble database: %v", err)
			os.Exit(1)
		}
		stores = storage.NewStores(db)

		syncer = sync.NewSyncer(notifier.NewLedgerNotifier(l), stores)
		if err := syncer.Start(ctx); err != nil {
			log.Warnf("Failed to start index syncer: %v", err)
			syncer = nil
		} else {
			log.Infof("Index syncer started")
		}
	}

	// Background miner
	deps := api.Deps{
		Ledger:  l,
		Wallets: km,
		Network: server,
		Stores:  stores,
		Metrics: m.Handler(),
	}
	if syncer != nil {
		deps.Syncer = syncer
	}
	var mnr *miner.Miner
	if cfg.Miner.Enabled {
		mnr = miner.New(l, server, miner.Config{
			Address:  cfg.Miner.Address,
			Interval: cfg.Miner.Interval,
		})
		if err := mnr.Start(ctx); err != nil {
			log.Warnf("Failed to start miner: %v", err)
		}
		deps.Miner = mnr
	}

	router := api.NewRouter(deps)

	// Create HTTP server
	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router.Engine(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start HTTP server in goroutine
	go func() {
		log.Infof("HTTP server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Criticalf("HTTP server error: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	}

	if mnr != nil {
		mnr.Stop()
	}

	// Cancel context to stop the syncer and any mining in flight
	cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Errorf("P2P server shutdown error: %v", err)
	}

	if syncer != nil {
		if err := syncer.Stop(); err != nil {
			log.Errorf("Error stopping syncer: %v", err)
		}
	}
	if stores != nil {
		if err := stores.Close(); err != nil {
			log.Errorf("Error closing Pebble database: %v", err)
		}
	}

	log.Infof("Node stopped")
}
