package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	"closure-core/internal/closure"
	"closure-core/internal/events"
	"closure-core/internal/monitor"
	"closure-core/internal/notify"
	"closure-core/internal/policy"
	"closure-core/internal/sweep"
	"closure-core/internal/transfers"
	"closure-core/pkg/broker/alpaca"
	"closure-core/pkg/broker/common"
	"closure-core/pkg/broker/sim"
	"closure-core/pkg/config"
	"closure-core/pkg/db"
	"closure-core/pkg/statestore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("closure core starting (db=%s, dry_run=%v)", cfg.DBPath, cfg.DryRun)

	pol := policy.Default()
	if cfg.PolicyPath != "" {
		pol, err = policy.Load(cfg.PolicyPath)
		if err != nil {
			log.Fatalf("policy load failed: %v", err)
		}
		log.Printf("policy loaded from %s (cap=%s, dust=%s)",
			cfg.PolicyPath, pol.DailyTransferLimit.StringFixed(2), pol.DustThreshold.StringFixed(2))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	store := statestore.NewSQLStore(database)
	bus := events.NewBus()

	// Broker selection
	var broker common.BrokerService
	if cfg.DryRun {
		simBroker := sim.NewBroker()
		simBroker.AddAccount(common.Account{
			ID:               "dry-run-account",
			Status:           common.AccountActive,
			Currency:         "USD",
			Cash:             decimal.NewFromInt(100000),
			CashWithdrawable: decimal.NewFromInt(100000),
		})
		broker = simBroker
		log.Println("using simulated broker (dry run)")
	} else {
		broker = alpaca.New(alpaca.Config{
			APIKey:    cfg.BrokerAPIKey,
			APISecret: cfg.BrokerAPISecret,
			Sandbox:   cfg.BrokerSandbox,
		})
	}

	manager := closure.NewManager(broker, store, database, bus, pol)

	notifier := notify.New(nil)
	notifier.Start(ctx, bus)
	defer notifier.Stop()

	if cfg.TransferStreamURL != "" {
		stream := transfers.NewStream(cfg.TransferStreamURL, database, bus)
		stream.Start(ctx)
		defer stream.Stop()
	}

	sweeper := sweep.New(manager, database, store, nil, cfg.SweepInterval)
	sweeper.Start(ctx)

	// Metrics exposition; this listener never triggers closures.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitor.Handler())
		addr := ":" + cfg.MetricsPort
		log.Printf("metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down")
	cancel()
}
