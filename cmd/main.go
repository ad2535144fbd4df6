package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-ledger/internal/auth"
	"github.com/ukydev/fleet-ledger/internal/config"
	"github.com/ukydev/fleet-ledger/internal/db"
	"github.com/ukydev/fleet-ledger/internal/events"
	"github.com/ukydev/fleet-ledger/internal/handlers"
	"github.com/ukydev/fleet-ledger/internal/ledger"
	"github.com/ukydev/fleet-ledger/internal/middleware"
)

func main() {
	envFile := flag.String("env", ".env", "optional env file to load before reading the environment")
	flag.Parse()

	cfg := config.Load(*envFile)
	cfg.SetupLogger()

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("Ledger service stopped")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("MongoDB disconnect failed")
		}
	}()
	log.WithField("database", cfg.Mongo.Database).Info("Connected to MongoDB successfully")

	database := client.Database(cfg.Mongo.Database)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.WithError(err).Warn("Could not ensure indexes")
	}

	store := ledger.NewStore(ledger.WithIdleDwell(cfg.Ledger.IdleDwell))
	ledgerDB := db.NewLedgerStore(database)
	snap, err := ledgerDB.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if err := store.Import(ctx, snap); err != nil {
		return fmt.Errorf("import ledger: %w", err)
	}

	journal := db.NewJournal(ledgerDB, 1024)
	go journal.Run(ctx)
	store.OnCommit(journal.Record)
	defer journal.Close()

	if b := connectBroadcaster(cfg); b != nil {
		store.OnCommit(b.Record)
		defer b.Close()
	}

	authService, err := auth.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}
	router := newRouter(cfg, store, authService, db.NewMongoUserCollection(database),
		handlers.HealthCheck{Name: "journal", Check: journal.Healthy})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ledger.DecayScheduler{Store: store, Interval: cfg.Ledger.DecayInterval}.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			stop()
			wg.Wait()
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	wg.Wait()
	return nil
}

func newRouter(cfg *config.Config, store *ledger.Store, authService *auth.Service, users db.UserCollection, checks ...handlers.HealthCheck) http.Handler {
	return handlers.NewRouter(
		handlers.NewLedgerHandler(store, checks...),
		handlers.NewAuthHandler(authService, users),
		middleware.NewAuthMiddleware(authService),
		middleware.NewRateLimitMiddleware(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.TrustedProxies...),
	)
}

// connectBroadcaster returns nil when no broker is configured or the
// client could not be created.
func connectBroadcaster(cfg *config.Config) *events.Broadcaster {
	if cfg.MQTT.Broker == "" {
		log.Info("MQTT broker not configured, events disabled")
		return nil
	}
	mqttClient, err := events.Connect(cfg.MQTT.Broker, cfg.MQTT.ClientID, 5*time.Second)
	if mqttClient == nil {
		log.WithError(err).Warn("MQTT unavailable, events disabled")
		return nil
	}
	if err != nil {
		log.WithError(err).Warn("MQTT not connected yet, retrying in background")
	}
	return events.NewBroadcaster(mqttClient, cfg.MQTT.TopicPrefix, 256)
}
