package cmd

import (
	"context"
	"fmt"
	"time"

	"derby/api"
	"derby/config"
	"derby/database"
	"derby/events"
	"derby/repository"
	"derby/service"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting derby engine...")

	cfg := config.Get()

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("Database connection established")

	log.Info("Applying migrations...")
	if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	eventBus := events.NewBus()
	registerEventLogging(eventBus)

	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	schedule := service.NewSchedule(cfg.Location())
	engine := service.NewRaceEngine(uowFactory, cfg, schedule)
	ledgerService := service.NewLedgerService(uowFactory, cfg)
	wageringService := service.NewWageringService(uowFactory, cfg, engine)
	log.Info("Services initialized")

	// Sweeper: settle due races even when no caller is asking for them.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("* * * * *", func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
		defer cancel()
		if err := engine.ResolveDue(sweepCtx); err != nil {
			log.WithError(err).Error("Race sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule race sweeper: %w", err)
	}
	sweeper.Start()

	server := api.NewServer(cfg, ledgerService, wageringService)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	log.WithField("environment", cfg.Environment).Info("Engine is running")

	select {
	case err := <-serverErr:
		sweeper.Stop()
		db.Close()
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	<-sweeper.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down HTTP server")
	}

	log.Info("Closing database connection...")
	db.Close()

	log.Info("Shutdown completed")
	return nil
}

// registerEventLogging wires structured audit logging for domain events.
func registerEventLogging(bus *events.Bus) {
	bus.Subscribe(events.EventTypeUserCreated, func(ctx context.Context, e events.Event) {
		ev := e.(events.UserCreatedEvent)
		log.WithFields(log.Fields{
			"userID":  ev.UserID,
			"balance": ev.InitialBalance,
		}).Info("User created")
	})
	bus.Subscribe(events.EventTypeRaceFinished, func(ctx context.Context, e events.Event) {
		ev := e.(events.RaceFinishedEvent)
		log.WithFields(log.Fields{
			"raceID":   ev.RaceID,
			"winnerID": ev.WinnerID,
		}).Info("Race finished")
	})
	bus.Subscribe(events.EventTypePayoutAwarded, func(ctx context.Context, e events.Event) {
		ev := e.(events.PayoutAwardedEvent)
		log.WithFields(log.Fields{
			"userID": ev.UserID,
			"raceID": ev.RaceID,
			"betID":  ev.BetID,
			"payout": ev.Payout,
		}).Info("Payout awarded")
	})
	bus.Subscribe(events.EventTypeLevelUp, func(ctx context.Context, e events.Event) {
		ev := e.(events.LevelUpEvent)
		log.WithFields(log.Fields{
			"userID": ev.UserID,
			"level":  ev.NewLevel,
			"bonus":  ev.Bonus,
		}).Info("User leveled up")
	})
}
