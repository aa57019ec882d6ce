package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"trekreg/cmd/buildCFG"
	"trekreg/internal/admin"
	"trekreg/internal/api/api"
	"trekreg/internal/auth"
	rabbitReader "trekreg/internal/consumerWorker"
	"trekreg/internal/export"
	"trekreg/internal/mailer"
	"trekreg/internal/rabbit"
	"trekreg/internal/repo"
	"trekreg/internal/scheduler"
	"trekreg/internal/service"
)

func main() {
	zlog.Init()
	log := zlog.Logger

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg := config.New()
	if err := cfg.Load("config.yaml", "", "TREK"); err != nil {
		log.Fatal().Msgf("failed to load configuration: %v", err)
	}
	serverCfg := buildCFG.BuildServerConfig(cfg, &log)

	masterDSN, slaveDSNs, poolOptions, err := buildCFG.BuildDBConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build DB config")
	}
	db, err := dbpg.New(masterDSN, slaveDSNs, poolOptions)
	if err != nil {
		log.Fatal().Msgf("failed to connect to DB: %v", err)
	}
	if err := db.Master.Ping(); err != nil {
		log.Fatal().Msgf("DB ping failed: %v", err)
	}
	log.Info().Msg("Database connected successfully")

	repository, err := repo.NewRepository(db, &log)
	if err != nil {
		log.Fatal().Msgf("failed to initialize repository: %v", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot get working directory")
	}
	migrationPath := filepath.Join(cwd, "migrations/postgres")

	if len(os.Args) > 1 && os.Args[1] == "migrate-down" {
		log.Info().Msg("Rolling back migrations...")
		if err := repository.MigrateDown(migrationPath); err != nil {
			log.Fatal().Msgf("failed to rollback migrations: %v", err)
		}
		log.Info().Msg("Migrations rolled back successfully")
		return
	}
	if err := repository.MigrateUp(migrationPath); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("Migrations applied successfully")

	appCfg, err := buildCFG.BuildAppConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app config")
	}

	smtpCfg := buildCFG.BuildSMTPConfig(cfg, &log)
	sender := mailer.NewSender(mailer.NewSMTPProvider(smtpCfg, &log), repository, &log)

	authManager := auth.NewManager(buildCFG.BuildAdminConfig(cfg, &log), repository, &log)
	console := admin.NewConsole(repository, sender, &log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	rabbitCfg, err := buildCFG.BuildRabbitConfig(cfg, &log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load RabbitMQ config")
	}
	var (
		reminders service.ReminderPublisher
		reader    *rabbitReader.Reader
	)
	if rabbitCfg.Enabled() {
		rmq, err := rabbit.NewRabbit(rabbitCfg.Url, rabbitCfg.Exchange, rabbitCfg.Queue, &log)
		if err != nil {
			log.Fatal().Msgf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rmq.Close()

		reminders = rabbit.NewReminders(rmq, rabbitCfg.ReminderAfter)
		reader = rabbitReader.NewReader(rmq, repository, sender, appCfg.EventName, &log)
		reader.Start(workerCtx)
	}

	var archive service.Archiver
	if exportCfg := buildCFG.BuildExportConfig(cfg, &log); exportCfg.Enabled() {
		a, err := export.New(workerCtx, exportCfg, &log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize export archive")
		}
		archive = a
	}

	schedCfg := buildCFG.BuildSchedulerConfig(cfg)
	jobs := scheduler.New(repository, appCfg.Timezone, &log)
	if err := jobs.Start(schedCfg.SessionPurgeInterval, schedCfg.StatsAt); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	serviceInstance := service.NewService(service.Deps{
		Repo:      repository,
		Mailer:    sender,
		Console:   console,
		Auth:      authManager,
		Reminders: reminders,
		Archive:   archive,
		App: service.AppConfig{
			EventName: appCfg.EventName,
			PublicURL: appCfg.PublicURL,
			Location:  appCfg.Timezone,
		},
		Log: &log,
	})
	app := api.NewRouters(&api.Routers{Service: serviceInstance, Auth: authManager, Mode: serverCfg.Mode})

	srv := &http.Server{
		Addr:              ":" + serverCfg.Port,
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info().Msgf("Starting server on %s", serverCfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("failed to start server: %w", err)
		}
	}()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-signalChan:
		log.Info().Msgf("Received signal %s. Initiating shutdown...", sig)
	case err := <-serverErrChan:
		log.Error().Msgf("Server error: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Msgf("Error shutting down server: %v", err)
	}

	jobs.Stop()
	cancelWorkers()
	if reader != nil {
		reader.Stop()
	}
	if err := db.Master.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
	log.Info().Msg("Shutdown complete")
}
