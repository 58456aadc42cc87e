// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/unclebandit/followup-engine/internal/config"
	"github.com/unclebandit/followup-engine/internal/controller"
	"github.com/unclebandit/followup-engine/internal/db"
	"github.com/unclebandit/followup-engine/internal/logger"
	"github.com/unclebandit/followup-engine/internal/mailer"
	"github.com/unclebandit/followup-engine/internal/queue"
	"github.com/unclebandit/followup-engine/internal/repository"
	"github.com/unclebandit/followup-engine/internal/service"
)

func main() {
	// Load .env
	envErr := godotenv.Load()

	cfg, err := config.LoadWithValidation()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Debug("no .env file found, relying on OS environment variables")
	}
	cfg.LogConfig(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.Migrate(conn, log); err != nil {
		return err
	}

	campaignRepo := &repository.CampaignRepository{DB: conn}
	messageRepo := &repository.ScheduledMessageRepository{DB: conn}
	accountRepo := &repository.EmailAccountRepository{DB: conn}
	historyRepo := &repository.EmailMessageRepository{DB: conn}

	// Campaigns left mid-send by a crash must be paused before any
	// dispatch traffic is accepted.
	if _, err := service.Recover(ctx, campaignRepo, log); err != nil {
		return err
	}

	resolver := &service.ConversationResolver{Messages: historyRepo}

	schedulingService := &service.SchedulingService{
		Messages: messageRepo,
		Accounts: accountRepo,
		Resolver: resolver,
		Log:      log,
	}
	dispatchService := &service.DispatchService{
		Messages:          messageRepo,
		Accounts:          accountRepo,
		Resolver:          resolver,
		Transport:         mailer.NewSMTPTransport(cfg.SMTPAllowPlaintext),
		Log:               log,
		SendTimeout:       cfg.SendTimeout,
		PersistNormalized: cfg.PersistNormalizedRecipients,
	}

	q, closeQueue, err := openQueue(cfg, log)
	if err != nil {
		return err
	}
	defer closeQueue()

	// Without a broker the server also consumes its own jobs.
	if cfg.AMQPURL == "" {
		worker := service.NewWorker(dispatchService, log)
		if err := q.Subscribe(cfg.DispatchQueue, worker.Handle); err != nil {
			return err
		}
	}

	scanner := &service.DueScanner{
		Messages:  messageRepo,
		Queue:     q,
		Topic:     cfg.DispatchQueue,
		BatchSize: cfg.ScanBatchSize,
		Log:       log,
	}
	go scanner.Run(ctx, cfg.ScanInterval)

	router := controller.NewRouter(
		&controller.ScheduledMessageController{
			Scheduler:  schedulingService,
			Dispatcher: dispatchService,
			Location:   cfg.Location(),
			Log:        log,
		},
		&controller.CampaignController{
			CampaignService: &service.CampaignService{CampaignRepo: campaignRepo},
			Log:             log,
		},
		&controller.HealthController{DB: conn, Log: log},
		log,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.APIPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SendTimeout+5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func openQueue(cfg *config.Config, log *slog.Logger) (queue.Queue, func(), error) {
	if cfg.AMQPURL == "" {
		log.Info("using in-memory dispatch queue")
		q := queue.NewInMemoryQueue(log)
		return q, q.Wait, nil
	}

	q, err := queue.DialAMQP(cfg.AMQPURL, log)
	if err != nil {
		return nil, nil, err
	}
	log.Info("using amqp dispatch queue", "queue", cfg.DispatchQueue)

	return q, func() { q.Close() }, nil
}
