package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/unclebandit/followup-engine/internal/config"
	"github.com/unclebandit/followup-engine/internal/db"
	"github.com/unclebandit/followup-engine/internal/logger"
	"github.com/unclebandit/followup-engine/internal/mailer"
	"github.com/unclebandit/followup-engine/internal/queue"
	"github.com/unclebandit/followup-engine/internal/repository"
	"github.com/unclebandit/followup-engine/internal/service"
)

func main() {
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

	if err := run(cfg, log); err != nil {
		log.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if cfg.AMQPURL == "" {
		log.Warn("AMQP_URL not set; the server dispatches in-process and no worker is needed")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	messageRepo := &repository.ScheduledMessageRepository{DB: conn}
	accountRepo := &repository.EmailAccountRepository{DB: conn}

	worker := newWorker(messageRepo, accountRepo,
		&repository.EmailMessageRepository{DB: conn},
		mailer.NewSMTPTransport(cfg.SMTPAllowPlaintext), cfg, log)

	q, err := queue.DialAMQP(cfg.AMQPURL, log)
	if err != nil {
		return err
	}
	defer q.Close()

	if err := q.Subscribe(cfg.DispatchQueue, worker.Handle); err != nil {
		return err
	}

	log.Info("worker running, waiting for messages", "queue", cfg.DispatchQueue)
	<-ctx.Done()

	return nil
}

func newWorker(
	messages repository.ScheduledMessageRepositoryInterface,
	accounts repository.EmailAccountRepositoryInterface,
	history repository.EmailMessageRepositoryInterface,
	transport mailer.Transport,
	cfg *config.Config,
	log *slog.Logger,
) *service.Worker {
	dispatch := &service.DispatchService{
		Messages:          messages,
		Accounts:          accounts,
		Resolver:          &service.ConversationResolver{Messages: history},
		Transport:         transport,
		Log:               log,
		SendTimeout:       cfg.SendTimeout,
		PersistNormalized: cfg.PersistNormalizedRecipients,
	}

	return service.NewWorker(dispatch, log)
}
