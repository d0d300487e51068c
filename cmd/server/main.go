package main

import (
	"go.uber.org/zap"

	"mailpilot/config"
	"mailpilot/internal/account"
	"mailpilot/internal/api"
	"mailpilot/internal/ingest"
	"mailpilot/internal/mq"
	"mailpilot/internal/provider"
	"mailpilot/internal/repository"
	"mailpilot/internal/syncer"
	"mailpilot/pkg/db"
	"mailpilot/pkg/lease"
	"mailpilot/pkg/logger"
	"mailpilot/pkg/redisclient"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	defer log.Sync()

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.New(cfg.Redis)
	defer rdb.Close()

	producer, err := mq.NewProducer(cfg.MQ.URL)
	if err != nil {
		log.Fatal("failed to init producer", zap.Error(err))
	}
	defer producer.Close()

	// repositories
	accountRepo := repository.NewAccountRepository(dbConn)
	mailRepo := repository.NewMailRepository(dbConn)

	// services
	providerFactory := provider.NewFactory(cfg.Provider)
	writer := ingest.NewWriter(mailRepo, log)
	leases := lease.New(rdb, cfg.Sync.LeaseTTL(), log)
	syncService := syncer.NewService(accountRepo, writer, providerFactory, leases, cfg.Sync, cfg.Provider.WebhookURL, log)
	accountService := account.NewService(accountRepo, providerFactory, producer, cfg.Provider.WebhookURL, log)

	// handlers
	webhookHandler := api.NewWebhookHandler(cfg.Provider.SigningSecret, accountRepo, syncService, log)
	cronHandler := api.NewCronHandler(cfg.Cron.Secret, syncService, log)
	syncHandler := api.NewSyncHandler(syncService, log)
	accountHandler := api.NewAccountHandler(accountService, log)

	router := api.NewRouter(webhookHandler, cronHandler, syncHandler, accountHandler, cfg.JWT.Secret, log)

	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		log.Fatal("server start failed", zap.Error(err))
	}
}
