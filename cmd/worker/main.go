package main

import (
	"go.uber.org/zap"

	"mailpilot/config"
	"mailpilot/internal/ingest"
	"mailpilot/internal/mq"
	"mailpilot/internal/mqhandler"
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

	log.Info("Starting worker service...")

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.New(cfg.Redis)
	defer rdb.Close()

	accountRepo := repository.NewAccountRepository(dbConn)
	mailRepo := repository.NewMailRepository(dbConn)

	providerFactory := provider.NewFactory(cfg.Provider)
	writer := ingest.NewWriter(mailRepo, log)
	leases := lease.New(rdb, cfg.Sync.LeaseTTL(), log)
	syncService := syncer.NewService(accountRepo, writer, providerFactory, leases, cfg.Sync, cfg.Provider.WebhookURL, log)

	handler := mqhandler.NewAccountConnectedHandler(syncService, cfg.Sync.InitialDaysWithin, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, mq.RoutingKeyAccountConnected, log)
	if err != nil {
		log.Fatal("failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(handler.Handle)

	log.Info("Worker ready, consuming account.connected")
	if err := consumer.StartConsuming(); err != nil {
		log.Fatal("consumer failed", zap.Error(err))
	}
}
