// cmd/broadcast-server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"kuraberu-broadcast/internal/admission"
	"kuraberu-broadcast/internal/api"
	"kuraberu-broadcast/internal/broadcast"
	"kuraberu-broadcast/internal/common/aws"
	"kuraberu-broadcast/internal/common/camunda"
	"kuraberu-broadcast/internal/common/config"
	"kuraberu-broadcast/internal/common/database"
	"kuraberu-broadcast/internal/common/logger"
	"kuraberu-broadcast/internal/common/observability"
	"kuraberu-broadcast/internal/fee"
	"kuraberu-broadcast/internal/notify"
	"kuraberu-broadcast/internal/scheduler"
	"kuraberu-broadcast/internal/store"
	recorddelivery "kuraberu-broadcast/internal/workers/admission/record-delivery"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	loader := config.NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog, level := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting broadcast server...",
		zap.String("environment", cfg.App.Environment),
		zap.String("version", cfg.App.Version),
	)

	obs, err := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	if err != nil {
		zapLog.Warn("observability partially disabled", zap.Error(err))
	}

	ctx := context.Background()
	ready := map[string]api.Pinger{}

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	ready["postgres"] = pg
	zapLog.Info("PostgreSQL connected successfully")

	db := pg.GetDB()
	cases := store.NewCaseStore(db).WithDefaultQuota(cfg.Broadcast.DefaultQuota)
	ledger := store.NewLedger(db).WithDefaultQuota(cfg.Broadcast.DefaultQuota)
	rounds := store.NewRoundStore(db)
	tokens := store.NewTokenStore(db)

	// --- Franchise directory ---
	var directory store.Directory = store.NewPostgresDirectory(db)
	if cfg.Directory.Backend == "elasticsearch" {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		ready["elasticsearch"] = es
		directory = store.NewElasticsearchDirectory(es.Client, es.Index)
		zapLog.Info("Elasticsearch directory enabled", zap.String("index", es.Index))
	}

	var cached *store.CachedDirectory
	if cfg.Directory.CacheTTL > 0 {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		ready["redis"] = rdb
		cached = store.NewCachedDirectory(directory, rdb.GetClient(), time.Duration(cfg.Directory.CacheTTL)*time.Second, log)
		directory = cached
		zapLog.Info("Directory cache enabled", zap.Int("ttlSeconds", cfg.Directory.CacheTTL))
	}

	// --- Notifications ---
	ses, err := aws.NewSESClient(ctx, cfg.Notifications.AWSRegion)
	if err != nil {
		zapLog.Fatal("failed to create SES client", zap.Error(err))
	}
	var topic notify.TopicPublisher
	if cfg.Notifications.AdminTopicARN != "" {
		sns, err := aws.NewSNSClient(ctx, cfg.Notifications.AWSRegion)
		if err != nil {
			zapLog.Fatal("failed to create SNS client", zap.Error(err))
		}
		topic = sns
	}
	gateway := notify.NewGateway(notify.Config{
		FromEmail:      cfg.Notifications.FromEmail,
		AdminEmails:    cfg.Notifications.AdminEmails,
		AdminTopicARN:  cfg.Notifications.AdminTopicARN,
		ChatWebhookURL: cfg.Notifications.ChatWebhookURL,
		Timeout:        config.GetDuration(cfg.Notifications.Timeout),
		RatePerSecond:  cfg.Broadcast.SendRatePerSecond,
	}, ses, topic, log)

	// --- Admission workflow ---
	var (
		requester admission.Requester
		zbClient  *camunda.Client
		worker    *camunda.CamundaWorker
	)
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zbClient, err = camunda.NewClient(cfg.Camunda.BrokerAddress, config.GetDuration(cfg.Camunda.RequestTimeout))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zbClient.Close()
		ready["zeebe"] = api.PingFunc(zbClient.HealthCheck)
		zapLog.Info("Zeebe client connected successfully")

		requester = admission.NewZeebeRequester(zbClient, cfg.Camunda.AdmissionProcessID)

		workerCfg := recorddelivery.LoadConfig()
		workerCfg.Timeout = config.GetDuration(cfg.Camunda.Timeout)
		worker = camunda.NewWorker(
			zbClient.GetClient(),
			recorddelivery.TaskType,
			cfg.Camunda.MaxJobsActive,
			recorddelivery.NewHandler(workerCfg, ledger, log),
			log,
		)
	} else {
		zapLog.Warn("Camunda disabled: apply clicks only alert operators")
	}

	// --- Core services ---
	coordinator := broadcast.NewCoordinator(
		broadcast.Config{
			BaseURL:             cfg.Server.BaseURL,
			CapToRemainingSlots: cfg.Broadcast.CapToRemainingSlots,
		},
		cases, directory, ledger, rounds, tokens, gateway,
		fee.NewCalculator(cfg.Broadcast.Fees),
		obs, log,
	)
	controller := admission.NewController(tokens, rounds, gateway, requester, obs, log)

	// --- Round closer ---
	closer := scheduler.NewRoundCloser(cfg.Scheduler.CloseRoundsSpec, cfg.Scheduler.RoundTTLDuration(), rounds, log)
	if cfg.Scheduler.Enabled {
		if err := closer.Start(); err != nil {
			zapLog.Fatal("failed to start round closer", zap.Error(err))
		}
	}

	// --- Config hot reload ---
	loader.Watch(func(next *config.Config) {
		level.SetLevel(logger.ParseLevel(next.Logging.Level))
		gateway.SetRate(next.Broadcast.SendRatePerSecond)
		closer.SetTTL(next.Scheduler.RoundTTLDuration())
		if cached != nil && next.Directory.CacheTTL > 0 {
			if err := cached.SetTTL(context.Background(), time.Duration(next.Directory.CacheTTL)*time.Second); err != nil {
				zapLog.Warn("directory cache invalidation failed", zap.Error(err))
			}
		}
		zapLog.Info("configuration reloaded",
			zap.String("logLevel", next.Logging.Level),
			zap.Int("sendRatePerSecond", next.Broadcast.SendRatePerSecond),
		)
	}, func(err error) {
		zapLog.Warn("configuration reload rejected", zap.Error(err))
	})

	// --- HTTP entry point ---
	server := api.NewServer(api.Deps{
		Broadcast: coordinator,
		Admission: controller,
		Rounds:    rounds,
		Tokens:    tokens,
		Ready:     ready,
	}, log)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      server.Handler(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	zapLog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if cfg.Scheduler.Enabled {
		<-closer.Stop().Done()
	}
	controller.Wait()
	if worker != nil {
		worker.Stop()
	}
	obs.Shutdown(shutdownCtx)

	zapLog.Info("Broadcast server stopped")
}
