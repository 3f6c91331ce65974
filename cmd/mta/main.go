package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mailcore/internal/config"
	"mailcore/internal/dnsx"
	"mailcore/internal/inbound"
	"mailcore/internal/mqhandler"
	"mailcore/internal/notify"
	"mailcore/internal/repository"
	"mailcore/internal/scan"
	"mailcore/internal/schedule"
	"mailcore/internal/smtpout"
	"mailcore/pkg/db"
	"mailcore/pkg/logger"
	"mailcore/pkg/mq"
	"mailcore/pkg/redis"
	"mailcore/pkg/util"
)

func main() {
	cfg := config.Load()
	logger := logger.NewLogger()
	defer logger.Sync()

	logger.Info("Starting mail transfer agent...")

	// Redis
	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	// Attempt counts must outlive the longest backoff rung.
	attemptTTL := schedule.Ladder[len(schedule.Ladder)-1] + 24*time.Hour
	attempts := util.NewAttemptCounter(rdb, attemptTTL)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, logger)
	if err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	logger.Info("DB ready")

	// repositories
	addressRepo := repository.NewAddressRepository(dbConn)
	contactRepo := repository.NewContactRepository(dbConn)
	emailRepo := repository.NewEmailRepository(dbConn)

	// scanners
	rspamd := scan.NewRspamdClient(cfg.Rspamd.URL, cfg.Rspamd.Timeout())
	var clam mqhandler.VirusScanner
	if cfg.ClamAV.Enabled {
		clam = scan.NewClamClient(cfg.ClamAV.Addr, cfg.ClamAV.Timeout())
	}

	// MX resolution
	mxCache := dnsx.NewCache(nil)
	mxResolver := dnsx.NewMXResolver(mxCache, nil, cfg.DNS.MXCacheTTL(), logger)

	// delivery engine
	signer, err := smtpout.NewSigner(cfg.DKIM.Domain, cfg.DKIM.Selector, cfg.DKIM.KeyFile)
	if err != nil {
		// Delivery without a signing key would permanently fail every job;
		// the engine still starts so jobs fail loudly instead of queueing up.
		logger.Error("DKIM signer unavailable, outbound jobs will be discarded", zap.Error(err))
		signer = nil
	}
	dialer := smtpout.NewSMTPDialer(cfg.SMTP.Helo, cfg.SMTP.Port, cfg.SMTP.Timeout())
	engine := smtpout.NewEngine(dialer, signer, logger)

	// publisher (retries, DLQ, notifications)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		logger.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	if err := publisher.EnsureDLQ(mqhandler.RoutingKeyOutbound); err != nil {
		logger.Fatal("Failed to declare DLQ", zap.Error(err))
	}

	notifier := notify.NewNotifier(publisher, logger)

	// handlers
	outboundHandler := mqhandler.NewOutboundHandler(
		rspamd, clam, mxResolver, engine,
		publisher, attempts, notifier,
		cfg.Outbound.JobTimeout(), logger,
	)

	inboundService := inbound.NewService(addressRepo, contactRepo, emailRepo, rspamd, logger)
	inboundHandler := mqhandler.NewInboundHandler(inboundService, logger)

	// -------------------------
	// Outbound Job Consumer
	// -------------------------
	var limiter *rate.Limiter
	if cfg.Outbound.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Outbound.RatePerSecond), cfg.Outbound.RatePerSecond)
	}

	logger.Info("Init consumer: " + mqhandler.QueueOutbound)
	outboundConsumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		mqhandler.QueueOutbound,
		mqhandler.RoutingKeyOutbound,
		cfg.Outbound.Workers,
		limiter,
		logger,
	)
	if err != nil {
		logger.Fatal("Outbound consumer init failed", zap.Error(err))
	}
	outboundConsumer.SetHandler(outboundHandler.Handle)
	go func() {
		if err := outboundConsumer.StartConsuming(); err != nil {
			logger.Fatal("Outbound consumer crashed", zap.Error(err))
		}
	}()
	defer outboundConsumer.Close()

	// -------------------------
	// Inbound Consumer
	// -------------------------
	logger.Info("Init consumer: " + mqhandler.QueueInbound)
	inboundConsumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		mqhandler.QueueInbound,
		mqhandler.RoutingKeyInbound,
		cfg.Inbound.Workers,
		nil,
		logger,
	)
	if err != nil {
		logger.Fatal("Inbound consumer init failed", zap.Error(err))
	}
	inboundConsumer.SetHandler(inboundHandler.Handle)
	go func() {
		if err := inboundConsumer.StartConsuming(); err != nil {
			logger.Fatal("Inbound consumer crashed", zap.Error(err))
		}
	}()
	defer inboundConsumer.Close()

	// metrics
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+cfg.Server.Port, nil); err != nil {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("MTA running",
		zap.Int("outbound_workers", cfg.Outbound.Workers),
		zap.Int("inbound_workers", cfg.Inbound.Workers),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")
}
