package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trailsafe/cache"
	"trailsafe/config"
	"trailsafe/database"
	"trailsafe/repositories"
	"trailsafe/routes"
	"trailsafe/services"
	"trailsafe/websocket"
	"trailsafe/workers"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()

	setupLogger(cfg)

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}
	defer database.Disconnect()

	// Initialize Redis (optional)
	redisClient := config.InitRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Shared bounded cache
	boundedCache := cache.New(cfg.CacheCapacity)

	// Tracking link store: Redis when available, in-memory otherwise
	var linkStore services.TrackingLinkStore
	var memoryLinks *services.MemoryLinkStore
	if redisClient != nil {
		linkStore = services.NewRedisLinkStore(redisClient)
		logrus.Info("Tracking links backed by Redis")
	} else {
		memoryLinks = services.NewMemoryLinkStore()
		linkStore = memoryLinks
		logrus.Info("Tracking links held in process memory")
	}

	// Risk oracle (optional; rule-based assessment covers its absence)
	var oracle services.RiskOracle
	if o, err := services.NewOpenAIRiskOracle(cfg.OpenAIAPIKey, cfg.OpenAIModel, 10*time.Second); err != nil {
		logrus.Warnf("Risk oracle disabled: %v", err)
	} else {
		oracle = o
	}

	// Core services
	zoneProvider := services.NewCachedZoneProvider(repositories.NewZoneRepository(db), boundedCache, 10*time.Minute)
	predictor := services.NewRiskPredictor(oracle)

	monitorConfig := services.DefaultMonitorConfig()
	monitorConfig.HistoryCapacity = cfg.HistoryCapacity
	monitorConfig.FullAnalysisInterval = cfg.FullAnalysisInterval
	monitorConfig.ConcernAnalysisInterval = cfg.ConcernAnalysisInterval
	monitorConfig.AlertCooldown = cfg.AlertCooldown
	monitor := services.NewSafetyMonitor(monitorConfig, predictor, zoneProvider, repositories.NewAlertRepository(db))

	broadcasterConfig := services.DefaultBroadcasterConfig(cfg.BaseURL)
	broadcasterConfig.LinkTTL = cfg.TrackingLinkTTL
	broadcasterConfig.ChannelTimeout = cfg.ChannelTimeout
	broadcaster := services.NewAlertBroadcaster(
		broadcasterConfig,
		repositories.NewContactRepository(db),
		repositories.NewAuditRepository(db),
		monitor,
		linkStore,
		buildChannels(cfg),
	)

	// Realtime hub
	hub := websocket.NewHub(monitor, broadcaster)
	monitor.SetPublisher(hub)
	go hub.Run()

	// Background sweeps
	sweeper := workers.NewSweepWorker(workers.DefaultSweepWorkerConfig(), boundedCache, memoryLinks)
	sweeper.Start()

	router := routes.SetupRoutes(cfg, db, redisClient, monitor, broadcaster, hub)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logrus.Info("TrailSafe server starting on port ", cfg.Port)
		logrus.Info("WebSocket endpoint: /ws")
		logrus.Info("Health check: /health")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatal("Failed to start server: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatal("Server forced to shutdown: ", err)
	}

	sweeper.Stop()
	hub.Shutdown()

	logrus.Info("Server shutdown complete")
}

// buildChannels assembles every notification channel with usable credentials.
func buildChannels(cfg *config.Config) []services.NotificationChannel {
	var channels []services.NotificationChannel

	twilioClient := services.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken)
	if twilioClient != nil {
		channels = append(channels,
			services.NewTwilioSMSChannel(twilioClient, cfg.TwilioPhoneNumber),
			services.NewTwilioVoiceChannel(twilioClient, cfg.TwilioPhoneNumber),
		)
		if cfg.TwilioWhatsAppNumber != "" {
			channels = append(channels, services.NewTwilioWhatsAppChannel(twilioClient, cfg.TwilioWhatsAppNumber, nil))
		}
	} else {
		logrus.Warn("Twilio not configured; SMS, voice and WhatsApp channels disabled")
	}

	if cfg.FirebaseCredentials != "" {
		push, err := services.NewFCMPushChannel(context.Background(), cfg.FirebaseCredentials)
		if err != nil {
			logrus.Warnf("Push channel disabled: %v", err)
		} else {
			channels = append(channels, push)
		}
	}

	return channels
}

func setupLogger(cfg *config.Config) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	if cfg.Environment == "development" {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
