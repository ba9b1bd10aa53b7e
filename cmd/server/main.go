package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-service/config"
	"marketplace-service/internal/api"
	"marketplace-service/internal/broker"
	"marketplace-service/internal/notify"
	"marketplace-service/internal/redisclient"
	"marketplace-service/internal/service"
	"marketplace-service/internal/store"
	"marketplace-service/internal/util"
	"marketplace-service/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting marketplace service")

	tp, err := util.InitTracer("marketplace-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicMatching)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	var notifier notify.Notifier
	if cfg.WhatsApp.Enabled {
		notifier = notify.NewTwilioNotifier(cfg.WhatsApp)
		log.Println("Twilio WhatsApp notifier enabled")
	} else {
		notifier = notify.NewConsoleNotifier()
		log.Println("WhatsApp disabled, logging notifications to console")
	}

	dispatcher := service.NewDispatcher(db, redisClient, notifier, eventPublisher, cfg.Business)
	lifecycle := service.NewLifecycleManager(db, dispatcher, notifier, eventPublisher, cfg.Business)
	requestService := service.NewRequestService(db, redisClient, eventPublisher, dispatcher, lifecycle)
	offerService := service.NewOfferService(db, redisClient, eventPublisher, dispatcher, cfg.Business, cfg.WhatsApp.DefaultCountryCode)
	appointmentService := service.NewAppointmentService(db, eventPublisher)
	walletService := service.NewWalletService(db, cfg.Business)
	ratingService := service.NewRatingService(db, redisClient)
	searchService := service.NewSearchService(db, redisClient)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	sweepWorker := worker.NewSweepWorker(lifecycle, redisClient, cfg.Business)
	go func() {
		if err := sweepWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Sweep worker error: %v", err)
		}
	}()

	matchConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicMatching, cfg.Kafka.ConsumerGroup)
	matchWorker := worker.NewMatchWorker(matchConsumer, db, notifier)
	go func() {
		if err := matchWorker.Start(workerCtx); err != nil {
			log.Printf("Match worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(
		requestService,
		offerService,
		appointmentService,
		walletService,
		ratingService,
		searchService,
		cfg.WhatsApp,
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	matchWorker.Stop()

	log.Println("Server exited")
}
