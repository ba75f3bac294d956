package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/kyukim/payment-service/internal/repository"
	"github.com/kyukim/payment-service/internal/service"
	"github.com/kyukim/payment-service/internal/toss"
	transportHTTP "github.com/kyukim/payment-service/internal/transport/http"
	"github.com/kyukim/payment-service/internal/transport/http/handler"
	"github.com/kyukim/payment-service/pkg/config"
	"github.com/kyukim/payment-service/pkg/db"
	kafka2 "github.com/kyukim/payment-service/pkg/kafka"
	"github.com/kyukim/payment-service/pkg/mylogger"
	outbox "github.com/kyukim/payment-service/pkg/outbox/repository"
	"github.com/kyukim/payment-service/pkg/outbox/worker"
	"github.com/kyukim/payment-service/pkg/utils"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	tp, err := utils.InitTracer(ctx, "payment-service")
	if err != nil {
		log.Fatalf("Error init tracer: %v", err)
	}

	pool, err := db.NewPostgresDB(cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("Error creating postgres DB: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	loggerCfg := config.LoggerConfig{
		Level: "info",
		Env:   cfg.Env,
	}

	logger, err := config.NewLogger(loggerCfg)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	mylogger.Info(ctx, logger, "Payment service started!")

	paymentRepo := repository.NewPaymentRepository(pool, logger)
	productRepo := repository.NewProductRepository(pool, logger)
	cachedProducts := service.NewCachedProductReader(productRepo, rdb)
	outboxRepo := outbox.NewOutboxRepository(pool, logger)

	gateway := toss.NewClient(toss.Config{
		BaseURL:   cfg.Toss.BaseURL,
		SecretKey: cfg.Toss.SecretKey,
		Timeout:   cfg.Toss.Timeout,
	}, logger)

	paymentService := service.NewPaymentService(pool, paymentRepo, cachedProducts, outboxRepo, gateway, logger)
	paymentHandler := handler.NewPaymentHandler(paymentService, logger)

	kafkaProducer, err := kafka2.NewProducer(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, kafkaProducer, logger)

	go outboxProcessor.Start(ctx)

	app := fiber.New()
	app.Use(otelfiber.Middleware())

	transportHTTP.RegisterRoutes(app, &transportHTTP.Handlers{
		Payment: paymentHandler,
	})

	go func() {
		log.Println("HTTP Payment service listening on port: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening HTTP on port %v: %v", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	} else {
		log.Println("Stopped HTTP server successfully")
	}

	if err := kafkaProducer.Close(); err != nil {
		log.Printf("Error closing kafka producer: %v", err)
	}

	if err := rdb.Close(); err != nil {
		log.Printf("Error closing redis client: %v", err)
	}

	pool.Close()
	log.Println("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping telemetry: %v\n", err)
	} else {
		log.Println("Telemetry closed correctly")
	}
}
