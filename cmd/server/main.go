package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/milkteahub/shop/internal/config"
	"github.com/milkteahub/shop/internal/handlers"
	"github.com/milkteahub/shop/internal/logging"
	"github.com/milkteahub/shop/internal/notify"
	"github.com/milkteahub/shop/internal/order"
	httpserver "github.com/milkteahub/shop/internal/transport/http"
	loggingmw "github.com/milkteahub/shop/pkg/middleware/logging"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)

	var notifier notify.Notifier = notify.Nop{}
	var kafkaNotifier *notify.Kafka
	if configuration.KAFKA_ADDRESS != "" {
		kafkaNotifier = notify.NewKafka(configuration.KAFKA_ADDRESS, logger)
		notifier = kafkaNotifier
	}

	orderSvc := order.NewService(db, notifier, logger)

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:            db,
		CartHandler:   &handlers.CartHandler{DB: db, JWTSecret: jwtSecret},
		OrderHandler:  &handlers.OrderHandler{Svc: orderSvc, JWTSecret: jwtSecret},
		ReviewHandler: &handlers.ReviewHandler{DB: db, Orders: orderSvc, JWTSecret: jwtSecret},
	}
	httpserver.Register(e, &deps)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go orderSvc.Run(sweepCtx, configuration.SWEEP_EVERY)

	srv := &http.Server{
		Addr:         configuration.HTTP_ADDR,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			log.Printf("kafka close error: %v", err)
		}
	}

	log.Println("shutdown complete")
}
