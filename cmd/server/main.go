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

	"github.com/ecomcore/shop/internal/config"
	"github.com/ecomcore/shop/internal/es"
	"github.com/ecomcore/shop/internal/handlers"
	"github.com/ecomcore/shop/internal/logging"
	"github.com/ecomcore/shop/internal/mykafka"
	"github.com/ecomcore/shop/internal/service/orders"
	"github.com/ecomcore/shop/internal/service/token"
	httpserver "github.com/ecomcore/shop/internal/transport/http"
	"github.com/ecomcore/shop/pkg/db"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := db.Migrate(database); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}

	brokers := []string{cfg.KafkaAddress}
	topics := []string{"user_events", "product_events", "cart_events", "order_events"}
	prod, err := mykafka.NewProducer(brokers, topics)
	if err != nil {
		log.Fatal(err)
	}

	esClient, err := es.NewClient(cfg)
	if err != nil {
		log.Fatal(err)
	}

	tokenSvc := &token.TokenService{
		DB:            database,
		JWTSecret:     []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	}
	orderSvc := &orders.Service{DB: database}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), logging.RequestLogger(logger))

	deps := httpserver.Deps{
		DB:             database,
		AuthHandler:    &handlers.AuthHandler{DB: database, Tokens: tokenSvc, Producer: prod},
		ProductHandler: &handlers.ProductHandler{DB: database, Producer: prod},
		CartHandler:    &handlers.CartHandler{DB: database, Producer: prod},
		OrderHandler:   &handlers.OrderHandler{Orders: orderSvc, Producer: prod},
		SearchHandler:  &handlers.SearchHandler{ES: esClient, Index: "product"},
		TokenService:   tokenSvc,
	}
	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := database.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
