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

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/solitraderbusiness/ClanTrader-sub000/configs"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/database"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/delivery/agentapi"
	deliveryhttp "github.com/solitraderbusiness/ClanTrader-sub000/internal/delivery/http"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/hub"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/infra"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/repository"
	"github.com/solitraderbusiness/ClanTrader-sub000/internal/service"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	// Load configuration
	cfg := configs.Load()

	// Initialize context
	ctx := context.Background()

	// Initialize database
	db, err := infra.NewDatabase(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	messageRepo := repository.NewMessageRepository(db)
	cardRepo := repository.NewTradeCardRepository(db)
	tradeRepo := repository.NewTradeRepository(db)
	actionRepo := repository.NewPendingActionRepository(db)
	accountRepo := repository.NewAgentAccountRepository(db)
	directory := repository.NewClanDirectory(db)

	// Initialize realtime core
	presence := service.NewPresenceStore(cfg.Realtime.PresenceTTL)
	limiter := service.NewRateLimiter(cfg.Realtime.RateMax, cfg.Realtime.RateWindow)
	h := hub.NewHub(presence)

	// Initialize services; the hub is the single broadcast emitter behind
	// all of them
	messageService := service.NewMessageService(messageRepo, directory, h)
	tradeService := service.NewTradeService(messageRepo, cardRepo, tradeRepo, directory, h, messageService)
	dispatchService := service.NewDispatchService(tradeRepo, actionRepo, tradeService, h, cfg.Realtime.ActionExpiry)

	gateway := hub.NewGateway(h, directory, limiter, messageService, tradeService, dispatchService)

	// Initialize background sweeper
	sweeper := infra.NewSweeper(dispatchService, presence)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start sweeper: %v", err)
	}
	defer sweeper.Stop()

	// Client-facing server: websocket protocol plus read-only REST views
	e := echo.New()
	e.HideBanner = true
	deliveryhttp.SetupRoutes(e, &deliveryhttp.RouterConfig{
		WSHandler:      deliveryhttp.NewWSHandler(gateway),
		TradeHandler:   deliveryhttp.NewTradeHandler(tradeService),
		MessageHandler: deliveryhttp.NewMessageHandler(messageService),
	})

	// EA bridge server on its own listener
	agentHandler := agentapi.NewHandler(accountRepo, tradeRepo, tradeService, dispatchService)
	agentSrv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Agent.Port),
		Handler:      agentapi.NewRouter(agentHandler, accountRepo),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("ClanTrader realtime core starting on :%s (agent bridge :%s)", cfg.Server.Port, cfg.Agent.Port)
	log.Printf("Environment: %s", cfg.Server.Env)
	log.Println("========================================")

	go func() {
		if err := e.Start(fmt.Sprintf(":%s", cfg.Server.Port)); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start client server: %v", err)
		}
	}()

	go func() {
		if err := agentSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start agent bridge: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERR] Client server forced to shutdown: %v", err)
	}
	if err := agentSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERR] Agent bridge forced to shutdown: %v", err)
	}

	log.Println("[OK] Servers exited gracefully")
}
