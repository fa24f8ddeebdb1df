package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"crypto-trade-bot-go/internal/broker"
	"crypto-trade-bot-go/internal/config"
	"crypto-trade-bot-go/internal/database"
	"crypto-trade-bot-go/internal/logger"
	"crypto-trade-bot-go/internal/marketdata"
	"crypto-trade-bot-go/internal/risk"
	"crypto-trade-bot-go/internal/trader"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize market data client
	market := marketdata.NewClient(&cfg.CoinGecko, log)
	if err := market.Ping(context.Background()); err != nil {
		log.Fatal("Failed to connect to CoinGecko API", zap.Error(err))
	}
	log.Info("Successfully connected to CoinGecko API.")

	// Initialize brokerage client
	venue, err := broker.NewClient(&cfg.Robinhood, log)
	if err != nil {
		log.Fatal("Failed to initialize brokerage client", zap.Error(err))
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the trading engine
	riskManager := risk.NewManager(cfg.Risk, log)
	tradeEngine := trader.NewEngine(log, &cfg, market, venue, riskManager, trader.HoldStrategy{}, db)
	tradeEngine.Run(ctx)

	log.Info("Bot has been shut down.")
}
