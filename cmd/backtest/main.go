package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"crypto-trade-bot-go/internal/backtest"
	"crypto-trade-bot-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	dataPath := flag.String("data", "", "path to a CSV price series with timestamp, close and signal columns")
	capital := flag.Float64("capital", 10000.0, "initial capital")
	fee := flag.Float64("fee", 0.001, "trading fee as a fraction")
	tradingDays := flag.Int("trading-days", 252, "periods per year used for annualization")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "usage: backtest -data prices.csv [-capital 10000] [-fee 0.001]")
		os.Exit(2)
	}

	log, err := logger.NewLogger(*logLevel, "console")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	series, signals, err := backtest.LoadCSV(*dataPath)
	if err != nil {
		log.Fatal("Failed to load price series", zap.Error(err))
	}
	if signals == nil {
		log.Fatal("Data file has no signal column; signals must be precomputed",
			zap.String("path", *dataPath))
	}

	engine, err := backtest.NewEngine(series, backtest.Config{
		InitialCapital: *capital,
		TradingFee:     *fee,
		TradingDays:    *tradingDays,
	}, log)
	if err != nil {
		log.Fatal("Failed to configure backtest", zap.Error(err))
	}

	if err := engine.Run(signals); err != nil {
		log.Fatal("Backtest failed", zap.Error(err))
	}

	metrics, ok := engine.PerformanceMetrics()
	if !ok {
		log.Fatal("Backtest produced no history")
	}

	printSummary(metrics, engine.Results())
}

func printSummary(metrics backtest.Metrics, results []backtest.Snapshot) {
	fmt.Println("==================================================")
	fmt.Println("BACKTEST RESULTS")
	fmt.Println("==================================================")
	fmt.Printf("Initial Capital:    %.2f\n", metrics.InitialCapital)
	fmt.Printf("Final Equity:       %.2f\n", metrics.FinalEquity)
	fmt.Printf("Total Return:       %.2f%%\n", metrics.TotalReturn*100)
	fmt.Printf("Annualized Return:  %.2f%%\n", metrics.AnnualizedReturn*100)
	if math.IsNaN(metrics.SharpeRatio) {
		fmt.Println("Sharpe Ratio:       undefined (flat equity curve)")
	} else {
		fmt.Printf("Sharpe Ratio:       %.2f\n", metrics.SharpeRatio)
	}
	fmt.Printf("Max Drawdown:       %.2f%%\n", metrics.MaxDrawdown*100)
	fmt.Printf("Steps Simulated:    %d\n", len(results))

	trades := 0
	for i, snap := range results {
		var prev int64
		if i > 0 {
			prev = results[i-1].Positions
		}
		if (snap.Signal == backtest.SignalBuy && snap.Positions > prev) ||
			(snap.Signal == backtest.SignalSell && snap.Positions < prev) {
			trades++
		}
	}
	fmt.Printf("Executed Trades:    %d\n", trades)
}
