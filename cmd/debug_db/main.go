package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vitos/crypto_trade_bot/internal/infrastructure/storage"
)

func main() {
	dbPath := "bot.db"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}

	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	status, err := store.GetBotStatus(ctx)
	if err != nil {
		fmt.Printf("Failed to read bot status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Bot status: %s (cycle %d, signals %d, buys %d)\n",
		status.Status, status.CycleNumber, status.TotalSignals, status.BuySignals)
	if status.LastError != "" {
		fmt.Printf("Last error: %s\n", status.LastError)
	}

	positions, err := store.ListPositions(ctx)
	if err != nil {
		fmt.Printf("Failed to list positions: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nFound %d open positions:\n", len(positions))
	for _, p := range positions {
		fmt.Printf("- %s: entry=%f current=%f remaining=%f/%f stop=%f trailing=%v\n",
			p.Ticker, p.EntryPrice, p.CurrentPrice, p.RemainingQuantity, p.TotalQuantity,
			p.StopLoss, p.TrailingActive)
		for _, tp := range p.TakeProfits {
			fmt.Printf("    %s @ %f (%.0f%%) hit=%v\n", tp.Tag, tp.Price, tp.SizeFraction*100, tp.Hit)
		}
	}

	trades, err := store.ListTrades(ctx, 20)
	if err != nil {
		fmt.Printf("Failed to list trades: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nLast %d trades:\n", len(trades))
	for _, tr := range trades {
		reason := tr.Reason
		if reason == "" {
			reason = "-"
		}
		fmt.Printf("- [%s] %s %s qty=%f price=%f total=%f reason=%s\n",
			tr.CreatedAt.Format("2006-01-02 15:04:05"), tr.Action, tr.Ticker,
			tr.Quantity, tr.Price, tr.TotalValue, reason)
	}

	signals, err := store.ListSignals(ctx, 10)
	if err != nil {
		fmt.Printf("Failed to list signals: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nLast %d signals:\n", len(signals))
	for _, s := range signals {
		fmt.Printf("- [%s] %s %s p=%.4f\n",
			s.CreatedAt.Format("2006-01-02 15:04:05"), s.SignalType, s.Ticker, s.Probability)
	}
}
