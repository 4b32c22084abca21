package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bitmex-trader/internal/config"
	"bitmex-trader/internal/exchange/bitmex"
	"bitmex-trader/internal/logging"
)

func main() {
	var (
		configPath string
		quoteEvery int
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.IntVar(&quoteEvery, "quote-log-sec", 30, "seconds between quote log lines, 0 disables")
	flag.Parse()

	// Credentials may live in a local .env instead of the yaml file.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		fatal(err.Error())
	}

	client, err := bitmex.NewClient(cfg, log)
	if err != nil {
		fatal(err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Start(ctx); err != nil {
		fatal(err.Error())
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("close failed")
		}
	}()
	log.WithField("mode", cfg.Mode).Info("connector started")

	if quoteEvery <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(time.Duration(quoteEvery) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			for symbol, q := range client.Quotes() {
				entry := log.WithField("symbol", symbol)
				if q.HasBid {
					entry = entry.WithField("bid", q.Bid.String())
				}
				if q.HasAsk {
					entry = entry.WithField("ask", q.Ask.String())
				}
				entry.Info("quote")
			}
		}
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
