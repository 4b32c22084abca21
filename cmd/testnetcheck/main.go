package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"bitmex-trader/internal/config"
	"bitmex-trader/internal/core"
	"bitmex-trader/internal/exchange/bitmex"
	"bitmex-trader/internal/logging"
)

type checkStatus string

const (
	statusPass checkStatus = "PASS"
	statusFail checkStatus = "FAIL"
	statusSkip checkStatus = "SKIP"
)

type checkResult struct {
	Name       string      `json:"name"`
	Status     checkStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Detail     string      `json:"detail,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Mode       config.Mode   `json:"mode"`
	Symbol     string        `json:"symbol"`
	Checks     []checkResult `json:"checks"`
}

func main() {
	var (
		configPath   string
		symbol       string
		timeoutSec   int
		streamWait   int
		outJSONPath  string
		allowLiveRun bool
		allowOrders  bool
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&symbol, "symbol", "XBTUSD", "symbol to probe")
	flag.IntVar(&timeoutSec, "timeout-sec", 120, "total timeout seconds")
	flag.IntVar(&streamWait, "stream-wait-sec", 15, "wait seconds for the first streamed quote")
	flag.StringVar(&outJSONPath, "out-json", "", "optional output report path")
	flag.BoolVar(&allowLiveRun, "allow-live", false, "allow running checks when mode=live")
	flag.BoolVar(&allowOrders, "allow-orders", false, "place and cancel a deep passive order")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	if cfg.Mode == config.ModeLive && !allowLiveRun {
		fatal("mode=live blocked by default; set -allow-live=true to continue")
	}
	if timeoutSec < 30 {
		timeoutSec = 30
	}
	if streamWait < 3 {
		streamWait = 3
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fatal(err.Error())
	}
	client, err := bitmex.NewClient(cfg, log)
	if err != nil {
		fatal(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	r := report{
		StartedAt: time.Now().UTC(),
		Mode:      cfg.Mode,
		Symbol:    symbol,
	}
	run := func(name string, fn func() (string, error)) bool {
		start := time.Now()
		detail, err := fn()
		res := checkResult{
			Name:       name,
			Status:     statusPass,
			DurationMs: time.Since(start).Milliseconds(),
			Detail:     detail,
		}
		if err != nil {
			res.Status = statusFail
			res.Error = err.Error()
		}
		r.Checks = append(r.Checks, res)
		fmt.Printf("%-18s %s %s\n", name, res.Status, detail)
		return err == nil
	}
	skip := func(name, reason string) {
		r.Checks = append(r.Checks, checkResult{Name: name, Status: statusSkip, Detail: reason})
		fmt.Printf("%-18s %s %s\n", name, statusSkip, reason)
	}

	var contract core.Contract
	run("contracts", func() (string, error) {
		contracts, err := client.GetContracts(ctx)
		if err != nil {
			return "", err
		}
		c, ok := contracts[symbol]
		if !ok {
			return "", fmt.Errorf("symbol %s not in active instruments", symbol)
		}
		contract = c
		return fmt.Sprintf("instruments=%d lotSize=%s tickSize=%s", len(contracts), c.LotSize, c.TickSize), nil
	})

	run("balances", func() (string, error) {
		balances, err := client.GetBalances(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("currencies=%d", len(balances)), nil
	})

	var lastClose decimal.Decimal
	run("candles", func() (string, error) {
		candles, err := client.GetCandles(ctx, core.Contract{Symbol: symbol}, "1h")
		if err != nil {
			return "", err
		}
		if len(candles) == 0 {
			return "", errors.New("no candles returned")
		}
		lastClose = candles[0].Close
		return fmt.Sprintf("bars=%d lastClose=%s", len(candles), lastClose), nil
	})

	streamCtx, streamCancel := context.WithCancel(ctx)
	defer streamCancel()
	if err := client.Start(streamCtx); err != nil {
		fatal(err.Error())
	}
	defer client.Close()

	run("stream", func() (string, error) {
		deadline := time.Now().Add(time.Duration(streamWait) * time.Second)
		for time.Now().Before(deadline) {
			if q, ok := client.Quote(symbol); ok && q.HasBid && q.HasAsk {
				return fmt.Sprintf("bid=%s ask=%s", q.Bid, q.Ask), nil
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
		return "", fmt.Errorf("no two-sided quote for %s within %ds", symbol, streamWait)
	})

	switch {
	case !allowOrders:
		skip("lifecycle", "set -allow-orders=true to place a test order")
	case contract.Symbol == "" || lastClose.IsZero():
		skip("lifecycle", "needs contracts and candles to pass first")
	default:
		run("lifecycle", func() (string, error) {
			// Bid far below the market so the order rests without filling.
			price := core.SnapToStep(lastClose.Div(decimal.NewFromInt(2)), contract.TickSize)
			placed, err := client.PlaceOrder(ctx, core.OrderRequest{
				Contract: contract,
				Side:     core.Buy,
				Type:     core.Limit,
				Quantity: contract.LotSize,
				Price:    &price,
			})
			if err != nil {
				return "", fmt.Errorf("place: %w", err)
			}
			canceled, err := client.CancelOrder(ctx, placed.ID)
			if err != nil {
				return "", fmt.Errorf("cancel %s: %w", placed.ID, err)
			}
			status, err := client.OrderStatus(ctx, contract, placed.ID)
			if err != nil {
				return "", fmt.Errorf("status %s: %w", placed.ID, err)
			}
			return fmt.Sprintf("id=%s placed=%s canceled=%s final=%s", placed.ID, placed.Status, canceled.Status, status.Status), nil
		})
	}

	r.FinishedAt = time.Now().UTC()
	if outJSONPath != "" {
		encoded, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			fatal(err.Error())
		}
		if err := os.WriteFile(outJSONPath, append(encoded, '\n'), 0o644); err != nil {
			fatal(err.Error())
		}
	}
	for _, res := range r.Checks {
		if res.Status == statusFail {
			os.Exit(1)
		}
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
