package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bitmex-trader/internal/config"
	"bitmex-trader/internal/core"
	"bitmex-trader/internal/exchange/bitmex"
	"bitmex-trader/internal/logging"
)

const defaultOutDir = "data/bitmex"

type candleLine struct {
	Time      string `json:"time"`
	Timestamp int64  `json:"timestamp"`
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

// dateWriter appends JSONL records into one file per UTC date under root.
type dateWriter struct {
	root        string
	currentDate string
	currentFile *os.File
}

func newDateWriter(root string) (*dateWriter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &dateWriter{root: root}, nil
}

func (w *dateWriter) write(date string, line []byte) error {
	if err := w.rotate(date); err != nil {
		return err
	}
	if _, err := w.currentFile.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

func (w *dateWriter) rotate(date string) error {
	if date == w.currentDate && w.currentFile != nil {
		return nil
	}
	if w.currentFile != nil {
		if err := w.currentFile.Sync(); err != nil {
			_ = w.currentFile.Close()
			w.currentFile = nil
			return err
		}
		if err := w.currentFile.Close(); err != nil {
			w.currentFile = nil
			return err
		}
		w.currentFile = nil
	}
	path := filepath.Join(w.root, date+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	w.currentFile = f
	w.currentDate = date
	return nil
}

func (w *dateWriter) close() error {
	if w == nil || w.currentFile == nil {
		return nil
	}
	if err := w.currentFile.Sync(); err != nil {
		_ = w.currentFile.Close()
		w.currentFile = nil
		return err
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	return err
}

func main() {
	var (
		configPath string
		symbol     string
		timeframe  string
		outDir     string
		timeout    int
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.StringVar(&symbol, "symbol", "XBTUSD", "symbol, e.g. XBTUSD")
	flag.StringVar(&timeframe, "timeframe", "1h", "candle timeframe: 1m/5m/1h/1d")
	flag.StringVar(&outDir, "out-dir", defaultOutDir, "output root dir")
	flag.IntVar(&timeout, "timeout-sec", 60, "total timeout seconds")
	flag.Parse()

	_ = godotenv.Load()

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	timeframe = strings.TrimSpace(timeframe)
	if symbol == "" || timeframe == "" {
		fatal("symbol and timeframe are required")
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	candles, err := client.GetCandles(ctx, core.Contract{Symbol: symbol}, timeframe)
	if err != nil {
		fatal(err.Error())
	}
	// The exchange serves most recent first; write oldest first so files
	// read chronologically.
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})

	targetDir := filepath.Join(outDir, symbol, timeframe)
	writer, err := newDateWriter(targetDir)
	if err != nil {
		fatal(err.Error())
	}
	defer func() {
		if closeErr := writer.close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "close writer failed: %v\n", closeErr)
		}
	}()

	total := 0
	for _, candle := range candles {
		ts := candle.OpenTime.UTC()
		line := candleLine{
			Time:      ts.Format(time.RFC3339),
			Timestamp: ts.UnixMilli(),
			Symbol:    symbol,
			Timeframe: timeframe,
			Open:      candle.Open.String(),
			High:      candle.High.String(),
			Low:       candle.Low.String(),
			Close:     candle.Close.String(),
			Volume:    candle.Volume.String(),
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			fatal(err.Error())
		}
		if err := writer.write(ts.Format("2006-01-02"), encoded); err != nil {
			fatal(err.Error())
		}
		total++
	}

	fmt.Printf("done: records=%d output=%s\n", total, targetDir)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
