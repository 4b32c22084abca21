package bitmex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bitmex-trader/internal/config"
	"bitmex-trader/internal/core"
	"bitmex-trader/internal/exchange"
)

// Name tags every record decoded by this connector.
const Name = "bitmex"

var _ exchange.Exchange = (*Client)(nil)

// binSizes are the bucket sizes the exchange serves for trade history.
var binSizes = map[string]struct{}{
	"1m": {},
	"5m": {},
	"1h": {},
	"1d": {},
}

type Client struct {
	apiKey       string
	apiSecret    string
	baseURL      string
	expiryWindow time.Duration
	httpClient   *http.Client
	log          logrus.FieldLogger

	mu        sync.Mutex
	started   bool
	contracts map[string]core.Contract
	balances  map[string]core.Balance

	prices *PriceCache
	stream *marketStream
}

type Options struct {
	APIKey            string
	APISecret         string
	RestBaseURL       string
	WSBaseURL         string
	HTTPTimeoutSec    int64
	ExpiryWindowSec   int64
	Topic             string
	ReconnectDelaySec int64
	KeepaliveSec      int64
	Logger            logrus.FieldLogger
}

// NewClient builds a connector from the loaded configuration. Construction
// performs no I/O; call Start to bootstrap and launch the price feed.
func NewClient(cfg config.Config, log logrus.FieldLogger) (*Client, error) {
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		return nil, errors.New("api_key/api_secret required")
	}
	return NewClientWithOptions(Options{
		APIKey:            cfg.Exchange.APIKey,
		APISecret:         cfg.Exchange.APISecret,
		RestBaseURL:       cfg.Exchange.RestBaseURL,
		WSBaseURL:         cfg.Exchange.WSBaseURL,
		HTTPTimeoutSec:    cfg.Exchange.HTTPTimeoutSec,
		ExpiryWindowSec:   cfg.Exchange.ExpiryWindowSec,
		Topic:             cfg.Feed.Topic,
		ReconnectDelaySec: cfg.Feed.ReconnectDelaySec,
		KeepaliveSec:      cfg.Feed.KeepaliveSec,
		Logger:            log,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	expiryWindow := 5 * time.Second
	if opts.ExpiryWindowSec > 0 {
		expiryWindow = time.Duration(opts.ExpiryWindowSec) * time.Second
	}
	log := opts.Logger
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logger
	}

	prices := NewPriceCache()
	c := &Client{
		apiKey:       opts.APIKey,
		apiSecret:    opts.APISecret,
		baseURL:      strings.TrimRight(opts.RestBaseURL, "/"),
		expiryWindow: expiryWindow,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
		contracts:    make(map[string]core.Contract),
		balances:     make(map[string]core.Balance),
		prices:       prices,
	}
	c.stream = newMarketStream(streamOptions{
		URL:            strings.TrimRight(opts.WSBaseURL, "/"),
		Topic:          opts.Topic,
		ReconnectDelay: time.Duration(opts.ReconnectDelaySec) * time.Second,
		Keepalive:      time.Duration(opts.KeepaliveSec) * time.Second,
		Cache:          prices,
		Logger:         log,
	})
	return c
}

func (c *Client) Name() string { return Name }

// Start fetches contracts and balances once, then launches the price feed in
// the background. The bootstrap is best-effort: a failed fetch is logged and
// does not abort startup, and Start never waits for the feed to connect.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("client already started")
	}
	c.started = true
	c.mu.Unlock()

	if contracts, err := c.GetContracts(ctx); err != nil {
		c.log.WithError(err).Warn("contract bootstrap failed, continuing without instrument metadata")
	} else {
		c.log.WithField("contracts", len(contracts)).Info("contracts loaded")
	}
	if balances, err := c.GetBalances(ctx); err != nil {
		c.log.WithError(err).Warn("balance bootstrap failed, continuing without balances")
	} else {
		c.log.WithField("currencies", len(balances)).Info("balances loaded")
	}

	go c.stream.run(ctx)
	return nil
}

// Close tears down the active stream connection. The feed goroutine itself
// stops when the Start context is canceled.
func (c *Client) Close() error {
	return c.stream.close()
}

// GetContracts fetches the active instruments and replaces the cached
// contract map.
func (c *Client) GetContracts(ctx context.Context) (map[string]core.Contract, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/instrument/active", url.Values{})
	if err != nil {
		return nil, err
	}
	var rows []instrumentResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: instrument list: %v", core.ErrMalformedResponse, err)
	}
	contracts := make(map[string]core.Contract, len(rows))
	for _, row := range rows {
		contract, err := parseContract(row)
		if err != nil {
			return nil, err
		}
		contracts[contract.Symbol] = contract
	}
	c.mu.Lock()
	c.contracts = contracts
	c.mu.Unlock()
	return copyContracts(contracts), nil
}

// GetBalances fetches per-currency margin data and replaces the cached
// balance map wholesale.
func (c *Client) GetBalances(ctx context.Context) (map[string]core.Balance, error) {
	params := url.Values{}
	params.Set("currency", "all")
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/user/margin", params)
	if err != nil {
		return nil, err
	}
	var rows []marginResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: margin list: %v", core.ErrMalformedResponse, err)
	}
	balances := make(map[string]core.Balance, len(rows))
	for _, row := range rows {
		bal, err := parseBalance(row)
		if err != nil {
			return nil, err
		}
		balances[bal.Currency] = bal
	}
	c.mu.Lock()
	c.balances = balances
	c.mu.Unlock()
	return copyBalances(balances), nil
}

// Contracts returns a copy of the bootstrapped contract map.
func (c *Client) Contracts() map[string]core.Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyContracts(c.contracts)
}

// Balances returns a copy of the last fetched balance map.
func (c *Client) Balances() map[string]core.Balance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyBalances(c.balances)
}

// GetCandles fetches up to 500 most-recent bars for the contract at the given
// timeframe, most recent first.
func (c *Client) GetCandles(ctx context.Context, contract core.Contract, timeframe string) ([]core.Candle, error) {
	if _, ok := binSizes[timeframe]; !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedTimeframe, timeframe)
	}
	params := url.Values{}
	params.Set("symbol", contract.Symbol)
	params.Set("binSize", timeframe)
	params.Set("partial", "true")
	params.Set("count", "500")
	params.Set("reverse", "true")
	body, err := c.doRequest(ctx, http.MethodGet, "/api/v1/trade/bucketed", params)
	if err != nil {
		return nil, err
	}
	var rows []tradeBinResponse
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: trade bins: %v", core.ErrMalformedResponse, err)
	}
	candles := make([]core.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseCandle(row)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// Quote returns the feed's last observed top of book for symbol.
func (c *Client) Quote(symbol string) (core.Quote, bool) {
	return c.prices.Quote(symbol)
}

// Quotes returns a snapshot of every symbol the feed has observed.
func (c *Client) Quotes() map[string]core.Quote {
	return c.prices.Snapshot()
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedMethod, method)
	}

	expires := time.Now().Add(c.expiryWindow).Unix()
	signature := Sign(c.apiSecret, method, path, params, expires)

	var (
		req *http.Request
		err error
	)
	urlStr := c.baseURL + path
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, urlStr, strings.NewReader(params.Encode()))
	} else {
		if encoded := params.Encode(); encoded != "" {
			urlStr += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, urlStr, nil)
	}
	if err != nil {
		return nil, err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("api-expires", strconv.FormatInt(expires, 10))
	req.Header.Set("api-signature", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		apiErr := parseAPIError(resp.StatusCode, body)
		c.log.WithField("status", resp.StatusCode).WithField("path", path).Warn(apiErr.Error())
		return nil, apiErr
	}
	return body, nil
}

func copyContracts(src map[string]core.Contract) map[string]core.Contract {
	out := make(map[string]core.Contract, len(src))
	for symbol, contract := range src {
		out[symbol] = contract
	}
	return out
}

func copyBalances(src map[string]core.Balance) map[string]core.Balance {
	out := make(map[string]core.Balance, len(src))
	for currency, bal := range src {
		out[currency] = bal
	}
	return out
}
