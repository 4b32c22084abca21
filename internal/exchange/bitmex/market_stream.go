package bitmex

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultReconnectDelay = 2 * time.Second
	defaultKeepalive      = 30 * time.Second
	defaultTopic          = "instrument"
	writeWait             = 5 * time.Second
)

type subscribeRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type streamMessage struct {
	Table string             `json:"table"`
	Data  []instrumentUpdate `json:"data"`
}

type streamOptions struct {
	URL            string
	Topic          string
	ReconnectDelay time.Duration
	Keepalive      time.Duration
	Cache          *PriceCache
	Logger         logrus.FieldLogger
}

// marketStream maintains one logical connection to the realtime endpoint for
// the life of the context: dial, subscribe, read until failure, wait a fixed
// delay, repeat. Errors never escalate past this loop.
type marketStream struct {
	url            string
	topic          string
	reconnectDelay time.Duration
	keepalive      time.Duration
	cache          *PriceCache
	log            logrus.FieldLogger

	mu   sync.Mutex
	conn *websocket.Conn
}

func newMarketStream(opts streamOptions) *marketStream {
	if opts.Topic == "" {
		opts.Topic = defaultTopic
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.Keepalive <= 0 {
		opts.Keepalive = defaultKeepalive
	}
	return &marketStream{
		url:            opts.URL,
		topic:          opts.Topic,
		reconnectDelay: opts.ReconnectDelay,
		keepalive:      opts.Keepalive,
		cache:          opts.Cache,
		log:            opts.Logger,
	}
}

func (s *marketStream) run(ctx context.Context) {
	for {
		if err := s.connectAndServe(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("market stream disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *marketStream) connectAndServe(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.setConn(conn)
	defer s.setConn(nil)
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	readTimeout := 3 * s.keepalive
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go s.sendPings(conn, done)

	s.subscribe(s.topic)
	s.log.WithField("topic", s.topic).Info("market stream connected")

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(data)
	}
}

// subscribe sends the subscribe control frame on the active connection. When
// the connection is not sendable the failure is logged and swallowed; the
// subscription is re-issued on the next on-open anyway.
func (s *marketStream) subscribe(topic string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		s.log.WithField("topic", topic).Warn("subscribe skipped, no active connection")
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeRequest{Op: "subscribe", Args: []string{topic}}); err != nil {
		s.log.WithError(err).WithField("topic", topic).Warn("subscribe failed")
	}
}

func (s *marketStream) handleMessage(data []byte) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.WithError(err).Debug("dropping unparseable stream frame")
		return
	}
	// Welcome frames, subscribe acks, and other tables carry no price data.
	if msg.Table != s.topic {
		return
	}
	for _, update := range msg.Data {
		s.cache.apply(update.Symbol, update.BidPrice, update.AskPrice)
	}
}

func (s *marketStream) sendPings(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func (s *marketStream) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

// close tears down the active connection, if any. The run loop observes the
// resulting read error and exits once its context is canceled.
func (s *marketStream) close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
