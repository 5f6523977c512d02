package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Stockmasterflex/legendwatch/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamReconnectMin = time.Second
	streamReconnectMax = time.Minute
)

type StreamCache struct {
	url         string
	dialer      *websocket.Dialer
	readTimeout time.Duration
	maxAge      time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu      sync.Mutex
	quotes  map[string]domain.Quote
	symbols map[string]struct{}
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewStreamCache(url string, readTimeout, maxAge time.Duration, logger *zap.Logger) *StreamCache {
	return &StreamCache{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		readTimeout: readTimeout,
		maxAge:      maxAge,
		now:         time.Now,
		logger:      logger,
		quotes:      make(map[string]domain.Quote),
		symbols:     make(map[string]struct{}),
	}
}

func (s *StreamCache) Latest(symbol string) (domain.Quote, bool) {
	s.mu.Lock()
	quote, ok := s.quotes[symbol]
	_, known := s.symbols[symbol]
	if !known {
		s.symbols[symbol] = struct{}{}
	}
	conn := s.conn
	s.mu.Unlock()

	if !known && conn != nil {
		if err := s.subscribe(conn, []string{symbol}); err != nil {
			s.logger.Warn("stream subscribe failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	if !ok {
		return domain.Quote{}, false
	}
	if s.maxAge > 0 && s.now().Sub(quote.Timestamp) > s.maxAge {
		return domain.Quote{}, false
	}
	return quote, true
}

func (s *StreamCache) Run(ctx context.Context) {
	delay := streamReconnectMin
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("quote stream disconnected", zap.Duration("retry_in", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > streamReconnectMax {
			delay = streamReconnectMax
		}
	}
}

func (s *StreamCache) session(ctx context.Context) error {
	s.logger.Info("quote stream connect start", zap.String("url", s.url))
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.logger.Info("quote stream connected", zap.String("url", s.url))

	s.mu.Lock()
	s.conn = conn
	symbols := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		symbols = append(symbols, symbol)
	}
	s.mu.Unlock()
	sort.Strings(symbols)

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = conn.Close()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if len(symbols) > 0 {
		if err := s.subscribe(conn, symbols); err != nil {
			return err
		}
	}

	for {
		if s.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		quotes, err := decodeStreamMessage(data, s.now())
		if err != nil {
			s.logger.Debug("stream message ignored", zap.Error(err))
			continue
		}
		s.store(quotes)
	}
}

func (s *StreamCache) subscribe(conn *websocket.Conn, symbols []string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.logger.Info("stream subscribe", zap.Strings("symbols", symbols))
	return conn.WriteJSON(subscribeRequest{Type: "subscribe", Symbols: symbols})
}

func (s *StreamCache) store(quotes []domain.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, quote := range quotes {
		if quote.Symbol == "" {
			continue
		}
		if existing, ok := s.quotes[quote.Symbol]; ok && existing.Timestamp.After(quote.Timestamp) {
			continue
		}
		s.quotes[quote.Symbol] = quote
	}
}

func decodeStreamMessage(data []byte, now time.Time) ([]domain.Quote, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var messages []streamMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, fmt.Errorf("decode stream message array: %w", err)
		}
	} else {
		var message streamMessage
		if err := json.Unmarshal(trimmed, &message); err != nil {
			return nil, fmt.Errorf("decode stream message: %w", err)
		}
		messages = append(messages, message)
	}

	var quotes []domain.Quote
	for _, message := range messages {
		switch strings.ToLower(message.Type) {
		case "quote", "":
			if message.Symbol != "" {
				quotes = append(quotes, message.quotePayload.toDomain("", now))
			}
		case "quotes":
			for _, payload := range message.Quotes {
				if payload.Symbol != "" {
					quotes = append(quotes, payload.toDomain("", now))
				}
			}
		}
	}
	return quotes, nil
}
