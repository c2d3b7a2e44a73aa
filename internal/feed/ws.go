// Package feed delivers candles to the robot driver: a websocket client for
// live runs and a CSV reader for backtests.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradeforge/robotengine/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// WSFeed streams candles from a websocket endpoint that emits one JSON
// candle per message. It reconnects with exponential backoff and keeps the
// connection alive with pings.
type WSFeed struct {
	url    string
	logger *slog.Logger
}

// NewWSFeed creates a feed for the given websocket URL.
func NewWSFeed(url string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:    url,
		logger: logger.With(slog.String("component", "ws_feed")),
	}
}

// Run connects and delivers candles to out until the context is cancelled.
// The out channel is closed on return.
func (f *WSFeed) Run(ctx context.Context, out chan<- domain.Candle) error {
	defer close(out)

	delay := reconnectDelay
	for {
		err := f.stream(ctx, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// stream runs one connection until it fails or the context is cancelled.
func (f *WSFeed) stream(ctx context.Context, out chan<- domain.Candle) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.url, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	f.logger.Info("feed connected", slog.String("url", f.url))
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		var candle domain.Candle
		if err := json.Unmarshal(payload, &candle); err != nil {
			f.logger.Warn("feed: skipping malformed candle", slog.String("error", err.Error()))
			continue
		}
		select {
		case out <- candle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
