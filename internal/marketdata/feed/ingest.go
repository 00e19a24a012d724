// Package feed provides the WebSocket ingest client for the two live
// price channels: the flat futures/options feed (subscribed by token
// list) and the FX order-book feed (unfiltered; matching happens against
// the displayed category downstream).
//
// Messages are decoded at the channel boundary into typed events;
// anything that fails to decode is logged and dropped, never fatal.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"marketwatchv1/internal/model"

	"github.com/gorilla/websocket"
)

// Event is one decoded feed message. Exactly one field is non-nil.
type Event struct {
	Flat *model.FlatTick
	Book *model.BookTick
}

// Config holds configuration for a feed ingest.
type Config struct {
	// URL of the feed WebSocket, e.g. "ws://localhost:9001/ws".
	URL string

	// Book selects order-book decoding; otherwise flat-tick decoding.
	Book bool

	// Tokens to subscribe on connect (flat feed only).
	Tokens []string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

type subscribeFrame struct {
	Action string   `json:"action"`
	Tokens []string `json:"tokens"`
}

// Ingest connects to a feed WebSocket and pushes decoded events into a
// channel. Reconnects automatically with exponential backoff.
type Ingest struct {
	cfg Config

	mu     sync.Mutex
	conn   *websocket.Conn
	tokens []string

	// Optional hooks.
	OnReconnect   func()
	OnDecodeError func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg, tokens: cfg.Tokens}, nil
}

// Subscribe replaces the token filter and, when connected, sends a fresh
// subscribe frame. No-op for the order-book feed.
func (ing *Ingest) Subscribe(tokens []string) {
	if ing.cfg.Book {
		return
	}
	ing.mu.Lock()
	ing.tokens = tokens
	conn := ing.conn
	ing.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.WriteJSON(subscribeFrame{Action: "subscribe", Tokens: tokens}); err != nil {
		log.Printf("[feed] subscribe write error: %v", err)
	}
}

// Start connects and streams decoded events into eventCh. Blocks until
// ctx is cancelled.
func (ing *Ingest) Start(ctx context.Context, eventCh chan<- Event) error {
	delay := ing.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, eventCh)
		if err == nil {
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or
// ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, eventCh chan<- Event) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ing.mu.Lock()
	ing.conn = conn
	tokens := ing.tokens
	ing.mu.Unlock()
	defer func() {
		ing.mu.Lock()
		ing.conn = nil
		ing.mu.Unlock()
	}()

	log.Printf("[feed] connected to %s", ing.cfg.URL)

	if !ing.cfg.Book && len(tokens) > 0 {
		if err := conn.WriteJSON(subscribeFrame{Action: "subscribe", Tokens: tokens}); err != nil {
			return err
		}
		log.Printf("[feed] subscribed %d tokens", len(tokens))
	}

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		ev, ok := ing.decode(raw)
		if !ok {
			continue
		}

		select {
		case eventCh <- ev:
		default:
			log.Println("[feed] eventCh full, dropping tick")
		}
	}
}

func (ing *Ingest) decode(raw []byte) (Event, bool) {
	if ing.cfg.Book {
		tick, ok, err := model.DecodeBookTick(raw)
		if err != nil {
			log.Printf("[feed] decode error: %v", err)
			if ing.OnDecodeError != nil {
				ing.OnDecodeError()
			}
			return Event{}, false
		}
		if !ok {
			return Event{}, false
		}
		return Event{Book: &tick}, true
	}

	// Ignore control frames the flat feed occasionally echoes back.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err == nil {
		if _, isCtrl := probe["action"]; isCtrl {
			return Event{}, false
		}
	}

	tick, err := model.DecodeFlatTick(raw)
	if err != nil {
		log.Printf("[feed] decode error: %v", err)
		if ing.OnDecodeError != nil {
			ing.OnDecodeError()
		}
		return Event{}, false
	}
	return Event{Flat: &tick}, true
}
