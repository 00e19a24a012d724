// cmd/feedsim - Demo WebSocket feed server.
// Broadcasts simulated prices in both live message shapes so watchd can
// run without real feed credentials:
//
//	/ws - flat futures/options ticks, filtered per client by subscribe
//	      frames {"action":"subscribe","tokens":["53001",...]}
//	/fx - order-book snapshots wrapped in {"type":"tick","data":{...}},
//	      unfiltered, interleaved with heartbeat envelopes
//
// Config (env vars):
//
//	FEEDSIM_ADDR         - listen address (default: ":9001")
//	FEEDSIM_TOKENS       - comma-separated flat-feed tokens (default: "53001,53002,26000")
//	FEEDSIM_SYMBOLS      - comma-separated FX symbols (default: "BTCUSDT,EURUSD,XAUUSD")
//	FEEDSIM_INTERVAL_MS  - broadcast interval milliseconds (default: "250")
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type flatMsg struct {
	Token     string  `json:"instrument_token"`
	LastPrice float64 `json:"last_price"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Change    float64 `json:"change"`
	High      float64 `json:"high_"`
	Low       float64 `json:"low_"`
	Open      float64 `json:"open_"`
	Close     float64 `json:"close_"`
	OI        float64 `json:"oi"`
	Volume    float64 `json:"volume"`
}

type bookLevel struct {
	Price  float64 `json:"Price"`
	Volume float64 `json:"Volume"`
}

type bookData struct {
	Symbol  string      `json:"Symbol"`
	BestBid *bookLevel  `json:"BestBid"`
	BestAsk *bookLevel  `json:"BestAsk"`
	Bids    []bookLevel `json:"Bids"`
	Asks    []bookLevel `json:"Asks"`
}

type bookEnvelope struct {
	Type string   `json:"type"`
	Data bookData `json:"data"`
}

// flatInstrument holds per-token simulation state.
type flatInstrument struct {
	Token string
	Price float64
	Open  float64
	Close float64
	High  float64
	Low   float64
}

// fxInstrument holds per-symbol simulation state.
type fxInstrument struct {
	Symbol string
	Price  float64
}

type subscribeFrame struct {
	Action string   `json:"action"`
	Tokens []string `json:"tokens"`
}

// client is one connected consumer. A nil token set means "everything".
type client struct {
	ch     chan []byte
	mu     sync.RWMutex
	tokens map[string]bool
}

func (c *client) setTokens(tokens []string) {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	c.mu.Lock()
	c.tokens = set
	c.mu.Unlock()
}

func (c *client) wants(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens == nil || len(c.tokens) == 0 || c.tokens[token]
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *hub) register(conn *websocket.Conn) *client {
	c := &client{ch: make(chan []byte, 256)}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	return c
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if c, ok := h.clients[conn]; ok {
		close(c.ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

// broadcast sends to every client interested in token. An empty token
// bypasses filtering.
func (h *hub) broadcast(token string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if token != "" && !c.wants(token) {
			continue
		}
		select {
		case c.ch <- msg:
		default: // slow client, drop
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsHandler serves one feed endpoint. When readSubs is set, incoming
// subscribe frames narrow what the client receives.
func wsHandler(h *hub, name string, readSubs bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[feedsim] %s upgrade error: %v", name, err)
			return
		}
		log.Printf("[feedsim] %s client connected: %s", name, r.RemoteAddr)

		c := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[feedsim] %s client disconnected: %s", name, r.RemoteAddr)
		}()

		// Read pump: consume subscribe frames (or just drain controls).
		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if !readSubs {
					continue
				}
				var sub subscribeFrame
				if json.Unmarshal(raw, &sub) == nil && sub.Action == "subscribe" {
					c.setTokens(sub.Tokens)
					log.Printf("[feedsim] %s client %s subscribed %d tokens", name, r.RemoteAddr, len(sub.Tokens))
				}
			}
		}()

		// Write pump.
		for msg := range c.ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walk applies a small random walk, ±0.1% per tick.
func walk(price float64) float64 {
	pct := (rand.Float64()*0.2 - 0.1) / 100.0
	next := price * (1 + pct)
	if next <= 0 {
		next = price
	}
	return next
}

func runFlatGenerator(h *hub, instruments []*flatInstrument, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		for _, ins := range instruments {
			ins.Price = walk(ins.Price)
			if ins.Price > ins.High {
				ins.High = ins.Price
			}
			if ins.Price < ins.Low {
				ins.Low = ins.Price
			}

			spread := ins.Price * 0.0005
			msg := flatMsg{
				Token:     ins.Token,
				LastPrice: ins.Price,
				Bid:       ins.Price - spread,
				Ask:       ins.Price + spread,
				Change:    ins.Price - ins.Close,
				High:      ins.High,
				Low:       ins.Low,
				Open:      ins.Open,
				Close:     ins.Close,
				OI:        float64(rand.Intn(100000)),
				Volume:    float64(rand.Intn(1000000)),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(ins.Token, b)
		}
	}
}

func runFXGenerator(h *hub, instruments []*fxInstrument, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n := 0
	for range ticker.C {
		n++
		// Heartbeat every 20th cycle; consumers must skip it.
		if n%20 == 0 {
			h.broadcast("", []byte(`{"type":"heartbeat"}`))
		}

		for _, ins := range instruments {
			ins.Price = walk(ins.Price)

			spread := ins.Price * 0.0002
			bid := ins.Price - spread
			ask := ins.Price + spread

			depth := func(base float64, dir float64) []bookLevel {
				levels := make([]bookLevel, 5)
				for i := range levels {
					levels[i] = bookLevel{
						Price:  base + dir*base*0.0001*float64(i),
						Volume: float64(rand.Intn(50) + 1),
					}
				}
				return levels
			}

			env := bookEnvelope{
				Type: "tick",
				Data: bookData{
					Symbol:  ins.Symbol,
					BestBid: &bookLevel{Price: bid, Volume: float64(rand.Intn(50) + 1)},
					BestAsk: &bookLevel{Price: ask, Volume: float64(rand.Intn(50) + 1)},
					Bids:    depth(bid, -1),
					Asks:    depth(ask, +1),
				},
			}
			b, err := json.Marshal(env)
			if err != nil {
				continue
			}
			h.broadcast("", b)
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[feedsim] starting demo feed server...")

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	tokensEnv := envOrDefault("FEEDSIM_TOKENS", "53001,53002,26000")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "BTCUSDT,EURUSD,XAUUSD")
	intervalMs := envIntOrDefault("FEEDSIM_INTERVAL_MS", 250)
	interval := time.Duration(intervalMs) * time.Millisecond

	flats := parseFlatInstruments(tokensEnv)
	fxs := parseFXInstruments(symbolsEnv)
	if len(flats) == 0 && len(fxs) == 0 {
		log.Fatal("[feedsim] nothing to simulate")
	}
	log.Printf("[feedsim] flat tokens: %s, fx symbols: %s, interval: %dms", tokensEnv, symbolsEnv, intervalMs)

	flatHub := newHub()
	fxHub := newHub()

	go runFlatGenerator(flatHub, flats, interval)
	go runFXGenerator(fxHub, fxs, interval)

	http.HandleFunc("/ws", wsHandler(flatHub, "flat", true))
	http.HandleFunc("/fx", wsHandler(fxHub, "fx", false))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	log.Printf("[feedsim] listening on %s (flat: ws://localhost%s/ws, fx: ws://localhost%s/fx)", addr, addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[feedsim] server error: %v", err)
	}
}

func parseFlatInstruments(s string) []*flatInstrument {
	// Reference starting prices in rupees per token family.
	defaultPrices := map[string]float64{
		"53001": 71500, // GOLD futures
		"53002": 91200, // SILVER futures
		"26000": 25660, // NIFTY 50
	}

	var result []*flatInstrument
	for _, part := range strings.Split(s, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		price := defaultPrices[token]
		if price == 0 {
			price = 1000
		}
		result = append(result, &flatInstrument{
			Token: token,
			Price: price,
			Open:  price * 0.999,
			Close: price * 0.998,
			High:  price,
			Low:   price,
		})
	}
	return result
}

func parseFXInstruments(s string) []*fxInstrument {
	defaultPrices := map[string]float64{
		"BTCUSDT": 65000,
		"ETHUSDT": 3400,
		"EURUSD":  1.1000,
		"USDJPY":  148.500,
		"XAUUSD":  2400,
	}

	var result []*fxInstrument
	for _, part := range strings.Split(s, ",") {
		sym := strings.TrimSpace(strings.ToUpper(part))
		if sym == "" {
			continue
		}
		price := defaultPrices[sym]
		if price == 0 {
			price = 100
		}
		result = append(result, &fxInstrument{Symbol: sym, Price: price})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
