package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the market-watch engine.
type Metrics struct {
	// One increment per instrument whose observable state actually
	// changed, regardless of path.
	UpdatesTotal prometheus.Counter

	FlatTicksTotal  prometheus.Counter
	BookTicksTotal  prometheus.Counter
	TicksIgnored    prometheus.Counter
	DecodeErrors    prometheus.Counter
	FeedReconnects  prometheus.Counter
	RateRefreshOK   prometheus.Counter
	RateRefreshFail prometheus.Counter

	WatchlistOps  *prometheus.CounterVec // labels: op=load|add|remove|search
	SnapshotsSent prometheus.Counter
	ActiveSymbols *prometheus.GaugeVec // labels: category
	SnapshotDur   prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		UpdatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_updates_total",
			Help: "Instrument updates that changed observable state",
		}),
		FlatTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_flat_ticks_total",
			Help: "Flat-feed ticks received",
		}),
		BookTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_book_ticks_total",
			Help: "Order-book snapshots received",
		}),
		TicksIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_ticks_ignored_total",
			Help: "Ticks that matched no instrument or changed nothing",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_decode_errors_total",
			Help: "Feed messages that failed to decode",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_feed_reconnects_total",
			Help: "Feed WebSocket reconnection attempts",
		}),
		RateRefreshOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_rate_refresh_total",
			Help: "Successful USD/INR rate refreshes",
		}),
		RateRefreshFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_rate_refresh_failures_total",
			Help: "Failed USD/INR rate refreshes (previous rate retained)",
		}),
		WatchlistOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketwatch_watchlist_ops_total",
			Help: "Watchlist operations attempted (by op)",
		}, []string{"op"}),
		SnapshotsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketwatch_snapshots_published_total",
			Help: "Category snapshots published downstream",
		}),
		ActiveSymbols: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketwatch_active_symbols",
			Help: "Symbols currently held per category",
		}, []string{"category"}),
		SnapshotDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketwatch_snapshot_publish_duration_seconds",
			Help:    "Snapshot publish latency",
			Buckets: prometheus.DefBuckets,
		}),
	}

	prometheus.MustRegister(
		m.UpdatesTotal,
		m.FlatTicksTotal,
		m.BookTicksTotal,
		m.TicksIgnored,
		m.DecodeErrors,
		m.FeedReconnects,
		m.RateRefreshOK,
		m.RateRefreshFail,
		m.WatchlistOps,
		m.SnapshotsSent,
		m.ActiveSymbols,
		m.SnapshotDur,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTickTime   time.Time `json:"last_tick_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	Rate           float64   `json:"usd_inr_rate"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRate(r float64) {
	h.mu.Lock()
	h.Rate = r
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		Rate            float64 `json:"usd_inr_rate"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		Rate:            h.Rate,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
