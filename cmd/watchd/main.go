// cmd/watchd - Market-watch daemon.
// Connects the two price feeds, reconciles ticks against the per-category
// watchlist, and publishes changed snapshots to Redis for renderers.
//
// Config (env vars, see config.Load): WATCH_REF_ID is required;
// WATCH_BACKEND selects "sqlite" (default) or "remote" persistence.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketwatchv1/config"
	"marketwatchv1/internal/fxrate"
	"marketwatchv1/internal/logger"
	"marketwatchv1/internal/marketdata"
	"marketwatchv1/internal/marketdata/feed"
	"marketwatchv1/internal/metrics"
	"marketwatchv1/internal/model"
	"marketwatchv1/internal/registry"
	redisstore "marketwatchv1/internal/store/redis"
	sqlitestore "marketwatchv1/internal/store/sqlite"
	"marketwatchv1/internal/watch"
	"marketwatchv1/internal/watchlist"
	"marketwatchv1/pkg/tradeapi"
)

const quoteFlushInterval = 5 * time.Second

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[watchd] starting...")

	if err := godotenv.Load(); err == nil {
		log.Println("[watchd] loaded .env")
	}

	logger.Init("watchd", slog.LevelInfo)
	cfg := config.Load()

	cats := cfg.ParseCategories()
	if len(cats) == 0 {
		log.Fatal("[watchd] no valid categories enabled")
	}
	log.Printf("[watchd] categories: %v", cats)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Exchange rate ----
	rates := fxrate.NewWithConfig(cfg.RateURL, cfg.RateRefresh)
	health.SetRate(rates.Rate())

	// ---- Local store (always open: quote persistence + offline backend) ----
	os.MkdirAll("data", 0o755)
	local, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[watchd] sqlite init failed: %v", err)
	}
	defer local.Close()
	log.Println("[watchd] sqlite store ready")

	// ---- Watchlist backend ----
	var store watchlist.Store = local
	if cfg.Backend == "remote" {
		api := tradeapi.New(tradeapi.Config{
			APIKey:  cfg.APIKey,
			RootURL: cfg.APIRootURL,
		})
		if err := api.GenerateSession(ctx, cfg.ClientCode, cfg.Password, cfg.TOTPSecret); err != nil {
			log.Fatalf("[watchd] login failed: %v", err)
		}
		store = api
		log.Println("[watchd] remote persistence backend ready")
	}

	// ---- Registry, normalizer, gateway ----
	reg := registry.New()
	norm := marketdata.New(reg, rates.Rate)
	norm.OnUpdate = prom.UpdatesTotal.Inc

	gw := watchlist.New(store, reg, watchlist.Config{RefID: cfg.RefID}, rates.Rate)
	gw.OnMutation = func(op string) { prom.WatchlistOps.WithLabelValues(op).Inc() }

	// ---- Feed ingests ----
	flatIng, err := feed.New(feed.Config{URL: cfg.FlatFeedURL})
	if err != nil {
		log.Fatalf("[watchd] flat feed url: %v", err)
	}
	bookIng, err := feed.New(feed.Config{URL: cfg.BookFeedURL, Book: true})
	if err != nil {
		log.Fatalf("[watchd] book feed url: %v", err)
	}
	for _, ing := range []*feed.Ingest{flatIng, bookIng} {
		ing.OnReconnect = func() {
			prom.FeedReconnects.Inc()
			health.SetFeedConnected(false)
		}
		ing.OnDecodeError = prom.DecodeErrors.Inc
	}

	// ---- Watch service ----
	initial, ok := model.ParseCategory(cfg.InitialCategory)
	if !ok {
		initial = cats[0]
	}
	svc := watch.New(reg, norm, gw, watch.Config{
		Initial: initial,
		Enabled: cats,
	}, flatIng.Subscribe)

	// ---- Redis publisher ----
	redisCh := make(chan watch.Snapshot, 64)
	pub, err := redisstore.New(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[watchd] WARNING: redis init failed: %v (continuing without redis)", err)
	} else {
		pub.OnPublish = prom.SnapshotsSent.Inc
		defer pub.Close()
		go pub.Run(ctx, redisCh)
	}

	// ---- Liveness checks ----
	if pub != nil {
		health.StartLivenessChecker(ctx, pub.Client(), local.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, local.DB(), 10*time.Second)
	}

	// ---- Rate refresh loop ----
	rates.OnRefresh = func(rate float64) {
		prom.RateRefreshOK.Inc()
		health.SetRate(rate)
		svc.RateUpdated()
	}
	rates.OnError = prom.RateRefreshFail.Inc
	go rates.Start(ctx)

	// ---- Feed pipelines: raw events → counters → service ----
	feedCh := make(chan feed.Event, 4096)
	flatCh := make(chan feed.Event, 2048)
	bookCh := make(chan feed.Event, 2048)
	go flatIng.Start(ctx, flatCh)
	go bookIng.Start(ctx, bookCh)
	go func() {
		for {
			var ev feed.Event
			select {
			case <-ctx.Done():
				return
			case ev = <-flatCh:
				prom.FlatTicksTotal.Inc()
			case ev = <-bookCh:
				prom.BookTicksTotal.Inc()
			}
			health.SetFeedConnected(true)
			health.SetLastTickTime(time.Now())
			select {
			case feedCh <- ev:
			default:
				prom.TicksIgnored.Inc()
			}
		}
	}()

	// ---- Category reload on SIGHUP ----
	cfgCh := make(chan []model.Category, 1)
	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupCh:
				next := cfg.ReloadCategories()
				if len(next) == 0 {
					log.Println("[watchd] SIGHUP: no valid categories, keeping current set")
					continue
				}
				log.Printf("[watchd] SIGHUP: categories now %v", next)
				select {
				case cfgCh <- next:
				default:
				}
			}
		}
	}()

	// ---- Event loop ----
	go svc.Run(ctx, feedCh, cfgCh)

	// ---- Snapshot fan-out: redis + periodic quote persistence ----
	go func() {
		lastFlush := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-svc.Snapshots():
				prom.ActiveSymbols.WithLabelValues(string(snap.Category)).Set(float64(len(snap.Instruments)))
				select {
				case redisCh <- snap:
				default:
				}
				if time.Since(lastFlush) >= quoteFlushInterval {
					start := time.Now()
					if err := local.SaveQuotes(ctx, snap.Instruments); err != nil {
						log.Printf("[watchd] quote flush failed: %v", err)
					}
					prom.SnapshotDur.Observe(time.Since(start).Seconds())
					lastFlush = time.Now()
				}
			case ev := <-svc.Activated():
				log.Printf("[watchd] symbol activated: %s (%s, lot %.0f)", ev.Name, ev.Category, ev.LotSize)
			case res := <-svc.SearchOut():
				log.Printf("[watchd] search %q: %d results", res.Query, len(res.Results))
			}
		}
	}()

	log.Println("[watchd] running")
	<-sigCh
	log.Println("[watchd] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Println("[watchd] bye")
}
