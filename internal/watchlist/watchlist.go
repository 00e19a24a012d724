// Package watchlist mediates between the instrument registry and the
// persistence backend: loading per-category watchlists, adding symbols
// (reload-after-write), removing them (optimistic local update), and
// debounced symbol search.
package watchlist

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"marketwatchv1/internal/logger"
	"marketwatchv1/internal/model"
	"marketwatchv1/internal/registry"
)

// InitialQuery is the sentinel the search backend treats as "list
// everything", used to populate the picker before the user types.
const InitialQuery = "null"

const defaultDebounce = 300 * time.Millisecond

// Item is the payload persisted when a symbol is added to a watchlist.
type Item struct {
	Token    string
	Symbol   string
	Exchange string // lowercase exchange key, e.g. "mcx"
	LotSize  float64
}

// Store is the persistence and search backend. Implemented remotely by
// pkg/tradeapi and locally by store/sqlite.
type Store interface {
	// List returns the raw watchlist rows for one exchange segment.
	List(ctx context.Context, refID, exchange string) ([]model.WatchlistRecord, error)

	// Search returns candidate symbols for a query within a segment, on
	// behalf of the identified user.
	Search(ctx context.Context, refID, exchange, query string) ([]model.SearchResult, error)

	// Save appends one item to the user's watchlist.
	Save(ctx context.Context, refID string, item Item) error

	// Delete removes one token from the user's watchlist.
	Delete(ctx context.Context, refID, exchange, token string) error
}

// Config holds Gateway configuration.
type Config struct {
	// RefID identifies the user's watchlist upstream. Mutations without
	// one are aborted.
	RefID string

	// Debounce delays search execution after the last keystroke.
	// Defaults to 300ms if zero.
	Debounce time.Duration
}

// Gateway owns watchlist mutations against one Store and one Registry.
// Safe for use from a single goroutine (the watch service loop); search
// delivery happens on timer goroutines and must be re-serialised by the
// caller's deliver func.
type Gateway struct {
	store Store
	reg   *registry.Registry
	refID string
	rate  func() float64
	now   func() time.Time

	debounce time.Duration

	searchMu    sync.Mutex
	searchTimer *time.Timer
	searchSeq   uint64

	// Optional hook, fired once per attempted mutation with "add",
	// "remove", "load" or "search".
	OnMutation func(op string)
}

// New creates a Gateway. rate supplies the current USD→INR rate for
// record conversion at load time.
func New(store Store, reg *registry.Registry, cfg Config, rate func() float64) *Gateway {
	d := cfg.Debounce
	if d == 0 {
		d = defaultDebounce
	}
	return &Gateway{
		store:    store,
		reg:      reg,
		refID:    cfg.RefID,
		rate:     rate,
		now:      time.Now,
		debounce: d,
	}
}

func (g *Gateway) mutated(op string) {
	if g.OnMutation != nil {
		g.OnMutation(op)
	}
}

// Load fetches the category's watchlist and replaces the registry slice.
// A fetch or decode failure degrades to an empty slice; the error is
// returned for observability but the registry is always left consistent.
func (g *Gateway) Load(ctx context.Context, cat model.Category) error {
	g.mutated("load")
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(cat.ExchangeKey(), g.now()))

	recs, err := g.store.List(ctx, g.refID, cat.ExchangeKey())
	if err != nil {
		log.Printf("[watchlist] load %s failed: %v", cat, err)
		g.reg.Replace(cat, nil)
		return fmt.Errorf("watchlist load %s: %w", cat, err)
	}

	rate := g.rate()
	now := g.now()
	ins := make([]model.Instrument, 0, len(recs))
	for _, r := range recs {
		ins = append(ins, r.Instrument(cat, rate, now))
	}
	g.reg.Replace(cat, ins)
	log.Printf("[watchlist] loaded %d symbols for %s", len(ins), cat)
	return nil
}

// Add persists a searched symbol and reloads the category from the
// backend, so the slice reflects whatever the write actually produced.
// Already-selected tokens are a no-op.
func (g *Gateway) Add(ctx context.Context, cat model.Category, res model.SearchResult) error {
	if g.refID == "" {
		log.Println("[watchlist] add aborted: no ref id")
		return fmt.Errorf("watchlist add: missing ref id")
	}

	token := res.Token.String()
	if g.reg.SelectedTokens(cat)[token] {
		return nil
	}
	g.mutated("add")
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(token, g.now()))

	item := Item{
		Token:    token,
		Symbol:   res.Symbol,
		Exchange: cat.ExchangeKey(),
		LotSize:  float64(res.LotSize),
	}
	if err := g.store.Save(ctx, g.refID, item); err != nil {
		log.Printf("[watchlist] add %s/%s failed: %v", cat, res.Symbol, err)
		return fmt.Errorf("watchlist add %s: %w", res.Symbol, err)
	}

	return g.Load(ctx, cat)
}

// Remove drops the token locally first, then tells the backend. The
// backend call goes out even when the token is not held locally, so a
// server-side row that survived a racing reload still gets cleaned up.
// A backend failure is logged but the local removal stands; the next
// full load reconciles.
func (g *Gateway) Remove(ctx context.Context, cat model.Category, token string) error {
	if g.refID == "" {
		log.Println("[watchlist] remove aborted: no ref id")
		return fmt.Errorf("watchlist remove: missing ref id")
	}
	g.mutated("remove")
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(token, g.now()))

	g.reg.Remove(cat, token)

	if err := g.store.Delete(ctx, g.refID, cat.ExchangeKey(), token); err != nil {
		log.Printf("[watchlist] remove %s/%s backend failed: %v", cat, token, err)
		return fmt.Errorf("watchlist remove %s: %w", token, err)
	}
	return nil
}

// Search schedules a debounced symbol search. Each call supersedes any
// pending one; when the backend answers, deliver runs only if no newer
// search has been scheduled since: stale responses are discarded, not
// raced. An empty query cancels the pending search and delivers nil
// immediately. Without a ref id the search never reaches the backend:
// it aborts with an empty result set.
func (g *Gateway) Search(ctx context.Context, cat model.Category, query string, deliver func(query string, results []model.SearchResult)) {
	if g.refID == "" {
		log.Println("[watchlist] search aborted: no ref id")
		deliver(query, nil)
		return
	}

	g.searchMu.Lock()
	if g.searchTimer != nil {
		g.searchTimer.Stop()
		g.searchTimer = nil
	}
	seq := atomic.AddUint64(&g.searchSeq, 1)

	if query == "" {
		g.searchMu.Unlock()
		deliver("", nil)
		return
	}

	g.searchTimer = time.AfterFunc(g.debounce, func() {
		g.runSearch(ctx, cat, query, seq, deliver)
	})
	g.searchMu.Unlock()
}

func (g *Gateway) runSearch(ctx context.Context, cat model.Category, query string, seq uint64, deliver func(string, []model.SearchResult)) {
	g.mutated("search")
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(cat.ExchangeKey(), g.now()))

	results, err := g.store.Search(ctx, g.refID, cat.ExchangeKey(), query)
	if err != nil {
		log.Printf("[watchlist] search %q failed: %v", query, err)
		results = nil
	}

	if atomic.LoadUint64(&g.searchSeq) != seq {
		// A newer search superseded this one while it was in flight.
		return
	}
	deliver(query, results)
}
