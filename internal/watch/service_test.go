package watch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"marketwatchv1/internal/marketdata"
	"marketwatchv1/internal/marketdata/feed"
	"marketwatchv1/internal/model"
	"marketwatchv1/internal/registry"
	"marketwatchv1/internal/watchlist"
)

// memStore serves canned watchlists keyed by exchange.
type memStore struct {
	mu    sync.Mutex
	lists map[string][]model.WatchlistRecord
}

func (m *memStore) List(_ context.Context, _, exchange string) ([]model.WatchlistRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists[exchange], nil
}

func (m *memStore) Search(_ context.Context, _, _, _ string) ([]model.SearchResult, error) {
	return nil, nil
}

func (m *memStore) Save(_ context.Context, _ string, item watchlist.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[item.Exchange] = append(m.lists[item.Exchange], model.WatchlistRecord{
		SymbolToken: json.Number(item.Token),
		SymbolName:  item.Symbol,
	})
	return nil
}

func (m *memStore) Delete(_ context.Context, _, exchange, token string) error {
	return nil
}

func record(token, name string) model.WatchlistRecord {
	return model.WatchlistRecord{SymbolToken: json.Number(token), SymbolName: name}
}

type harness struct {
	svc    *Service
	reg    *registry.Registry
	feedCh chan feed.Event
	cancel context.CancelFunc
}

func newHarness(t *testing.T, store watchlist.Store, cfg Config) *harness {
	t.Helper()
	reg := registry.New()
	norm := marketdata.New(reg, func() float64 { return 90 })
	gw := watchlist.New(store, reg, watchlist.Config{RefID: "ref-1", Debounce: 5 * time.Millisecond},
		func() float64 { return 90 })

	svc := New(reg, norm, gw, cfg, nil)
	feedCh := make(chan feed.Event, 16)

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx, feedCh, nil)
	t.Cleanup(cancel)

	return &harness{svc: svc, reg: reg, feedCh: feedCh, cancel: cancel}
}

// waitSnapshot blocks for the next snapshot matching pred.
func (h *harness) waitSnapshot(t *testing.T, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-h.svc.Snapshots():
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestRunLoadsInitialCategory(t *testing.T) {
	store := &memStore{lists: map[string][]model.WatchlistRecord{
		"mcx": {record("53001", "GOLD_05FEB")},
	}}
	h := newHarness(t, store, Config{
		Initial: model.CategoryMCX,
		Enabled: []model.Category{model.CategoryMCX, model.CategoryCrypto},
	})

	snap := h.waitSnapshot(t, func(s Snapshot) bool { return len(s.Instruments) == 1 })
	if snap.Category != model.CategoryMCX || snap.Instruments[0].Token != "53001" {
		t.Fatalf("got %+v", snap)
	}
}

func TestFeedTickProducesSnapshot(t *testing.T) {
	store := &memStore{lists: map[string][]model.WatchlistRecord{
		"mcx": {record("53001", "GOLD_05FEB")},
	}}
	h := newHarness(t, store, Config{
		Initial: model.CategoryMCX,
		Enabled: []model.Category{model.CategoryMCX},
	})

	h.feedCh <- feed.Event{Flat: &model.FlatTick{Token: "53001", LastPrice: 71500}}

	snap := h.waitSnapshot(t, func(s Snapshot) bool {
		return len(s.Instruments) == 1 && s.Instruments[0].LTP == 71500
	})
	if snap.Instruments[0].Buy != 71500 {
		t.Errorf("zero ask should substitute last price, got %v", snap.Instruments[0].Buy)
	}
}

func TestSwitchCategory(t *testing.T) {
	store := &memStore{lists: map[string][]model.WatchlistRecord{
		"mcx":    {record("53001", "GOLD_05FEB")},
		"crypto": {record("42", "BTCUSDT")},
	}}
	h := newHarness(t, store, Config{
		Initial: model.CategoryMCX,
		Enabled: []model.Category{model.CategoryMCX, model.CategoryCrypto},
	})

	h.waitSnapshot(t, func(s Snapshot) bool { return s.Category == model.CategoryMCX && len(s.Instruments) == 1 })

	h.svc.SwitchCategory(model.CategoryCrypto)
	snap := h.waitSnapshot(t, func(s Snapshot) bool { return s.Category == model.CategoryCrypto })
	if len(snap.Instruments) != 1 || snap.Instruments[0].Name != "BTCUSDT" {
		t.Fatalf("got %+v", snap.Instruments)
	}

	// Switching to a disabled category is refused.
	h.svc.SwitchCategory(model.CategoryForex)
	h.svc.SetFilter("BTC")
	snap = h.waitSnapshot(t, func(s Snapshot) bool { return len(s.Instruments) == 1 })
	if snap.Category != model.CategoryCrypto {
		t.Errorf("active category = %v, want CRYPTO", snap.Category)
	}
}

func TestFilterAppliesAndResetsOnSwitch(t *testing.T) {
	store := &memStore{lists: map[string][]model.WatchlistRecord{
		"crypto": {record("42", "BTCUSDT"), record("43", "ETHUSDT")},
		"mcx":    {record("53001", "GOLD_05FEB")},
	}}
	h := newHarness(t, store, Config{
		Initial: model.CategoryCrypto,
		Enabled: []model.Category{model.CategoryMCX, model.CategoryCrypto},
	})

	h.waitSnapshot(t, func(s Snapshot) bool { return len(s.Instruments) == 2 })

	h.svc.SetFilter("btc")
	snap := h.waitSnapshot(t, func(s Snapshot) bool { return len(s.Instruments) == 1 })
	if snap.Instruments[0].Name != "BTCUSDT" {
		t.Fatalf("filter matched %+v", snap.Instruments)
	}

	// The filter is transient: a category switch clears it.
	h.svc.SwitchCategory(model.CategoryMCX)
	h.waitSnapshot(t, func(s Snapshot) bool {
		return s.Category == model.CategoryMCX && len(s.Instruments) == 1
	})
	h.svc.SwitchCategory(model.CategoryCrypto)
	h.waitSnapshot(t, func(s Snapshot) bool {
		return s.Category == model.CategoryCrypto && len(s.Instruments) == 2
	})
}

func TestActivateEmitsSymbol(t *testing.T) {
	store := &memStore{lists: map[string][]model.WatchlistRecord{
		"mcx": {{SymbolToken: "53001", SymbolName: "GOLD_05FEB", LotSize: 100}},
	}}
	h := newHarness(t, store, Config{
		Initial: model.CategoryMCX,
		Enabled: []model.Category{model.CategoryMCX},
	})
	h.waitSnapshot(t, func(s Snapshot) bool { return len(s.Instruments) == 1 })

	h.svc.Activate("53001")

	select {
	case ev := <-h.svc.Activated():
		if ev.Name != "GOLD_05FEB" || ev.LotSize != 100 || ev.Category != model.CategoryMCX {
			t.Errorf("got %+v", ev)
		}
		if ev.Instrument.Token != "53001" {
			t.Errorf("instrument payload = %+v", ev.Instrument)
		}
	case <-time.After(time.Second):
		t.Fatal("no activation event")
	}

	// Unknown tokens emit nothing.
	h.svc.Activate("99999")
	select {
	case ev := <-h.svc.Activated():
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConfigChangeDisablesActiveCategory(t *testing.T) {
	store := &memStore{lists: map[string][]model.WatchlistRecord{
		"mcx": {record("53001", "GOLD_05FEB")},
		"nse": {record("26000", "NIFTY")},
	}}

	reg := registry.New()
	norm := marketdata.New(reg, func() float64 { return 90 })
	gw := watchlist.New(store, reg, watchlist.Config{RefID: "ref-1"}, func() float64 { return 90 })
	svc := New(reg, norm, gw, Config{
		Initial: model.CategoryMCX,
		Enabled: []model.Category{model.CategoryMCX, model.CategoryNSE},
	}, nil)

	feedCh := make(chan feed.Event)
	cfgCh := make(chan []model.Category, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Run(ctx, feedCh, cfgCh)

	h := &harness{svc: svc, reg: reg}
	h.waitSnapshot(t, func(s Snapshot) bool { return s.Category == model.CategoryMCX })

	// Dropping MCX from the enabled set forces a switch to NSE.
	cfgCh <- []model.Category{model.CategoryNSE}
	snap := h.waitSnapshot(t, func(s Snapshot) bool { return s.Category == model.CategoryNSE })
	if len(snap.Instruments) != 1 || snap.Instruments[0].Name != "NIFTY" {
		t.Fatalf("got %+v", snap.Instruments)
	}
}

func TestSearchFlowsThroughLoop(t *testing.T) {
	store := &memStore{lists: map[string][]model.WatchlistRecord{"mcx": {}}}
	h := newHarness(t, store, Config{
		Initial: model.CategoryMCX,
		Enabled: []model.Category{model.CategoryMCX},
	})

	h.svc.Search("GOLD")

	select {
	case res := <-h.svc.SearchOut():
		if res.Query != "GOLD" {
			t.Errorf("query = %q", res.Query)
		}
	case <-time.After(time.Second):
		t.Fatal("no search delivery")
	}
}
