package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"marketwatchv1/internal/model"
	"marketwatchv1/internal/watchlist"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []watchlist.Item{
		{Token: "53001", Symbol: "GOLD_05FEB", Exchange: "mcx", LotSize: 100},
		{Token: "53002", Symbol: "SILVER_05FEB", Exchange: "mcx", LotSize: 30},
	}
	for _, it := range items {
		if err := s.Save(ctx, "ref-1", it); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	recs, err := s.List(ctx, "ref-1", "mcx")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	// Insertion order preserved.
	if recs[0].SymbolName != "GOLD_05FEB" || recs[1].SymbolName != "SILVER_05FEB" {
		t.Errorf("order: %s, %s", recs[0].SymbolName, recs[1].SymbolName)
	}
	if float64(recs[0].LotSize) != 100 {
		t.Errorf("lot size = %v", float64(recs[0].LotSize))
	}

	// Other users and segments see nothing.
	if recs, _ := s.List(ctx, "ref-2", "mcx"); len(recs) != 0 {
		t.Error("ref isolation broken")
	}
	if recs, _ := s.List(ctx, "ref-1", "nse"); len(recs) != 0 {
		t.Error("segment isolation broken")
	}

	if err := s.Delete(ctx, "ref-1", "mcx", "53001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recs, _ = s.List(ctx, "ref-1", "mcx")
	if len(recs) != 1 || recs[0].SymbolName != "SILVER_05FEB" {
		t.Fatalf("after delete: %+v", recs)
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	item := watchlist.Item{Token: "42", Symbol: "BTCUSDT", Exchange: "crypto", LotSize: 1}
	if err := s.Save(ctx, "ref-1", item); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(ctx, "ref-1", item); err != nil {
		t.Fatalf("second save: %v", err)
	}

	recs, _ := s.List(ctx, "ref-1", "crypto")
	if len(recs) != 1 {
		t.Fatalf("duplicate watchlist row: %d", len(recs))
	}
}

func TestSaveQuotesSeedsList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "ref-1", watchlist.Item{Token: "53001", Symbol: "GOLD_05FEB", Exchange: "mcx", LotSize: 100}); err != nil {
		t.Fatalf("save: %v", err)
	}

	err := s.SaveQuotes(ctx, []model.Instrument{{
		Token: "53001", Name: "GOLD_05FEB", Category: model.CategoryMCX,
		Buy: 71520, Sell: 71480, LTP: 71500, Change: 150,
		High: 71600, Low: 71300, Open: 71400, Close: 71350,
		OpenInterest: 1200, Volume: 56000, UpdatedAt: time.Now(),
	}})
	if err != nil {
		t.Fatalf("save quotes: %v", err)
	}

	recs, err := s.List(ctx, "ref-1", "mcx")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	r := recs[0]
	if float64(r.LTP) != 71500 || float64(r.Close) != 71350 || float64(r.Volume) != 56000 {
		t.Errorf("quotes not joined: ltp=%v cls=%v vol=%v", float64(r.LTP), float64(r.Close), float64(r.Volume))
	}
}

func TestSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.ImportSymbols(ctx, "crypto", []model.SearchResult{
		{Token: json.Number("42"), Symbol: "BTCUSDT", Name: "Bitcoin", LotSize: 1},
		{Token: json.Number("43"), Symbol: "ETHUSDT", Name: "Ether", LotSize: 1},
		{Token: json.Number("44"), Symbol: "BTCEUR", Name: "Bitcoin EUR", LotSize: 1},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	res, err := s.Search(ctx, "ref-1", "crypto", "btc")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results", len(res))
	}

	// The sentinel query lists the whole segment.
	res, err = s.Search(ctx, "ref-1", "crypto", watchlist.InitialQuery)
	if err != nil {
		t.Fatalf("initial search: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("initial suggestions: got %d", len(res))
	}

	if res, _ := s.Search(ctx, "ref-1", "forex", "btc"); len(res) != 0 {
		t.Error("segment isolation broken")
	}
}
