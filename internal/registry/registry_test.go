package registry

import (
	"testing"
	"time"

	"marketwatchv1/internal/model"
)

func seed(r *Registry, cat model.Category, tokens ...string) {
	ins := make([]model.Instrument, 0, len(tokens))
	for _, tok := range tokens {
		ins = append(ins, model.Instrument{Token: tok, Name: "SYM" + tok, Category: cat, LTP: 100})
	}
	r.Replace(cat, ins)
}

func TestReplaceAndGetCopies(t *testing.T) {
	r := New()
	seed(r, model.CategoryMCX, "1", "2")

	got := r.Get(model.CategoryMCX)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}

	// Mutating the returned slice must not touch the registry.
	got[0].LTP = 999
	if r.Get(model.CategoryMCX)[0].LTP != 100 {
		t.Error("Get returned a live reference")
	}
}

func TestUpsertMatchingEqualityGate(t *testing.T) {
	r := New()
	seed(r, model.CategoryMCX, "1")

	bump := func(ins model.Instrument) model.Instrument {
		ins.LTP = 105
		ins.UpdatedAt = time.Now()
		return ins
	}
	pred := func(ins model.Instrument) bool { return ins.Token == "1" }

	if !r.UpsertMatching(model.CategoryMCX, pred, bump) {
		t.Fatal("first upsert should report a change")
	}
	// Same observable result, new timestamp: gated out.
	if r.UpsertMatching(model.CategoryMCX, pred, bump) {
		t.Error("identical observable state should not count as a change")
	}
	if got := r.Get(model.CategoryMCX)[0].LTP; got != 105 {
		t.Errorf("LTP = %v", got)
	}
}

func TestUpsertMatchingSnapshotIsolation(t *testing.T) {
	r := New()
	seed(r, model.CategoryMCX, "1", "2")

	before := r.Get(model.CategoryMCX)

	r.UpsertMatching(model.CategoryMCX,
		func(ins model.Instrument) bool { return ins.Token == "2" },
		func(ins model.Instrument) model.Instrument { ins.LTP = 200; return ins },
	)

	if before[1].LTP != 100 {
		t.Error("old snapshot mutated by upsert")
	}
	if r.Get(model.CategoryMCX)[1].LTP != 200 {
		t.Error("upsert not applied")
	}
}

func TestUpsertMatchingAllCrossCategory(t *testing.T) {
	r := New()
	seed(r, model.CategoryMCX, "7")
	seed(r, model.CategoryNSE, "7", "8")

	changed := r.UpsertMatchingAll(
		func(ins model.Instrument) bool { return ins.Token == "7" },
		func(ins model.Instrument) model.Instrument { ins.LTP = 111; return ins },
	)
	if !changed {
		t.Fatal("expected a change")
	}

	if r.Get(model.CategoryMCX)[0].LTP != 111 {
		t.Error("MCX entry not updated")
	}
	nse := r.Get(model.CategoryNSE)
	if nse[0].LTP != 111 {
		t.Error("NSE entry not updated")
	}
	if nse[1].LTP != 100 {
		t.Error("unmatched NSE entry touched")
	}
}

func TestRemove(t *testing.T) {
	r := New()
	seed(r, model.CategoryCrypto, "1", "2", "3")

	if !r.Remove(model.CategoryCrypto, "2") {
		t.Fatal("expected removal")
	}
	if r.Remove(model.CategoryCrypto, "2") {
		t.Error("second removal should be a no-op")
	}

	got := r.Get(model.CategoryCrypto)
	if len(got) != 2 || got[0].Token != "1" || got[1].Token != "3" {
		t.Errorf("order not preserved: %+v", got)
	}
}

func TestSelectedTokensDerived(t *testing.T) {
	r := New()
	seed(r, model.CategoryNSE, "1", "2")

	set := r.SelectedTokens(model.CategoryNSE)
	if !set["1"] || !set["2"] || set["3"] {
		t.Errorf("set = %v", set)
	}

	r.Remove(model.CategoryNSE, "1")
	set = r.SelectedTokens(model.CategoryNSE)
	if set["1"] {
		t.Error("removed token still in derived set")
	}
}

func TestLen(t *testing.T) {
	r := New()
	if r.Len(model.CategoryMCX) != 0 {
		t.Error("empty registry should have zero length")
	}
	seed(r, model.CategoryMCX, "1", "2", "3")
	if r.Len(model.CategoryMCX) != 3 {
		t.Error("wrong length")
	}
}
