package marketdata

import (
	"marketwatchv1/internal/model"
)

// ApplyFlatTick reconciles one futures/options tick against the registry.
// The tick carries no category, so it is matched by token across every
// category's slice; a token that appears in more than one slice is
// updated everywhere. Returns whether any instrument changed.
//
// Feed semantics: a zero bid or ask stands in for the last price; the
// feed's ask is the price the user buys at and its bid the price they
// sell at. Open and close are sticky: a zero incoming value keeps the
// stored one.
func (n *Normalizer) ApplyFlatTick(t model.FlatTick) bool {
	bid := float64(t.Bid)
	if bid == 0 {
		bid = float64(t.LastPrice)
	}
	ask := float64(t.Ask)
	if ask == 0 {
		ask = float64(t.LastPrice)
	}

	newBuy := ask
	newSell := bid
	newLTP := float64(t.LastPrice)
	now := n.now()

	return n.reg.UpsertMatchingAll(
		func(ins model.Instrument) bool {
			return ins.Token == t.Token
		},
		func(ins model.Instrument) model.Instrument {
			if ins.Buy == newBuy && ins.Sell == newSell && ins.LTP == newLTP {
				return ins
			}
			n.updated()

			next := ins
			next.Buy = newBuy
			next.Sell = newSell
			next.LTP = newLTP
			next.Change = float64(t.Change)
			next.High = float64(t.High)
			next.Low = float64(t.Low)
			if v := float64(t.Open); v != 0 {
				next.Open = v
			}
			if v := float64(t.Close); v != 0 {
				next.Close = v
			}
			next.OpenInterest = float64(t.OpenInterest)
			next.Volume = float64(t.Volume)

			next.PrevBuy = ins.Buy
			if next.PrevBuy == 0 {
				next.PrevBuy = newBuy
			}
			next.PrevSell = ins.Sell
			if next.PrevSell == 0 {
				next.PrevSell = newSell
			}
			next.PrevLTP = ins.LTP
			if next.PrevLTP == 0 {
				next.PrevLTP = newLTP
			}

			next.UpdatedAt = now
			return next
		},
	)
}
