package marketdata

import (
	"marketwatchv1/internal/model"
	"marketwatchv1/internal/quote"
)

// ApplyBookTick reconciles one order-book snapshot against the active
// category's slice only; unlike the flat path, the FX feed is not
// filtered by subscription, so matching is scoped to what is displayed.
// Symbols match an instrument's name with the delimiter suffix stripped,
// or the raw name. Returns whether any instrument changed.
func (n *Normalizer) ApplyBookTick(t model.BookTick, active model.Category) bool {
	if !active.UsesBookFeed() {
		return false
	}

	rate := n.rate()

	bidUSD := t.BestBidPrice()
	askUSD := t.BestAskPrice()
	bidINR := bidUSD * rate
	askINR := askUSD * rate

	// Session high from the ask depth, low from the bid depth; best
	// prices stand in when depth is empty.
	highUSD := askUSD
	for _, lvl := range t.Asks {
		if lvl.Price > highUSD {
			highUSD = lvl.Price
		}
	}
	lowUSD := bidUSD
	for _, lvl := range t.Bids {
		if lvl.Price < lowUSD {
			lowUSD = lvl.Price
		}
	}

	var totalVolume float64
	for _, lvl := range t.Bids {
		totalVolume += lvl.Volume
	}
	for _, lvl := range t.Asks {
		totalVolume += lvl.Volume
	}

	ltpINR := midpoint(bidINR, askINR)
	ltpUSD := midpoint(bidUSD, askUSD)
	now := n.now()

	return n.reg.UpsertMatching(active,
		func(ins model.Instrument) bool {
			return quote.BaseSymbol(ins.Name) == t.Symbol || ins.Name == t.Symbol
		},
		func(ins model.Instrument) model.Instrument {
			if ins.Buy == askINR && ins.Sell == bidINR && ins.LTP == ltpINR &&
				ins.BuyUSD == askUSD && ins.SellUSD == bidUSD {
				return ins
			}
			n.updated()

			next := ins
			next.Buy = askINR
			next.Sell = bidINR
			next.LTP = ltpINR
			next.BuyUSD = askUSD
			next.SellUSD = bidUSD
			next.LTPUSD = ltpUSD

			if ins.LTP > 0 {
				next.Change = ltpINR - ins.LTP
			} else {
				next.Change = 0
			}
			if ins.LTPUSD > 0 {
				next.ChangeUSD = ltpUSD - ins.LTPUSD
			} else {
				next.ChangeUSD = 0
			}

			next.High = highUSD * rate
			next.Low = lowUSD * rate
			next.Volume = totalVolume

			// Open/close stay as loaded. A missing closeUSD is derived
			// lazily from the INR close at the current rate.
			if ins.CloseUSD == 0 && ins.Close > 0 && rate > 0 {
				next.CloseUSD = ins.Close / rate
			}

			next.PrevBuy = ins.Buy
			if next.PrevBuy == 0 {
				next.PrevBuy = askINR
			}
			next.PrevSell = ins.Sell
			if next.PrevSell == 0 {
				next.PrevSell = bidINR
			}
			next.PrevLTP = ins.LTP
			next.PrevLTPUSD = ins.LTPUSD

			next.UpdatedAt = now
			return next
		},
	)
}

// midpoint averages two prices when both are present, falls back to
// whichever is present, and is zero when neither is.
func midpoint(a, b float64) float64 {
	switch {
	case a != 0 && b != 0:
		return (a + b) / 2
	case a != 0:
		return a
	default:
		return b
	}
}
