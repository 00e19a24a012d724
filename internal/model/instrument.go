package model

import "time"

// Category identifies one watchlist tab / exchange segment.
type Category string

const (
	CategoryMCX       Category = "MCX"
	CategoryNSE       Category = "NSE"
	CategoryOPT       Category = "OPT"
	CategoryCrypto    Category = "CRYPTO"
	CategoryForex     Category = "FOREX"
	CategoryCommodity Category = "COMMODITY"
)

// AllCategories lists every known category in display order.
var AllCategories = []Category{
	CategoryMCX, CategoryNSE, CategoryOPT,
	CategoryCrypto, CategoryForex, CategoryCommodity,
}

// UsesBookFeed reports whether this category is priced by the order-book
// (FX-style) feed in USD. The remaining categories use the flat INR feed.
func (c Category) UsesBookFeed() bool {
	switch c {
	case CategoryCrypto, CategoryForex, CategoryCommodity:
		return true
	}
	return false
}

// ExchangeKey returns the lowercase key the persistence API expects for
// watchlist listing. OPT maps to "cds" upstream.
func (c Category) ExchangeKey() string {
	switch c {
	case CategoryMCX:
		return "mcx"
	case CategoryNSE:
		return "nse"
	case CategoryOPT:
		return "cds"
	case CategoryCrypto:
		return "crypto"
	case CategoryForex:
		return "forex"
	case CategoryCommodity:
		return "commodity"
	}
	return string(c)
}

// ParseCategory returns the Category for a tab id, or false if unknown.
func ParseCategory(s string) (Category, bool) {
	for _, c := range AllCategories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Instrument is one watched symbol with its last-known quote state.
// Local-currency fields (INR) are always populated; the USD mirrors are
// only meaningful for categories on the order-book feed.
type Instrument struct {
	Token    string   `json:"token"`
	Name     string   `json:"name"` // raw symbol, may carry a "_31DEC" style suffix
	Category Category `json:"category"`
	LotSize  float64  `json:"lot_size"`

	Buy    float64 `json:"buy"` // feed ask: the price you buy at
	Sell   float64 `json:"sell"`
	LTP    float64 `json:"ltp"`
	Change float64 `json:"chg"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`

	BuyUSD    float64 `json:"buy_usd,omitempty"`
	SellUSD   float64 `json:"sell_usd,omitempty"`
	LTPUSD    float64 `json:"ltp_usd,omitempty"`
	ChangeUSD float64 `json:"chg_usd,omitempty"`
	CloseUSD  float64 `json:"close_usd,omitempty"`

	OpenInterest float64 `json:"oi"`
	Volume       float64 `json:"volume"`

	// Last-observed prices, used to derive tick-to-tick change when the
	// feed carries no explicit change value.
	PrevBuy    float64 `json:"prev_buy,omitempty"`
	PrevSell   float64 `json:"prev_sell,omitempty"`
	PrevLTP    float64 `json:"prev_ltp,omitempty"`
	PrevLTPUSD float64 `json:"prev_ltp_usd,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// EqualObservable reports whether two instruments carry the same observable
// state. The update timestamp is excluded so that re-applying an identical
// quote is a no-op against the registry's replacement gate.
func (i Instrument) EqualObservable(o Instrument) bool {
	i.UpdatedAt = time.Time{}
	o.UpdatedAt = time.Time{}
	return i == o
}
