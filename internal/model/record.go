package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// WatchlistRecord is one raw row from the persistence API's watchlist
// listing. The backend abbreviates several field names (cls, opn, ol, vol)
// and sometimes double-encodes the whole payload as a JSON string.
type WatchlistRecord struct {
	SymbolToken  json.Number `json:"SymbolToken"`
	SymbolName   string      `json:"SymbolName"`
	ExchangeType string      `json:"ExchangeType"`
	LotSize      Flex        `json:"Lotsize"`

	Buy       Flex `json:"buy"`
	Sell      Flex `json:"sell"`
	LTP       Flex `json:"ltp"`
	LTPUSD    Flex `json:"ltpUSD"`
	Change    Flex `json:"chg"`
	ChangeUSD Flex `json:"chgUSD"`
	High      Flex `json:"high"`
	Low       Flex `json:"low"`
	Open      Flex `json:"opn"`
	OpenAlt   Flex `json:"open"`
	Close     Flex `json:"cls"`
	CloseAlt  Flex `json:"close"`
	CloseUSD  Flex `json:"closeUSD"`
	OI        Flex `json:"ol"`
	Volume    Flex `json:"vol"`
}

// DecodeWatchlistRecords parses the listing payload, unwrapping one level
// of string encoding when present.
func DecodeWatchlistRecords(raw []byte) ([]WatchlistRecord, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("watchlist decode: unwrap: %w", err)
		}
		raw = []byte(inner)
	}
	var recs []WatchlistRecord
	if err := json.Unmarshal(raw, &recs); err != nil {
		return nil, fmt.Errorf("watchlist decode: %w", err)
	}
	return recs, nil
}

// Instrument converts a raw record into registry form. For order-book
// categories a missing closeUSD is derived once from the INR close and the
// current USD→INR rate; it is not written back upstream.
func (r WatchlistRecord) Instrument(cat Category, rate float64, now time.Time) Instrument {
	open := float64(r.Open)
	if open == 0 {
		open = float64(r.OpenAlt)
	}
	cls := float64(r.Close)
	if cls == 0 {
		cls = float64(r.CloseAlt)
	}

	ins := Instrument{
		Token:        r.SymbolToken.String(),
		Name:         r.SymbolName,
		Category:     cat,
		LotSize:      float64(r.LotSize),
		Buy:          float64(r.Buy),
		Sell:         float64(r.Sell),
		LTP:          float64(r.LTP),
		Change:       float64(r.Change),
		High:         float64(r.High),
		Low:          float64(r.Low),
		Open:         open,
		Close:        cls,
		OpenInterest: float64(r.OI),
		Volume:       float64(r.Volume),
		PrevLTP:      float64(r.LTP),
		UpdatedAt:    now,
	}

	if c, ok := ParseCategory(r.ExchangeType); ok {
		ins.Category = c
	}

	if ins.Category.UsesBookFeed() {
		ins.LTPUSD = float64(r.LTPUSD)
		ins.ChangeUSD = float64(r.ChangeUSD)
		ins.PrevLTPUSD = float64(r.LTPUSD)
		ins.CloseUSD = float64(r.CloseUSD)
		if ins.CloseUSD == 0 && cls > 0 && rate > 0 {
			ins.CloseUSD = cls / rate
		}
	}
	return ins
}

// SearchResult is one candidate row from a symbol search.
type SearchResult struct {
	Token   json.Number `json:"instrument_token"`
	Symbol  string      `json:"tradingsymbol"`
	Name    string      `json:"name"`
	LotSize Flex        `json:"lot_size"`
}

// DecodeSearchResults parses a search payload, unwrapping one level of
// string encoding when present.
func DecodeSearchResults(raw []byte) ([]SearchResult, error) {
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("search decode: unwrap: %w", err)
		}
		raw = []byte(inner)
	}
	var res []SearchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("search decode: %w", err)
	}
	return res, nil
}
