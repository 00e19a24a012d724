package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Flex is a float64 that tolerates string-encoded numbers on the wire.
// The upstream futures feed sends some numeric fields as strings ("0").
type Flex float64

// UnmarshalJSON accepts a JSON number, a quoted number, or null.
func (f *Flex) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("flex number %q: %w", s, err)
	}
	*f = Flex(v)
	return nil
}

// FlatTick is one update from the futures/options feed: a last price with
// bid/ask and session fields, all quoted in the local currency.
type FlatTick struct {
	Token        string `json:"instrument_token"`
	LastPrice    Flex   `json:"last_price"`
	Bid          Flex   `json:"bid"`
	Ask          Flex   `json:"ask"`
	Change       Flex   `json:"change"`
	High         Flex   `json:"high_"`
	Low          Flex   `json:"low_"`
	Open         Flex   `json:"open_"`
	Close        Flex   `json:"close_"`
	OpenInterest Flex   `json:"oi"`
	Volume       Flex   `json:"volume"`
}

// DecodeFlatTick parses a raw futures/options feed message. A message
// without an instrument token is malformed.
func DecodeFlatTick(raw []byte) (FlatTick, error) {
	var t FlatTick
	if err := json.Unmarshal(raw, &t); err != nil {
		return FlatTick{}, fmt.Errorf("flat tick decode: %w", err)
	}
	if t.Token == "" {
		return FlatTick{}, fmt.Errorf("flat tick decode: missing instrument_token")
	}
	return t, nil
}

// BookLevel is one price level in an order-book snapshot.
type BookLevel struct {
	Price  float64 `json:"Price"`
	Volume float64 `json:"Volume"`
}

// BookTick is an order-book snapshot from the FX feed, quoted in USD.
type BookTick struct {
	Symbol  string      `json:"Symbol"`
	BestBid *BookLevel  `json:"BestBid"`
	BestAsk *BookLevel  `json:"BestAsk"`
	Bids    []BookLevel `json:"Bids"`
	Asks    []BookLevel `json:"Asks"`
}

// BestBidPrice returns the best bid price, zero if absent.
func (t BookTick) BestBidPrice() float64 {
	if t.BestBid == nil {
		return 0
	}
	return t.BestBid.Price
}

// BestAskPrice returns the best ask price, zero if absent.
func (t BookTick) BestAskPrice() float64 {
	if t.BestAsk == nil {
		return 0
	}
	return t.BestAsk.Price
}

type bookEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeBookTick parses a raw FX feed envelope. Envelopes whose type is
// not "tick" (heartbeats, subscription acks) are skipped: ok is false and
// err is nil. Malformed JSON or a tick without a symbol is an error.
func DecodeBookTick(raw []byte) (BookTick, bool, error) {
	var env bookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return BookTick{}, false, fmt.Errorf("book envelope decode: %w", err)
	}
	if env.Type != "tick" || len(env.Data) == 0 {
		return BookTick{}, false, nil
	}
	var t BookTick
	if err := json.Unmarshal(env.Data, &t); err != nil {
		return BookTick{}, false, fmt.Errorf("book tick decode: %w", err)
	}
	if t.Symbol == "" {
		return BookTick{}, false, fmt.Errorf("book tick decode: missing symbol")
	}
	return t, true, nil
}
