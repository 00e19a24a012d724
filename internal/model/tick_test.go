package model

import (
	"encoding/json"
	"testing"
)

func TestFlexTolerantDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"number", `123.45`, 123.45},
		{"quoted number", `"123.45"`, 123.45},
		{"quoted zero", `"0"`, 0},
		{"null", `null`, 0},
		{"empty string", `""`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Flex
			if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
				t.Fatalf("unmarshal %s: %v", tt.in, err)
			}
			if float64(f) != tt.want {
				t.Errorf("got %v, want %v", float64(f), tt.want)
			}
		})
	}

	var f Flex
	if err := json.Unmarshal([]byte(`"abc"`), &f); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestDecodeFlatTick(t *testing.T) {
	raw := []byte(`{"instrument_token":"53001","last_price":"71500.5","bid":71480,"ask":"71520","high_":71600,"low_":71300,"open_":71400,"close_":71350,"oi":1200,"volume":"56000"}`)

	tick, err := DecodeFlatTick(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tick.Token != "53001" {
		t.Errorf("token = %q", tick.Token)
	}
	if float64(tick.LastPrice) != 71500.5 {
		t.Errorf("last_price = %v", float64(tick.LastPrice))
	}
	if float64(tick.Ask) != 71520 {
		t.Errorf("ask = %v", float64(tick.Ask))
	}
	if float64(tick.Volume) != 56000 {
		t.Errorf("volume = %v", float64(tick.Volume))
	}
}

func TestDecodeFlatTickMissingToken(t *testing.T) {
	if _, err := DecodeFlatTick([]byte(`{"last_price":100}`)); err == nil {
		t.Error("expected error for missing instrument_token")
	}
}

func TestDecodeBookTick(t *testing.T) {
	raw := []byte(`{"type":"tick","data":{"Symbol":"EURUSD","BestBid":{"Price":1.1000,"Volume":5},"BestAsk":{"Price":1.1010,"Volume":3},"Bids":[{"Price":1.1000,"Volume":5},{"Price":1.0995,"Volume":8}],"Asks":[{"Price":1.1010,"Volume":3}]}}`)

	tick, ok, err := DecodeBookTick(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ok {
		t.Fatal("expected ok")
	}
	if tick.Symbol != "EURUSD" {
		t.Errorf("symbol = %q", tick.Symbol)
	}
	if tick.BestBidPrice() != 1.1000 || tick.BestAskPrice() != 1.1010 {
		t.Errorf("best bid/ask = %v/%v", tick.BestBidPrice(), tick.BestAskPrice())
	}
	if len(tick.Bids) != 2 || len(tick.Asks) != 1 {
		t.Errorf("depth = %d/%d", len(tick.Bids), len(tick.Asks))
	}
}

func TestDecodeBookTickSkipsNonTickEnvelopes(t *testing.T) {
	for _, raw := range []string{
		`{"type":"heartbeat"}`,
		`{"type":"subscribed","data":{"Symbol":"EURUSD"}}`,
		`{"type":"tick"}`,
	} {
		_, ok, err := DecodeBookTick([]byte(raw))
		if err != nil {
			t.Errorf("%s: unexpected error %v", raw, err)
		}
		if ok {
			t.Errorf("%s: expected skip", raw)
		}
	}
}

func TestDecodeBookTickMalformed(t *testing.T) {
	if _, _, err := DecodeBookTick([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, _, err := DecodeBookTick([]byte(`{"type":"tick","data":{"BestBid":{"Price":1}}}`)); err == nil {
		t.Error("expected error for missing symbol")
	}
}

func TestBestPricesAbsentLevels(t *testing.T) {
	var tick BookTick
	if tick.BestBidPrice() != 0 || tick.BestAskPrice() != 0 {
		t.Error("absent levels should read as zero")
	}
}
