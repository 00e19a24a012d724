package quote

import (
	"testing"

	"marketwatchv1/internal/model"
)

func TestPercentChange(t *testing.T) {
	tests := []struct {
		name  string
		ltp   float64
		close float64
		want  string
	}{
		{"five percent up", 210, 200, "5.00"},
		{"five percent down", 190, 200, "-5.00"},
		{"zero close", 210, 0, "0.00"},
		{"negative close", 210, -5, "0.00"},
		{"zero ltp", 0, 200, "0.00"},
		{"implausible move", 400, 100, "0.00"},
		{"exactly fifty percent", 300, 200, "50.00"},
		{"fractional", 100.5, 100, "0.50"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PercentChange(tt.ltp, tt.close); got != tt.want {
				t.Errorf("PercentChange(%v, %v) = %q, want %q", tt.ltp, tt.close, got, tt.want)
			}
		})
	}
}

func TestChangeOK(t *testing.T) {
	tests := []struct {
		name   string
		change float64
		ltp    float64
		close  float64
		cat    model.Category
		want   bool
	}{
		{"plausible INR", 50, 25660, 25610, model.CategoryNSE, true},
		{"zero change", 0, 25660, 25610, model.CategoryNSE, false},
		{"no close", 50, 25660, 0, model.CategoryNSE, false},
		{"no ltp", 50, 0, 25610, model.CategoryNSE, false},
		{"INR bound", 500, 25660, 25610, model.CategoryNSE, false},
		{"USD bound", 50, 65000, 64990, model.CategoryCrypto, false},
		{"plausible USD", 30, 65000, 64990, model.CategoryCrypto, true},
		{"over ten percent of close", 45, 400, 400, model.CategoryNSE, false},
		{"negative plausible", -40, 25660, 25610, model.CategoryNSE, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChangeOK(tt.change, tt.ltp, tt.close, tt.cat); got != tt.want {
				t.Errorf("ChangeOK(%v, %v, %v, %s) = %v", tt.change, tt.ltp, tt.close, tt.cat, got)
			}
		})
	}
}

func TestFormatChange(t *testing.T) {
	if got := FormatChange(40, 25660, 25620, model.CategoryNSE, "NIFTY"); got != "+40" {
		t.Errorf("positive = %q", got)
	}
	if got := FormatChange(-40, 25580, 25620, model.CategoryNSE, "NIFTY"); got != "-40" {
		t.Errorf("negative = %q", got)
	}
	if got := FormatChange(0, 25660, 25620, model.CategoryNSE, "NIFTY"); got != "-" {
		t.Errorf("gated = %q", got)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		cat    model.Category
		symbol string
		want   string
	}{
		{"zero", 0, model.CategoryMCX, "GOLD", "-"},
		{"flat rounds to rupee", 71500.6, model.CategoryMCX, "GOLD", "71501"},
		{"forex five decimals", 1.1, model.CategoryForex, "EURUSD", "1.10000"},
		{"jpy three decimals", 148.5, model.CategoryForex, "USDJPY", "148.500"},
		{"crypto large", 65000.129, model.CategoryCrypto, "BTCUSDT", "65000.13"},
		{"crypto mid", 0.5, model.CategoryCrypto, "XRPUSDT", "0.50000"},
		{"crypto small", 0.00052, model.CategoryCrypto, "SHIBUSDT", "0.000520"},
		{"crypto dust", 0.00001234, model.CategoryCrypto, "PEPEUSDT", "0.00001234"},
		{"commodity large", 2400.5, model.CategoryCommodity, "XAUUSD", "2400.50"},
		{"commodity mid", 0.9, model.CategoryCommodity, "XAGUSD-ish", "0.90000"},
		{"commodity small", 0.005, model.CategoryCommodity, "X", "0.005000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPrice(tt.price, tt.cat, tt.symbol); got != tt.want {
				t.Errorf("FormatPrice(%v, %s, %s) = %q, want %q", tt.price, tt.cat, tt.symbol, got, tt.want)
			}
		})
	}
}

func TestBaseSymbol(t *testing.T) {
	if got := BaseSymbol("GOLD_05FEB"); got != "GOLD" {
		t.Errorf("got %q", got)
	}
	if got := BaseSymbol("BTCUSDT"); got != "BTCUSDT" {
		t.Errorf("got %q", got)
	}
}

func TestFormatContractDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"31DEC", "31 DEC"},
		{"5feb", "5 FEB"},
		{"PERP", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FormatContractDate(tt.in); got != tt.want {
			t.Errorf("FormatContractDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPairSymbol(t *testing.T) {
	tests := []struct {
		name string
		in   string
		cat  model.Category
		want string
	}{
		{"crypto pair", "BTCUSDT", model.CategoryCrypto, "BTC/USDT"},
		{"forex pair", "EURUSD", model.CategoryForex, "EUR/USD"},
		{"suffix stripped first", "BTCUSDT_PERP", model.CategoryCrypto, "BTC/USDT"},
		{"metal pair", "XAUUSD", model.CategoryCommodity, "XAU/USD"},
		{"unknown six chars", "ABCXYZ", model.CategoryForex, "ABC/XYZ"},
		{"flat category untouched", "GOLD_05FEB", model.CategoryMCX, "GOLD"},
		{"short name untouched", "GOLD", model.CategoryCommodity, "GOLD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PairSymbol(tt.in, tt.cat); got != tt.want {
				t.Errorf("PairSymbol(%q, %s) = %q, want %q", tt.in, tt.cat, got, tt.want)
			}
		})
	}
}
