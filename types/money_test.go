package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"GBP", GBP(9900), 9900, "gbp", "£99.00"},
		{"New", New(100, "JPY"), 100, "jpy", "¥100"},
		{"Zero USD", Zero("USD"), 0, "usd", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return USD(100).Add(USD(200)) }, USD(300)},
		{"Subtract", func() Money { return USD(500).Subtract(USD(200)) }, USD(300)},
		{"Subtract negative", func() Money { return USD(200).Subtract(USD(500)) }, USD(-300)},
		{"SubtractFloor above", func() Money { return USD(500).SubtractFloor(USD(200)) }, USD(300)},
		{"SubtractFloor below", func() Money { return USD(200).SubtractFloor(USD(500)) }, USD(0)},
		{"SubtractFloor equal", func() Money { return USD(200).SubtractFloor(USD(200)) }, USD(0)},
		{"Negate", func() Money { return USD(100).Negate() }, USD(-100)},
		{"Min", func() Money { return USD(100).Min(USD(200)) }, USD(100)},
		{"Sum", func() Money { return Sum(USD(100), USD(200), USD(300)) }, USD(600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyComparisons(t *testing.T) {
	if !USD(100).LessThan(USD(200)) {
		t.Error("100 < 200 expected")
	}
	if !USD(200).GreaterThan(USD(100)) {
		t.Error("200 > 100 expected")
	}
	if !USD(0).IsZero() || USD(1).IsZero() {
		t.Error("IsZero mismatch")
	}
	if !USD(1).IsPositive() || USD(-1).IsPositive() {
		t.Error("IsPositive mismatch")
	}
	if !USD(-1).IsNegative() {
		t.Error("IsNegative mismatch")
	}
	if USD(100).SameCurrency(EUR(100)) {
		t.Error("usd and eur should not share currency")
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = USD(100).Add(EUR(100))
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Amount != 4900 || decoded.Currency != "usd" || decoded.Display != "$49.00" {
		t.Errorf("unexpected JSON: %+v", decoded)
	}
}

func TestFormatMajorNegative(t *testing.T) {
	if got := USD(-4950).FormatMajor(); got != "-49.50" {
		t.Errorf("FormatMajor: got %q, want %q", got, "-49.50")
	}
}
