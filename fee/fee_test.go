package fee

import (
	"testing"

	"github.com/fundflow/factoring/types"
)

func TestBasisPoints(t *testing.T) {
	tests := []struct {
		name   string
		bps    int64
		profit types.Money
		want   types.Money
	}{
		{"1% of 100k", 100, types.USD(100_000), types.USD(1_000)},
		{"2.5% of 100k", 250, types.USD(100_000), types.USD(2_500)},
		{"rounds down", 100, types.USD(199), types.USD(1)},
		{"zero profit", 100, types.USD(0), types.USD(0)},
		{"negative profit", 100, types.USD(-5_000), types.USD(0)},
		{"zero bps", 0, types.USD(100_000), types.USD(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BasisPoints(tt.bps).Fee(tt.profit)
			if !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFlat(t *testing.T) {
	calc := Flat(types.USD(500))

	if got := calc.Fee(types.USD(10_000)); !got.Equal(types.USD(500)) {
		t.Errorf("got %s, want $5.00", got)
	}
	// Fee never exceeds the profit it is charged on.
	if got := calc.Fee(types.USD(300)); !got.Equal(types.USD(300)) {
		t.Errorf("got %s, want $3.00", got)
	}
	if got := calc.Fee(types.USD(0)); !got.IsZero() {
		t.Errorf("got %s, want zero", got)
	}
	if got := calc.Fee(types.USD(-100)); !got.IsZero() {
		t.Errorf("got %s, want zero on loss", got)
	}
}

func TestNone(t *testing.T) {
	if got := None().Fee(types.USD(1_000_000)); !got.IsZero() {
		t.Errorf("got %s, want zero", got)
	}
}
