package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		name       string
		base       string
		pct        string
		commission string
		share      string
	}{
		{"ten percent", "500", "10", "50", "450"},
		{"rounds to paise", "333.33", "12.5", "41.67", "291.66"},
		{"zero commission", "799", "0", "0", "799"},
		{"negative pct clamps", "100", "-5", "0", "100"},
		{"pct above hundred clamps", "100", "150", "100", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Split(decimal.RequireFromString(tc.base), decimal.RequireFromString(tc.pct))
			if !got.Commission.Equal(decimal.RequireFromString(tc.commission)) {
				t.Fatalf("commission: expected %s got %s", tc.commission, got.Commission)
			}
			if !got.TechnicianShare.Equal(decimal.RequireFromString(tc.share)) {
				t.Fatalf("share: expected %s got %s", tc.share, got.TechnicianShare)
			}
			if !got.Commission.Add(got.TechnicianShare).Equal(got.Base) || !got.Total.Equal(got.Base) {
				t.Fatalf("split does not add up: %+v", got)
			}
		})
	}
}

func TestMinorUnits(t *testing.T) {
	if got := MinorUnits(decimal.RequireFromString("450.5")); got != 45050 {
		t.Fatalf("expected 45050 got %d", got)
	}
	if got := MinorUnits(decimal.RequireFromString("0.005")); got != 1 {
		t.Fatalf("expected 1 got %d", got)
	}
}
