// README: Money arithmetic tests.
package types

import "testing"

func TestMoneyScale(t *testing.T) {
	cases := []struct {
		amount int64
		factor float64
		want   int64
	}{
		{1000, 1.10, 1100},
		{1000, 1.20, 1200},
		{999, 1.10, 1099},  // 1098.9 rounds up
		{105, 0.05, 5},     // 5.25 rounds down
		{110, 0.05, 6},     // 5.5 rounds half away from zero
		{1000, 1.0, 1000},
	}
	for _, c := range cases {
		got := Money{Amount: c.amount, Currency: "INR"}.Scale(c.factor)
		if got.Amount != c.want {
			t.Fatalf("Scale(%d, %v) = %d, want %d", c.amount, c.factor, got.Amount, c.want)
		}
		if got.Currency != "INR" {
			t.Fatalf("Scale dropped currency: %q", got.Currency)
		}
	}
}

func TestMoneyScaleCompounds(t *testing.T) {
	// Two consecutive escalation steps compound on the current price.
	p := Money{Amount: 1000, Currency: "INR"}
	p = p.Scale(1.10)
	p = p.Scale(1.20)
	if p.Amount != 1320 {
		t.Fatalf("compounded price = %d, want 1320", p.Amount)
	}
}

func TestMoneySub(t *testing.T) {
	total := Money{Amount: 1000, Currency: "INR"}
	commission := Money{Amount: 50, Currency: "INR"}
	share := total.Sub(commission)
	if share.Amount != 950 {
		t.Fatalf("Sub = %d, want 950", share.Amount)
	}
}
