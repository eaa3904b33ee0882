package symbols

import (
	"testing"
	"time"

	"klinevault/internal/model"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"btcusdt", "BTCUSDT"},
		{" BTC-USDT ", "BTCUSDT"},
		{"eth/usdt", "ETHUSDT"},
		{"btcusd_perp", "BTCUSD_PERP"},
		{"1000PEPEUSDT", "1000PEPEUSDT"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q)=%s want %s", tt.in, got, tt.want)
		}
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"ethusdt", "BTCUSDT", "", "btc-usdt", "ETHUSDT"})
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("Dedupe = %v", got)
	}
}

func TestSelect(t *testing.T) {
	universe := []model.Symbol{
		{Name: "BTCUSDT", OnboardDate: time.Date(2019, 9, 25, 0, 0, 0, 0, time.UTC)},
		{Name: "ETHUSDT", OnboardDate: time.Date(2019, 11, 27, 0, 0, 0, 0, time.UTC)},
	}

	all, err := Select(universe, nil)
	if err != nil || len(all) != 2 {
		t.Fatalf("Select(nil) = %v, %v", all, err)
	}

	picked, err := Select(universe, []string{"ethusdt"})
	if err != nil || len(picked) != 1 || !picked[0].OnboardDate.Equal(universe[1].OnboardDate) {
		t.Fatalf("Select(ethusdt) = %v, %v", picked, err)
	}

	if _, err := Select(universe, []string{"BTCUSDT", "DOGEUSDT"}); err == nil {
		t.Fatal("expected error for symbol outside universe")
	}
}
