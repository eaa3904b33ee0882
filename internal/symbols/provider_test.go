package symbols

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "klinevault/config"
	"klinevault/internal/model"
)

var fallback = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider([]appconfig.StaticSymbol{
		{Name: "ethusdt"},
		{Name: "BTCUSDT", OnboardDate: "2019-09-25"},
		{Name: "ETHUSDT", OnboardDate: "2020-01-01"},
	}, fallback)

	got, err := p.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d symbols, want 2", len(got))
	}
	if got[0].Name != "BTCUSDT" || !got[0].OnboardDate.Equal(time.Date(2019, 9, 25, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Name != "ETHUSDT" || !got[1].OnboardDate.Equal(fallback) {
		t.Errorf("second = %+v", got[1])
	}
}

func TestStaticProviderInvalidDate(t *testing.T) {
	p := NewStaticProvider([]appconfig.StaticSymbol{{Name: "BTCUSDT", OnboardDate: "25/09/2019"}}, fallback)
	if _, err := p.Symbols(context.Background()); err == nil {
		t.Fatal("expected error for bad onboard date")
	}
}

func TestExchangeFilter(t *testing.T) {
	p := NewExchangeProvider(model.USDM, "", []string{"usdt"}, fallback)
	got := p.filter([]listing{
		{name: "ETHUSDT", trading: true, quote: "USDT", onboardMs: 1574812800000},
		{name: "BTCUSDT", trading: true, quote: "USDT"},
		{name: "BTCBUSD", trading: true, quote: "BUSD", onboardMs: 1574812800000},
		{name: "LUNAUSDT", trading: false, quote: "USDT", onboardMs: 1574812800000},
	})
	if len(got) != 2 {
		t.Fatalf("got %v", got)
	}
	if got[0].Name != "BTCUSDT" || !got[0].OnboardDate.Equal(fallback) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Name != "ETHUSDT" || !got[1].OnboardDate.Equal(time.Date(2019, 11, 27, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("second = %+v", got[1])
	}
}

func TestExchangeProviderFutures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/exchangeInfo" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"timezone":"UTC","serverTime":1700000000000,"rateLimits":[],"symbols":[
			{"symbol":"BTCUSDT","status":"TRADING","quoteAsset":"USDT","onboardDate":1569398400000},
			{"symbol":"OLDUSDT","status":"SETTLING","quoteAsset":"USDT","onboardDate":1569398400000}
		]}`))
	}))
	defer srv.Close()

	p := NewExchangeProvider(model.USDM, srv.URL, nil, fallback)
	got, err := p.Symbols(context.Background())
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	if len(got) != 1 || got[0].Name != "BTCUSDT" {
		t.Fatalf("got %v", got)
	}
	if !got[0].OnboardDate.Equal(time.Date(2019, 9, 25, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("onboard = %v", got[0].OnboardDate)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := appconfig.Default()
	cfg.Universe.Source = appconfig.UniverseStatic
	p, err := FromConfig(&cfg, model.Spot)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*StaticProvider); !ok {
		t.Fatalf("expected static provider, got %T", p)
	}

	cfg.Universe.Source = appconfig.UniverseExchange
	if p, _ := FromConfig(&cfg, model.Spot); p == nil {
		t.Fatal("expected exchange provider")
	}

	cfg.Universe.FallbackOnboardDate = "never"
	if _, err := FromConfig(&cfg, model.Spot); err == nil {
		t.Fatal("expected error for bad fallback date")
	}
}
