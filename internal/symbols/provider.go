// Package symbols resolves the set of instruments to sync and their
// onboard dates.
package symbols

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/delivery"
	futures "github.com/adshao/go-binance/v2/futures"

	appconfig "klinevault/config"
	"klinevault/internal/model"
	"klinevault/logger"
)

// Provider lists the symbols of one asset category.
type Provider interface {
	Symbols(ctx context.Context) ([]model.Symbol, error)
}

// FromConfig returns the provider selected by universe.source.
func FromConfig(cfg *appconfig.Config, category model.AssetCategory) (Provider, error) {
	fallback, err := time.Parse(appconfig.DateLayout, cfg.Universe.FallbackOnboardDate)
	if err != nil {
		return nil, fmt.Errorf("invalid fallback onboard date: %w", err)
	}

	switch cfg.Universe.Source {
	case appconfig.UniverseStatic:
		return NewStaticProvider(cfg.Universe.Symbols, fallback), nil
	case appconfig.UniverseExchange, "":
		return NewExchangeProvider(category, cfg.Universe.APIBaseURL, cfg.Universe.QuoteAssets, fallback), nil
	default:
		return nil, fmt.Errorf("unknown universe source %q", cfg.Universe.Source)
	}
}

// StaticProvider serves the symbols listed in configuration.
type StaticProvider struct {
	entries  []appconfig.StaticSymbol
	fallback time.Time
}

func NewStaticProvider(entries []appconfig.StaticSymbol, fallback time.Time) *StaticProvider {
	return &StaticProvider{entries: entries, fallback: fallback.UTC()}
}

func (p *StaticProvider) Symbols(context.Context) ([]model.Symbol, error) {
	out := make([]model.Symbol, 0, len(p.entries))
	seen := make(map[string]struct{}, len(p.entries))
	for _, e := range p.entries {
		name := Normalize(e.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		onboard := p.fallback
		if e.OnboardDate != "" {
			t, err := time.Parse(appconfig.DateLayout, e.OnboardDate)
			if err != nil {
				return nil, fmt.Errorf("symbol %s: invalid onboard date: %w", name, err)
			}
			onboard = t
		}
		out = append(out, model.Symbol{Name: name, OnboardDate: onboard})
	}
	sortSymbols(out)
	return out, nil
}

// listing is the exchange-independent view of one exchangeInfo entry.
type listing struct {
	name      string
	trading   bool
	quote     string
	onboardMs int64
}

// ExchangeProvider lists trading instruments from the Binance exchangeInfo
// endpoint of the category's market.
type ExchangeProvider struct {
	category model.AssetCategory
	baseURL  string
	quotes   map[string]struct{}
	fallback time.Time
	log      *logger.Log
}

func NewExchangeProvider(category model.AssetCategory, baseURL string, quoteAssets []string, fallback time.Time) *ExchangeProvider {
	quotes := make(map[string]struct{}, len(quoteAssets))
	for _, q := range quoteAssets {
		if q = strings.ToUpper(strings.TrimSpace(q)); q != "" {
			quotes[q] = struct{}{}
		}
	}
	return &ExchangeProvider{
		category: category,
		baseURL:  strings.TrimRight(baseURL, "/"),
		quotes:   quotes,
		fallback: fallback.UTC(),
		log:      logger.GetLogger(),
	}
}

func (p *ExchangeProvider) Symbols(ctx context.Context) ([]model.Symbol, error) {
	listings, err := p.listings(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange info for %s: %w", p.category, err)
	}
	out := p.filter(listings)

	p.log.WithComponent("symbols").WithFields(logger.Fields{
		"category": p.category.String(),
		"listed":   len(listings),
		"selected": len(out),
	}).Info("symbol universe resolved")
	return out, nil
}

func (p *ExchangeProvider) listings(ctx context.Context) ([]listing, error) {
	switch p.category {
	case model.Spot:
		client := binance.NewClient("", "")
		if p.baseURL != "" {
			client.BaseURL = p.baseURL
		}
		info, err := client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]listing, 0, len(info.Symbols))
		for _, s := range info.Symbols {
			out = append(out, listing{name: s.Symbol, trading: s.Status == "TRADING", quote: s.QuoteAsset})
		}
		return out, nil

	case model.USDM:
		client := futures.NewClient("", "")
		if p.baseURL != "" {
			client.BaseURL = p.baseURL
		}
		info, err := client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]listing, 0, len(info.Symbols))
		for _, s := range info.Symbols {
			out = append(out, listing{name: s.Symbol, trading: s.Status == "TRADING", quote: s.QuoteAsset, onboardMs: s.OnboardDate})
		}
		return out, nil

	case model.COINM:
		client := delivery.NewClient("", "")
		if p.baseURL != "" {
			client.BaseURL = p.baseURL
		}
		info, err := client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]listing, 0, len(info.Symbols))
		for _, s := range info.Symbols {
			out = append(out, listing{name: s.Symbol, trading: s.ContractStatus == "TRADING", quote: s.QuoteAsset, onboardMs: s.OnboardDate})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported asset category %q", p.category)
}

// filter keeps trading listings quoted in an allowed asset. Listings
// without an onboard date get the fallback date.
func (p *ExchangeProvider) filter(listings []listing) []model.Symbol {
	out := make([]model.Symbol, 0, len(listings))
	seen := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		if !l.trading {
			continue
		}
		if len(p.quotes) > 0 {
			if _, ok := p.quotes[strings.ToUpper(l.quote)]; !ok {
				continue
			}
		}
		name := Normalize(l.name)
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}

		onboard := p.fallback
		if l.onboardMs > 0 {
			onboard = model.FromEpoch(l.onboardMs)
		}
		out = append(out, model.Symbol{Name: name, OnboardDate: onboard})
	}
	sortSymbols(out)
	return out
}

func sortSymbols(s []model.Symbol) {
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
}
