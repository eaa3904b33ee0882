package model

import "time"

// RawHeader is the canonical column order of a kline archive CSV.
var RawHeader = []string{
	"open_time",
	"open",
	"high",
	"low",
	"close",
	"volume",
	"close_time",
	"quote_volume",
	"count",
	"taker_buy_volume",
	"taker_buy_quote_volume",
	"ignore",
}

// Bar is one OHLCV row of a canonical or resampled table.
type Bar struct {
	OpenTime            time.Time `json:"open_time"`
	Open                float64   `json:"open"`
	High                float64   `json:"high"`
	Low                 float64   `json:"low"`
	Close               float64   `json:"close"`
	Volume              float64   `json:"volume"`
	CloseTime           time.Time `json:"close_time"`
	QuoteVolume         float64   `json:"quote_volume"`
	Count               int64     `json:"count"`
	TakerBuyVolume      float64   `json:"taker_buy_volume"`
	TakerBuyQuoteVolume float64   `json:"taker_buy_quote_volume"`
	Ignore              float64   `json:"ignore"`
	LogReturn           float64   `json:"log_return"`
	CumReturn           float64   `json:"cum_return"`
}

// Table is a time-ordered series of bars for one symbol. An empty
// Timeframe denotes the canonical base-resolution table.
type Table struct {
	Symbol    string
	Timeframe string
	Bars      []Bar
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Bars)
}

// Slice returns a view of n rows starting at offset. The view shares the
// underlying bars.
func (t *Table) Slice(offset, n int) *Table {
	if offset < 0 {
		offset = 0
	}
	end := offset + n
	if end > len(t.Bars) {
		end = len(t.Bars)
	}
	if offset > end {
		offset = end
	}
	return &Table{Symbol: t.Symbol, Timeframe: t.Timeframe, Bars: t.Bars[offset:end]}
}

// First returns the earliest bar.
func (t *Table) First() (Bar, bool) {
	if t.Len() == 0 {
		return Bar{}, false
	}
	return t.Bars[0], true
}

// Last returns the latest bar.
func (t *Table) Last() (Bar, bool) {
	if t.Len() == 0 {
		return Bar{}, false
	}
	return t.Bars[len(t.Bars)-1], true
}
