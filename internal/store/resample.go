package store

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"klinevault/internal/model"
)

// ParseTimeframe converts strings such as "5m", "1h" or "1w" into a
// bucket width.
func ParseTimeframe(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	n, err := strconv.Atoi(tf[:len(tf)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	var unit time.Duration
	switch tf[len(tf)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	case 'w':
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid timeframe %q", tf)
	}
	return time.Duration(n) * unit, nil
}

// Resample aggregates a canonical table into epoch-aligned, left-closed
// buckets of the given timeframe. Each bucket is labelled with its start.
// Week multiples start on Monday 00:00 UTC.
func Resample(t *model.Table, timeframe string) (*model.Table, error) {
	width, err := ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	ms := width.Milliseconds()
	origin := bucketOrigin(ms)

	out := &model.Table{Symbol: t.Symbol, Timeframe: timeframe}
	var (
		cur    *model.Bar
		curKey int64
	)
	for _, b := range t.Bars {
		key := bucketStart(b.OpenTime.UnixMilli(), ms, origin)
		if cur == nil || key != curKey {
			out.Bars = append(out.Bars, model.Bar{
				OpenTime: time.UnixMilli(key).UTC(),
				Open:     b.Open,
				High:     b.High,
				Low:      b.Low,
			})
			cur = &out.Bars[len(out.Bars)-1]
			curKey = key
		}
		cur.High = math.Max(cur.High, b.High)
		cur.Low = math.Min(cur.Low, b.Low)
		cur.Close = b.Close
		cur.CloseTime = b.CloseTime
		cur.Volume += b.Volume
		cur.QuoteVolume += b.QuoteVolume
		cur.Count += b.Count
		cur.TakerBuyVolume += b.TakerBuyVolume
		cur.TakerBuyQuoteVolume += b.TakerBuyQuoteVolume
		cur.LogReturn += b.LogReturn
		cur.CumReturn = b.CumReturn
	}
	return out, nil
}

const (
	weekMs = 7 * 24 * int64(time.Hour/time.Millisecond)
	// 1970-01-05, the first Monday after the Unix epoch.
	firstMondayMs = 4 * 24 * int64(time.Hour/time.Millisecond)
)

func bucketOrigin(width int64) int64 {
	if width%weekMs == 0 {
		return firstMondayMs
	}
	return 0
}

func bucketStart(ts, width, origin int64) int64 {
	rel := ts - origin
	k := rel / width
	if rel%width != 0 && rel < 0 {
		k--
	}
	return origin + k*width
}
