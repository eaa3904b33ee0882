package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"klinevault/internal/model"
)

// ErrNoData is returned when a build produced no usable rows.
var ErrNoData = errors.New("store: no usable rows")

// BuildStats describes what happened to the input rows of a build.
type BuildStats struct {
	Files      int
	RowsRead   int
	Incomplete int
	Duplicates int
}

// Build merges the sanitized partition CSVs in files into one canonical
// table: rows with missing cells are dropped, rows are ordered by open
// time with duplicates removed (first occurrence wins) and the return
// columns are derived.
func Build(symbol string, files []string) (*model.Table, BuildStats, error) {
	var (
		stats BuildStats
		bars  []model.Bar
	)
	for _, path := range files {
		rows, incomplete, err := readPartition(path)
		if err != nil {
			return nil, stats, err
		}
		stats.Files++
		stats.RowsRead += len(rows) + incomplete
		stats.Incomplete += incomplete
		bars = append(bars, rows...)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].OpenTime.Before(bars[j].OpenTime) })
	bars, stats.Duplicates = dedupe(bars)

	if len(bars) == 0 {
		return nil, stats, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].OpenTime.After(bars[i-1].OpenTime) {
			return nil, stats, fmt.Errorf("store: open_time not strictly increasing at row %d", i)
		}
	}

	deriveReturns(bars)
	return &model.Table{Symbol: symbol, Bars: bars}, stats, nil
}

func dedupe(bars []model.Bar) ([]model.Bar, int) {
	if len(bars) < 2 {
		return bars, 0
	}
	out := bars[:1]
	for _, b := range bars[1:] {
		if b.OpenTime.Equal(out[len(out)-1].OpenTime) {
			continue
		}
		out = append(out, b)
	}
	return out, len(bars) - len(out)
}

// deriveReturns fills log_return and cum_return. The first row uses a
// previous close of 1.0.
func deriveReturns(bars []model.Bar) {
	prev, cum := 1.0, 0.0
	for i := range bars {
		lr := math.Log(bars[i].Close / prev)
		cum += lr
		bars[i].LogReturn = lr
		bars[i].CumReturn = cum
		prev = bars[i].Close
	}
}

// readPartition parses one sanitized CSV. Rows with a missing or
// unparseable cell are counted and skipped.
func readPartition(path string) ([]model.Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open partition: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var (
		bars       []model.Bar
		incomplete int
		first      = true
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("read partition %s: %w", path, err)
		}
		if first {
			first = false
			if isHeader(rec) {
				continue
			}
		}
		bar, ok := parseRow(rec)
		if !ok {
			incomplete++
			continue
		}
		bars = append(bars, bar)
	}
	return bars, incomplete, nil
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.TrimSpace(rec[0]) == model.RawHeader[0]
}

type rowParser struct {
	rec []string
	ok  bool
}

func (p *rowParser) float(i int) float64 {
	if !p.ok {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(p.rec[i]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.ok = false
		return 0
	}
	return v
}

func (p *rowParser) int(i int) int64 {
	if !p.ok {
		return 0
	}
	s := strings.TrimSpace(p.rec[i])
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			p.ok = false
			return 0
		}
		v = int64(f)
	}
	return v
}

func parseRow(rec []string) (model.Bar, bool) {
	if len(rec) != len(model.RawHeader) {
		return model.Bar{}, false
	}
	p := &rowParser{rec: rec, ok: true}
	b := model.Bar{
		OpenTime:            model.FromEpoch(p.int(0)),
		Open:                p.float(1),
		High:                p.float(2),
		Low:                 p.float(3),
		Close:               p.float(4),
		Volume:              p.float(5),
		CloseTime:           model.FromEpoch(p.int(6)),
		QuoteVolume:         p.float(7),
		Count:               p.int(8),
		TakerBuyVolume:      p.float(9),
		TakerBuyQuoteVolume: p.float(10),
		Ignore:              p.float(11),
	}
	// a non-positive close has no defined log return
	if !p.ok || b.Close <= 0 {
		return model.Bar{}, false
	}
	return b, true
}
