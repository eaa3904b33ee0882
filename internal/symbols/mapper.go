package symbols

import (
	"fmt"
	"sort"
	"strings"

	"klinevault/internal/model"
)

// Normalize converts user supplied symbol spellings to the archive form.
// Symbols are uppercased and "-" or "/" separators are removed; "_" is kept
// because coin-margined contracts use it (BTCUSD_PERP).
func Normalize(sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	sym = strings.ReplaceAll(sym, "/", "")
	sym = strings.ReplaceAll(sym, "-", "")
	return sym
}

// Dedupe normalizes names, drops blanks and duplicates, and returns them sorted.
func Dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = Normalize(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Select returns the universe entries matching names. An empty names list
// selects the whole universe.
func Select(universe []model.Symbol, names []string) ([]model.Symbol, error) {
	if len(names) == 0 {
		return universe, nil
	}
	index := make(map[string]model.Symbol, len(universe))
	for _, s := range universe {
		index[Normalize(s.Name)] = s
	}

	var (
		out     []model.Symbol
		missing []string
	)
	for _, n := range Dedupe(names) {
		s, ok := index[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		out = append(out, s)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("symbols not in universe: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
