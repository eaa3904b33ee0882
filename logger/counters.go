package logger

import (
	"sort"
	"sync"
	"sync/atomic"
)

type levelCounts struct {
	warns  int64
	errors int64
}

var components sync.Map // map[string]*levelCounts

// ComponentCounts is the number of warnings and errors logged by one
// component since start-up.
type ComponentCounts struct {
	Component string
	Warns     int64
	Errors    int64
}

func countsFor(component string) *levelCounts {
	v, _ := components.LoadOrStore(component, &levelCounts{})
	return v.(*levelCounts)
}

func recordWarn(component string) {
	atomic.AddInt64(&countsFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&countsFor(component).errors, 1)
}

// Counts returns the warn and error tallies of every component, sorted by
// component name.
func Counts() []ComponentCounts {
	var out []ComponentCounts
	components.Range(func(k, v any) bool {
		c := v.(*levelCounts)
		out = append(out, ComponentCounts{
			Component: k.(string),
			Warns:     atomic.LoadInt64(&c.warns),
			Errors:    atomic.LoadInt64(&c.errors),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}
