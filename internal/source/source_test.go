package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"klinevault/internal/model"
)

type tableLoader struct {
	table *model.Table
	err   error
}

func (l tableLoader) Load(string, string) (*model.Table, error) { return l.table, l.err }

func barsTable(n int) *model.Table {
	t := &model.Table{Symbol: "BTCUSDT", Timeframe: "1h"}
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		t.Bars = append(t.Bars, model.Bar{OpenTime: start.Add(time.Duration(i) * time.Hour), Close: float64(i + 1)})
	}
	return t
}

func collect(t *testing.T, src Source, events chan Event, lookback int) []Event {
	t.Helper()
	errc := make(chan error, 1)
	go func() {
		errc <- src.Start(context.Background(), lookback)
	}()

	var got []Event
	for ev := range events {
		got = append(got, ev)
		if ev.Kind == Stop {
			break
		}
	}
	if err := <-errc; err != nil {
		t.Fatalf("Start: %v", err)
	}
	return got
}

func TestStoreSourceWindows(t *testing.T) {
	events := make(chan Event)
	src := NewStoreSource(tableLoader{table: barsTable(5)}, "BTCUSDT", "1h", events)

	got := collect(t, src, events, 3)
	if len(got) != 4 {
		t.Fatalf("events = %d, want 3 windows plus stop", len(got))
	}
	for i, ev := range got[:3] {
		if ev.Kind != Data || ev.Window.Len() != 3 {
			t.Fatalf("event %d = %v len %d", i, ev.Kind, ev.Window.Len())
		}
		first, _ := ev.Window.First()
		if first.Close != float64(i+1) {
			t.Errorf("window %d starts at close %v", i, first.Close)
		}
	}
	last, _ := got[2].Window.Last()
	if last.Close != 5 {
		t.Errorf("final window ends at close %v, want newest bar", last.Close)
	}
	if got[3].Kind != Stop || got[3].Window != nil {
		t.Errorf("last event = %+v", got[3])
	}
}

func TestStoreSourceLookbackEqualsLength(t *testing.T) {
	events := make(chan Event, 4)
	src := NewStoreSource(tableLoader{table: barsTable(2)}, "BTCUSDT", "", events)
	got := collect(t, src, events, 2)
	if len(got) != 2 || got[0].Window.Len() != 2 || got[1].Kind != Stop {
		t.Fatalf("events = %+v", got)
	}
}

func TestStoreSourceErrors(t *testing.T) {
	events := make(chan Event, 1)
	ctx := context.Background()

	if err := NewStoreSource(tableLoader{}, "NOPE", "", events).Start(ctx, 3); !errors.Is(err, ErrNoData) {
		t.Errorf("missing table: %v", err)
	}
	if err := NewStoreSource(tableLoader{table: barsTable(2)}, "BTCUSDT", "", events).Start(ctx, 3); !errors.Is(err, ErrNoData) {
		t.Errorf("short table: %v", err)
	}
	if err := NewStoreSource(tableLoader{table: barsTable(2)}, "BTCUSDT", "", events).Start(ctx, 0); err == nil {
		t.Error("expected error for zero lookback")
	}
	boom := errors.New("disk")
	if err := NewStoreSource(tableLoader{err: boom}, "BTCUSDT", "", events).Start(ctx, 1); !errors.Is(err, boom) {
		t.Errorf("loader error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("events emitted on error: %d", len(events))
	}
}

func TestStoreSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := NewStoreSource(tableLoader{table: barsTable(3)}, "BTCUSDT", "", make(chan Event))
	if err := src.Start(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
