// Package source turns stored tables into a stream of sliding windows for
// downstream consumers.
package source

import (
	"context"
	"errors"
	"fmt"

	"klinevault/internal/model"
	"klinevault/logger"
)

// ErrNoData is returned when the requested table does not exist or is
// shorter than the lookback.
var ErrNoData = errors.New("source: no data")

// Kind tells data events from the end-of-stream marker.
type Kind int

const (
	Data Kind = iota
	Stop
)

func (k Kind) String() string {
	if k == Stop {
		return "stop"
	}
	return "data"
}

// Event carries one window of bars. Window is nil for Stop events.
type Event struct {
	Kind   Kind
	Window *model.Table
}

// Source produces windows of lookback bars.
type Source interface {
	Start(ctx context.Context, lookback int) error
}

// Loader reads a stored table; it returns nil when none exists.
type Loader interface {
	Load(symbol, timeframe string) (*model.Table, error)
}

// StoreSource replays a stored table.
type StoreSource struct {
	loader    Loader
	symbol    string
	timeframe string
	events    chan<- Event
	log       *logger.Log
}

// NewStoreSource replays symbol at timeframe into events. An empty
// timeframe selects the canonical table.
func NewStoreSource(loader Loader, symbol, timeframe string, events chan<- Event) *StoreSource {
	return &StoreSource{
		loader:    loader,
		symbol:    symbol,
		timeframe: timeframe,
		events:    events,
		log:       logger.GetLogger(),
	}
}

// Start emits every window of lookback consecutive bars, oldest first. The
// last window ends with the newest bar. A Stop event follows the final
// window. Start blocks until every event is delivered or ctx is done.
func (s *StoreSource) Start(ctx context.Context, lookback int) error {
	if lookback <= 0 {
		return fmt.Errorf("source: lookback must be positive, got %d", lookback)
	}
	table, err := s.loader.Load(s.symbol, s.timeframe)
	if err != nil {
		return err
	}
	if table.Len() == 0 {
		return fmt.Errorf("%w for symbol %s", ErrNoData, s.symbol)
	}
	if table.Len() < lookback {
		return fmt.Errorf("%w: %s has %d bars, lookback is %d", ErrNoData, s.symbol, table.Len(), lookback)
	}

	windows := 0
	for end := lookback; end <= table.Len(); end++ {
		if err := s.send(ctx, Event{Kind: Data, Window: table.Slice(end-lookback, lookback)}); err != nil {
			return err
		}
		windows++
	}
	if err := s.send(ctx, Event{Kind: Stop}); err != nil {
		return err
	}

	s.log.WithComponent("source").WithSymbol(s.symbol).WithFields(logger.Fields{
		"timeframe": s.timeframe,
		"lookback":  lookback,
		"windows":   windows,
	}).Debug("replay finished")
	return nil
}

func (s *StoreSource) send(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
