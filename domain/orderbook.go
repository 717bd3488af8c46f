package domain

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Side int

const (
	SideAsk Side = iota
	SideBid
)

type bookLevel struct {
	price decimal.Decimal
	raw   PriceLevel
}

type delta struct {
	key   string
	level bookLevel
	zero  bool
}

// BookState is the synchronizer's working view of one instrument's book.
// The zero value is Unsynced. Levels are keyed by the canonical decimal form
// of the price so "50000.0" and "50000.00" address the same level, and a zero
// quantity is never stored.
//
// Not safe for concurrent use: it is owned by a single maintainer goroutine.
type BookState struct {
	synced       bool
	LastUpdateID int64
	Time         int64

	asks map[string]bookLevel
	bids map[string]bookLevel
}

func NewBookState() *BookState {
	return &BookState{}
}

func (b *BookState) Synced() bool {
	return b.synced
}

// Reset drops the book back to Unsynced.
func (b *BookState) Reset() {
	*b = BookState{}
}

// Adopt replaces the whole state with the snapshot and marks the book Synced.
func (b *BookState) Adopt(s *Snapshot) error {
	asks, err := buildSide(s.Asks)
	if err != nil {
		return NewDataError("bad ask level in snapshot", err)
	}
	bids, err := buildSide(s.Bids)
	if err != nil {
		return NewDataError("bad bid level in snapshot", err)
	}

	b.asks = asks
	b.bids = bids
	b.LastUpdateID = s.LastUpdateId
	b.Time = 0
	b.synced = true
	return nil
}

// Apply merges the event deltas into the book and moves it to the event's
// final update id. Every level is parsed before anything is mutated, so a bad
// event leaves the book untouched.
func (b *BookState) Apply(e *DepthEvent) error {
	if !b.synced {
		return errors.New("apply on unsynced book")
	}

	askDeltas, err := parseDeltas(e.Asks)
	if err != nil {
		return NewDataError("bad ask level", err)
	}
	bidDeltas, err := parseDeltas(e.Bids)
	if err != nil {
		return NewDataError("bad bid level", err)
	}

	mergeSide(b.asks, askDeltas)
	mergeSide(b.bids, bidDeltas)

	b.LastUpdateID = e.FinalUpdateId
	b.Time = e.EventTime
	return nil
}

// Advance moves the sequence position without materializing the deltas.
func (b *BookState) Advance(e *DepthEvent) {
	b.LastUpdateID = e.FinalUpdateId
}

// Level returns the stored quantity at price, if any.
func (b *BookState) Level(side Side, price string) (string, bool) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return "", false
	}

	levels := b.asks
	if side == SideBid {
		levels = b.bids
	}
	level, ok := levels[p.String()]
	if !ok {
		return "", false
	}
	return level.raw.Quantity(), true
}

func (b *BookState) Depth() (asks int, bids int) {
	return len(b.asks), len(b.bids)
}

// Asks returns the ask side sorted by ascending price.
func (b *BookState) Asks() []PriceLevel {
	return sortedSide(b.asks, false)
}

// Bids returns the bid side sorted by descending price.
func (b *BookState) Bids() []PriceLevel {
	return sortedSide(b.bids, true)
}

func buildSide(levels []PriceLevel) (map[string]bookLevel, error) {
	side := make(map[string]bookLevel, len(levels))
	deltas, err := parseDeltas(levels)
	if err != nil {
		return nil, err
	}
	mergeSide(side, deltas)
	return side, nil
}

func parseDeltas(levels []PriceLevel) ([]delta, error) {
	deltas := make([]delta, 0, len(levels))
	for i, level := range levels {
		price, qty, err := parseLevel(level)
		if err != nil {
			return nil, errors.Wrapf(err, "level %d", i)
		}
		deltas = append(deltas, delta{
			key:   price.String(),
			level: bookLevel{price: price, raw: level},
			zero:  qty.IsZero(),
		})
	}
	return deltas, nil
}

func mergeSide(side map[string]bookLevel, deltas []delta) {
	for _, d := range deltas {
		if d.zero {
			delete(side, d.key)
			continue
		}
		side[d.key] = d.level
	}
}

func sortedSide(side map[string]bookLevel, descending bool) []PriceLevel {
	levels := make([]bookLevel, 0, len(side))
	for _, level := range side {
		levels = append(levels, level)
	}

	sort.Slice(levels, func(i, j int) bool {
		if descending {
			return levels[i].price.GreaterThan(levels[j].price)
		}
		return levels[i].price.LessThan(levels[j].price)
	})

	result := make([]PriceLevel, len(levels))
	for i, level := range levels {
		result[i] = level.raw
	}
	return result
}
