package domain

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// PriceLevel is a [price, quantity] pair as sent by the exchange.
// Both values stay decimal strings so nothing is lost to float rounding.
type PriceLevel [2]string

func (l PriceLevel) Price() string    { return l[0] }
func (l PriceLevel) Quantity() string { return l[1] }

// DepthEvent is one diff message of the depth stream.
type DepthEvent struct {
	Event         string       `json:"e,omitempty"`
	EventTime     int64        `json:"E"`
	Symbol        string       `json:"s,omitempty"`
	FirstUpdateId int64        `json:"U"`
	FinalUpdateId int64        `json:"u"`
	Bids          []PriceLevel `json:"b"`
	Asks          []PriceLevel `json:"a"`
}

// Snapshot is the authoritative book returned by the REST depth endpoint.
type Snapshot struct {
	LastUpdateId int64        `json:"lastUpdateId"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// DataError marks input that can never be processed, as opposed to a
// transient failure. The offending unit is dropped.
type DataError struct {
	Reason string
	Err    error
}

func NewDataError(reason string, err error) *DataError {
	return &DataError{Reason: reason, Err: err}
}

func (e *DataError) Error() string {
	if e.Err == nil {
		return "malformed data: " + e.Reason
	}
	return "malformed data: " + e.Reason + ": " + e.Err.Error()
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// IsDataError reports whether err (or anything it wraps) is a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}

type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type depthEventWire struct {
	Event         string     `json:"e"`
	EventTime     *int64     `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateId *int64     `json:"U"`
	FinalUpdateId *int64     `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

type snapshotWire struct {
	LastUpdateId *int64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// DecodeDepthEvent parses a stream message. Both the raw payload and the
// combined-stream envelope {"stream":..,"data":{..}} are accepted.
func DecodeDepthEvent(msg []byte) (DepthEvent, error) {
	var envelope streamEnvelope
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return DepthEvent{}, NewDataError("unparseable json", err)
	}

	payload := msg
	if len(envelope.Data) > 0 {
		payload = envelope.Data
	}

	var wire depthEventWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return DepthEvent{}, NewDataError("unparseable depth event", err)
	}

	switch {
	case wire.FirstUpdateId == nil:
		return DepthEvent{}, NewDataError("missing field U", nil)
	case wire.FinalUpdateId == nil:
		return DepthEvent{}, NewDataError("missing field u", nil)
	case wire.EventTime == nil:
		return DepthEvent{}, NewDataError("missing field E", nil)
	}

	bids, err := toPriceLevels(wire.Bids)
	if err != nil {
		return DepthEvent{}, NewDataError("bad bid level", err)
	}
	asks, err := toPriceLevels(wire.Asks)
	if err != nil {
		return DepthEvent{}, NewDataError("bad ask level", err)
	}

	event := DepthEvent{
		Event:         wire.Event,
		EventTime:     *wire.EventTime,
		Symbol:        wire.Symbol,
		FirstUpdateId: *wire.FirstUpdateId,
		FinalUpdateId: *wire.FinalUpdateId,
		Bids:          bids,
		Asks:          asks,
	}
	if err := event.Validate(); err != nil {
		return DepthEvent{}, err
	}
	return event, nil
}

// Validate checks the rules a decoded event must satisfy before it can
// reach the synchronizer.
func (e *DepthEvent) Validate() error {
	if e.FirstUpdateId <= 0 || e.FinalUpdateId <= 0 {
		return NewDataError("update ids must be positive", nil)
	}
	if e.FirstUpdateId > e.FinalUpdateId {
		return NewDataError(
			"inverted update range",
			errors.Errorf("U=%d > u=%d", e.FirstUpdateId, e.FinalUpdateId),
		)
	}
	if err := validateLevels(e.Bids); err != nil {
		return NewDataError("bad bid level", err)
	}
	if err := validateLevels(e.Asks); err != nil {
		return NewDataError("bad ask level", err)
	}
	return nil
}

// DecodeSnapshot parses the body of the REST depth endpoint.
func DecodeSnapshot(body []byte) (*Snapshot, error) {
	var wire snapshotWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, NewDataError("unparseable snapshot", err)
	}
	if wire.LastUpdateId == nil {
		return nil, NewDataError("missing field lastUpdateId", nil)
	}

	bids, err := toPriceLevels(wire.Bids)
	if err != nil {
		return nil, NewDataError("bad bid level", err)
	}
	asks, err := toPriceLevels(wire.Asks)
	if err != nil {
		return nil, NewDataError("bad ask level", err)
	}
	if err := validateLevels(bids); err != nil {
		return nil, NewDataError("bad bid level", err)
	}
	if err := validateLevels(asks); err != nil {
		return nil, NewDataError("bad ask level", err)
	}

	return &Snapshot{
		LastUpdateId: *wire.LastUpdateId,
		Bids:         bids,
		Asks:         asks,
	}, nil
}

func toPriceLevels(raw [][]string) ([]PriceLevel, error) {
	levels := make([]PriceLevel, 0, len(raw))
	for i, pair := range raw {
		if len(pair) != 2 {
			return nil, errors.Errorf("level %d has %d elements, want 2", i, len(pair))
		}
		levels = append(levels, PriceLevel{pair[0], pair[1]})
	}
	return levels, nil
}

func validateLevels(levels []PriceLevel) error {
	for i, level := range levels {
		if _, _, err := parseLevel(level); err != nil {
			return errors.Wrapf(err, "level %d", i)
		}
	}
	return nil
}

func parseLevel(level PriceLevel) (price, qty decimal.Decimal, err error) {
	price, err = decimal.NewFromString(level.Price())
	if err != nil {
		return price, qty, errors.Wrapf(err, "price %q", level.Price())
	}
	if !price.IsPositive() {
		return price, qty, errors.Errorf("price %q must be positive", level.Price())
	}
	qty, err = decimal.NewFromString(level.Quantity())
	if err != nil {
		return price, qty, errors.Wrapf(err, "quantity %q", level.Quantity())
	}
	if qty.IsNegative() {
		return price, qty, errors.Errorf("quantity %q must not be negative", level.Quantity())
	}
	return price, qty, nil
}
