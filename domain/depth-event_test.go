package domain_test

import (
	"testing"

	"github.com/spooky-finn/go-depth-recorder/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDepthEvent(t *testing.T) {
	raw := `{"e":"depthUpdate","E":1700000000000,"s":"BTCUSDT","U":157,"u":160,"b":[["0.0024","10"]],"a":[["0.0026","100"]]}`

	tests := []struct {
		name string
		msg  string
	}{
		{"Raw", raw},
		{"Envelope", `{"stream":"btcusdt@depth","data":` + raw + `}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := domain.DecodeDepthEvent([]byte(tt.msg))
			require.NoError(t, err)

			assert.Equal(t, "depthUpdate", e.Event)
			assert.Equal(t, int64(1700000000000), e.EventTime)
			assert.Equal(t, "BTCUSDT", e.Symbol)
			assert.Equal(t, int64(157), e.FirstUpdateId)
			assert.Equal(t, int64(160), e.FinalUpdateId)
			assert.Equal(t, []domain.PriceLevel{{"0.0024", "10"}}, e.Bids)
			assert.Equal(t, []domain.PriceLevel{{"0.0026", "100"}}, e.Asks)
		})
	}
}

func TestDecodeDepthEvent_Malformed(t *testing.T) {
	tests := []struct {
		name string
		msg  string
	}{
		{"NotJson", `{"e":`},
		{"MissingFirstId", `{"E":1,"u":2,"b":[],"a":[]}`},
		{"MissingFinalId", `{"E":1,"U":2,"b":[],"a":[]}`},
		{"MissingEventTime", `{"U":1,"u":2,"b":[],"a":[]}`},
		{"InvertedRange", `{"E":1,"U":5,"u":4,"b":[],"a":[]}`},
		{"ShortLevel", `{"E":1,"U":1,"u":2,"b":[["1"]],"a":[]}`},
		{"NonNumericPrice", `{"E":1,"U":1,"u":2,"b":[["x","1"]],"a":[]}`},
		{"NegativeQuantity", `{"E":1,"U":1,"u":2,"b":[],"a":[["1","-1"]]}`},
		{"NumberInsteadOfString", `{"E":1,"U":1,"u":2,"b":[[1,2]],"a":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.DecodeDepthEvent([]byte(tt.msg))
			require.Error(t, err)
			assert.True(t, domain.IsDataError(err), "expected a data error, got %v", err)
		})
	}
}

func TestDecodeSnapshot(t *testing.T) {
	s, err := domain.DecodeSnapshot([]byte(`{"lastUpdateId":1027024,"bids":[["4.00000000","431.00000000"]],"asks":[["4.00000200","12.00000000"]]}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1027024), s.LastUpdateId)
	assert.Equal(t, []domain.PriceLevel{{"4.00000000", "431.00000000"}}, s.Bids)
	assert.Equal(t, []domain.PriceLevel{{"4.00000200", "12.00000000"}}, s.Asks)

	_, err = domain.DecodeSnapshot([]byte(`{"bids":[],"asks":[]}`))
	assert.True(t, domain.IsDataError(err))

	_, err = domain.DecodeSnapshot([]byte(`<html>`))
	assert.True(t, domain.IsDataError(err))
}
