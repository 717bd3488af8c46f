package domain

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCheckUpdate(t *testing.T) {
	tests := []struct {
		name     string
		last     int64
		U, u     int64
		expected error
	}{
		// U <= last+1 && u >= last+1
		{"Straddles", 123, 123, 124, nil},
		{"Contiguous", 123, 124, 140, nil},
		// u == last is still applicable
		{"EndsAtLast", 124, 123, 124, nil},
		{"Outdated", 124, 100, 123, ErrUpdateOutdated},
		{"Gap", 122, 125, 136, ErrSequenceGap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckUpdate(tt.last, &DepthEvent{FirstUpdateId: tt.U, FinalUpdateId: tt.u})
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.expected), "got %v", err)
		})
	}
}

func TestIsUsable(t *testing.T) {
	book := NewBookState()
	e := &DepthEvent{FirstUpdateId: 101, FinalUpdateId: 105}
	assert.False(t, IsUsable(book, e), "unsynced book is never usable")

	book.synced = true
	book.LastUpdateID = 100
	assert.True(t, IsUsable(book, e))

	assert.False(t, IsUsable(book, &DepthEvent{FirstUpdateId: 105, FinalUpdateId: 110}))
}

func TestIsApplicable(t *testing.T) {
	book := &BookState{synced: true, LastUpdateID: 100}

	assert.True(t, IsApplicable(book, &DepthEvent{FirstUpdateId: 90, FinalUpdateId: 100}))
	assert.True(t, IsApplicable(book, &DepthEvent{FirstUpdateId: 101, FinalUpdateId: 101}))
	assert.False(t, IsApplicable(book, &DepthEvent{FirstUpdateId: 90, FinalUpdateId: 99}))
}

func TestParsePersistMode(t *testing.T) {
	tests := []struct {
		in       string
		expected PersistMode
		wantErr  bool
	}{
		{"FULL-CONSTRUCTED", FullConstructed, false},
		{"full_constructed", FullConstructed, false},
		{"ESSENTIAL-UPDATES", EssentialUpdates, false},
		{" ESSENTIAL_UPDATES ", EssentialUpdates, false},
		{"everything", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := ParsePersistMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}
