package domain

import "github.com/pkg/errors"

var (
	// The book no longer covers the update: a range of ids was missed and the
	// book has to be resynchronized from a fresh snapshot.
	ErrSequenceGap = errors.New("order book update is out of sequence")
	// The update is older than the book and should just be skipped.
	ErrUpdateOutdated = errors.New("order book update is outdated")
)

// IsUsable reports whether the book can serve as the base for e: it must be
// synced and its next expected id must not be behind the event's first id.
func IsUsable(book *BookState, e *DepthEvent) bool {
	if !book.Synced() {
		return false
	}
	return book.LastUpdateID+1 >= e.FirstUpdateId
}

// IsApplicable reports whether e covers the book's current position or a
// later one. Lower ids are duplicates.
func IsApplicable(book *BookState, e *DepthEvent) bool {
	return e.FinalUpdateId >= book.LastUpdateID
}

// CheckUpdate classifies e against lastUpdateID. It returns nil when the
// event may be applied.
func CheckUpdate(lastUpdateID int64, e *DepthEvent) error {
	if lastUpdateID+1 < e.FirstUpdateId {
		return errors.Wrapf(ErrSequenceGap, "expected U <= %d, got U=%d", lastUpdateID+1, e.FirstUpdateId)
	}
	if e.FinalUpdateId < lastUpdateID {
		return errors.Wrapf(ErrUpdateOutdated, "u=%d < lastUpdateId=%d", e.FinalUpdateId, lastUpdateID)
	}
	return nil
}
