package domain

type RecordKind string

const (
	RecordSnapshot RecordKind = "snapshot"
	RecordUpdate   RecordKind = "update"
	RecordBook     RecordKind = "book"
)

// BookView is a fully materialized book as written in FULL-CONSTRUCTED mode.
type BookView struct {
	LastUpdateId int64        `json:"lastUpdateId"`
	Time         int64        `json:"time"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// Record is one line of a segment. Exactly one of Snapshot, Update and Book
// is set, matching Kind.
type Record struct {
	Kind         RecordKind  `json:"kind"`
	Symbol       string      `json:"symbol"`
	LastUpdateId int64       `json:"lastUpdateId"`
	Snapshot     *Snapshot   `json:"snapshot,omitempty"`
	Update       *DepthEvent `json:"update,omitempty"`
	Book         *BookView   `json:"book,omitempty"`
}

func NewSnapshotRecord(symbol string, s *Snapshot) Record {
	return Record{
		Kind:         RecordSnapshot,
		Symbol:       symbol,
		LastUpdateId: s.LastUpdateId,
		Snapshot:     s,
	}
}

func NewUpdateRecord(symbol string, e DepthEvent) Record {
	return Record{
		Kind:         RecordUpdate,
		Symbol:       symbol,
		LastUpdateId: e.FinalUpdateId,
		Update:       &e,
	}
}

// NewBookRecord copies the current book, so later merges never touch a
// record that is already queued for writing.
func NewBookRecord(symbol string, b *BookState) Record {
	return Record{
		Kind:         RecordBook,
		Symbol:       symbol,
		LastUpdateId: b.LastUpdateID,
		Book: &BookView{
			LastUpdateId: b.LastUpdateID,
			Time:         b.Time,
			Bids:         b.Bids(),
			Asks:         b.Asks(),
		},
	}
}
