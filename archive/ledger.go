package archive

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
)

const entryPrefix = "segment:"

type PartState struct {
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Path     string `json:"path"`
	Uploaded bool   `json:"uploaded"`
}

// Entry tracks the parts of one segment until every part is confirmed.
type Entry struct {
	ID          string      `json:"id"`
	Instrument  string      `json:"instrument"`
	SegmentPath string      `json:"segmentPath"`
	Parts       []PartState `json:"parts"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func (e *Entry) Pending() int {
	n := 0
	for _, p := range e.Parts {
		if !p.Uploaded {
			n++
		}
	}
	return n
}

// Ledger persists archive progress across restarts.
type Ledger struct {
	db *badger.DB
}

func OpenLedger(path string) (*Ledger, error) {
	return openLedger(badger.DefaultOptions(path))
}

func OpenInMemoryLedger() (*Ledger, error) {
	return openLedger(badger.DefaultOptions("").WithInMemory(true))
}

func openLedger(opts badger.Options) (*Ledger, error) {
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open archive ledger")
	}
	return &Ledger{db: db}, nil
}

func entryKey(segmentPath string) []byte {
	return []byte(entryPrefix + filepath.Base(segmentPath))
}

func (l *Ledger) Put(entry *Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encode ledger entry")
	}
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(entry.SegmentPath), value)
	})
}

func (l *Ledger) Get(segmentPath string) (*Entry, bool, error) {
	var entry *Entry
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(segmentPath))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			entry = &Entry{}
			return json.Unmarshal(v, entry)
		})
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "read ledger entry")
	}
	return entry, entry != nil, nil
}

func (l *Ledger) Delete(segmentPath string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(segmentPath))
	})
}

// Pending returns every entry that still has parts to upload, oldest first.
func (l *Ledger) Pending() ([]Entry, error) {
	var entries []Entry
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry Entry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &entry)
			}); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan ledger")
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].SegmentPath < entries[j].SegmentPath
	})
	return entries, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}
