package replay

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/domain"
)

var ErrNoBaseline = errors.New("update before any snapshot")

// Reconstruct replays an ESSENTIAL-UPDATES log from r and writes one full
// book line to w for every update. A snapshot record resets the baseline.
// It stops at the first update that does not continue the sequence.
func Reconstruct(r io.Reader, w io.Writer) (int, error) {
	dec := json.NewDecoder(r)
	out := bufio.NewWriter(w)
	enc := json.NewEncoder(out)

	book := domain.NewBookState()
	written := 0

	for n := 1; ; n++ {
		var record domain.Record
		if err := dec.Decode(&record); err == io.EOF {
			break
		} else if err != nil {
			return written, errors.Wrapf(err, "record %d", n)
		}

		switch record.Kind {
		case domain.RecordSnapshot:
			if record.Snapshot == nil {
				return written, errors.Errorf("record %d: snapshot record without snapshot", n)
			}
			if err := book.Adopt(record.Snapshot); err != nil {
				return written, errors.Wrapf(err, "record %d", n)
			}

		case domain.RecordUpdate:
			if record.Update == nil {
				return written, errors.Errorf("record %d: update record without update", n)
			}
			if !book.Synced() {
				return written, errors.Wrapf(ErrNoBaseline, "record %d", n)
			}
			if err := domain.CheckUpdate(book.LastUpdateID, record.Update); err != nil {
				return written, errors.Wrapf(err, "record %d", n)
			}
			if err := book.Apply(record.Update); err != nil {
				return written, errors.Wrapf(err, "record %d", n)
			}
			if err := enc.Encode(domain.NewBookRecord(record.Symbol, book)); err != nil {
				return written, errors.Wrap(err, "write book")
			}
			written++

		default:
			return written, errors.Errorf("record %d: cannot replay %q records", n, record.Kind)
		}
	}

	return written, errors.Wrap(out.Flush(), "flush output")
}
