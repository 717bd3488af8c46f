package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	SegmentExt   = ".jsonl"
	bucketLayout = "2006-01-02_15"
)

// Segment is one instrument's append-only log for one UTC hour.
type Segment struct {
	Instrument string
	Hour       time.Time
	Path       string
}

func HourBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

func SegmentName(instrument string, hour time.Time) string {
	return fmt.Sprintf("%s_%s%s", instrument, hour.UTC().Format(bucketLayout), SegmentExt)
}

func NewSegment(dir, instrument string, t time.Time) Segment {
	hour := HourBucket(t)
	return Segment{
		Instrument: instrument,
		Hour:       hour,
		Path:       filepath.Join(dir, SegmentName(instrument, hour)),
	}
}

// ParseSegmentPath recovers the instrument and hour from a segment file name.
func ParseSegmentPath(path string) (Segment, bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, SegmentExt) {
		return Segment{}, false
	}
	stem := strings.TrimSuffix(name, SegmentExt)
	if len(stem) < len(bucketLayout)+2 || stem[len(stem)-len(bucketLayout)-1] != '_' {
		return Segment{}, false
	}

	hour, err := time.Parse(bucketLayout, stem[len(stem)-len(bucketLayout):])
	if err != nil {
		return Segment{}, false
	}
	return Segment{
		Instrument: stem[:len(stem)-len(bucketLayout)-1],
		Hour:       hour,
		Path:       path,
	}, true
}

// BaseName is the file name without its extension.
func (s Segment) BaseName() string {
	return strings.TrimSuffix(filepath.Base(s.Path), SegmentExt)
}
