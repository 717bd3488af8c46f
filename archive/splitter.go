package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/storage"
)

// Part is one compressed chunk of a segment.
type Part struct {
	Index int
	Total int
	Path  string
}

func PartName(base string, index int) string {
	return fmt.Sprintf("%s_part%d.zip", base, index)
}

// Split cuts the segment into chunks of at most maxPartSize raw bytes and
// writes each one as its own zip into outDir. Every zip holds a single
// entry named after the segment file. An empty segment yields no parts.
func Split(segment storage.Segment, outDir string, maxPartSize int64) ([]Part, error) {
	if maxPartSize <= 0 {
		return nil, errors.New("part size must be positive")
	}

	src, err := os.Open(segment.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open segment")
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat segment")
	}

	size := info.Size()
	total := int((size + maxPartSize - 1) / maxPartSize)
	entryName := filepath.Base(segment.Path)
	base := segment.BaseName()

	parts := make([]Part, 0, total)
	for i := 1; i <= total; i++ {
		chunk := maxPartSize
		if remaining := size - int64(i-1)*maxPartSize; remaining < chunk {
			chunk = remaining
		}

		part := Part{Index: i, Total: total, Path: filepath.Join(outDir, PartName(base, i))}
		if err := writePart(part.Path, entryName, src, chunk, info.ModTime()); err != nil {
			removeParts(append(parts, part))
			return nil, errors.Wrapf(err, "part %d/%d", i, total)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func writePart(path, entryName string, src io.Reader, n int64, modified time.Time) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(out)
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entryName,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return err
	}
	if _, err := io.CopyN(entry, src, n); err != nil {
		return errors.Wrap(err, "copy chunk")
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Sync()
}

func removeParts(parts []Part) {
	for _, p := range parts {
		_ = os.Remove(p.Path)
	}
}
