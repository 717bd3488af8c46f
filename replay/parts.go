package replay

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

var partIndex = regexp.MustCompile(`_part(\d+)\.zip$`)

type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SortParts orders archive part paths by their part number.
func SortParts(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return partNumber(paths[i]) < partNumber(paths[j])
	})
}

func partNumber(path string) int {
	m := partIndex.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// Open returns the concatenated contents of inputs in order. Plain segment
// files are read as is; zip parts contribute the bytes of every entry.
func Open(inputs []string) (io.ReadCloser, error) {
	mc := &multiCloser{}
	readers := make([]io.Reader, 0, len(inputs))

	for _, path := range inputs {
		if !strings.HasSuffix(path, ".zip") {
			f, err := os.Open(path)
			if err != nil {
				_ = mc.Close()
				return nil, errors.Wrap(err, "open segment")
			}
			mc.closers = append(mc.closers, f)
			readers = append(readers, f)
			continue
		}

		zr, err := zip.OpenReader(path)
		if err != nil {
			_ = mc.Close()
			return nil, errors.Wrapf(err, "open part %s", path)
		}
		mc.closers = append(mc.closers, zr)

		for _, entry := range zr.File {
			rc, err := entry.Open()
			if err != nil {
				_ = mc.Close()
				return nil, errors.Wrapf(err, "open entry %s in %s", entry.Name, path)
			}
			mc.closers = append(mc.closers, rc)
			readers = append(readers, rc)
		}
	}

	mc.Reader = io.MultiReader(readers...)
	return mc, nil
}
