package main

import (
	"flag"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spooky-finn/go-depth-recorder/infrastructure/logger"
	"github.com/spooky-finn/go-depth-recorder/replay"
	"go.uber.org/zap"
)

// runReplay rebuilds full books from an ESSENTIAL-UPDATES segment or from
// the zip parts of one.
func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	output := fs.String("o", "reconstructed.jsonl", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	inputs := fs.Args()
	if len(inputs) == 0 {
		return errors.New("usage: depth-recorder replay [-o out.jsonl] segment.jsonl | part1.zip part2.zip ...")
	}
	if allZip(inputs) {
		replay.SortParts(inputs)
	}

	log := logger.New(logger.Config{Level: "info"}).Named("replay")
	defer func() { _ = log.Sync() }()

	in, err := replay.Open(inputs)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(*output)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	defer out.Close()

	n, err := replay.Reconstruct(in, out)
	log.Info("replay finished", zap.Int("books", n), zap.String("output", *output))
	if err != nil {
		return err
	}
	return out.Sync()
}

func allZip(paths []string) bool {
	for _, p := range paths {
		if !strings.HasSuffix(p, ".zip") {
			return false
		}
	}
	return true
}
