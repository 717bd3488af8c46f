package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// PersistMode selects what the synchronizer emits for storage.
type PersistMode string

const (
	// FullConstructed materializes and stores the whole book on every update.
	FullConstructed PersistMode = "FULL-CONSTRUCTED"
	// EssentialUpdates stores the snapshot baseline plus the raw diffs.
	EssentialUpdates PersistMode = "ESSENTIAL-UPDATES"
)

func ParsePersistMode(s string) (PersistMode, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	switch PersistMode(normalized) {
	case FullConstructed:
		return FullConstructed, nil
	case EssentialUpdates:
		return EssentialUpdates, nil
	}
	return "", errors.Errorf("unknown persist mode %q", s)
}

func (m *PersistMode) UnmarshalText(text []byte) error {
	mode, err := ParsePersistMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func (m PersistMode) String() string {
	return string(m)
}
