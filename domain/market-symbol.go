package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// MarketSymbol identifies one instrument, e.g. btc/usdt.
type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	base = strings.ToLower(strings.TrimSpace(base))
	quote = strings.ToLower(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return nil, errors.New("base and quote must not be empty")
	}
	if base == quote {
		return nil, errors.New("base and quote must be different")
	}
	return &MarketSymbol{
		BaseAsset:  base,
		QuoteAsset: quote,
	}, nil
}

// NewMarketSymbolFromString parses the "base_quote" form used in configuration.
func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	split := strings.Split(s, "_")
	if len(split) != 2 {
		return nil, errors.Errorf("invalid symbol string %q", s)
	}
	return NewMarketSymbol(split[0], split[1])
}

func (ms *MarketSymbol) Join(separator string) string {
	return fmt.Sprintf("%s%s%s", ms.BaseAsset, separator, ms.QuoteAsset)
}

// Instrument is the lowercase exchange name, used for stream topics and segment files.
func (ms *MarketSymbol) Instrument() string {
	return ms.Join("")
}

// RestSymbol is the uppercase form the REST api expects.
func (ms *MarketSymbol) RestSymbol() string {
	return strings.ToUpper(ms.Join(""))
}

func (ms *MarketSymbol) String() string {
	return ms.Join("_")
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return ms.BaseAsset == other.BaseAsset && ms.QuoteAsset == other.QuoteAsset
}
