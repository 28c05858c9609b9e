package cache

import (
	"sort"
	"strings"
)

type PopularSymbolsKey struct {
	Market string
}

type HistoricalKey struct {
	Symbol string
	Period string
}

// PricesKey identifies a current-prices query by its canonical symbol
// set, so symbol order does not split the cache.
type PricesKey struct {
	Symbols string
}

func Prices(symbols []string) PricesKey {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)
	return PricesKey{Symbols: strings.Join(sorted, ",")}
}
