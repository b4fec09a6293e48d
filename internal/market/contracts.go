// Package market carries futures market reference data: instrument
// specifications, contract code arithmetic, and the best-effort trading
// hours calendar used to label persisted bars.
package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// InstrumentSpec describes the static trading specification for one
// futures instrument root.
type InstrumentSpec struct {
	FullName     string
	TickSize     float64
	PointValue   float64
	Currency     string
	Exchange     string
	ExchangeCode string
	// Months lists the contract month codes the instrument trades
	// (quarterly H/M/U/Z for the index futures).
	Months []string
}

// monthCodes maps futures month letters to calendar months.
var monthCodes = map[byte]time.Month{
	'F': time.January, 'G': time.February, 'H': time.March,
	'J': time.April, 'K': time.May, 'M': time.June,
	'N': time.July, 'Q': time.August, 'U': time.September,
	'V': time.October, 'X': time.November, 'Z': time.December,
}

// codeForMonth is the inverse of monthCodes.
var codeForMonth = map[time.Month]byte{
	time.January: 'F', time.February: 'G', time.March: 'H',
	time.April: 'J', time.May: 'K', time.June: 'M',
	time.July: 'N', time.August: 'Q', time.September: 'U',
	time.October: 'V', time.November: 'X', time.December: 'Z',
}

// instrumentSpecs holds the supported instrument roots. CME index futures
// trade nearly 24/6 on the quarterly cycle.
var instrumentSpecs = map[string]InstrumentSpec{
	"NQ": {
		FullName:     "E-mini NASDAQ 100",
		TickSize:     0.25,
		PointValue:   20.0,
		Currency:     "USD",
		Exchange:     "CME",
		ExchangeCode: "XCME",
		Months:       []string{"H", "M", "U", "Z"},
	},
	"ES": {
		FullName:     "E-mini S&P 500",
		TickSize:     0.25,
		PointValue:   50.0,
		Currency:     "USD",
		Exchange:     "CME",
		ExchangeCode: "XCME",
		Months:       []string{"H", "M", "U", "Z"},
	},
	"YM": {
		FullName:     "E-mini Dow Jones",
		TickSize:     1.0,
		PointValue:   5.0,
		Currency:     "USD",
		Exchange:     "CBOT",
		ExchangeCode: "XCBT",
		Months:       []string{"H", "M", "U", "Z"},
	},
	"RTY": {
		FullName:     "E-mini Russell 2000",
		TickSize:     0.10,
		PointValue:   50.0,
		Currency:     "USD",
		Exchange:     "CME",
		ExchangeCode: "XCME",
		Months:       []string{"H", "M", "U", "Z"},
	},
}

// exchangeCodes maps exchange names to their standardized MIC-style codes.
var exchangeCodes = map[string]string{
	"CME":   "XCME",
	"CBOT":  "XCBT",
	"NYMEX": "XNYM",
	"COMEX": "XCEC",
	"ICE":   "IFUS",
}

// Spec returns the instrument specification for a base symbol.
// The second return value reports whether the symbol is known.
func Spec(symbol string) (InstrumentSpec, bool) {
	spec, ok := instrumentSpecs[strings.ToUpper(symbol)]
	return spec, ok
}

// Symbols returns the supported instrument roots in sorted order.
func Symbols() []string {
	out := make([]string, 0, len(instrumentSpecs))
	for s := range instrumentSpecs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ExtractSymbol returns the base instrument symbol from a full contract
// code, e.g. "NQZ24" -> "NQ". Codes that do not end in a month letter and
// two-digit year are returned unchanged.
func ExtractSymbol(contract string) string {
	if len(contract) < 4 {
		return contract
	}
	tail := contract[len(contract)-3:]
	if _, ok := monthCodes[tail[0]]; !ok {
		return contract
	}
	if tail[1] < '0' || tail[1] > '9' || tail[2] < '0' || tail[2] > '9' {
		return contract
	}
	return contract[:len(contract)-3]
}

// ExchangeFor returns the exchange name for a contract code, defaulting
// to CME for unknown instrument roots.
func ExchangeFor(contract string) string {
	if spec, ok := Spec(ExtractSymbol(contract)); ok {
		return spec.Exchange
	}
	return "CME"
}

// ExchangeCodeFor returns the standardized exchange code for a contract,
// defaulting to XCME for unknown instrument roots.
func ExchangeCodeFor(contract string) string {
	if spec, ok := Spec(ExtractSymbol(contract)); ok {
		return spec.ExchangeCode
	}
	return "XCME"
}

// ExchangeCode returns the standardized code for an exchange name. Unknown
// exchanges are returned upper-cased.
func ExchangeCode(exchange string) string {
	if code, ok := exchangeCodes[strings.ToUpper(exchange)]; ok {
		return code
	}
	return strings.ToUpper(exchange)
}

// ContractCode builds the contract code for an instrument root, contract
// month, and year, e.g. ContractCode("NQ", time.December, 2024) -> "NQZ24".
func ContractCode(symbol string, month time.Month, year int) string {
	return fmt.Sprintf("%s%c%02d", strings.ToUpper(symbol), codeForMonth[month], year%100)
}

// quarterlyMonths is the standard expiry cycle for the major index futures.
var quarterlyMonths = []time.Month{time.March, time.June, time.September, time.December}

// GenerateContracts returns the active quarterly contract codes for the
// given instrument roots as of now: the front month plus the following
// quarters, capped at four codes overall. When symbols is empty the NQ and
// ES roots are used.
func GenerateContracts(symbols []string, now time.Time) []string {
	if len(symbols) == 0 {
		symbols = []string{"NQ", "ES"}
	}

	var contracts []string
	seen := make(map[string]bool)

	for _, symbol := range symbols {
		for ahead := 0; ahead < 4; ahead++ {
			target := now.AddDate(0, ahead, 0)
			month, year := nextQuarterly(target.Month(), target.Year())

			code := ContractCode(symbol, month, year)
			if !seen[code] {
				seen[code] = true
				contracts = append(contracts, code)
			}
		}
	}

	if len(contracts) > 4 {
		contracts = contracts[:4]
	}
	return contracts
}

// nextQuarterly returns the first quarterly expiry month at or after the
// given month, rolling the year when the cycle wraps past December.
func nextQuarterly(month time.Month, year int) (time.Month, int) {
	for _, q := range quarterlyMonths {
		if q >= month {
			return q, year
		}
	}
	return quarterlyMonths[0], year + 1
}
