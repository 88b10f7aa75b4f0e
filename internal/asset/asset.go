// Package asset represents tradeable instruments — stocks and options —
// and the factory that parses a symbol string into one or the other.
package asset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags which variant an Asset is.
type Kind int

const (
	KindStock Kind = iota
	KindOption
)

// OptionType distinguishes calls from puts.
type OptionType int

const (
	Call OptionType = iota
	Put
)

func (t OptionType) String() string {
	if t == Put {
		return "put"
	}
	return "call"
}

// stockSymbolRE matches 1-6 upper-case ASCII letters.
var stockSymbolRE = regexp.MustCompile(`^[A-Z]{1,6}$`)

// optionSymbolRE matches the OCC-style fixed-width encoding:
// SSSSSS (1-6 letters, space-padded conceptually but we require exact
// underlying-length slicing below) YYMMDD [C|P] NNNNNNNN.
var optionSymbolRE = regexp.MustCompile(`^[A-Z]{1,6}[0-9]{6}[CP][0-9]{8}$`)

// Asset is a closed tagged variant over Stock and Option. Callers switch on
// Kind() and use Option() only when Kind() == KindOption.
type Asset struct {
	kind   Kind
	symbol string // canonical, upper-cased

	// Option-only fields; zero values when kind == KindStock.
	underlying string
	optType    OptionType
	strike     decimal.Decimal
	expiration time.Time // date only, UTC midnight
}

// Multiplier is the number of underlying shares one unit of this asset
// represents: 100 for options, 1 for stock.
func (a Asset) Multiplier() int {
	if a.kind == KindOption {
		return 100
	}
	return 1
}

func (a Asset) Kind() Kind { return a.kind }

// Symbol returns the canonical, upper-cased symbol.
func (a Asset) Symbol() string { return a.symbol }

// Underlying returns the underlying stock's symbol. For a Stock asset this
// is its own symbol.
func (a Asset) Underlying() string {
	if a.kind == KindOption {
		return a.underlying
	}
	return a.symbol
}

func (a Asset) OptionType() OptionType { return a.optType }
func (a Asset) Strike() decimal.Decimal { return a.strike }
func (a Asset) Expiration() time.Time   { return a.expiration }

// IsOption reports whether this asset is an option contract.
func (a Asset) IsOption() bool { return a.kind == KindOption }

// Equal reports whether two assets share a canonical symbol.
func (a Asset) Equal(other Asset) bool { return a.symbol == other.symbol }

// String implements fmt.Stringer.
func (a Asset) String() string { return a.symbol }

// NewStock constructs a Stock asset from an already-validated 1-6 letter
// symbol. Prefer For() for untrusted input.
func NewStock(symbol string) (Asset, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !stockSymbolRE.MatchString(symbol) {
		return Asset{}, fmt.Errorf("asset: %q is not a valid stock symbol", symbol)
	}
	return Asset{kind: KindStock, symbol: symbol}, nil
}

// For is the factory named in the spec: it maps any string to the correct
// Asset variant, or returns an error describing why the symbol is invalid.
func For(symbol string) (Asset, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if stockSymbolRE.MatchString(symbol) {
		return Asset{kind: KindStock, symbol: symbol}, nil
	}
	if optionSymbolRE.MatchString(symbol) {
		return parseOption(symbol)
	}
	return Asset{}, fmt.Errorf("asset: %q is not a valid stock or option symbol", symbol)
}

// parseOption performs strictly positional decoding of an OCC-style
// symbol that has already matched optionSymbolRE. The underlying letters
// run up to the fixed-width trailer (6 digits date + 1 type char + 8
// digits strike = 15 chars), so the underlying length is len(symbol)-15.
func parseOption(symbol string) (Asset, error) {
	if len(symbol) < 15 {
		return Asset{}, fmt.Errorf("asset: %q too short for an option symbol", symbol)
	}
	trailerLen := 15
	underlyingLen := len(symbol) - trailerLen
	if underlyingLen < 1 || underlyingLen > 6 {
		return Asset{}, fmt.Errorf("asset: %q has an invalid underlying length", symbol)
	}

	underlying := symbol[:underlyingLen]
	dateDigits := symbol[underlyingLen : underlyingLen+6]
	typeChar := symbol[underlyingLen+6 : underlyingLen+7]
	strikeDigits := symbol[underlyingLen+7 : underlyingLen+15]

	expiration, err := parseExpirationDigits(dateDigits)
	if err != nil {
		return Asset{}, fmt.Errorf("asset: %q has an invalid expiration: %w", symbol, err)
	}

	var optType OptionType
	switch typeChar {
	case "C":
		optType = Call
	case "P":
		optType = Put
	default:
		return Asset{}, fmt.Errorf("asset: %q has an invalid option type %q", symbol, typeChar)
	}

	strikeThousandths, err := strconv.ParseInt(strikeDigits, 10, 64)
	if err != nil {
		return Asset{}, fmt.Errorf("asset: %q has an invalid strike field: %w", symbol, err)
	}
	strike := decimal.New(strikeThousandths, -3)
	if strike.Sign() <= 0 {
		return Asset{}, fmt.Errorf("asset: %q has a non-positive strike", symbol)
	}

	return Asset{
		kind:       KindOption,
		symbol:     symbol,
		underlying: underlying,
		optType:    optType,
		strike:     strike,
		expiration: expiration,
	}, nil
}

// parseExpirationDigits interprets YYMMDD as 20YY-MM-DD.
func parseExpirationDigits(digits string) (time.Time, error) {
	t, err := time.Parse("060102", digits)
	if err != nil {
		return time.Time{}, err
	}
	// time.Parse resolves a 2-digit year of 69-99 to 1969-1999; shift
	// those into 2069-2099 so every YY lands in 2000-2099.
	if t.Year() < 2000 {
		t = t.AddDate(100, 0, 0)
	}
	return t.UTC(), nil
}

// FormatOptionSymbol builds the canonical OCC-style symbol for an option,
// the inverse of parseOption. Used by tests asserting the round-trip
// invariant and by callers constructing synthetic option symbols.
func FormatOptionSymbol(underlying string, expiration time.Time, optType OptionType, strike decimal.Decimal) string {
	typeChar := "C"
	if optType == Put {
		typeChar = "P"
	}
	strikeThousandths := strike.Mul(decimal.New(1000, 0)).Round(0).IntPart()
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(underlying),
		expiration.Format("060102"),
		typeChar,
		strikeThousandths,
	)
}

// DaysToExpiration returns the (possibly negative) number of calendar
// days between asOf and the option's expiration date. Only meaningful for
// options.
func (a Asset) DaysToExpiration(asOf time.Time) int {
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	exp := time.Date(a.expiration.Year(), a.expiration.Month(), a.expiration.Day(), 0, 0, 0, 0, time.UTC)
	return int(exp.Sub(asOf).Hours() / 24)
}

// IntrinsicValue computes the option's intrinsic value given the
// underlying's price. Zero for stock assets (by convention, unused).
func (a Asset) IntrinsicValue(underlyingPrice decimal.Decimal) decimal.Decimal {
	if a.kind != KindOption {
		return decimal.Zero
	}
	var diff decimal.Decimal
	if a.optType == Call {
		diff = underlyingPrice.Sub(a.strike)
	} else {
		diff = a.strike.Sub(underlyingPrice)
	}
	if diff.Sign() < 0 {
		return decimal.Zero
	}
	return diff
}

// ExtrinsicValue is the option premium less its intrinsic value, floored
// at zero is NOT applied here — a negative result indicates a stale or
// inconsistent quote and is left for the caller to interpret.
func (a Asset) ExtrinsicValue(underlyingPrice, optionPrice decimal.Decimal) decimal.Decimal {
	return optionPrice.Sub(a.IntrinsicValue(underlyingPrice))
}

// IsPriceableOn reports whether this asset can, in principle, be quoted
// on the given date: stocks always are; options must not yet have expired.
func (a Asset) IsPriceableOn(date time.Time) bool {
	if a.kind == KindStock {
		return true
	}
	return a.DaysToExpiration(date) >= 0
}
