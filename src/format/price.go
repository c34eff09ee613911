package format

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPrice = errors.New("invalid price")
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidTime  = errors.New("invalid time")
)

// MaxPrice is the largest price accepted anywhere; listed prices sit far below it.
var MaxPrice = decimal.NewFromInt(10_000_000)

const maxPriceText = 24

// plainPrice is digits with an optional fraction; exponents are refused so a
// short input cannot expand into a huge number.
var plainPrice = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// PriceBracket is one row of the exchange tick-size table: [Lower, Upper) -> Unit.
// A bracket without an upper bound covers everything from Lower upwards.
type PriceBracket struct {
	Lower    decimal.Decimal
	Upper    decimal.Decimal
	Unbound  bool
	Unit     decimal.Decimal
	Decimals int32
}

// Contains reports whether price falls inside the bracket.
func (b PriceBracket) Contains(price decimal.Decimal) bool {
	if price.LessThan(b.Lower) {
		return false
	}
	return b.Unbound || price.LessThan(b.Upper)
}

// TWSEBrackets is the TWSE/TPEx tick-size table for stocks.
var TWSEBrackets = []PriceBracket{
	newBracket("0", "10", "0.01"),
	newBracket("10", "50", "0.05"),
	newBracket("50", "100", "0.1"),
	newBracket("100", "500", "0.5"),
	newBracket("500", "1000", "1.0"),
	newBracket("1000", "", "5.0"),
}

// -----------------------------------------------------------------------------

func newBracket(lower, upper, unit string) PriceBracket {
	u := decimal.RequireFromString(unit)
	b := PriceBracket{
		Lower:    decimal.RequireFromString(lower),
		Unit:     u,
		Decimals: -u.Exponent(),
	}
	if upper == "" {
		b.Unbound = true
	} else {
		b.Upper = decimal.RequireFromString(upper)
	}
	return b
}

// -----------------------------------------------------------------------------

// BracketFor finds the bracket holding price. Selection always uses the price as given.
func BracketFor(price decimal.Decimal) (PriceBracket, error) {
	if price.IsNegative() {
		return PriceBracket{}, fmt.Errorf("%w: %s is negative", ErrInvalidPrice, price.String())
	}
	if price.GreaterThan(MaxPrice) {
		return PriceBracket{}, fmt.Errorf("%w: above the maximum of %s", ErrInvalidPrice, MaxPrice.String())
	}
	for _, b := range TWSEBrackets {
		if b.Contains(price) {
			return b, nil
		}
	}
	// unreachable while the table starts at 0 and ends unbounded
	return PriceBracket{}, fmt.Errorf("%w: no tick bracket for %s", ErrInvalidPrice, price.String())
}

// -----------------------------------------------------------------------------

// RoundPrice snaps price to the nearest legal tick. Halves round away from zero.
func RoundPrice(price decimal.Decimal) (decimal.Decimal, error) {
	b, err := BracketFor(price)
	if err != nil {
		return decimal.Decimal{}, err
	}
	steps := price.Div(b.Unit).Round(0)
	return steps.Mul(b.Unit), nil
}

// -----------------------------------------------------------------------------

// FormatRoundedPrice rounds price and renders it with the decimals of its tick unit,
// e.g. 9.999 -> "10.00", 620.75 -> "621.0".
func FormatRoundedPrice(price decimal.Decimal) (string, error) {
	b, err := BracketFor(price)
	if err != nil {
		return "", err
	}
	rounded := price.Div(b.Unit).Round(0).Mul(b.Unit)
	return rounded.StringFixed(b.Decimals), nil
}

// -----------------------------------------------------------------------------

// ParsePrice reads a price from request text. Only plain decimals up to
// MaxPrice are accepted.
func ParsePrice(text string) (decimal.Decimal, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "-") {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is negative", ErrInvalidPrice, text)
	}
	if len(text) > maxPriceText || !plainPrice.MatchString(text) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a plain decimal number", ErrInvalidPrice, text)
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a number", ErrInvalidPrice, text)
	}
	if d.GreaterThan(MaxPrice) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is above the maximum of %s", ErrInvalidPrice, text, MaxPrice.String())
	}
	return d, nil
}
