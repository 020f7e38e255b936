// Package currency converts amounts between the supported currencies.
package currency

import (
	"fmt"
	"strings"
)

type Code string

const (
	EUR Code = "EUR"
	USD Code = "USD"
	GBP Code = "GBP"
)

// KindUnsupportedCurrency is the error kind of conversions with an unsupported currency code
const KindUnsupportedCurrency = "UnsupportedCurrency"

// ParseCode returns the currency for the given code. Codes are matched exactly, "usd" is not USD.
func ParseCode(code string) (Code, error) {
	switch c := Code(code); c {
	case EUR, USD, GBP:
		return c, nil
	}

	return "", &UnsupportedCurrencyError{Code: code}
}

// lower returns the code as used by the rate tables
func (c Code) lower() string {
	return strings.ToLower(string(c))
}

// UnsupportedCurrencyError is returned for currency codes that are not supported. No retry can fix
// such a conversion.
type UnsupportedCurrencyError struct {
	Code string
}

func (e *UnsupportedCurrencyError) Error() string {
	return fmt.Sprintf("unsupported currency %q", e.Code)
}

func (e *UnsupportedCurrencyError) Kind() string {
	return KindUnsupportedCurrency
}

func (e *UnsupportedCurrencyError) Permanent() bool {
	return true
}

// InvalidAmountError is returned when the amount to convert is not a decimal number
type InvalidAmountError struct {
	Amount string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %q", e.Amount)
}

func (e *InvalidAmountError) Kind() string {
	return "InvalidAmount"
}

func (e *InvalidAmountError) Permanent() bool {
	return true
}

// UpstreamError is returned when the rate source fails or returns an unusable rate table. These
// errors are transient.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("currency rates: %s: %v", e.Message, e.Err)
	}

	return "currency rates: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Kind() string {
	return "CurrencyUpstream"
}
