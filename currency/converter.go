package currency

import (
	"context"
	"fmt"

	"github.com/cschleiden/loanflow/backend/metrics"
	"github.com/cschleiden/loanflow/internal/metrickeys"
	mi "github.com/cschleiden/loanflow/internal/metrics"
	"github.com/shopspring/decimal"
)

// RateProvider returns the rate to convert one unit of from into to
type RateProvider interface {
	Rate(ctx context.Context, from, to Code) (decimal.Decimal, error)
}

type Converter struct {
	provider RateProvider
	metrics  metrics.Client
}

type ConverterOption func(*Converter)

func WithMetrics(mc metrics.Client) ConverterOption {
	return func(c *Converter) {
		c.metrics = mc
	}
}

func NewConverter(provider RateProvider, opts ...ConverterOption) *Converter {
	c := &Converter{
		provider: provider,
		metrics:  mi.NewNoopMetricsClient(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Convert returns amount * rate(from, to). Amounts are decimal strings, converting a currency into
// itself does not consult the rate provider.
func (c *Converter) Convert(ctx context.Context, amount string, from, to string) (string, error) {
	fromCode, err := ParseCode(from)
	if err != nil {
		return "", err
	}

	toCode, err := ParseCode(to)
	if err != nil {
		return "", err
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return "", &InvalidAmountError{Amount: amount}
	}

	tags := metrics.Tags{metrickeys.CurrencyPair: string(fromCode) + "/" + string(toCode)}

	if fromCode == toCode {
		c.metrics.Counter(metrickeys.CurrencyConversions, tags, 1)
		return value.String(), nil
	}

	rate, err := c.provider.Rate(ctx, fromCode, toCode)
	if err != nil {
		return "", fmt.Errorf("getting rate %v/%v: %w", fromCode, toCode, err)
	}

	c.metrics.Counter(metrickeys.CurrencyConversions, tags, 1)

	return value.Mul(rate).String(), nil
}

// StaticRateProvider serves fixed rates. Rates are keyed by "FROM/TO", inverse rates are not derived.
type StaticRateProvider map[string]decimal.Decimal

func (p StaticRateProvider) Rate(_ context.Context, from, to Code) (decimal.Decimal, error) {
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	r, ok := p[string(from)+"/"+string(to)]
	if !ok {
		return decimal.Zero, &UpstreamError{Message: fmt.Sprintf("no rate for %v/%v", from, to)}
	}

	return r, nil
}
