package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

const DefaultEndpoint = "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1"

type HTTPOptions struct {
	// Endpoint serving rate tables at {Endpoint}/currencies/{code}.json. Defaults to DefaultEndpoint.
	Endpoint string

	Timeout time.Duration

	// CacheTTL is how long rate tables are reused. 0 disables caching.
	CacheTTL time.Duration

	// BreakerFailures is the number of consecutive failures that open the circuit breaker. Defaults to 5.
	BreakerFailures uint32

	// BreakerTimeout is how long the breaker stays open before probing again. Defaults to 30s.
	BreakerTimeout time.Duration
}

type rateTable map[string]json.RawMessage

// HTTPRateProvider fetches rate tables from a public currency API
type HTTPRateProvider struct {
	client  *resty.Client
	cache   *ttlcache.Cache[Code, rateTable]
	breaker *gobreaker.CircuitBreaker[rateTable]
}

var _ RateProvider = (*HTTPRateProvider)(nil)

func NewHTTPRateProvider(options HTTPOptions) *HTTPRateProvider {
	if options.Endpoint == "" {
		options.Endpoint = DefaultEndpoint
	}

	if options.BreakerFailures == 0 {
		options.BreakerFailures = 5
	}

	if options.BreakerTimeout == 0 {
		options.BreakerTimeout = time.Second * 30
	}

	client := resty.New().
		SetBaseURL(options.Endpoint).
		SetHeader("Accept", "application/json")

	if options.Timeout > 0 {
		client.SetTimeout(options.Timeout)
	}

	p := &HTTPRateProvider{
		client: client,
		breaker: gobreaker.NewCircuitBreaker[rateTable](gobreaker.Settings{
			Name:    "currency-rates",
			Timeout: options.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= options.BreakerFailures
			},
		}),
	}

	if options.CacheTTL > 0 {
		p.cache = ttlcache.New(ttlcache.WithTTL[Code, rateTable](options.CacheTTL))
	}

	return p
}

func (p *HTTPRateProvider) Rate(ctx context.Context, from, to Code) (decimal.Decimal, error) {
	table, err := p.table(ctx, from)
	if err != nil {
		return decimal.Zero, err
	}

	raw, ok := table[to.lower()]
	if !ok {
		return decimal.Zero, &UpstreamError{Message: fmt.Sprintf("rate table for %v has no entry for %v", from, to)}
	}

	rate, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, &UpstreamError{Message: fmt.Sprintf("rate %v/%v is not numeric", from, to), Err: err}
	}

	return rate, nil
}

func (p *HTTPRateProvider) table(ctx context.Context, from Code) (rateTable, error) {
	if p.cache != nil {
		if i := p.cache.Get(from); i != nil {
			return i.Value(), nil
		}
	}

	table, err := p.breaker.Execute(func() (rateTable, error) {
		return p.fetch(ctx, from)
	})
	if err != nil {
		return nil, &UpstreamError{Message: fmt.Sprintf("fetching rates for %v", from), Err: err}
	}

	if p.cache != nil {
		p.cache.Set(from, table, ttlcache.DefaultTTL)
	}

	return table, nil
}

func (p *HTTPRateProvider) fetch(ctx context.Context, from Code) (rateTable, error) {
	res, err := p.client.R().
		SetContext(ctx).
		SetPathParam("code", from.lower()).
		Get("/currencies/{code}.json")
	if err != nil {
		return nil, err
	}

	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", res.StatusCode())
	}

	// {"date": "2024-01-01", "eur": {"usd": 1.1, ...}}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	raw, ok := body[from.lower()]
	if !ok {
		return nil, fmt.Errorf("response has no rate table for %v", from)
	}

	var table rateTable
	if err := json.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("decoding rate table: %w", err)
	}

	return table, nil
}
