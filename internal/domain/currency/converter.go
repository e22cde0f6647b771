package currency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// RateTable maps a currency to its exchange rate, expressed as units of the
// accounting currency per one foreign unit. The accounting currency itself
// always carries a rate of exactly 1.
type RateTable map[valueobject.Currency]decimal.Decimal

// Clone returns a deep copy of the table
func (t RateTable) Clone() RateTable {
	out := make(RateTable, len(t))
	for c, r := range t {
		out[c] = r
	}
	return out
}

// RateSource fetches live exchange rates from an external provider.
// Implementations live in the infrastructure layer.
type RateSource interface {
	// FetchRates retrieves the current rate table. Rates are best-effort;
	// callers fall back to cached rates on error.
	FetchRates(ctx context.Context) (RateTable, error)
}

// CurrencyAmount is an (amount, currency) pair prior to normalization
type CurrencyAmount struct {
	Amount   decimal.Decimal      `json:"amount"`
	Currency valueobject.Currency `json:"currency"`
}

// ConversionResult carries a converted amount together with the rate used,
// so callers can record the rate that was in effect at conversion time.
type ConversionResult struct {
	Amount       decimal.Decimal      `json:"amount"`
	From         valueobject.Currency `json:"from"`
	To           valueobject.Currency `json:"to"`
	RateUsed     decimal.Decimal      `json:"rate_used"` // Units of `to` per unit of `from`
	RateAsOf     time.Time            `json:"rate_as_of"`
	AmountInBase decimal.Decimal      `json:"amount_in_base"`
}

// Converter converts between supported currencies through the accounting
// currency. It is safe for concurrent use; rate updates swap the table
// under a write lock.
type Converter struct {
	mu        sync.RWMutex
	rates     RateTable
	updatedAt time.Time
}

// NewConverter creates a converter seeded with the given rate table.
// The accounting currency's rate is forced to 1 regardless of input.
func NewConverter(rates RateTable) *Converter {
	seeded := rates.Clone()
	if seeded == nil {
		seeded = RateTable{}
	}
	seeded[valueobject.DefaultCurrency] = decimal.NewFromInt(1)
	return &Converter{
		rates:     seeded,
		updatedAt: time.Now(),
	}
}

// UpdateRates replaces the rate table. Called after a successful live fetch.
func (c *Converter) UpdateRates(rates RateTable) {
	seeded := rates.Clone()
	seeded[valueobject.DefaultCurrency] = decimal.NewFromInt(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rates = seeded
	c.updatedAt = time.Now()
}

// LastUpdated returns when the rate table was last replaced
func (c *Converter) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Rates returns a copy of the current rate table
func (c *Converter) Rates() RateTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rates.Clone()
}

// rate returns the accounting-currency rate for a supported currency
func (c *Converter) rate(code valueobject.Currency) (decimal.Decimal, error) {
	if !valueobject.IsSupportedCurrency(code) {
		return decimal.Zero, shared.NewDomainError("UNSUPPORTED_CURRENCY",
			fmt.Sprintf("Currency %s is not supported", code))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rates[code]
	if !ok || r.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, shared.NewDomainError("RATE_UNAVAILABLE",
			fmt.Sprintf("No exchange rate available for %s", code))
	}
	return r, nil
}

// Convert converts an amount between two supported currencies. Cross rates
// go through the accounting currency: from -> base -> to.
func (c *Converter) Convert(amount decimal.Decimal, from, to valueobject.Currency) (*ConversionResult, error) {
	fromRate, err := c.rate(from)
	if err != nil {
		return nil, err
	}
	toRate, err := c.rate(to)
	if err != nil {
		return nil, err
	}

	inBase := amount.Mul(fromRate)
	converted := inBase.Div(toRate).Round(2)
	rateUsed := fromRate.Div(toRate)

	c.mu.RLock()
	asOf := c.updatedAt
	c.mu.RUnlock()

	return &ConversionResult{
		Amount:       converted,
		From:         from,
		To:           to,
		RateUsed:     rateUsed,
		RateAsOf:     asOf,
		AmountInBase: inBase.Round(2),
	}, nil
}

// ToBase converts an amount in any supported currency to the accounting currency
func (c *Converter) ToBase(amount decimal.Decimal, from valueobject.Currency) (*ConversionResult, error) {
	return c.Convert(amount, from, valueobject.DefaultCurrency)
}

// CalculateMultiCurrencyTotal sums (amount, currency) pairs into one
// accounting-currency total. Every currency code is validated before any
// summation starts, so an invalid code fails the whole call with nothing
// partially summed.
func (c *Converter) CalculateMultiCurrencyTotal(payments []CurrencyAmount) (valueobject.Money, error) {
	for _, p := range payments {
		if _, err := c.rate(p.Currency); err != nil {
			return valueobject.Money{}, err
		}
	}

	total := decimal.Zero
	for _, p := range payments {
		res, err := c.ToBase(p.Amount, p.Currency)
		if err != nil {
			return valueobject.Money{}, err
		}
		total = total.Add(res.AmountInBase)
	}

	return valueobject.NewMoneyCDF(total), nil
}

// CalculateChange computes the overpayment once all tendered amounts are
// normalized to the accounting currency. A negative result means the patient
// underpaid; it is returned as-is, never clamped to zero.
func (c *Converter) CalculateChange(owed valueobject.Money, tendered []CurrencyAmount) (valueobject.Money, error) {
	if owed.Currency() != valueobject.DefaultCurrency {
		res, err := c.ToBase(owed.Amount(), owed.Currency())
		if err != nil {
			return valueobject.Money{}, err
		}
		owed = valueobject.NewMoneyCDF(res.AmountInBase)
	}

	total, err := c.CalculateMultiCurrencyTotal(tendered)
	if err != nil {
		return valueobject.Money{}, err
	}

	return valueobject.NewMoneyCDF(total.Amount().Sub(owed.Amount())), nil
}
