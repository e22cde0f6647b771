package rates

import (
	"context"

	"github.com/clinic/backend/internal/domain/currency"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// StaticSource serves a fixed rate table. It backs deployments without a
// live provider and is the fallback seed when the provider is down at boot.
type StaticSource struct {
	table currency.RateTable
}

// NewStaticSource creates a StaticSource from configured fallback rates
func NewStaticSource(usdRate, eurRate float64) *StaticSource {
	table := currency.RateTable{}
	if usdRate > 0 {
		table[valueobject.USD] = decimal.NewFromFloat(usdRate)
	}
	if eurRate > 0 {
		table[valueobject.EUR] = decimal.NewFromFloat(eurRate)
	}
	return &StaticSource{table: table}
}

// FetchRates returns the configured table
func (s *StaticSource) FetchRates(ctx context.Context) (currency.RateTable, error) {
	return s.table.Clone(), nil
}

// Ensure StaticSource implements RateSource
var _ currency.RateSource = (*StaticSource)(nil)
