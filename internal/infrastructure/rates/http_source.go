// Package rates provides exchange rate sources for the currency converter.
// Rates are quoted as units of the accounting currency (CDF) per one
// foreign unit.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clinic/backend/internal/domain/currency"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

var (
	// ErrProviderUnavailable is returned when the rate provider cannot be reached
	ErrProviderUnavailable = errors.New("rates: provider unavailable")
	// ErrInvalidResponse is returned when the provider response cannot be parsed
	ErrInvalidResponse = errors.New("rates: invalid provider response")
)

// ratesResponseBody is the wire format of the provider's rate quote
type ratesResponseBody struct {
	Base  string            `json:"base"`
	Rates map[string]string `json:"rates"`
	AsOf  *time.Time        `json:"as_of,omitempty"`
}

// HTTPSource fetches live rates from an external provider over HTTP
type HTTPSource struct {
	providerURL string
	apiKey      string
	httpClient  *http.Client
}

// NewHTTPSource creates a new HTTPSource
func NewHTTPSource(providerURL, apiKey string, timeout time.Duration) (*HTTPSource, error) {
	if providerURL == "" {
		return nil, errors.New("rates: missing provider URL")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		providerURL: providerURL,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// FetchRates retrieves the current rate table from the provider.
// Unsupported currencies in the response are ignored.
func (s *HTTPSource) FetchRates(ctx context.Context) (currency.RateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.providerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rates: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-Api-Key", s.apiKey)
	}

	q := req.URL.Query()
	q.Set("base", string(valueobject.DefaultCurrency))
	req.URL.RawQuery = q.Encode()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("rates: failed to read response: %w", err)
	}

	var parsed ratesResponseBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if parsed.Base != "" && parsed.Base != string(valueobject.DefaultCurrency) {
		return nil, fmt.Errorf("%w: unexpected base %q", ErrInvalidResponse, parsed.Base)
	}
	if len(parsed.Rates) == 0 {
		return nil, fmt.Errorf("%w: empty rate table", ErrInvalidResponse)
	}

	table := currency.RateTable{}
	for code, raw := range parsed.Rates {
		c := valueobject.Currency(code)
		if !valueobject.IsSupportedCurrency(c) {
			continue
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil || rate.LessThanOrEqual(decimal.Zero) {
			return nil, fmt.Errorf("%w: bad rate %q for %s", ErrInvalidResponse, raw, code)
		}
		table[c] = rate
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: no supported currencies in response", ErrInvalidResponse)
	}

	return table, nil
}

// Ensure HTTPSource implements RateSource
var _ currency.RateSource = (*HTTPSource)(nil)
