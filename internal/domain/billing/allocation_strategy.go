package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/domain/shared/strategy"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationStrategyType defines how a payment is distributed across invoices
type AllocationStrategyType string

const (
	AllocationStrategyOldestFirst   AllocationStrategyType = "OLDEST_FIRST"   // Oldest issue date first
	AllocationStrategySmallestFirst AllocationStrategyType = "SMALLEST_FIRST" // Smallest amount due first
	AllocationStrategyLargestFirst  AllocationStrategyType = "LARGEST_FIRST"  // Largest amount due first
	AllocationStrategyProportional  AllocationStrategyType = "PROPORTIONAL"   // Pro-rata by amount due
	AllocationStrategyManual        AllocationStrategyType = "MANUAL"         // Caller-specified per-invoice amounts
)

// IsValid checks if the strategy type is valid
func (t AllocationStrategyType) IsValid() bool {
	switch t {
	case AllocationStrategyOldestFirst, AllocationStrategySmallestFirst,
		AllocationStrategyLargestFirst, AllocationStrategyProportional,
		AllocationStrategyManual:
		return true
	}
	return false
}

// String returns the string representation
func (t AllocationStrategyType) String() string {
	return string(t)
}

// AllAllocationStrategyTypes returns all valid allocation strategy types
func AllAllocationStrategyTypes() []AllocationStrategyType {
	return []AllocationStrategyType{
		AllocationStrategyOldestFirst,
		AllocationStrategySmallestFirst,
		AllocationStrategyLargestFirst,
		AllocationStrategyProportional,
		AllocationStrategyManual,
	}
}

// AllocationTarget is an immutable snapshot of an outstanding invoice.
// Strategies compute over snapshots only and never touch aggregate state.
type AllocationTarget struct {
	InvoiceID     uuid.UUID
	InvoiceNumber string
	AmountDue     decimal.Decimal
	IssuedAt      time.Time
	CreatedAt     time.Time // Fallback ordering when issue dates tie
}

// AllocationLine represents a planned allocation to a single invoice
type AllocationLine struct {
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
}

// AllocationPlan is the complete result of an allocation strategy.
// Conservation invariant: TotalAllocated + Excess == the requested amount.
type AllocationPlan struct {
	Lines                 []AllocationLine `json:"lines"`
	TotalAllocated        decimal.Decimal  `json:"total_allocated"`
	Excess                decimal.Decimal  `json:"excess"` // Unallocated remainder, banked as patient credit
	FullyAllocated        bool             `json:"fully_allocated"`
	InvoicesFullyPaid     []uuid.UUID      `json:"invoices_fully_paid"`
	InvoicesPartiallyPaid []uuid.UUID      `json:"invoices_partially_paid"`
}

// AllocationStrategy is the interface for payment allocation strategies.
// Implementations are pure: identical inputs always yield identical plans.
type AllocationStrategy interface {
	strategy.Strategy
	// StrategyType returns the allocation strategy type
	StrategyType() AllocationStrategyType
	// Allocate computes how to distribute the given amount across targets
	Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error)
}

func emptyPlan(amount decimal.Decimal) *AllocationPlan {
	return &AllocationPlan{
		Lines:                 make([]AllocationLine, 0),
		TotalAllocated:        decimal.Zero,
		Excess:                amount,
		FullyAllocated:        false,
		InvoicesFullyPaid:     make([]uuid.UUID, 0),
		InvoicesPartiallyPaid: make([]uuid.UUID, 0),
	}
}

// outstandingTargets filters out settled snapshots
func outstandingTargets(targets []AllocationTarget) []AllocationTarget {
	out := make([]AllocationTarget, 0, len(targets))
	for _, t := range targets {
		if t.AmountDue.GreaterThan(decimal.Zero) {
			out = append(out, t)
		}
	}
	return out
}

// sortOldestFirst orders targets by issue date ascending, creation date as tiebreak
func sortOldestFirst(targets []AllocationTarget) {
	sort.SliceStable(targets, func(i, j int) bool {
		if !targets[i].IssuedAt.Equal(targets[j].IssuedAt) {
			return targets[i].IssuedAt.Before(targets[j].IssuedAt)
		}
		return targets[i].CreatedAt.Before(targets[j].CreatedAt)
	})
}

// greedyAllocate assigns min(remaining, amountDue) to each target in order
func greedyAllocate(amount decimal.Decimal, sorted []AllocationTarget) *AllocationPlan {
	lines := make([]AllocationLine, 0)
	fullyPaid := make([]uuid.UUID, 0)
	partiallyPaid := make([]uuid.UUID, 0)
	remaining := amount
	totalAllocated := decimal.Zero

	for _, target := range sorted {
		if remaining.IsZero() {
			break
		}

		allocAmount := decimal.Min(remaining, target.AmountDue)

		lines = append(lines, AllocationLine{
			InvoiceID:     target.InvoiceID,
			InvoiceNumber: target.InvoiceNumber,
			Amount:        allocAmount,
		})

		totalAllocated = totalAllocated.Add(allocAmount)
		remaining = remaining.Sub(allocAmount)

		if allocAmount.GreaterThanOrEqual(target.AmountDue) {
			fullyPaid = append(fullyPaid, target.InvoiceID)
		} else {
			partiallyPaid = append(partiallyPaid, target.InvoiceID)
		}
	}

	return &AllocationPlan{
		Lines:                 lines,
		TotalAllocated:        totalAllocated,
		Excess:                remaining,
		FullyAllocated:        remaining.IsZero(),
		InvoicesFullyPaid:     fullyPaid,
		InvoicesPartiallyPaid: partiallyPaid,
	}
}

// SequentialAllocationStrategy greedily assigns the payment to invoices in a
// fixed sort order until the amount or the invoices are exhausted.
type SequentialAllocationStrategy struct {
	strategy.BaseStrategy
	strategyType AllocationStrategyType
	less         func(a, b AllocationTarget) bool
}

// NewOldestFirstStrategy allocates to the longest-outstanding invoices first
func NewOldestFirstStrategy() *SequentialAllocationStrategy {
	return &SequentialAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"oldest_first_allocation",
			strategy.StrategyTypeAllocation,
			"Allocates to the oldest outstanding invoices first by issue date, then creation date",
		),
		strategyType: AllocationStrategyOldestFirst,
		less: func(a, b AllocationTarget) bool {
			if !a.IssuedAt.Equal(b.IssuedAt) {
				return a.IssuedAt.Before(b.IssuedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		},
	}
}

// NewSmallestFirstStrategy clears the smallest balances first
func NewSmallestFirstStrategy() *SequentialAllocationStrategy {
	return &SequentialAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"smallest_first_allocation",
			strategy.StrategyTypeAllocation,
			"Allocates to the smallest outstanding balances first, clearing as many invoices as possible",
		),
		strategyType: AllocationStrategySmallestFirst,
		less: func(a, b AllocationTarget) bool {
			if !a.AmountDue.Equal(b.AmountDue) {
				return a.AmountDue.LessThan(b.AmountDue)
			}
			return a.IssuedAt.Before(b.IssuedAt)
		},
	}
}

// NewLargestFirstStrategy pays down the largest balances first
func NewLargestFirstStrategy() *SequentialAllocationStrategy {
	return &SequentialAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"largest_first_allocation",
			strategy.StrategyTypeAllocation,
			"Allocates to the largest outstanding balances first",
		),
		strategyType: AllocationStrategyLargestFirst,
		less: func(a, b AllocationTarget) bool {
			if !a.AmountDue.Equal(b.AmountDue) {
				return a.AmountDue.GreaterThan(b.AmountDue)
			}
			return a.IssuedAt.Before(b.IssuedAt)
		},
	}
}

// StrategyType returns the allocation strategy type
func (s *SequentialAllocationStrategy) StrategyType() AllocationStrategyType {
	return s.strategyType
}

// Allocate greedily assigns min(remaining, amountDue) in the strategy's sort order
func (s *SequentialAllocationStrategy) Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}

	open := outstandingTargets(targets)
	if len(open) == 0 {
		return emptyPlan(amount.Amount()), nil
	}

	sorted := make([]AllocationTarget, len(open))
	copy(sorted, open)
	sort.SliceStable(sorted, func(i, j int) bool { return s.less(sorted[i], sorted[j]) })

	return greedyAllocate(amount.Amount(), sorted), nil
}

// ProportionalAllocationStrategy distributes the payment pro-rata by each
// invoice's share of the total outstanding balance. Per-invoice shares are
// rounded to two decimals and capped at the invoice's amount due; the rounding
// residual lands on the last invoice in oldest-first order so the plan sums to
// the payment exactly.
type ProportionalAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewProportionalAllocationStrategy creates a new proportional strategy
func NewProportionalAllocationStrategy() *ProportionalAllocationStrategy {
	return &ProportionalAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"proportional_allocation",
			strategy.StrategyTypeAllocation,
			"Allocates pro-rata by amount due, rounding residual to the last invoice",
		),
	}
}

// StrategyType returns the allocation strategy type
func (s *ProportionalAllocationStrategy) StrategyType() AllocationStrategyType {
	return AllocationStrategyProportional
}

// Allocate distributes the amount proportionally across targets
func (s *ProportionalAllocationStrategy) Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}

	open := outstandingTargets(targets)
	if len(open) == 0 {
		return emptyPlan(amount.Amount()), nil
	}

	sorted := make([]AllocationTarget, len(open))
	copy(sorted, open)
	sortOldestFirst(sorted)

	totalOutstanding := decimal.Zero
	for _, t := range sorted {
		totalOutstanding = totalOutstanding.Add(t.AmountDue)
	}

	total := amount.Amount()

	// Payment covers everything: every invoice is settled in full and the
	// remainder is excess.
	if total.GreaterThanOrEqual(totalOutstanding) {
		plan := greedyAllocate(total, sorted)
		return plan, nil
	}

	shares := make([]decimal.Decimal, len(sorted))
	allocated := decimal.Zero
	for i, t := range sorted {
		share := total.Mul(t.AmountDue).Div(totalOutstanding).Round(2)
		if share.GreaterThan(t.AmountDue) {
			share = t.AmountDue
		}
		shares[i] = share
		allocated = allocated.Add(share)
	}

	// Apply the rounding residual (positive or negative, bounded by
	// len(sorted) cents) to the last invoice, capped at its amount due.
	residual := total.Sub(allocated)
	if !residual.IsZero() {
		last := len(sorted) - 1
		adjusted := shares[last].Add(residual)
		if adjusted.GreaterThan(sorted[last].AmountDue) {
			adjusted = sorted[last].AmountDue
		}
		if adjusted.IsNegative() {
			adjusted = decimal.Zero
		}
		shares[last] = adjusted
	}

	lines := make([]AllocationLine, 0, len(sorted))
	fullyPaid := make([]uuid.UUID, 0)
	partiallyPaid := make([]uuid.UUID, 0)
	totalAllocated := decimal.Zero

	for i, t := range sorted {
		if shares[i].LessThanOrEqual(decimal.Zero) {
			continue
		}
		lines = append(lines, AllocationLine{
			InvoiceID:     t.InvoiceID,
			InvoiceNumber: t.InvoiceNumber,
			Amount:        shares[i],
		})
		totalAllocated = totalAllocated.Add(shares[i])
		if shares[i].GreaterThanOrEqual(t.AmountDue) {
			fullyPaid = append(fullyPaid, t.InvoiceID)
		} else {
			partiallyPaid = append(partiallyPaid, t.InvoiceID)
		}
	}

	excess := total.Sub(totalAllocated)

	return &AllocationPlan{
		Lines:                 lines,
		TotalAllocated:        totalAllocated,
		Excess:                excess,
		FullyAllocated:        excess.IsZero(),
		InvoicesFullyPaid:     fullyPaid,
		InvoicesPartiallyPaid: partiallyPaid,
	}, nil
}

// ManualAllocationRequest represents a caller-specified allocation to one invoice
type ManualAllocationRequest struct {
	InvoiceID uuid.UUID       `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// ManualAllocationStrategy validates and applies caller-specified allocations.
// Unlike the automatic strategies it rejects rather than caps: the sum must
// match the payment within tolerance, every target must be outstanding, and no
// line may exceed its invoice's amount due.
type ManualAllocationStrategy struct {
	strategy.BaseStrategy
	requests []ManualAllocationRequest
}

// NewManualAllocationStrategy creates a new manual allocation strategy
func NewManualAllocationStrategy(requests []ManualAllocationRequest) *ManualAllocationStrategy {
	return &ManualAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"manual_allocation",
			strategy.StrategyTypeAllocation,
			"Validates and applies caller-specified per-invoice allocations",
		),
		requests: requests,
	}
}

// StrategyType returns the allocation strategy type
func (s *ManualAllocationStrategy) StrategyType() AllocationStrategyType {
	return AllocationStrategyManual
}

// GetRequests returns the configured manual allocations
func (s *ManualAllocationStrategy) GetRequests() []ManualAllocationRequest {
	return s.requests
}

// Allocate validates the manual requests against the targets and the total
func (s *ManualAllocationStrategy) Allocate(amount valueobject.Money, targets []AllocationTarget) (*AllocationPlan, error) {
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Allocation amount must be positive")
	}
	if len(s.requests) == 0 {
		return nil, shared.NewDomainError("INVALID_ALLOCATIONS", "Manual allocation requires at least one line")
	}

	targetMap := make(map[uuid.UUID]AllocationTarget, len(targets))
	for _, t := range outstandingTargets(targets) {
		targetMap[t.InvoiceID] = t
	}

	sum := decimal.Zero
	perInvoice := make(map[uuid.UUID]decimal.Decimal, len(s.requests))
	for _, req := range s.requests {
		if req.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, shared.NewDomainError("INVALID_ALLOCATIONS", "Manual allocation amounts must be positive")
		}
		target, exists := targetMap[req.InvoiceID]
		if !exists {
			return nil, shared.NewDomainError("INVALID_ALLOCATIONS",
				fmt.Sprintf("Invoice %s is not in the outstanding set", req.InvoiceID))
		}
		// Lines naming the same invoice count against its due jointly
		invoiceTotal := perInvoice[req.InvoiceID].Add(req.Amount)
		if invoiceTotal.Sub(target.AmountDue).GreaterThan(AmountTolerance) {
			return nil, shared.NewDomainError("ALLOCATION_EXCEEDS_DUE",
				fmt.Sprintf("Allocation %s to invoice %s exceeds amount due %s",
					invoiceTotal.StringFixed(2), target.InvoiceNumber, target.AmountDue.StringFixed(2)))
		}
		perInvoice[req.InvoiceID] = invoiceTotal
		sum = sum.Add(req.Amount)
	}

	if sum.Sub(amount.Amount()).Abs().GreaterThan(AmountTolerance) {
		return nil, shared.NewDomainError("ALLOCATION_MISMATCH",
			fmt.Sprintf("Manual allocations sum to %s but payment total is %s",
				sum.StringFixed(2), amount.Amount().StringFixed(2)))
	}

	lines := make([]AllocationLine, 0, len(s.requests))
	fullyPaid := make([]uuid.UUID, 0)
	partiallyPaid := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]bool, len(s.requests))

	for _, req := range s.requests {
		target := targetMap[req.InvoiceID]
		lines = append(lines, AllocationLine{
			InvoiceID:     target.InvoiceID,
			InvoiceNumber: target.InvoiceNumber,
			Amount:        req.Amount,
		})
		if seen[req.InvoiceID] {
			continue
		}
		seen[req.InvoiceID] = true
		if perInvoice[req.InvoiceID].GreaterThanOrEqual(target.AmountDue) {
			fullyPaid = append(fullyPaid, target.InvoiceID)
		} else {
			partiallyPaid = append(partiallyPaid, target.InvoiceID)
		}
	}

	return &AllocationPlan{
		Lines:                 lines,
		TotalAllocated:        sum,
		Excess:                amount.Amount().Sub(sum),
		FullyAllocated:        true,
		InvoicesFullyPaid:     fullyPaid,
		InvoicesPartiallyPaid: partiallyPaid,
	}, nil
}

// AllocationStrategyFactory creates allocation strategies
type AllocationStrategyFactory struct{}

// NewAllocationStrategyFactory creates a new factory
func NewAllocationStrategyFactory() *AllocationStrategyFactory {
	return &AllocationStrategyFactory{}
}

// GetStrategy returns a strategy by type. Manual requires allocation requests.
func (f *AllocationStrategyFactory) GetStrategy(strategyType AllocationStrategyType, requests []ManualAllocationRequest) (AllocationStrategy, error) {
	switch strategyType {
	case AllocationStrategyOldestFirst:
		return NewOldestFirstStrategy(), nil
	case AllocationStrategySmallestFirst:
		return NewSmallestFirstStrategy(), nil
	case AllocationStrategyLargestFirst:
		return NewLargestFirstStrategy(), nil
	case AllocationStrategyProportional:
		return NewProportionalAllocationStrategy(), nil
	case AllocationStrategyManual:
		if len(requests) == 0 {
			return nil, shared.NewDomainError("INVALID_ALLOCATIONS", "Manual strategy requires allocation requests")
		}
		return NewManualAllocationStrategy(requests), nil
	default:
		return nil, shared.NewDomainError("INVALID_STRATEGY", "Unknown allocation strategy type")
	}
}
