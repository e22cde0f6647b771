package billing

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clinic/backend/internal/domain/shared"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AmountTolerance is the rounding tolerance applied to monetary comparisons.
// Two amounts within one cent of each other are considered equal.
var AmountTolerance = decimal.NewFromFloat(0.01)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"     // Created, not yet issued to the patient
	InvoiceStatusIssued    InvoiceStatus = "ISSUED"    // Issued, no payment yet
	InvoiceStatusSent      InvoiceStatus = "SENT"      // Delivered to the patient
	InvoiceStatusViewed    InvoiceStatus = "VIEWED"    // Opened by the patient
	InvoiceStatusPartial   InvoiceStatus = "PARTIAL"   // Partially paid, 0 < amount due < total
	InvoiceStatusPaid      InvoiceStatus = "PAID"      // Fully paid, amount due = 0
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"   // Past due date with an outstanding balance
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED" // Cancelled before any payment
	InvoiceStatusRefunded  InvoiceStatus = "REFUNDED"  // All payments fully reversed
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPartial, InvoiceStatusPaid, InvoiceStatusOverdue,
		InvoiceStatusCancelled, InvoiceStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice is in a terminal state.
// Paid invoices remain refundable, so PAID is terminal for payments only.
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled || s == InvoiceStatusRefunded
}

// CanApplyPayment returns true if payments can be applied in this status
func (s InvoiceStatus) CanApplyPayment() bool {
	switch s {
	case InvoiceStatusIssued, InvoiceStatusSent, InvoiceStatusViewed,
		InvoiceStatusPartial, InvoiceStatusOverdue:
		return true
	}
	return false
}

// CanRefund returns true if refunds can be issued against payments in this status
func (s InvoiceStatus) CanRefund() bool {
	return s == InvoiceStatusPartial || s == InvoiceStatusPaid || s == InvoiceStatusOverdue ||
		s == InvoiceStatusIssued || s == InvoiceStatusSent || s == InvoiceStatusViewed
}

// PaymentMethod represents how a payment was made
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCredit       PaymentMethod = "CREDIT" // Paid from the patient's credit balance
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodMobileMoney,
		PaymentMethodBankTransfer, PaymentMethodCredit:
		return true
	}
	return false
}

// IsGatewayProcessed returns true if the method settles through an external gateway
func (m PaymentMethod) IsGatewayProcessed() bool {
	return m == PaymentMethodCard || m == PaymentMethodMobileMoney
}

// PaymentEntry represents a payment (or refund, with negative amount) applied
// to the invoice. This is a value object within the Invoice aggregate, stored
// as JSONB.
type PaymentEntry struct {
	ID            uuid.UUID            `json:"id"`
	Amount        decimal.Decimal      `json:"amount"` // In the original currency, negative for refunds
	Currency      valueobject.Currency `json:"currency"`
	AmountInBase  decimal.Decimal      `json:"amount_in_base"` // In the accounting currency
	ExchangeRate  decimal.Decimal      `json:"exchange_rate"`  // Accounting units per foreign unit
	Method        PaymentMethod        `json:"method"`
	Reference     string               `json:"reference,omitempty"`
	GatewayTxnID  string               `json:"gateway_txn_id,omitempty"`
	ReceivedBy    uuid.UUID            `json:"received_by"`
	ReceivedAt    time.Time            `json:"received_at"`
	BatchID       string               `json:"batch_id,omitempty"`
	RefundOf      *uuid.UUID           `json:"refund_of,omitempty"` // Original payment this refund reverses
	RefundReason  string               `json:"refund_reason,omitempty"`
	CreditApplied bool                 `json:"credit_applied,omitempty"` // True when funded from patient credit
}

// IsRefund returns true if the entry is a refund against an earlier payment
func (p *PaymentEntry) IsRefund() bool {
	return p.RefundOf != nil
}

// GetBaseAmountMoney returns the accounting-currency amount as Money
func (p *PaymentEntry) GetBaseAmountMoney() valueobject.Money {
	return valueobject.NewMoneyCDF(p.AmountInBase)
}

// PaymentEntries is a slice of PaymentEntry that implements GORM Scanner/Valuer for JSONB storage
type PaymentEntries []PaymentEntry

// Value implements driver.Valuer interface for GORM to store as JSONB
func (p PaymentEntries) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (p *PaymentEntries) Scan(value interface{}) error {
	if value == nil {
		*p = PaymentEntries{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan PaymentEntries: unsupported type")
	}

	if len(bytes) == 0 {
		*p = PaymentEntries{}
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// NewPaymentEntry creates a new payment entry in the accounting currency.
// Amounts in a foreign currency carry the rate used at conversion time so the
// original figure can always be reconstructed.
func NewPaymentEntry(
	amount decimal.Decimal,
	currency valueobject.Currency,
	amountInBase decimal.Decimal,
	exchangeRate decimal.Decimal,
	method PaymentMethod,
	reference string,
	receivedBy uuid.UUID,
	batchID string,
) PaymentEntry {
	return PaymentEntry{
		ID:           uuid.New(),
		Amount:       amount,
		Currency:     currency,
		AmountInBase: amountInBase,
		ExchangeRate: exchangeRate,
		Method:       method,
		Reference:    reference,
		ReceivedBy:   receivedBy,
		ReceivedAt:   time.Now(),
		BatchID:      batchID,
	}
}

// Adjustment is an append-only summary adjustment (discount or write-off).
// Adjustments change what the patient owes but never touch the payment log.
type Adjustment struct {
	ID        uuid.UUID       `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	AppliedBy uuid.UUID       `json:"applied_by"`
	AppliedAt time.Time       `json:"applied_at"`
}

// Adjustments is a slice of Adjustment stored as JSONB
type Adjustments []Adjustment

// Value implements driver.Valuer interface for GORM to store as JSONB
func (a Adjustments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (a *Adjustments) Scan(value interface{}) error {
	if value == nil {
		*a = Adjustments{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan Adjustments: unsupported type")
	}

	if len(bytes) == 0 {
		*a = Adjustments{}
		return nil
	}

	return json.Unmarshal(bytes, a)
}

// Invoice represents a patient invoice aggregate root.
// It tracks money owed by a patient for clinical services and is the unit of
// optimistic locking: every persisted mutation increments Version.
type Invoice struct {
	shared.ClinicAggregateRoot
	InvoiceNumber string          `json:"invoice_number"`
	PatientID     uuid.UUID       `json:"patient_id"`
	PatientName   string          `json:"patient_name"`
	Status        InvoiceStatus   `json:"status"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	WriteOffTotal decimal.Decimal `json:"write_off_total"`
	AmountPaid    decimal.Decimal `json:"amount_paid"` // Net of refunds, accounting currency
	IssuedAt      time.Time       `json:"issued_at"`
	DueDate       *time.Time      `json:"due_date"`
	Payments      PaymentEntries  `json:"payments"`
	Discounts     Adjustments     `json:"discounts"`
	WriteOffs     Adjustments     `json:"write_offs"`
	Notes         string          `json:"notes"`
	PaidAt        *time.Time      `json:"paid_at"`
	CancelledAt   *time.Time      `json:"cancelled_at"`
	CancelReason  string          `json:"cancel_reason"`
}

// NewInvoice creates a new invoice in ISSUED state with nothing paid
func NewInvoice(
	clinicID uuid.UUID,
	invoiceNumber string,
	patientID uuid.UUID,
	patientName string,
	subtotal decimal.Decimal,
	discountTotal decimal.Decimal,
	taxTotal decimal.Decimal,
	issuedAt time.Time,
	dueDate *time.Time,
) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_INVOICE_NUMBER", "Invoice number cannot exceed 50 characters")
	}
	if patientID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PATIENT", "Patient ID cannot be empty")
	}
	if patientName == "" {
		return nil, shared.NewDomainError("INVALID_PATIENT_NAME", "Patient name cannot be empty")
	}
	if subtotal.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Subtotal cannot be negative")
	}
	if discountTotal.IsNegative() || taxTotal.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Discount and tax totals cannot be negative")
	}
	total := subtotal.Sub(discountTotal).Add(taxTotal)
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice total must be positive")
	}

	inv := &Invoice{
		ClinicAggregateRoot: shared.NewClinicAggregateRoot(clinicID),
		InvoiceNumber:       invoiceNumber,
		PatientID:           patientID,
		PatientName:         patientName,
		Status:              InvoiceStatusIssued,
		Subtotal:            subtotal,
		DiscountTotal:       discountTotal,
		TaxTotal:            taxTotal,
		WriteOffTotal:       decimal.Zero,
		AmountPaid:          decimal.Zero,
		IssuedAt:            issuedAt,
		DueDate:             dueDate,
		Payments:            PaymentEntries{},
		Discounts:           Adjustments{},
		WriteOffs:           Adjustments{},
	}

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))

	return inv, nil
}

// Total returns the invoice total: subtotal - discounts + tax - write-offs
func (inv *Invoice) Total() decimal.Decimal {
	return inv.Subtotal.Sub(inv.DiscountTotal).Add(inv.TaxTotal).Sub(inv.WriteOffTotal)
}

// AmountDue returns the outstanding amount, floored at zero.
// It is always derived from Total and AmountPaid, never stored independently.
func (inv *Invoice) AmountDue() decimal.Decimal {
	due := inv.Total().Sub(inv.AmountPaid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// ApplyPayment appends a payment entry and updates the paid amount and status.
// The entry's AmountInBase must be positive and must not exceed the current
// amount due beyond the rounding tolerance.
func (inv *Invoice) ApplyPayment(entry PaymentEntry) error {
	if !inv.Status.CanApplyPayment() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot apply payment to invoice in %s status", inv.Status))
	}
	if entry.AmountInBase.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !entry.Method.IsValid() {
		return shared.NewDomainError("INVALID_METHOD", "Payment method is not valid")
	}
	due := inv.AmountDue()
	if entry.AmountInBase.Sub(due).GreaterThan(AmountTolerance) {
		return shared.NewDomainError("EXCEEDS_OUTSTANDING",
			fmt.Sprintf("Payment amount %s exceeds amount due %s", entry.AmountInBase.StringFixed(2), due.StringFixed(2)))
	}

	inv.Payments = append(inv.Payments, entry)
	inv.AmountPaid = inv.AmountPaid.Add(entry.AmountInBase)

	if inv.AmountDue().IsZero() {
		now := time.Now()
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &now
		inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	} else {
		inv.Status = InvoiceStatusPartial
		inv.AddDomainEvent(NewInvoicePartiallyPaidEvent(inv, entry))
	}

	inv.Touch()
	inv.IncrementVersion()

	return nil
}

// FindPayment returns the payment entry with the given ID, or nil
func (inv *Invoice) FindPayment(paymentID uuid.UUID) *PaymentEntry {
	for i := range inv.Payments {
		if inv.Payments[i].ID == paymentID {
			return &inv.Payments[i]
		}
	}
	return nil
}

// PaymentByIndex returns the payment entry at the given position, or nil
func (inv *Invoice) PaymentByIndex(index int) *PaymentEntry {
	if index < 0 || index >= len(inv.Payments) {
		return nil
	}
	return &inv.Payments[index]
}

// AlreadyRefunded returns the total already refunded against the given payment.
// Refund entries carry negative amounts; the returned figure is positive.
func (inv *Invoice) AlreadyRefunded(paymentID uuid.UUID) decimal.Decimal {
	refunded := decimal.Zero
	for i := range inv.Payments {
		e := &inv.Payments[i]
		if e.RefundOf != nil && *e.RefundOf == paymentID {
			refunded = refunded.Add(e.AmountInBase.Neg())
		}
	}
	return refunded
}

// ApplyRefund appends a negative payment entry reversing part of an original
// payment. The refund cap (original amount minus refunds already issued) is
// enforced here as the aggregate's last line of defense; RefundValidator
// performs the full pre-flight check with caller-facing figures.
func (inv *Invoice) ApplyRefund(originalPaymentID uuid.UUID, amount decimal.Decimal, reason string, refundedBy uuid.UUID, gatewayRefundID string) (*PaymentEntry, error) {
	if !inv.Status.CanRefund() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot refund invoice in %s status", inv.Status))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Refund amount must be positive")
	}
	original := inv.FindPayment(originalPaymentID)
	if original == nil {
		return nil, shared.NewDomainError("PAYMENT_NOT_FOUND", "Original payment not found on invoice")
	}
	if original.IsRefund() {
		return nil, shared.NewDomainError("INVALID_PAYMENT", "Cannot refund a refund entry")
	}

	maxRefundable := original.AmountInBase.Sub(inv.AlreadyRefunded(originalPaymentID))
	if amount.Sub(maxRefundable).GreaterThan(AmountTolerance) {
		return nil, shared.NewDomainError("EXCEEDS_REFUNDABLE",
			fmt.Sprintf("Requested refund %s exceeds maxRefundable: %s remaining", amount.StringFixed(2), maxRefundable.StringFixed(2)))
	}

	entry := PaymentEntry{
		ID:           uuid.New(),
		Amount:       amount.Neg(),
		Currency:     valueobject.DefaultCurrency,
		AmountInBase: amount.Neg(),
		ExchangeRate: decimal.NewFromInt(1),
		Method:       original.Method,
		Reference:    original.Reference,
		GatewayTxnID: gatewayRefundID,
		ReceivedBy:   refundedBy,
		ReceivedAt:   time.Now(),
		RefundOf:     &originalPaymentID,
		RefundReason: reason,
	}
	inv.Payments = append(inv.Payments, entry)
	inv.AmountPaid = inv.AmountPaid.Sub(amount)

	// Reopen the invoice: fully reversed invoices become REFUNDED, anything
	// with a remaining balance and some payment stays PARTIAL.
	switch {
	case inv.AmountPaid.LessThanOrEqual(decimal.Zero):
		inv.Status = InvoiceStatusRefunded
	case inv.AmountDue().IsZero():
		inv.Status = InvoiceStatusPaid
	default:
		inv.Status = InvoiceStatusPartial
		inv.PaidAt = nil
	}

	inv.Touch()
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceRefundedEvent(inv, &entry, original.ID))

	return &inv.Payments[len(inv.Payments)-1], nil
}

// ApplyDiscount records an append-only discount and raises the discount total
func (inv *Invoice) ApplyDiscount(amount decimal.Decimal, reason string, appliedBy uuid.UUID) error {
	if inv.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot discount invoice in %s status", inv.Status))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Discount amount must be positive")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Discount reason is required")
	}
	if amount.GreaterThan(inv.AmountDue()) {
		return shared.NewDomainError("EXCEEDS_OUTSTANDING",
			fmt.Sprintf("Discount %s exceeds amount due %s", amount.StringFixed(2), inv.AmountDue().StringFixed(2)))
	}

	inv.Discounts = append(inv.Discounts, Adjustment{
		ID:        uuid.New(),
		Amount:    amount,
		Reason:    reason,
		AppliedBy: appliedBy,
		AppliedAt: time.Now(),
	})
	inv.DiscountTotal = inv.DiscountTotal.Add(amount)

	inv.refreshSettledStatus()
	inv.Touch()
	inv.IncrementVersion()

	return nil
}

// ApplyWriteOff records an append-only write-off and raises the write-off total
func (inv *Invoice) ApplyWriteOff(amount decimal.Decimal, reason string, appliedBy uuid.UUID) error {
	if inv.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot write off invoice in %s status", inv.Status))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Write-off amount must be positive")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Write-off reason is required")
	}
	if amount.GreaterThan(inv.AmountDue()) {
		return shared.NewDomainError("EXCEEDS_OUTSTANDING",
			fmt.Sprintf("Write-off %s exceeds amount due %s", amount.StringFixed(2), inv.AmountDue().StringFixed(2)))
	}

	inv.WriteOffs = append(inv.WriteOffs, Adjustment{
		ID:        uuid.New(),
		Amount:    amount,
		Reason:    reason,
		AppliedBy: appliedBy,
		AppliedAt: time.Now(),
	})
	inv.WriteOffTotal = inv.WriteOffTotal.Add(amount)

	inv.refreshSettledStatus()
	inv.Touch()
	inv.IncrementVersion()

	return nil
}

// refreshSettledStatus moves the invoice to PAID when an adjustment clears the balance
func (inv *Invoice) refreshSettledStatus() {
	if inv.AmountDue().IsZero() && inv.AmountPaid.GreaterThan(decimal.Zero) {
		now := time.Now()
		inv.Status = InvoiceStatusPaid
		inv.PaidAt = &now
	}
}

// MarkSent marks the invoice as delivered to the patient
func (inv *Invoice) MarkSent() error {
	if inv.Status != InvoiceStatusIssued && inv.Status != InvoiceStatusDraft {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark invoice in %s status as sent", inv.Status))
	}
	inv.Status = InvoiceStatusSent
	inv.Touch()
	inv.IncrementVersion()
	return nil
}

// MarkViewed marks the invoice as opened by the patient
func (inv *Invoice) MarkViewed() error {
	if inv.Status != InvoiceStatusSent {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark invoice in %s status as viewed", inv.Status))
	}
	inv.Status = InvoiceStatusViewed
	inv.Touch()
	inv.IncrementVersion()
	return nil
}

// MarkOverdue flags a past-due invoice that still carries a balance
func (inv *Invoice) MarkOverdue() error {
	if !inv.Status.CanApplyPayment() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark invoice in %s status as overdue", inv.Status))
	}
	if !inv.IsPastDue() {
		return shared.NewDomainError("NOT_OVERDUE", "Invoice is not past its due date")
	}
	inv.Status = InvoiceStatusOverdue
	inv.Touch()
	inv.IncrementVersion()
	return nil
}

// Cancel cancels the invoice (only if no payments have been applied)
func (inv *Invoice) Cancel(reason string) error {
	if inv.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel invoice in %s status", inv.Status))
	}
	if inv.AmountPaid.GreaterThan(decimal.Zero) || len(inv.Payments) > 0 {
		return shared.NewDomainError("HAS_PAYMENTS", "Cannot cancel invoice with existing payments")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_REASON", "Cancel reason is required")
	}

	now := time.Now()
	inv.Status = InvoiceStatusCancelled
	inv.CancelledAt = &now
	inv.CancelReason = reason
	inv.UpdatedAt = now
	inv.IncrementVersion()

	return nil
}

// Helper methods

// GetTotalMoney returns the invoice total as Money
func (inv *Invoice) GetTotalMoney() valueobject.Money {
	return valueobject.NewMoneyCDF(inv.Total())
}

// GetAmountPaidMoney returns the paid amount as Money
func (inv *Invoice) GetAmountPaidMoney() valueobject.Money {
	return valueobject.NewMoneyCDF(inv.AmountPaid)
}

// GetAmountDueMoney returns the outstanding amount as Money
func (inv *Invoice) GetAmountDueMoney() valueobject.Money {
	return valueobject.NewMoneyCDF(inv.AmountDue())
}

// IsOutstanding returns true if the invoice still accepts payments and carries a balance
func (inv *Invoice) IsOutstanding() bool {
	return inv.Status.CanApplyPayment() && inv.AmountDue().GreaterThan(decimal.Zero)
}

// IsPastDue returns true if the invoice is past its due date and not settled
func (inv *Invoice) IsPastDue() bool {
	if inv.Status.IsTerminal() {
		return false
	}
	if inv.DueDate == nil {
		return false
	}
	return time.Now().After(*inv.DueDate)
}

// DaysOverdue returns the number of days past due (0 if not overdue)
func (inv *Invoice) DaysOverdue() int {
	if !inv.IsPastDue() {
		return 0
	}
	return int(time.Since(*inv.DueDate).Hours() / 24)
}

// PaymentCount returns the number of payment entries, refunds included
func (inv *Invoice) PaymentCount() int {
	return len(inv.Payments)
}

// PaidPercentage returns the percentage of the total that has been paid (0-100)
func (inv *Invoice) PaidPercentage() decimal.Decimal {
	total := inv.Total()
	if total.IsZero() {
		return decimal.NewFromInt(100)
	}
	return inv.AmountPaid.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
}

// AllocationSnapshot returns the invoice as an allocation target for the
// PaymentAllocator. The allocator works on plain snapshots so that strategy
// computation never mutates aggregate state.
func (inv *Invoice) AllocationSnapshot() AllocationTarget {
	return AllocationTarget{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		AmountDue:     inv.AmountDue(),
		IssuedAt:      inv.IssuedAt,
		CreatedAt:     inv.CreatedAt,
	}
}
