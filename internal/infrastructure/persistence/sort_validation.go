package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// Common allowed sort fields for entities with base fields
// These are the common fields present in most entities

// CommonSortFields contains fields common to most entities
var CommonSortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"invoice_number": true,
	"patient_id":     true,
	"patient_name":   true,
	"status":         true,
	"subtotal":       true,
	"discount_total": true,
	"tax_total":      true,
	"amount_paid":    true,
	"issued_at":      true,
	"due_date":       true,
}

// PatientAccountSortFields contains allowed sort fields for patient accounts
var PatientAccountSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"patient_id":     true,
	"patient_name":   true,
	"credit_balance": true,
}

// CreditTransactionSortFields contains allowed sort fields for credit transactions
var CreditTransactionSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"patient_id":     true,
	"type":           true,
	"amount":         true,
	"balance_after":  true,
	"balance_before": true,
	"source_type":    true,
	"source_ref":     true,
}

// AuditRecordSortFields contains allowed sort fields for audit records
var AuditRecordSortFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"occurred_at": true,
	"actor":       true,
	"action":      true,
	"resource":    true,
	"resource_id": true,
}
