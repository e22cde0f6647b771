package gateway

import "time"

// refundRequestBody is the wire format for submitting a refund
type refundRequestBody struct {
	MerchantID    string `json:"merchant_id"`
	ClinicID      string `json:"clinic_id"`
	TransactionID string `json:"transaction_id"`
	RefundID      string `json:"refund_id"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Reason        string `json:"reason,omitempty"`
	Method        string `json:"method"`
}

// refundResponseBody is the wire format of a refund response
type refundResponseBody struct {
	RefundID   string     `json:"refund_id"`
	Status     string     `json:"status"`
	Amount     string     `json:"amount"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
}

// errorResponseBody is the wire format of a processor error
type errorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
