package handler

import (
	"context"
	"time"

	billingapp "github.com/clinic/backend/internal/application/billing"
	"github.com/clinic/backend/internal/domain/billing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceHandler handles invoice-related API endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *billingapp.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *billingapp.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
	}
}

// CreateInvoiceRequest represents a request to issue a new invoice
// @Description Request body for creating a new invoice
type CreateInvoiceRequest struct {
	PatientID     string     `json:"patient_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440000"`
	PatientName   string     `json:"patient_name" binding:"required,min=1,max=200" example:"Amani Kabila"`
	Subtotal      float64    `json:"subtotal" binding:"required,gt=0" example:"45000"`
	DiscountTotal float64    `json:"discount_total" binding:"gte=0" example:"0"`
	TaxTotal      float64    `json:"tax_total" binding:"gte=0" example:"7200"`
	DueDate       *time.Time `json:"due_date"`
	Notes         string     `json:"notes" example:"Consultation and lab work"`
}

// AdjustmentRequest represents a request to apply a discount or write-off
// @Description Request body for applying a discount or write-off to an invoice
type AdjustmentRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0" example:"5000"`
	Reason string  `json:"reason" binding:"required,min=1,max=500" example:"Hardship discount"`
}

// CancelInvoiceRequest represents a request to cancel an invoice
// @Description Request body for cancelling an invoice
type CancelInvoiceRequest struct {
	Reason string `json:"reason" binding:"required,min=1,max=500" example:"Issued in error"`
}

// PaymentEntryResponse represents one payment log entry in API responses
// @Description Payment entry response
type PaymentEntryResponse struct {
	ID            string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440020"`
	Amount        float64   `json:"amount" example:"20"`
	Currency      string    `json:"currency" example:"USD"`
	AmountInBase  float64   `json:"amount_in_base" example:"56000"`
	ExchangeRate  float64   `json:"exchange_rate" example:"2800"`
	Method        string    `json:"method" example:"CASH"`
	Reference     string    `json:"reference,omitempty"`
	GatewayTxnID  string    `json:"gateway_txn_id,omitempty"`
	BatchID       string    `json:"batch_id,omitempty"`
	RefundOf      *string   `json:"refund_of,omitempty"`
	RefundReason  string    `json:"refund_reason,omitempty"`
	CreditApplied bool      `json:"credit_applied,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// AdjustmentResponse represents a discount or write-off in API responses
// @Description Adjustment response
type AdjustmentResponse struct {
	ID        string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440030"`
	Amount    float64   `json:"amount" example:"5000"`
	Reason    string    `json:"reason" example:"Hardship discount"`
	AppliedAt time.Time `json:"applied_at"`
}

// InvoiceResponse represents an invoice in API responses
// @Description Invoice response
type InvoiceResponse struct {
	ID            string                 `json:"id" example:"550e8400-e29b-41d4-a716-446655440010"`
	ClinicID      string                 `json:"clinic_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	InvoiceNumber string                 `json:"invoice_number" example:"INV-2026-00042"`
	PatientID     string                 `json:"patient_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	PatientName   string                 `json:"patient_name" example:"Amani Kabila"`
	Status        string                 `json:"status" example:"PARTIAL"`
	Subtotal      float64                `json:"subtotal" example:"45000"`
	DiscountTotal float64                `json:"discount_total" example:"5000"`
	TaxTotal      float64                `json:"tax_total" example:"7200"`
	WriteOffTotal float64                `json:"write_off_total" example:"0"`
	Total         float64                `json:"total" example:"47200"`
	AmountPaid    float64                `json:"amount_paid" example:"20000"`
	AmountDue     float64                `json:"amount_due" example:"27200"`
	IssuedAt      time.Time              `json:"issued_at"`
	DueDate       *time.Time             `json:"due_date,omitempty"`
	DaysOverdue   int                    `json:"days_overdue" example:"0"`
	Payments      []PaymentEntryResponse `json:"payments"`
	Discounts     []AdjustmentResponse   `json:"discounts,omitempty"`
	WriteOffs     []AdjustmentResponse   `json:"write_offs,omitempty"`
	Notes         string                 `json:"notes,omitempty"`
	PaidAt        *time.Time             `json:"paid_at,omitempty"`
	CancelledAt   *time.Time             `json:"cancelled_at,omitempty"`
	CancelReason  string                 `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	Version       int                    `json:"version" example:"3"`
}

// InvoiceListResponse represents an invoice in list responses
// @Description Invoice list item response
type InvoiceListResponse struct {
	ID            string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440010"`
	InvoiceNumber string     `json:"invoice_number" example:"INV-2026-00042"`
	PatientID     string     `json:"patient_id" example:"550e8400-e29b-41d4-a716-446655440001"`
	PatientName   string     `json:"patient_name" example:"Amani Kabila"`
	Status        string     `json:"status" example:"ISSUED"`
	Total         float64    `json:"total" example:"47200"`
	AmountPaid    float64    `json:"amount_paid" example:"0"`
	AmountDue     float64    `json:"amount_due" example:"47200"`
	IssuedAt      time.Time  `json:"issued_at"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	DaysOverdue   int        `json:"days_overdue" example:"12"`
}

func toPaymentEntryResponse(p *billing.PaymentEntry) PaymentEntryResponse {
	resp := PaymentEntryResponse{
		ID:            p.ID.String(),
		Amount:        p.Amount.InexactFloat64(),
		Currency:      string(p.Currency),
		AmountInBase:  p.AmountInBase.InexactFloat64(),
		ExchangeRate:  p.ExchangeRate.InexactFloat64(),
		Method:        string(p.Method),
		Reference:     p.Reference,
		GatewayTxnID:  p.GatewayTxnID,
		BatchID:       p.BatchID,
		RefundReason:  p.RefundReason,
		CreditApplied: p.CreditApplied,
		ReceivedAt:    p.ReceivedAt,
	}
	if p.RefundOf != nil {
		s := p.RefundOf.String()
		resp.RefundOf = &s
	}
	return resp
}

func toAdjustmentResponses(adjustments billing.Adjustments) []AdjustmentResponse {
	if len(adjustments) == 0 {
		return nil
	}
	out := make([]AdjustmentResponse, 0, len(adjustments))
	for i := range adjustments {
		out = append(out, AdjustmentResponse{
			ID:        adjustments[i].ID.String(),
			Amount:    adjustments[i].Amount.InexactFloat64(),
			Reason:    adjustments[i].Reason,
			AppliedAt: adjustments[i].AppliedAt,
		})
	}
	return out
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	payments := make([]PaymentEntryResponse, 0, len(inv.Payments))
	for i := range inv.Payments {
		payments = append(payments, toPaymentEntryResponse(&inv.Payments[i]))
	}
	return InvoiceResponse{
		ID:            inv.ID.String(),
		ClinicID:      inv.ClinicID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		PatientID:     inv.PatientID.String(),
		PatientName:   inv.PatientName,
		Status:        string(inv.Status),
		Subtotal:      inv.Subtotal.InexactFloat64(),
		DiscountTotal: inv.DiscountTotal.InexactFloat64(),
		TaxTotal:      inv.TaxTotal.InexactFloat64(),
		WriteOffTotal: inv.WriteOffTotal.InexactFloat64(),
		Total:         inv.Total().InexactFloat64(),
		AmountPaid:    inv.AmountPaid.InexactFloat64(),
		AmountDue:     inv.AmountDue().InexactFloat64(),
		IssuedAt:      inv.IssuedAt,
		DueDate:       inv.DueDate,
		DaysOverdue:   inv.DaysOverdue(),
		Payments:      payments,
		Discounts:     toAdjustmentResponses(inv.Discounts),
		WriteOffs:     toAdjustmentResponses(inv.WriteOffs),
		Notes:         inv.Notes,
		PaidAt:        inv.PaidAt,
		CancelledAt:   inv.CancelledAt,
		CancelReason:  inv.CancelReason,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
		Version:       inv.Version,
	}
}

func toInvoiceListResponse(inv *billing.Invoice) InvoiceListResponse {
	return InvoiceListResponse{
		ID:            inv.ID.String(),
		InvoiceNumber: inv.InvoiceNumber,
		PatientID:     inv.PatientID.String(),
		PatientName:   inv.PatientName,
		Status:        string(inv.Status),
		Total:         inv.Total().InexactFloat64(),
		AmountPaid:    inv.AmountPaid.InexactFloat64(),
		AmountDue:     inv.AmountDue().InexactFloat64(),
		IssuedAt:      inv.IssuedAt,
		DueDate:       inv.DueDate,
		DaysOverdue:   inv.DaysOverdue(),
	}
}

// Create godoc
// @Summary      Create invoice
// @Description  Issue a new invoice with a generated sequential number
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        request body CreateInvoiceRequest true "Invoice creation request"
// @Success      201 {object} dto.Response{data=InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		h.BadRequest(c, "Invalid patient ID format")
		return
	}

	userID, _ := getUserID(c)

	inv, err := h.invoiceService.CreateInvoice(c.Request.Context(), billingapp.CreateInvoiceRequest{
		ClinicID:      clinicID,
		PatientID:     patientID,
		PatientName:   req.PatientName,
		Subtotal:      decimal.NewFromFloat(req.Subtotal),
		DiscountTotal: decimal.NewFromFloat(req.DiscountTotal),
		TaxTotal:      decimal.NewFromFloat(req.TaxTotal),
		DueDate:       req.DueDate,
		Notes:         req.Notes,
		ActorID:       userID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toInvoiceResponse(inv))
}

// GetByID godoc
// @Summary      Get invoice by ID
// @Description  Retrieve an invoice with its full payment history
// @Tags         invoices
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        id path string true "Invoice ID" format(uuid)
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id} [get]
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	inv, err := h.invoiceService.GetInvoice(c.Request.Context(), clinicID, invoiceID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(inv))
}

// List godoc
// @Summary      List invoices
// @Description  Retrieve a paginated list of invoices with optional filtering
// @Tags         invoices
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        patient_id query string false "Patient ID" format(uuid)
// @Param        status query string false "Invoice status" Enums(DRAFT, ISSUED, SENT, VIEWED, PARTIAL, PAID, OVERDUE, CANCELLED, REFUNDED)
// @Param        overdue query boolean false "Only past-due invoices"
// @Param        from_date query string false "Issue date range start (ISO 8601)" format(date-time)
// @Param        to_date query string false "Issue date range end (ISO 8601)" format(date-time)
// @Param        search query string false "Search term (invoice number, patient name)"
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]InvoiceListResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	filter, err := parseInvoiceFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), clinicID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	items := make([]InvoiceListResponse, 0, len(invoices))
	for i := range invoices {
		items = append(items, toInvoiceListResponse(&invoices[i]))
	}

	h.SuccessWithMeta(c, items, total, filter.Page, filter.PageSize)
}

// ApplyDiscount godoc
// @Summary      Apply discount
// @Description  Apply a discount to an open invoice
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body AdjustmentRequest true "Discount request"
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/discounts [post]
func (h *InvoiceHandler) ApplyDiscount(c *gin.Context) {
	h.applyAdjustment(c, h.invoiceService.ApplyDiscount)
}

// ApplyWriteOff godoc
// @Summary      Apply write-off
// @Description  Write off part of an open invoice's balance
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body AdjustmentRequest true "Write-off request"
// @Success      200 {object} dto.Response{data=InvoiceResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/write-offs [post]
func (h *InvoiceHandler) ApplyWriteOff(c *gin.Context) {
	h.applyAdjustment(c, h.invoiceService.ApplyWriteOff)
}

type adjustmentFunc func(ctx context.Context, clinicID, invoiceID uuid.UUID, amount decimal.Decimal, reason string, actorID uuid.UUID) (*billing.Invoice, error)

func (h *InvoiceHandler) applyAdjustment(c *gin.Context, apply adjustmentFunc) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	userID, _ := getUserID(c)

	inv, err := apply(c.Request.Context(), clinicID, invoiceID, decimal.NewFromFloat(req.Amount), req.Reason, userID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toInvoiceResponse(inv))
}

// Cancel godoc
// @Summary      Cancel invoice
// @Description  Cancel an invoice that has no payments against it
// @Tags         invoices
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body CancelInvoiceRequest true "Cancellation request"
// @Success      204
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/cancel [post]
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	invoiceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	var req CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	userID, _ := getUserID(c)

	if err := h.invoiceService.CancelInvoice(c.Request.Context(), clinicID, invoiceID, req.Reason, userID); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// MarkOverdue godoc
// @Summary      Mark overdue invoices
// @Description  Transition every past-due payable invoice for the clinic to OVERDUE
// @Tags         invoices
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Success      200 {object} dto.Response{data=CountData}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/overdue/sweep [post]
func (h *InvoiceHandler) MarkOverdue(c *gin.Context) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	marked, err := h.invoiceService.MarkOverdueInvoices(c.Request.Context(), clinicID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, CountData{Count: int64(marked)})
}

func parseInvoiceFilter(c *gin.Context) (billing.InvoiceFilter, error) {
	filter := billing.InvoiceFilter{Filter: parseListFilter(c)}

	if v := c.Query("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return filter, errInvalidQueryParam("patient_id")
		}
		filter.PatientID = &id
	}
	if v := c.Query("status"); v != "" {
		status := billing.InvoiceStatus(v)
		filter.Status = &status
	}
	if v := c.Query("overdue"); v != "" {
		overdue := v == "true" || v == "1"
		filter.Overdue = &overdue
	}
	if v := c.Query("from_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidQueryParam("from_date")
		}
		filter.FromDate = &t
	}
	if v := c.Query("to_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, errInvalidQueryParam("to_date")
		}
		filter.ToDate = &t
	}

	return filter, nil
}
