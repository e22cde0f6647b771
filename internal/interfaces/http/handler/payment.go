package handler

import (
	billingapp "github.com/clinic/backend/internal/application/billing"
	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles payment allocation API endpoints
type PaymentHandler struct {
	BaseHandler
	paymentService *billingapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *billingapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// ManualAllocationInput represents one explicit per-invoice allocation
// @Description Explicit allocation for one invoice, in the accounting currency
type ManualAllocationInput struct {
	InvoiceID string  `json:"invoice_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440010"`
	Amount    float64 `json:"amount" binding:"required,gt=0" example:"20000"`
}

// AllocatePaymentRequest represents a request to allocate a payment
// @Description Request body for allocating one payment across a patient's outstanding invoices
type AllocatePaymentRequest struct {
	PatientID   string  `json:"patient_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	PatientName string  `json:"patient_name" binding:"max=200" example:"Amani Kabila"`
	Amount      float64 `json:"amount" binding:"required,gt=0" example:"50"`
	Currency    string  `json:"currency" binding:"required,len=3" example:"USD"`
	Method      string  `json:"method" binding:"required" example:"CASH"`
	Reference   string  `json:"reference" example:"till-7 receipt 1042"`
	// Strategy selects an automatic allocation; ignored when allocations
	// are supplied
	Strategy    string                  `json:"strategy" example:"OLDEST_FIRST"`
	Allocations []ManualAllocationInput `json:"allocations,omitempty"`
	// BatchID is the caller-supplied idempotency key for this payment
	BatchID string `json:"batch_id" binding:"required,min=1,max=100" example:"pay-2026-02-14-1042"`
}

// SuggestAllocationRequest represents a request for an allocation preview
// @Description Request body for previewing how a payment would be allocated
type SuggestAllocationRequest struct {
	PatientID string  `json:"patient_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440001"`
	Amount    float64 `json:"amount" binding:"required,gt=0" example:"50"`
	Currency  string  `json:"currency" binding:"required,len=3" example:"USD"`
	Strategy  string  `json:"strategy" binding:"required" example:"OLDEST_FIRST"`
}

// AllocationLineResponse represents one line of an allocation plan
// @Description Allocation plan line
type AllocationLineResponse struct {
	InvoiceID     string  `json:"invoice_id" example:"550e8400-e29b-41d4-a716-446655440010"`
	InvoiceNumber string  `json:"invoice_number" example:"INV-2026-00042"`
	Amount        float64 `json:"amount" example:"47200"`
}

// AllocationPlanResponse represents an allocation preview
// @Description Allocation plan response
type AllocationPlanResponse struct {
	Lines          []AllocationLineResponse `json:"lines"`
	TotalAllocated float64                  `json:"total_allocated" example:"140000"`
	Excess         float64                  `json:"excess" example:"0"`
	FullyAllocated bool                     `json:"fully_allocated" example:"true"`
}

func toAllocationPlanResponse(plan *billing.AllocationPlan) AllocationPlanResponse {
	lines := make([]AllocationLineResponse, 0, len(plan.Lines))
	for i := range plan.Lines {
		lines = append(lines, AllocationLineResponse{
			InvoiceID:     plan.Lines[i].InvoiceID.String(),
			InvoiceNumber: plan.Lines[i].InvoiceNumber,
			Amount:        plan.Lines[i].Amount.InexactFloat64(),
		})
	}
	return AllocationPlanResponse{
		Lines:          lines,
		TotalAllocated: plan.TotalAllocated.InexactFloat64(),
		Excess:         plan.Excess.InexactFloat64(),
		FullyAllocated: plan.FullyAllocated,
	}
}

// Allocate godoc
// @Summary      Allocate payment
// @Description  Distribute one payment across the patient's outstanding invoices; any excess is banked as patient credit
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        request body AllocatePaymentRequest true "Payment allocation request"
// @Success      201 {object} dto.Response{data=billingapp.AllocatePaymentResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/payments [post]
func (h *PaymentHandler) Allocate(c *gin.Context) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	var req AllocatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		h.BadRequest(c, "Invalid patient ID format")
		return
	}

	allocations := make([]billing.ManualAllocationRequest, 0, len(req.Allocations))
	for _, a := range req.Allocations {
		invoiceID, err := uuid.Parse(a.InvoiceID)
		if err != nil {
			h.BadRequest(c, "Invalid invoice ID format in allocations")
			return
		}
		allocations = append(allocations, billing.ManualAllocationRequest{
			InvoiceID: invoiceID,
			Amount:    decimal.NewFromFloat(a.Amount),
		})
	}

	userID, _ := getUserID(c)

	result, err := h.paymentService.AllocatePayment(c.Request.Context(), billingapp.AllocatePaymentRequest{
		ClinicID:    clinicID,
		PatientID:   patientID,
		PatientName: req.PatientName,
		Amount:      decimal.NewFromFloat(req.Amount),
		Currency:    valueobject.Currency(req.Currency),
		Method:      billing.PaymentMethod(req.Method),
		Reference:   req.Reference,
		Strategy:    billing.AllocationStrategyType(req.Strategy),
		Allocations: allocations,
		BatchID:     req.BatchID,
		ActorID:     userID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// Suggest godoc
// @Summary      Preview allocation
// @Description  Compute how a payment would be allocated without recording anything
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        request body SuggestAllocationRequest true "Allocation preview request"
// @Success      200 {object} dto.Response{data=AllocationPlanResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/payments/preview [post]
func (h *PaymentHandler) Suggest(c *gin.Context) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	var req SuggestAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		h.BadRequest(c, "Invalid patient ID format")
		return
	}

	plan, err := h.paymentService.SuggestAllocation(
		c.Request.Context(),
		clinicID,
		patientID,
		decimal.NewFromFloat(req.Amount),
		valueobject.Currency(req.Currency),
		billing.AllocationStrategyType(req.Strategy),
	)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toAllocationPlanResponse(plan))
}

// ListOutstanding godoc
// @Summary      List outstanding invoices
// @Description  Retrieve the patient's payable invoices, oldest first
// @Tags         payments
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        patient_id path string true "Patient ID" format(uuid)
// @Success      200 {object} dto.Response{data=[]InvoiceListResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/patients/{patient_id}/invoices/outstanding [get]
func (h *PaymentHandler) ListOutstanding(c *gin.Context) {
	clinicID, err := getClinicID(c)
	if err != nil {
		h.BadRequest(c, "Invalid clinic ID")
		return
	}

	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		h.BadRequest(c, "Invalid patient ID format")
		return
	}

	invoices, err := h.paymentService.ListOutstanding(c.Request.Context(), clinicID, patientID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	items := make([]InvoiceListResponse, 0, len(invoices))
	for i := range invoices {
		items = append(items, toInvoiceListResponse(&invoices[i]))
	}

	h.Success(c, items)
}
