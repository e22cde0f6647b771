package handler

import (
	"errors"
	"net/http"

	billingapp "github.com/clinic/backend/internal/application/billing"
	"github.com/clinic/backend/internal/domain/billing"
	"github.com/clinic/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundHandler handles refund API endpoints
type RefundHandler struct {
	BaseHandler
	refundService *billingapp.RefundService
}

// NewRefundHandler creates a new RefundHandler
func NewRefundHandler(refundService *billingapp.RefundService) *RefundHandler {
	return &RefundHandler{
		refundService: refundService,
	}
}

// ProcessRefundRequest represents a request to refund part of a payment
// @Description Request body for refunding a payment against an invoice
type ProcessRefundRequest struct {
	// PaymentID identifies the original payment entry. When omitted,
	// payment_index selects the entry by position instead.
	PaymentID    *string `json:"payment_id" binding:"omitempty,uuid" example:"550e8400-e29b-41d4-a716-446655440020"`
	PaymentIndex int     `json:"payment_index" binding:"gte=0" example:"0"`
	Amount       float64 `json:"amount" binding:"required,gt=0" example:"10000"`
	Reason       string  `json:"reason" binding:"required,min=1,max=500" example:"Service not rendered"`
}

// PreviewRefundRequest represents a request for a refund assessment
// @Description Request body for previewing a refund without applying it
type PreviewRefundRequest struct {
	PaymentID string  `json:"payment_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440020"`
	Amount    float64 `json:"amount" binding:"required,gt=0" example:"10000"`
	Reason    string  `json:"reason" binding:"required,min=1,max=500" example:"Service not rendered"`
}

// RefundAssessmentResponse represents the refundable headroom for a payment
// @Description Refund assessment response
type RefundAssessmentResponse struct {
	InvoiceID       string  `json:"invoice_id" example:"550e8400-e29b-41d4-a716-446655440010"`
	PaymentID       string  `json:"payment_id" example:"550e8400-e29b-41d4-a716-446655440020"`
	OriginalAmount  float64 `json:"original_amount" example:"56000"`
	AlreadyRefunded float64 `json:"already_refunded" example:"0"`
	MaxRefundable   float64 `json:"max_refundable" example:"56000"`
	Requested       float64 `json:"requested" example:"10000"`
	GatewayTxnID    string  `json:"gateway_txn_id,omitempty"`
	RequiresGateway bool    `json:"requires_gateway" example:"false"`
}

func toRefundAssessmentResponse(a *billing.RefundAssessment) RefundAssessmentResponse {
	return RefundAssessmentResponse{
		InvoiceID:       a.InvoiceID.String(),
		PaymentID:       a.PaymentID.String(),
		OriginalAmount:  a.OriginalAmount.InexactFloat64(),
		AlreadyRefunded: a.AlreadyRefunded.InexactFloat64(),
		MaxRefundable:   a.MaxRefundable.InexactFloat64(),
		Requested:       a.Requested.InexactFloat64(),
		GatewayTxnID:    a.GatewayTxnID,
		RequiresGateway: a.RequiresGateway,
	}
}

// Process godoc
// @Summary      Process refund
// @Description  Validate a refund against the payment history, reverse it at the gateway when needed, and append the reversal to the invoice
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body ProcessRefundRequest true "Refund request"
// @Success      201 {object} dto.Response{data=billingapp.ProcessRefundResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/refunds [post]
func (h *RefundHandler) Process(c *gin.Context) {
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

	var req ProcessRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	appReq := billingapp.ProcessRefundRequest{
		ClinicID:     clinicID,
		InvoiceID:    invoiceID,
		PaymentIndex: req.PaymentIndex,
		Amount:       decimal.NewFromFloat(req.Amount),
		Reason:       req.Reason,
	}
	if req.PaymentID != nil {
		paymentID, err := uuid.Parse(*req.PaymentID)
		if err != nil {
			h.BadRequest(c, "Invalid payment ID format")
			return
		}
		appReq.PaymentID = &paymentID
	}
	appReq.ActorID, _ = getUserID(c)

	result, err := h.refundService.ProcessRefund(c.Request.Context(), appReq)
	if err != nil {
		// A gateway refund that succeeded without a matching local write
		// must never be reported as a generic failure.
		var critical *billing.CriticalInconsistencyError
		if errors.As(err, &critical) {
			h.Error(c, http.StatusInternalServerError, dto.ErrCodeCriticalInconsistency, critical.Error())
			return
		}
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// Preview godoc
// @Summary      Preview refund
// @Description  Compute the refundable headroom for a payment without applying anything
// @Tags         refunds
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        id path string true "Invoice ID" format(uuid)
// @Param        request body PreviewRefundRequest true "Refund preview request"
// @Success      200 {object} dto.Response{data=RefundAssessmentResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/invoices/{id}/refunds/preview [post]
func (h *RefundHandler) Preview(c *gin.Context) {
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

	var req PreviewRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	assessment, err := h.refundService.PreviewRefund(c.Request.Context(), clinicID, invoiceID, paymentID,
		decimal.NewFromFloat(req.Amount), req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toRefundAssessmentResponse(assessment))
}
