package handler

import (
	"time"

	billingapp "github.com/clinic/backend/internal/application/billing"
	"github.com/clinic/backend/internal/domain/billing"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditHandler handles patient credit API endpoints
type CreditHandler struct {
	BaseHandler
	creditService *billingapp.CreditService
}

// NewCreditHandler creates a new CreditHandler
func NewCreditHandler(creditService *billingapp.CreditService) *CreditHandler {
	return &CreditHandler{
		creditService: creditService,
	}
}

// GrantCreditRequest represents a request to add credit to a patient account
// @Description Request body for granting patient credit
type GrantCreditRequest struct {
	PatientName string  `json:"patient_name" binding:"max=200" example:"Amani Kabila"`
	Amount      float64 `json:"amount" binding:"required,gt=0" example:"15000"`
	Reason      string  `json:"reason" binding:"required,min=1,max=500" example:"Goodwill adjustment"`
	// RequestKey is the caller-supplied idempotency key; a repeated key
	// is rejected instead of double-granting
	RequestKey string `json:"request_key" binding:"required,min=1,max=100" example:"grant-2026-02-14-007"`
}

// ApplyCreditRequest represents a request to pay an invoice from credit
// @Description Request body for applying patient credit to an invoice
type ApplyCreditRequest struct {
	InvoiceID string  `json:"invoice_id" binding:"required,uuid" example:"550e8400-e29b-41d4-a716-446655440010"`
	Amount    float64 `json:"amount" binding:"required,gt=0" example:"15000"`
}

// CreditTransactionResponse represents a credit ledger entry in API responses
// @Description Credit transaction response
type CreditTransactionResponse struct {
	ID            string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440040"`
	Type          string    `json:"type" example:"GRANT"`
	Amount        float64   `json:"amount" example:"15000"`
	BalanceBefore float64   `json:"balance_before" example:"0"`
	BalanceAfter  float64   `json:"balance_after" example:"15000"`
	Reason        string    `json:"reason" example:"Overpayment on batch pay-2026-02-14-1042"`
	SourceType    string    `json:"source_type" example:"OVERPAYMENT"`
	SourceRef     string    `json:"source_ref,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func toCreditTransactionResponse(txn *billing.CreditTransaction) CreditTransactionResponse {
	return CreditTransactionResponse{
		ID:            txn.ID.String(),
		Type:          string(txn.Type),
		Amount:        txn.Amount.InexactFloat64(),
		BalanceBefore: txn.BalanceBefore.InexactFloat64(),
		BalanceAfter:  txn.BalanceAfter.InexactFloat64(),
		Reason:        txn.Reason,
		SourceType:    string(txn.SourceType),
		SourceRef:     txn.SourceRef,
		CreatedAt:     txn.CreatedAt,
	}
}

// Grant godoc
// @Summary      Grant credit
// @Description  Add credit to a patient account with an idempotency key
// @Tags         credits
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        patient_id path string true "Patient ID" format(uuid)
// @Param        request body GrantCreditRequest true "Credit grant request"
// @Success      201 {object} dto.Response{data=billingapp.GrantCreditResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/patients/{patient_id}/credits [post]
func (h *CreditHandler) Grant(c *gin.Context) {
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

	var req GrantCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	userID, _ := getUserID(c)

	result, err := h.creditService.GrantCredit(c.Request.Context(), billingapp.GrantCreditRequest{
		ClinicID:    clinicID,
		PatientID:   patientID,
		PatientName: req.PatientName,
		Amount:      decimal.NewFromFloat(req.Amount),
		Reason:      req.Reason,
		RequestKey:  req.RequestKey,
		ActorID:     userID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, result)
}

// Apply godoc
// @Summary      Apply credit
// @Description  Debit the patient's credit balance and pay it into an invoice atomically
// @Tags         credits
// @Accept       json
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        patient_id path string true "Patient ID" format(uuid)
// @Param        request body ApplyCreditRequest true "Credit application request"
// @Success      200 {object} dto.Response{data=billingapp.ApplyCreditResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/patients/{patient_id}/credits/apply [post]
func (h *CreditHandler) Apply(c *gin.Context) {
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

	var req ApplyCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	userID, _ := getUserID(c)

	result, err := h.creditService.ApplyCredit(c.Request.Context(), billingapp.ApplyCreditRequest{
		ClinicID:  clinicID,
		PatientID: patientID,
		InvoiceID: invoiceID,
		Amount:    decimal.NewFromFloat(req.Amount),
		ActorID:   userID,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, result)
}

// GetBalance godoc
// @Summary      Get credit balance
// @Description  Retrieve the patient's current credit balance
// @Tags         credits
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        patient_id path string true "Patient ID" format(uuid)
// @Success      200 {object} dto.Response{data=BalanceData}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/patients/{patient_id}/credits/balance [get]
func (h *CreditHandler) GetBalance(c *gin.Context) {
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

	balance, err := h.creditService.GetBalance(c.Request.Context(), clinicID, patientID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, BalanceData{Balance: balance.InexactFloat64()})
}

// ListTransactions godoc
// @Summary      List credit transactions
// @Description  Retrieve the patient's credit ledger, newest first
// @Tags         credits
// @Produce      json
// @Param        X-Clinic-ID header string false "Clinic ID (optional for dev)"
// @Param        patient_id path string true "Patient ID" format(uuid)
// @Param        type query string false "Transaction type" Enums(GRANT, APPLY)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]CreditTransactionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /billing/patients/{patient_id}/credits [get]
func (h *CreditHandler) ListTransactions(c *gin.Context) {
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

	filter := billing.CreditTransactionFilter{Filter: parseListFilter(c)}
	if v := c.Query("type"); v != "" {
		txnType := billing.CreditTransactionType(v)
		if !txnType.IsValid() {
			h.BadRequest(c, "Invalid transaction type")
			return
		}
		filter.Type = &txnType
	}

	transactions, err := h.creditService.ListTransactions(c.Request.Context(), clinicID, patientID, filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	items := make([]CreditTransactionResponse, 0, len(transactions))
	for i := range transactions {
		items = append(items, toCreditTransactionResponse(&transactions[i]))
	}

	h.Success(c, items)
}
