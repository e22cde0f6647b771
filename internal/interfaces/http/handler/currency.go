package handler

import (
	"time"

	"github.com/clinic/backend/internal/domain/currency"
	"github.com/clinic/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
)

// CurrencyHandler handles currency conversion API endpoints
type CurrencyHandler struct {
	BaseHandler
	converter *currency.Converter
}

// NewCurrencyHandler creates a new CurrencyHandler
func NewCurrencyHandler(converter *currency.Converter) *CurrencyHandler {
	return &CurrencyHandler{
		converter: converter,
	}
}

// ConvertRequest represents a currency conversion request
// @Description Request body for converting an amount between currencies
type ConvertRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0" example:"20"`
	From   string  `json:"from" binding:"required,len=3" example:"USD"`
	To     string  `json:"to" binding:"required,len=3" example:"CDF"`
}

// CurrencyAmountInput represents one (amount, currency) pair in a request
// @Description Amount in a specific currency
type CurrencyAmountInput struct {
	Amount   float64 `json:"amount" binding:"required,gt=0" example:"20"`
	Currency string  `json:"currency" binding:"required,len=3" example:"USD"`
}

// MultiCurrencyTotalRequest represents a request to total mixed-currency payments
// @Description Request body for totalling payments made in multiple currencies
type MultiCurrencyTotalRequest struct {
	Payments []CurrencyAmountInput `json:"payments" binding:"required,min=1,dive"`
}

// CalculateChangeRequest represents a request to compute change due
// @Description Request body for computing change when tendered cash exceeds the amount owed
type CalculateChangeRequest struct {
	Owed     float64               `json:"owed" binding:"required,gt=0" example:"47200"`
	Tendered []CurrencyAmountInput `json:"tendered" binding:"required,min=1,dive"`
}

// ParsePaymentRequest represents a request to parse a free-text payment note
// @Description Request body for parsing a front-desk payment note like "20 usd and 5000 fc"
type ParsePaymentRequest struct {
	Text string `json:"text" binding:"required,min=1,max=500" example:"20 usd and 5000 fc"`
}

// ConversionResponse represents a conversion result in API responses
// @Description Currency conversion response
type ConversionResponse struct {
	Amount   float64   `json:"amount" example:"56000"`
	From     string    `json:"from" example:"USD"`
	To       string    `json:"to" example:"CDF"`
	RateUsed float64   `json:"rate_used" example:"2800"`
	RateAsOf time.Time `json:"rate_as_of"`
}

// MoneyResponse represents a monetary amount in API responses
// @Description Monetary amount response
type MoneyResponse struct {
	Amount   float64 `json:"amount" example:"103000"`
	Currency string  `json:"currency" example:"CDF"`
}

// CurrencyAmountResponse represents one parsed (amount, currency) pair
// @Description Parsed payment segment
type CurrencyAmountResponse struct {
	Amount   float64 `json:"amount" example:"20"`
	Currency string  `json:"currency" example:"USD"`
}

// RateTableResponse represents the active exchange rates
// @Description Exchange rate table response
type RateTableResponse struct {
	Base      string             `json:"base" example:"CDF"`
	Rates     map[string]float64 `json:"rates"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func toMoneyResponse(m valueobject.Money) MoneyResponse {
	return MoneyResponse{
		Amount:   m.Amount().InexactFloat64(),
		Currency: string(m.Currency()),
	}
}

func toCurrencyAmounts(inputs []CurrencyAmountInput) []currency.CurrencyAmount {
	out := make([]currency.CurrencyAmount, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, currency.CurrencyAmount{
			Amount:   toDecimal(in.Amount),
			Currency: valueobject.Currency(in.Currency),
		})
	}
	return out
}

// Convert godoc
// @Summary      Convert currency
// @Description  Convert an amount between supported currencies using the active rate table
// @Tags         currency
// @Accept       json
// @Produce      json
// @Param        request body ConvertRequest true "Conversion request"
// @Success      200 {object} dto.Response{data=ConversionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /currency/convert [post]
func (h *CurrencyHandler) Convert(c *gin.Context) {
	var req ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.converter.Convert(toDecimal(req.Amount),
		valueobject.Currency(req.From), valueobject.Currency(req.To))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, ConversionResponse{
		Amount:   result.Amount.InexactFloat64(),
		From:     string(result.From),
		To:       string(result.To),
		RateUsed: result.RateUsed.InexactFloat64(),
		RateAsOf: result.RateAsOf,
	})
}

// Total godoc
// @Summary      Total mixed-currency payments
// @Description  Normalize payments made in multiple currencies into one accounting-currency total
// @Tags         currency
// @Accept       json
// @Produce      json
// @Param        request body MultiCurrencyTotalRequest true "Multi-currency total request"
// @Success      200 {object} dto.Response{data=MoneyResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /currency/total [post]
func (h *CurrencyHandler) Total(c *gin.Context) {
	var req MultiCurrencyTotalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	total, err := h.converter.CalculateMultiCurrencyTotal(toCurrencyAmounts(req.Payments))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toMoneyResponse(total))
}

// Change godoc
// @Summary      Calculate change
// @Description  Compute the change due when tendered cash exceeds the amount owed
// @Tags         currency
// @Accept       json
// @Produce      json
// @Param        request body CalculateChangeRequest true "Change calculation request"
// @Success      200 {object} dto.Response{data=MoneyResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /currency/change [post]
func (h *CurrencyHandler) Change(c *gin.Context) {
	var req CalculateChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	owed := valueobject.NewMoneyCDF(toDecimal(req.Owed))

	change, err := h.converter.CalculateChange(owed, toCurrencyAmounts(req.Tendered))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toMoneyResponse(change))
}

// Parse godoc
// @Summary      Parse payment note
// @Description  Parse a free-text front-desk note like "20 usd and 5000 fc" into structured amounts
// @Tags         currency
// @Accept       json
// @Produce      json
// @Param        request body ParsePaymentRequest true "Payment note to parse"
// @Success      200 {object} dto.Response{data=[]CurrencyAmountResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /currency/parse [post]
func (h *CurrencyHandler) Parse(c *gin.Context) {
	var req ParsePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	parsed := currency.ParsePaymentString(req.Text)

	items := make([]CurrencyAmountResponse, 0, len(parsed))
	for _, p := range parsed {
		items = append(items, CurrencyAmountResponse{
			Amount:   p.Amount.InexactFloat64(),
			Currency: string(p.Currency),
		})
	}

	h.Success(c, items)
}

// Rates godoc
// @Summary      Get exchange rates
// @Description  Retrieve the active rate table and when it was last refreshed
// @Tags         currency
// @Produce      json
// @Success      200 {object} dto.Response{data=RateTableResponse}
// @Security     BearerAuth
// @Router       /currency/rates [get]
func (h *CurrencyHandler) Rates(c *gin.Context) {
	rates := h.converter.Rates()

	out := make(map[string]float64, len(rates))
	for code, rate := range rates {
		out[string(code)] = rate.InexactFloat64()
	}

	h.Success(c, RateTableResponse{
		Base:      string(valueobject.DefaultCurrency),
		Rates:     out,
		UpdatedAt: h.converter.LastUpdated(),
	})
}
