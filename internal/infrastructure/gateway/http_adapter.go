package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/clinic/backend/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	refundPath      = "/v1/refunds"
	queryRefundPath = "/v1/refunds/%s"
)

// HTTPAdapter implements the PaymentGateway port against the card and
// mobile money processor's REST API. Requests are signed with an
// HMAC-SHA256 over method, path, timestamp and body.
type HTTPAdapter struct {
	config     *Config
	httpClient *http.Client
}

// NewHTTPAdapter creates a new HTTPAdapter
func NewHTTPAdapter(config *Config) (*HTTPAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &HTTPAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.timeout(),
		},
	}, nil
}

// ProcessRefund reverses a card or mobile money payment at the processor
func (a *HTTPAdapter) ProcessRefund(ctx context.Context, req *billing.GatewayRefundRequest) (*billing.GatewayRefundResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := refundRequestBody{
		MerchantID:    a.config.MerchantID,
		ClinicID:      req.ClinicID.String(),
		TransactionID: req.GatewayTransactionID,
		RefundID:      req.RefundID.String(),
		InvoiceNumber: req.InvoiceNumber,
		Amount:        req.RefundAmount.String(),
		Currency:      req.Currency,
		Reason:        req.Reason,
		Method:        string(req.Method),
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to marshal request: %w", err)
	}

	respBody, err := a.doRequest(ctx, http.MethodPost, refundPath, bodyBytes)
	if err != nil {
		return nil, err
	}

	return parseRefundResponse(respBody)
}

// QueryRefund queries the status of a previously submitted refund
func (a *HTTPAdapter) QueryRefund(ctx context.Context, clinicID uuid.UUID, gatewayRefundID string) (*billing.GatewayRefundResponse, error) {
	if clinicID == uuid.Nil {
		return nil, billing.ErrRefundInvalidClinicID
	}
	if gatewayRefundID == "" {
		return nil, billing.ErrRefundInvalidRefundID
	}

	path := fmt.Sprintf(queryRefundPath, gatewayRefundID)
	respBody, err := a.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return parseRefundResponse(respBody)
}

func parseRefundResponse(respBody []byte) (*billing.GatewayRefundResponse, error) {
	var parsed refundResponseBody
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrGatewayInvalidResponse, err)
	}

	status := billing.GatewayRefundStatus(parsed.Status)
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", billing.ErrGatewayInvalidResponse, parsed.Status)
	}

	amount := decimal.Zero
	if parsed.Amount != "" {
		parsedAmount, err := decimal.NewFromString(parsed.Amount)
		if err != nil {
			return nil, fmt.Errorf("%w: bad amount %q", billing.ErrGatewayInvalidResponse, parsed.Amount)
		}
		amount = parsedAmount
	}

	return &billing.GatewayRefundResponse{
		GatewayRefundID: parsed.RefundID,
		Status:          status,
		RefundAmount:    amount,
		RefundedAt:      parsed.RefundedAt,
		RawResponse:     string(respBody),
	}, nil
}

func (a *HTTPAdapter) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	url := a.config.BaseURL + path

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Merchant-Id", a.config.MerchantID)
	req.Header.Set("X-Timestamp", timestamp)
	req.Header.Set("X-Signature", a.sign(method, path, timestamp, body))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", billing.ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var errResp errorResponseBody
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Code != "" {
			return nil, fmt.Errorf("%w: %s - %s", billing.ErrGatewayRequestFailed, errResp.Code, errResp.Message)
		}
		return nil, fmt.Errorf("%w: status %d", billing.ErrGatewayRequestFailed, resp.StatusCode)
	}

	return respBody, nil
}

// sign computes the request signature: HMAC-SHA256(key, method\npath\ntimestamp\nbody)
func (a *HTTPAdapter) sign(method, path, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(a.config.APIKey))
	mac.Write([]byte(method))
	mac.Write([]byte("\n"))
	mac.Write([]byte(path))
	mac.Write([]byte("\n"))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Ensure HTTPAdapter implements PaymentGateway
var _ billing.PaymentGateway = (*HTTPAdapter)(nil)
