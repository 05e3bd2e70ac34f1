package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pc_store/internal/model"
	"pc_store/internal/order"
	"pc_store/internal/wompi"

	"github.com/google/uuid"
)

// APIError 服务端返回的业务错误体 {success:false, error, code, ...}。
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Retryable 网关/服务端临时故障与限流可以重试，其余是确定性失败。
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// VerifyResult GET /api/payments/verify/:id 的响应。
type VerifyResult struct {
	PaymentStatus     model.PaymentStatus `json:"paymentStatus"`
	Order             *model.Order        `json:"order"`
	TransactionStatus string              `json:"transactionStatus,omitempty"`
}

// APIClient 店铺后端的 HTTP 客户端，携带用户的 bearer token。
type APIClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*model.Order, error) {
	var out struct {
		Data model.Order `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *APIClient) CreateCheckout(ctx context.Context, orderID uuid.UUID) (wompi.Session, error) {
	var out struct {
		Data struct {
			Session wompi.Session `json:"session"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/payments/checkout/"+orderID.String(), nil, &out); err != nil {
		return wompi.Session{}, err
	}
	return out.Data.Session, nil
}

func (c *APIClient) Verify(ctx context.Context, orderID uuid.UUID, transactionID string) (VerifyResult, error) {
	path := "/api/payments/verify/" + orderID.String()
	if transactionID != "" {
		path += "?" + url.Values{"transactionId": {transactionID}}.Encode()
	}
	var out VerifyResult
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return VerifyResult{}, err
	}
	return out, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Code = env.Code
			apiErr.Message = env.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
