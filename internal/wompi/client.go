package wompi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrPrivateKeyMissing 按 reference 搜索交易需要私钥。
	ErrPrivateKeyMissing = errors.New("wompi private key is not configured")
	// ErrNoAcceptanceToken 商户信息里没有预签名的 acceptance token。
	ErrNoAcceptanceToken = errors.New("wompi merchant has no acceptance token")
)

// APIError 网关返回了非预期的 HTTP 状态码。
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wompi responded %d: %s", e.StatusCode, e.Body)
}

// IsTimeout 区分“网关超时”与其它网关错误。
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ClientConfig 出站调用参数。
type ClientConfig struct {
	BaseURL    string
	PublicKey  string
	PrivateKey string
	Timeout    time.Duration
	RPS        float64
}

// Client Wompi REST 客户端。所有调用共用一个令牌桶，避免轮询高峰打爆网关配额。
type Client struct {
	baseURL    string
	publicKey  string
	privateKey string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// GetTransaction 按交易 ID 查询。交易不存在时返回 (nil, nil)。
func (c *Client) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	var env transactionEnvelope
	found, err := c.get(ctx, "/transactions/"+url.PathEscape(id), "", &env)
	if err != nil || !found {
		return nil, err
	}
	return &env.Data, nil
}

// FindTransactionByReference 按 reference 搜索交易，取网关返回的第一条。
// 没有匹配时返回 (nil, nil)。
func (c *Client) FindTransactionByReference(ctx context.Context, reference string) (*Transaction, error) {
	if c.privateKey == "" {
		return nil, ErrPrivateKeyMissing
	}
	var env transactionListEnvelope
	path := "/transactions?reference=" + url.QueryEscape(reference)
	found, err := c.get(ctx, path, c.privateKey, &env)
	if err != nil || !found || len(env.Data) == 0 {
		return nil, err
	}
	return &env.Data[0], nil
}

// AcceptanceToken 获取商户当前的预签名条款 token（跳转收银台必带）。
func (c *Client) AcceptanceToken(ctx context.Context) (string, error) {
	var env merchantEnvelope
	found, err := c.get(ctx, "/merchants/"+url.PathEscape(c.publicKey), "", &env)
	if err != nil {
		return "", err
	}
	token := env.Data.PresignedAcceptance.AcceptanceToken
	if !found || token == "" {
		return "", ErrNoAcceptanceToken
	}
	return token, nil
}

// get 发起 GET 请求并解码 JSON。404 返回 found=false。
func (c *Client) get(ctx context.Context, path, bearer string, out any) (bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("wompi rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("wompi build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("wompi GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("wompi decode %s: %w", path, err)
	}
	return true, nil
}
