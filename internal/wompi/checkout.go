package wompi

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingPublicKey       = errors.New("payment public key is not configured")
	ErrMissingIntegritySecret = errors.New("payment integrity secret is not configured")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidReference       = errors.New("reference does not embed an order id")
)

// SessionConfig 生成收银台跳转所需的商户参数。
type SessionConfig struct {
	CheckoutURL     string
	PublicKey       string
	IntegritySecret string
	Currency        string
	RedirectURL     string
}

// Validate 缺少公钥或完整性密钥时不能生成跳转。
func (c SessionConfig) Validate() error {
	if strings.TrimSpace(c.PublicKey) == "" {
		return ErrMissingPublicKey
	}
	if strings.TrimSpace(c.IntegritySecret) == "" {
		return ErrMissingIntegritySecret
	}
	return nil
}

// Customer 可选的 customer-data:* 预填字段。
type Customer struct {
	Email       string
	FullName    string
	PhoneNumber string
	LegalID     string
	LegalIDType string
}

// Session 一次支付尝试。Reference 每次都不同，签名随之重新计算。
type Session struct {
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amountInCents"`
	Currency      string `json:"currency"`
	Signature     string `json:"signature"`
	RedirectURL   string `json:"redirectUrl"`
	CheckoutURL   string `json:"checkoutUrl"`
}

// Build 为订单生成新的 reference、完整性签名和收银台 URL。
func (c SessionConfig) Build(orderID uuid.UUID, total decimal.Decimal, acceptanceToken string, customer Customer, now time.Time) (Session, error) {
	if err := c.Validate(); err != nil {
		return Session{}, err
	}
	if orderID == uuid.Nil {
		return Session{}, ErrInvalidReference
	}
	cents := AmountInCents(total)
	if cents <= 0 {
		return Session{}, ErrInvalidAmount
	}
	currency := c.Currency
	if currency == "" {
		currency = "COP"
	}

	ref := NewReference(orderID, now)
	sig := IntegritySignature(ref, cents, currency, c.IntegritySecret)

	q := url.Values{}
	q.Set("public-key", c.PublicKey)
	q.Set("currency", currency)
	q.Set("amount-in-cents", strconv.FormatInt(cents, 10))
	q.Set("reference", ref)
	q.Set("signature:integrity", sig)
	if c.RedirectURL != "" {
		q.Set("redirect-url", c.RedirectURL)
	}
	if acceptanceToken != "" {
		q.Set("acceptance-token", acceptanceToken)
	}
	setIf(q, "customer-data:email", customer.Email)
	setIf(q, "customer-data:full-name", customer.FullName)
	setIf(q, "customer-data:phone-number", customer.PhoneNumber)
	setIf(q, "customer-data:legal-id", customer.LegalID)
	setIf(q, "customer-data:legal-id-type", customer.LegalIDType)

	base := c.CheckoutURL
	if base == "" {
		base = "https://checkout.wompi.co/p/"
	}
	return Session{
		Reference:     ref,
		AmountInCents: cents,
		Currency:      currency,
		Signature:     sig,
		RedirectURL:   c.RedirectURL,
		CheckoutURL:   base + "?" + q.Encode(),
	}, nil
}

func setIf(q url.Values, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		q.Set(key, v)
	}
}

// AmountInCents 金额转最小货币单位（四舍五入到整数分）。
func AmountInCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// NewReference <orderID>-<unix 毫秒>。
func NewReference(orderID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("%s-%d", orderID, now.UnixMilli())
}

// OrderIDFromReference 取 reference 前 36 位解析订单 ID。
func OrderIDFromReference(ref string) (uuid.UUID, error) {
	if len(ref) < 36 || (len(ref) > 36 && ref[36] != '-') {
		return uuid.Nil, ErrInvalidReference
	}
	id, err := uuid.Parse(ref[:36])
	if err != nil {
		return uuid.Nil, ErrInvalidReference
	}
	return id, nil
}
