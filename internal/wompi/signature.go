package wompi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// SignatureHeader webhook 签名所在的请求头。
const SignatureHeader = "X-Wompi-Signature"

// IntegritySignature 收银台完整性签名：
// hex(sha256(reference + amountInCents + currency + integritySecret))。
func IntegritySignature(reference string, amountInCents int64, currency, integritySecret string) string {
	var b strings.Builder
	b.WriteString(reference)
	b.WriteString(strconv.FormatInt(amountInCents, 10))
	b.WriteString(currency)
	b.WriteString(integritySecret)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// SignWebhook 对原始请求体计算 HMAC-SHA256（hex）。
func SignWebhook(body []byte, eventsSecret string) string {
	mac := hmac.New(sha256.New, []byte(eventsSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature 常量时间比较签名，secret 或签名为空一律拒绝。
func VerifyWebhookSignature(body []byte, signature, eventsSecret string) bool {
	if eventsSecret == "" || signature == "" {
		return false
	}
	expected := SignWebhook(body, eventsSecret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
