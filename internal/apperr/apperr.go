// Package apperr 统一业务错误：HTTP 状态 + 机器可读 code + 可选上下文字段。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// 机器可读错误码，随响应体返回。
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeEmptyCart             = "EMPTY_CART"
	CodeMissingShippingFields = "MISSING_SHIPPING_FIELDS"
	CodeInvalidEmail          = "INVALID_EMAIL"
	CodeInvalidPhone          = "INVALID_PHONE"
	CodeInvalidItem           = "INVALID_ITEM"
	CodeInvalidProductID      = "INVALID_PRODUCT_ID"
	CodeInvalidQuantity       = "INVALID_QUANTITY"
	CodeInvalidPrice          = "INVALID_PRICE"
	CodeInvalidShippingPrice  = "INVALID_SHIPPING_PRICE"
	CodeProductNotFound       = "PRODUCT_NOT_FOUND"
	CodeInsufficientStock     = "INSUFFICIENT_STOCK"
	CodePriceMismatch         = "PRICE_MISMATCH"
	CodeTotalMismatch         = "TOTAL_MISMATCH"
	CodeInvalidPaymentMethod  = "INVALID_PAYMENT_METHOD"
	CodeCheckoutInProgress    = "CHECKOUT_IN_PROGRESS"
	CodeInvalidStatusChange   = "INVALID_STATUS_TRANSITION"
	CodeOrderNotPayable       = "ORDER_NOT_PAYABLE"
	CodeInvalidTransaction    = "INVALID_TRANSACTION"
	CodeTransactionNotFound   = "TRANSACTION_NOT_FOUND"
	CodeInvalidWebhookPayload = "INVALID_WEBHOOK_PAYLOAD"
	CodeInvalidSignature      = "INVALID_SIGNATURE"
	CodeOrderNotFound         = "ORDER_NOT_FOUND"
	CodeForbidden             = "FORBIDDEN"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeGatewayError          = "GATEWAY_ERROR"
	CodeGatewayTimeout        = "GATEWAY_TIMEOUT"
	CodePaymentNotConfigured  = "PAYMENT_NOT_CONFIGURED"
	CodeRateLimited           = "RATE_LIMITED"
	CodeInternal              = "INTERNAL_ERROR"
)

// Error 业务错误。Details 会平铺进响应体，便于客户端自行纠正（如刷新购物车）。
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 code 比较，errors.Is(err, apperr.New(..., CodeX, ...)) 可用。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// With 返回附加了上下文字段的副本。
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Internal 报告服务端错误（5xx 类）。
func (e *Error) Internal() bool { return e.Status >= http.StatusInternalServerError }

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Wrap 包装底层错误，保留 status/code。
func Wrap(err error, status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}

// Internal 未预期的持久化/系统错误，对外只给通用文案。
func Internal(err error) *Error {
	return Wrap(err, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// BadRequest 客户端可纠正的输入错误。
func BadRequest(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

// As 取出链上的 *Error。
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf 返回 err 的 code，非业务错误返回 INTERNAL_ERROR。
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}

// Response 统一错误响应体：{success:false, error, code, ...details}。
// 非业务错误按 500 处理；5xx 的底层原因只在非生产环境以 detail 回显。
func Response(err error, production bool) (int, map[string]any) {
	e, ok := As(err)
	if !ok {
		e = Internal(err)
	}
	body := make(map[string]any, len(e.Details)+4)
	for k, v := range e.Details {
		body[k] = v
	}
	body["success"] = false
	body["error"] = e.Message
	body["code"] = e.Code
	if e.Internal() && !production && e.Err != nil {
		body["detail"] = e.Err.Error()
	}
	return e.Status, body
}
