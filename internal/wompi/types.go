// Package wompi Wompi 网关的最小客户端：交易查询、签名、托管收银台跳转 URL。
package wompi

import "time"

// 网关交易状态。其余取值（如 ERROR）按 PENDING 处理。
const (
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
	StatusVoided   = "VOIDED"
	StatusPending  = "PENDING"
)

// EventTransactionUpdated 唯一关心的 webhook 事件类型。
const EventTransactionUpdated = "transaction.updated"

// Transaction 网关交易快照（webhook data.transaction 与 GET /transactions/:id 的 data 同构）。
type Transaction struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	StatusMessage     string     `json:"status_message,omitempty"`
	Reference         string     `json:"reference"`
	AmountInCents     int64      `json:"amount_in_cents"`
	Currency          string     `json:"currency"`
	PaymentMethodType string     `json:"payment_method_type"`
	ReceiptURL        string     `json:"receipt_url,omitempty"`
	CustomerEmail     string     `json:"customer_email,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	FinalizedAt       *time.Time `json:"finalized_at,omitempty"`
}

// Event webhook 推送体。
type Event struct {
	Event       string    `json:"event"`
	Data        EventData `json:"data"`
	Environment string    `json:"environment,omitempty"`
	SentAt      string    `json:"sent_at,omitempty"`
}

type EventData struct {
	Transaction Transaction `json:"transaction"`
}

type transactionEnvelope struct {
	Data Transaction `json:"data"`
}

type transactionListEnvelope struct {
	Data []Transaction `json:"data"`
}

type presignedAcceptance struct {
	AcceptanceToken string `json:"acceptance_token"`
	Permalink       string `json:"permalink"`
}

type merchantEnvelope struct {
	Data struct {
		PresignedAcceptance presignedAcceptance `json:"presigned_acceptance"`
	} `json:"data"`
}
