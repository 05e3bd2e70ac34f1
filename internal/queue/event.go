package queue

import (
	"fmt"
	"time"

	"pc_store/internal/model"

	"github.com/google/uuid"
)

// 订单生命周期事件类型。
const (
	EventOrderPlaced       = "order.placed"
	EventCheckoutStarted   = "order.checkout_started"
	EventPaymentUpdated    = "order.payment_updated"
	EventFulfillmentUpdate = "order.status_updated"
)

// OrderEvent 写入 Redis Stream / Kafka 的订单事件。
type OrderEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TransactionID string    `json:"transaction_id,omitempty"`
	GatewayStatus string    `json:"gateway_status,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewOrderEvent 以订单当前状态生成一条事件。
func NewOrderEvent(typ string, o *model.Order) OrderEvent {
	return OrderEvent{
		EventID:       uuid.NewString(),
		Type:          typ,
		OrderID:       o.ID.String(),
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		TransactionID: o.Gateway.TransactionID,
		GatewayStatus: o.Gateway.Status,
		OccurredAt:    time.Now().UTC(),
	}
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (e OrderEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if _, err := uuid.Parse(e.OrderID); err != nil {
		return fmt.Errorf("invalid order_id %q", e.OrderID)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}

// Record 转成落库模型。调用前应已 Validate。
func (e OrderEvent) Record() model.OrderEvent {
	return model.OrderEvent{
		EventID:       e.EventID,
		Type:          e.Type,
		OrderID:       uuid.MustParse(e.OrderID),
		OrderNumber:   e.OrderNumber,
		UserID:        e.UserID,
		Status:        model.OrderStatus(e.Status),
		PaymentStatus: model.PaymentStatus(e.PaymentStatus),
		TransactionID: e.TransactionID,
		GatewayStatus: e.GatewayStatus,
		OccurredAt:    e.OccurredAt,
	}
}

// streamValues Redis Stream 字段（全部为字符串）。
func (e OrderEvent) streamValues() map[string]interface{} {
	return map[string]interface{}{
		"event_id":       e.EventID,
		"type":           e.Type,
		"order_id":       e.OrderID,
		"order_number":   e.OrderNumber,
		"user_id":        e.UserID,
		"status":         e.Status,
		"payment_status": e.PaymentStatus,
		"transaction_id": e.TransactionID,
		"gateway_status": e.GatewayStatus,
		"occurred_at":    e.OccurredAt.Format(time.RFC3339Nano),
	}
}
