package model

import (
	"time"

	"github.com/google/uuid"
)

// OrderEvent 订单生命周期事件落库（Kafka 消费端写入，event_id 唯一保证幂等）。
type OrderEvent struct {
	ID        uint      `gorm:"primarykey" json:"-"`
	CreatedAt time.Time `json:"createdAt"`

	EventID       string        `gorm:"size:64;uniqueIndex;not null" json:"eventId"`
	Type          string        `gorm:"size:64;not null;index" json:"type"`
	OrderID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"orderId"`
	OrderNumber   string        `gorm:"size:64" json:"orderNumber"`
	UserID        string        `gorm:"size:64" json:"user"`
	Status        OrderStatus   `gorm:"size:20" json:"status"`
	PaymentStatus PaymentStatus `gorm:"size:20" json:"paymentStatus"`
	TransactionID string        `gorm:"size:64" json:"transactionId,omitempty"`
	GatewayStatus string        `gorm:"size:32" json:"gatewayStatus,omitempty"`
	OccurredAt    time.Time     `gorm:"not null" json:"occurredAt"`
}

func (OrderEvent) TableName() string { return "order_events" }
