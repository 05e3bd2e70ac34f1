package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Order 订单聚合根。
// 行项目与金额在创建后不可变；之后只有支付对账会修改 Status / PaymentStatus / Gateway。
type Order struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	OrderNumber string      `gorm:"size:64;uniqueIndex;not null" json:"orderNumber"`
	UserID      string      `gorm:"size:64;not null;index" json:"user"`
	Items       []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"orderItems"`

	// 金额全部由服务端计算，单位为元（非分）
	ItemsPrice    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"itemsPrice"`
	ShippingPrice decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"shippingPrice"`
	TotalPrice    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"totalPrice"`

	ShippingAddress ShippingAddress `gorm:"embedded;embeddedPrefix:shipping_" json:"shippingAddress"`
	PaymentMethod   string          `gorm:"size:32;not null" json:"paymentMethod"`

	Status        OrderStatus   `gorm:"size:20;not null;default:'pending';index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null;default:'pending';index" json:"paymentStatus"`

	// PaymentReference 最近一次发往网关的 reference（orderID-毫秒时间戳）
	PaymentReference string         `gorm:"size:96;index" json:"paymentReference,omitempty"`
	Gateway          GatewayDetails `gorm:"embedded;embeddedPrefix:gateway_" json:"paymentResult"`
	PaidAt           *time.Time     `json:"paidAt,omitempty"`
}

func (Order) TableName() string { return "orders" }

// BeforeCreate 未指定主键时生成 UUID。
func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem 下单时刻的商品快照，不随商品后续改价/改名变化。
type OrderItem struct {
	ID        uint            `gorm:"primarykey" json:"-"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"-"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null;index" json:"product"`
	Name      string          `gorm:"size:128;not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"price"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	Image     string          `gorm:"size:512" json:"image,omitempty"`
}

func (OrderItem) TableName() string { return "order_items" }

// ShippingAddress 收货与联系人信息。
type ShippingAddress struct {
	Name        string `gorm:"size:128" json:"name"`
	Email       string `gorm:"size:128" json:"email"`
	Address     string `gorm:"size:255" json:"address"`
	City        string `gorm:"size:96" json:"city"`
	State       string `gorm:"size:96" json:"state,omitempty"`
	Phone       string `gorm:"size:32" json:"phone"`
	PostalCode  string `gorm:"size:16" json:"postalCode,omitempty"`
	LegalID     string `gorm:"size:32" json:"legalId,omitempty"`
	LegalIDType string `gorm:"size:8" json:"legalIdType,omitempty"`
}

// GatewayDetails 支付网关回传的交易信息，收到网关响应后才填充。
type GatewayDetails struct {
	TransactionID string     `gorm:"size:64;index" json:"id,omitempty"`
	Status        string     `gorm:"size:32" json:"status,omitempty"`
	AmountInCents int64      `json:"amountInCents,omitempty"`
	Currency      string     `gorm:"size:8" json:"currency,omitempty"`
	Method        string     `gorm:"size:32" json:"paymentMethod,omitempty"`
	ReceiptURL    string     `gorm:"size:512" json:"receiptUrl,omitempty"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
}

// Owned 判断订单是否属于 userID。
func (o *Order) Owned(userID string) bool {
	return o.UserID != "" && o.UserID == userID
}
