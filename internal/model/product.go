package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product 商品：名称、售价、库存。
// Stock 是唯一会被并发下单争抢的可变字段，只能通过 inventory 包原子增减。
type Product struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name  string          `gorm:"size:128;not null" json:"name"`
	Price decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"price"`
	Stock int64           `gorm:"not null;default:0;check:chk_products_stock,stock >= 0" json:"stock"`
	Image string          `gorm:"size:512" json:"image"`
}

func (Product) TableName() string { return "products" }

// BeforeCreate 未指定主键时生成 UUID。
func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
