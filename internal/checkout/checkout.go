// Package checkout 客户端结算流程：下单 → 生成本次支付的 reference 与签名 → 得到收银台地址 → 清空购物车。
// 任一步失败都保留购物车，用户可以直接重试。
package checkout

import (
	"context"
	"errors"
	"fmt"

	"pc_store/internal/model"
	"pc_store/internal/order"
	"pc_store/internal/wompi"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart      = errors.New("checkout: cart is empty")
	ErrOrderWithoutID = errors.New("checkout: order was created without an id")
	ErrNoRedirect     = errors.New("checkout: session has no checkout url")
)

// OrderPlacer 下单接口（APIClient 实现）。
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*model.Order, error)
}

// SessionBuilder 为已落库的订单生成收银台会话。
// Ready 在下单前调用，配置缺失时直接失败，不产生订单。
type SessionBuilder interface {
	Ready() error
	Build(ctx context.Context, o *model.Order) (wompi.Session, error)
}

// Cart 本地购物车。
type Cart interface {
	Items() ([]order.CartItem, error)
	Clear() error
}

// Request 用户在结算页填写的内容。
type Request struct {
	Shipping      order.ShippingInput
	PaymentMethod string
	ShippingPrice decimal.Decimal
}

// Result 结算成功：订单已创建，跳转地址已生成。
type Result struct {
	Order   *model.Order
	Session wompi.Session
}

type Orchestrator struct {
	orders   OrderPlacer
	sessions SessionBuilder
	cart     Cart
	log      *zap.Logger
}

func NewOrchestrator(orders OrderPlacer, sessions SessionBuilder, cart Cart, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{orders: orders, sessions: sessions, cart: cart, log: log}
}

// Checkout 顺序固定：订单必须先成功落库（reference 里要带订单 ID），
// 跳转地址完整生成之后才清空购物车。
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (Result, error) {
	if err := o.sessions.Ready(); err != nil {
		return Result{}, fmt.Errorf("checkout: payment is not configured: %w", err)
	}

	items, err := o.cart.Items()
	if err != nil {
		return Result{}, fmt.Errorf("checkout: read cart: %w", err)
	}
	if len(items) == 0 {
		return Result{}, ErrEmptyCart
	}

	placement := BuildOrderRequest(items, req)
	placed, err := o.orders.PlaceOrder(ctx, placement)
	if err != nil {
		return Result{}, fmt.Errorf("checkout: place order: %w", err)
	}
	if placed == nil || placed.ID == uuid.Nil {
		return Result{}, ErrOrderWithoutID
	}

	session, err := o.sessions.Build(ctx, placed)
	if err != nil {
		o.log.Warn("checkout session failed, cart kept",
			zap.String("order_id", placed.ID.String()),
			zap.Error(err))
		return Result{}, fmt.Errorf("checkout: build payment session: %w", err)
	}
	if session.CheckoutURL == "" {
		return Result{}, ErrNoRedirect
	}

	// 订单已经存在，清空失败只记录，不影响跳转
	if err := o.cart.Clear(); err != nil {
		o.log.Warn("cart clear failed", zap.String("order_id", placed.ID.String()), zap.Error(err))
	}
	o.log.Info("checkout ready",
		zap.String("order_id", placed.ID.String()),
		zap.String("order_number", placed.OrderNumber),
		zap.String("reference", session.Reference))
	return Result{Order: placed, Session: session}, nil
}

// BuildOrderRequest 按购物车计算客户端侧的小计与总价，服务端会重新核对。
func BuildOrderRequest(items []order.CartItem, req Request) order.PlaceOrderRequest {
	subtotal := decimal.Zero
	for _, it := range items {
		if it.Price.Valid && it.Quantity.Valid {
			subtotal = subtotal.Add(it.Price.Decimal.Mul(it.Quantity.Decimal))
		}
	}
	return order.PlaceOrderRequest{
		OrderItems:      items,
		ShippingAddress: req.Shipping,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      subtotal,
		ShippingPrice:   req.ShippingPrice,
		TotalPrice:      subtotal.Add(req.ShippingPrice),
	}
}
