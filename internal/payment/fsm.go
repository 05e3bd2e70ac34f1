package payment

import (
	"slices"
	"strings"

	"pc_store/internal/model"
	"pc_store/internal/wompi"
)

// Effect 迁移附带的副作用。
type Effect int

const (
	EffectNone Effect = iota
	// EffectStamp 写入完整的支付明细与 PaidAt。
	EffectStamp
	// EffectRestock 回补订单占用的库存。
	EffectRestock
)

// Transition 网关状态对应的目标状态，以及允许从哪些状态出发。
type Transition struct {
	GatewayStatus string
	Payment       model.PaymentStatus
	Order         model.OrderStatus
	Effect        Effect

	FromPayment []model.PaymentStatus
	FromOrder   []model.OrderStatus
}

// transitions webhook 与轮询共用的唯一迁移表。
// PENDING 不改变任何状态，也就没有出发条件。
var transitions = map[string]Transition{
	wompi.StatusApproved: {
		GatewayStatus: wompi.StatusApproved,
		Payment:       model.PaymentCompleted,
		Order:         model.OrderProcessing,
		Effect:        EffectStamp,
		FromPayment:   []model.PaymentStatus{model.PaymentPending},
		FromOrder:     []model.OrderStatus{model.OrderPending},
	},
	wompi.StatusDeclined: {
		GatewayStatus: wompi.StatusDeclined,
		Payment:       model.PaymentFailed,
		Order:         model.OrderCancelled,
		Effect:        EffectRestock,
		FromPayment:   []model.PaymentStatus{model.PaymentPending},
		FromOrder:     []model.OrderStatus{model.OrderPending, model.OrderProcessing},
	},
	wompi.StatusVoided: {
		GatewayStatus: wompi.StatusVoided,
		Payment:       model.PaymentRefunded,
		Order:         model.OrderCancelled,
		Effect:        EffectRestock,
		FromPayment:   []model.PaymentStatus{model.PaymentPending, model.PaymentCompleted},
		FromOrder:     []model.OrderStatus{model.OrderPending, model.OrderProcessing},
	},
	wompi.StatusPending: {
		GatewayStatus: wompi.StatusPending,
		Payment:       model.PaymentPending,
		Order:         model.OrderPending,
		Effect:        EffectNone,
	},
}

// Resolve 网关状态 → 迁移。未知状态按 PENDING 处理。
func Resolve(gatewayStatus string) Transition {
	if t, ok := transitions[strings.ToUpper(strings.TrimSpace(gatewayStatus))]; ok {
		return t
	}
	return transitions[wompi.StatusPending]
}

// Changes 该迁移是否会修改订单。
func (t Transition) Changes() bool { return len(t.FromPayment) > 0 }

// Applies 订单当前状态能否执行该迁移；不能时对账是无副作用的确认。
func (t Transition) Applies(payment model.PaymentStatus, order model.OrderStatus) bool {
	return t.Changes() && slices.Contains(t.FromPayment, payment) && slices.Contains(t.FromOrder, order)
}

