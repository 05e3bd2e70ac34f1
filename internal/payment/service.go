// Package payment 支付对账：webhook 推送与客户端轮询两条入口共用 fsm.go 的迁移表，
// 状态更新与库存回补在同一事务内完成，重复信号只做确认。
package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pc_store/internal/apperr"
	"pc_store/internal/inventory"
	"pc_store/internal/model"
	"pc_store/internal/queue"
	"pc_store/internal/wompi"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Gateway 对账需要的网关能力（wompi.Client 实现）。
type Gateway interface {
	GetTransaction(ctx context.Context, id string) (*wompi.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*wompi.Transaction, error)
	AcceptanceToken(ctx context.Context) (string, error)
}

// EventPublisher 事务提交后的订单事件出口，失败只记日志。
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.OrderEvent) error
}

// Outcome 一次对账的结果。Applied=false 表示重复或不适用的信号，订单未变。
type Outcome struct {
	Order             *model.Order
	Applied           bool
	TransactionStatus string
}

// Checkout 服务端生成的收银台会话。
type Checkout struct {
	Session wompi.Session `json:"session"`
	Order   *model.Order  `json:"order"`
}

type Service struct {
	db      *gorm.DB
	ledger  *inventory.Ledger
	gateway Gateway
	session wompi.SessionConfig
	events  EventPublisher
	log     *zap.Logger
	now     func() time.Time
}

func NewService(db *gorm.DB, ledger *inventory.Ledger, gateway Gateway, session wompi.SessionConfig, events EventPublisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:      db,
		ledger:  ledger,
		gateway: gateway,
		session: session,
		events:  events,
		log:     log,
		now:     time.Now,
	}
}

// Reconcile 把网关交易状态应用到订单。
// 迁移用 compare-and-swap 条件更新：WHERE 带上允许的出发状态，
// 并发的 webhook 与轮询只有一个能命中，另一个 RowsAffected=0，不会重复回补库存。
func (s *Service) Reconcile(ctx context.Context, orderID uuid.UUID, tx wompi.Transaction) (Outcome, error) {
	t := Resolve(tx.Status)
	gatewayStatus := strings.ToUpper(strings.TrimSpace(tx.Status))
	now := s.now().UTC()

	var (
		order   model.Order
		applied bool
		stale   bool
	)
	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if err := dbtx.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}

		if superseded(&order, tx, t) {
			// 旧的支付尝试被拒/撤销不影响最新一次尝试
			stale = true
			return nil
		}
		if !t.Applies(order.PaymentStatus, order.Status) {
			// 仍在 pending 时记录最新的交易 ID 与网关原始状态，便于后续轮询
			if order.PaymentStatus != model.PaymentPending || tx.ID == "" {
				return nil
			}
			return dbtx.Model(&model.Order{}).
				Where("id = ? AND payment_status = ?", order.ID, model.PaymentPending).
				Updates(map[string]any{
					"gateway_transaction_id": tx.ID,
					"gateway_status":         gatewayStatus,
				}).Error
		}

		updates := map[string]any{
			"payment_status":       t.Payment,
			"status":               t.Order,
			"gateway_status":       gatewayStatus,
			"gateway_processed_at": now,
		}
		if tx.ID != "" {
			updates["gateway_transaction_id"] = tx.ID
		}
		if t.Effect == EffectStamp {
			updates["gateway_amount_in_cents"] = tx.AmountInCents
			updates["gateway_currency"] = tx.Currency
			updates["gateway_method"] = tx.PaymentMethodType
			updates["gateway_receipt_url"] = tx.ReceiptURL
			updates["paid_at"] = now
		}

		res := dbtx.Model(&model.Order{}).
			Where("id = ? AND payment_status IN ? AND status IN ?", order.ID, t.FromPayment, t.FromOrder).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if t.Effect == EffectRestock {
			if err := s.ledger.Release(ctx, dbtx, inventory.LinesOf(order.Items)); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Outcome{}, apperr.New(http.StatusNotFound, apperr.CodeOrderNotFound, "order not found")
	}
	if err != nil {
		return Outcome{}, apperr.Internal(err)
	}

	fresh, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}

	fields := []zap.Field{
		zap.String("order_id", orderID.String()),
		zap.String("transaction_id", tx.ID),
		zap.String("gateway_status", gatewayStatus),
		zap.Bool("applied", applied),
	}
	switch {
	case stale:
		s.log.Info("payment signal from a superseded checkout attempt ignored", append(fields,
			zap.String("reference", tx.Reference),
			zap.String("current_reference", fresh.PaymentReference))...)
	case applied:
		s.log.Info("payment reconciled", append(fields,
			zap.String("payment_status", string(fresh.PaymentStatus)),
			zap.String("status", string(fresh.Status)))...)
		if t.Effect == EffectStamp && tx.AmountInCents != wompi.AmountInCents(fresh.TotalPrice) {
			s.log.Warn("approved amount differs from order total", append(fields,
				zap.Int64("amount_in_cents", tx.AmountInCents),
				zap.String("total", fresh.TotalPrice.String()))...)
		}
		s.publish(ctx, queue.EventPaymentUpdated, fresh)
	default:
		s.log.Debug("payment signal acknowledged without change", fields...)
	}

	return Outcome{Order: fresh, Applied: applied, TransactionStatus: gatewayStatus}, nil
}

// superseded 订单已发起过更新的支付尝试时，旧 reference 上的非成功信号不再生效。
// 旧尝试上的 APPROVED 仍然适用：钱已经扣了。
func superseded(o *model.Order, tx wompi.Transaction, t Transition) bool {
	if o.PaymentReference == "" || tx.Reference == "" || t.Effect == EffectStamp {
		return false
	}
	return tx.Reference != o.PaymentReference
}

// HandleWebhook 处理网关推送。先按交易 ID 找订单，找不到再按 reference 前缀找。
// 非 transaction.updated 事件直接确认。
func (s *Service) HandleWebhook(ctx context.Context, ev wompi.Event) (Outcome, error) {
	if ev.Event != "" && ev.Event != wompi.EventTransactionUpdated {
		return Outcome{}, nil
	}
	tx := ev.Data.Transaction
	if tx.ID == "" || tx.Status == "" {
		return Outcome{}, apperr.BadRequest(apperr.CodeInvalidWebhookPayload, "transaction id and status are required")
	}

	orderID, err := s.findOrderForTransaction(ctx, tx)
	if err != nil {
		return Outcome{}, err
	}
	return s.Reconcile(ctx, orderID, tx)
}

func (s *Service) findOrderForTransaction(ctx context.Context, tx wompi.Transaction) (uuid.UUID, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Select("id").Where("gateway_transaction_id = ?", tx.ID).First(&o).Error
	if err == nil {
		return o.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, apperr.Internal(err)
	}

	notFound := apperr.New(http.StatusNotFound, apperr.CodeOrderNotFound, "no order matches this transaction").
		With("transactionId", tx.ID)
	id, refErr := wompi.OrderIDFromReference(tx.Reference)
	if refErr != nil {
		return uuid.Nil, notFound
	}
	err = s.db.WithContext(ctx).Select("id").Where("id = ?", id).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, notFound
	}
	if err != nil {
		return uuid.Nil, apperr.Internal(err)
	}
	return o.ID, nil
}

// Verify 客户端轮询入口：主动向网关查询交易并对账。
// transactionID 为空时用订单已关联的交易；仍没有则按最近一次 reference 搜索。
func (s *Service) Verify(ctx context.Context, caller model.Caller, orderID uuid.UUID, transactionID string) (Outcome, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}
	if !caller.CanAccess(order) {
		return Outcome{}, apperr.New(http.StatusForbidden, apperr.CodeForbidden, "not allowed to verify this order")
	}

	current := Outcome{Order: order, TransactionStatus: order.Gateway.Status}
	if order.PaymentStatus != model.PaymentPending {
		return current, nil
	}
	if s.gateway == nil {
		return Outcome{}, apperr.New(http.StatusServiceUnavailable, apperr.CodePaymentNotConfigured, "payment gateway is not configured")
	}

	id := strings.TrimSpace(transactionID)
	if id == "" {
		id = order.Gateway.TransactionID
	}

	var tx *wompi.Transaction
	switch {
	case id != "":
		tx, err = s.gateway.GetTransaction(ctx, id)
		if err != nil {
			return Outcome{}, s.gatewayError(ctx, order.ID, err)
		}
		if tx == nil {
			return Outcome{}, apperr.New(http.StatusNotFound, apperr.CodeTransactionNotFound, "transaction not found at gateway").
				With("transactionId", id)
		}
	case order.PaymentReference != "":
		tx, err = s.gateway.FindTransactionByReference(ctx, order.PaymentReference)
		if errors.Is(err, wompi.ErrPrivateKeyMissing) {
			return current, nil
		}
		if err != nil {
			return Outcome{}, s.gatewayError(ctx, order.ID, err)
		}
		if tx == nil {
			return current, nil
		}
	default:
		return current, nil
	}

	// 交易必须属于这笔订单，防止拿别人的已支付交易来核销
	if refID, err := wompi.OrderIDFromReference(tx.Reference); err != nil || refID != order.ID {
		return Outcome{}, apperr.BadRequest(apperr.CodeInvalidTransaction, "transaction does not belong to this order").
			With("transactionId", tx.ID)
	}
	return s.Reconcile(ctx, order.ID, *tx)
}

// CreateCheckout 为待支付订单生成收银台会话，密钥只留在服务端。
func (s *Service) CreateCheckout(ctx context.Context, caller model.Caller, orderID uuid.UUID) (Checkout, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Checkout{}, err
	}
	if !order.Owned(caller.UserID) {
		return Checkout{}, apperr.New(http.StatusForbidden, apperr.CodeForbidden, "not allowed to pay this order")
	}
	if order.PaymentStatus != model.PaymentPending || order.Status != model.OrderPending {
		return Checkout{}, apperr.New(http.StatusConflict, apperr.CodeOrderNotPayable, "order is not awaiting payment").
			With("status", order.Status).
			With("paymentStatus", order.PaymentStatus)
	}
	if err := s.session.Validate(); err != nil || s.gateway == nil {
		return Checkout{}, apperr.Wrap(err, http.StatusServiceUnavailable, apperr.CodePaymentNotConfigured, "payment gateway is not configured")
	}

	token, err := s.gateway.AcceptanceToken(ctx)
	if err != nil {
		return Checkout{}, s.gatewayError(ctx, order.ID, err)
	}

	addr := order.ShippingAddress
	session, err := s.session.Build(order.ID, order.TotalPrice, token, wompi.Customer{
		Email:       addr.Email,
		FullName:    addr.Name,
		PhoneNumber: addr.Phone,
		LegalID:     addr.LegalID,
		LegalIDType: addr.LegalIDType,
	}, s.now())
	if err != nil {
		return Checkout{}, apperr.Wrap(err, http.StatusUnprocessableEntity, apperr.CodeOrderNotPayable, "cannot build checkout for this order")
	}

	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND payment_status = ? AND status = ?", order.ID, model.PaymentPending, model.OrderPending).
		Update("payment_reference", session.Reference)
	if res.Error != nil {
		return Checkout{}, apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return Checkout{}, apperr.New(http.StatusConflict, apperr.CodeOrderNotPayable, "order is not awaiting payment")
	}
	order.PaymentReference = session.Reference

	s.log.Info("checkout session created",
		zap.String("order_id", order.ID.String()),
		zap.String("reference", session.Reference),
		zap.Int64("amount_in_cents", session.AmountInCents))
	s.publish(ctx, queue.EventCheckoutStarted, order)

	return Checkout{Session: session, Order: order}, nil
}

func (s *Service) loadOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var o model.Order
	err := s.db.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(http.StatusNotFound, apperr.CodeOrderNotFound, "order not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &o, nil
}

// gatewayError 网关不可达与网关报错分开归类，都不等同于“支付被拒”。
func (s *Service) gatewayError(ctx context.Context, orderID uuid.UUID, err error) error {
	s.log.Warn("payment gateway call failed",
		zap.String("order_id", orderID.String()),
		zap.Error(err))
	if wompi.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Wrap(err, http.StatusGatewayTimeout, apperr.CodeGatewayTimeout, "payment provider did not respond in time")
	}
	return apperr.Wrap(err, http.StatusBadGateway, apperr.CodeGatewayError, "could not reach the payment provider")
}

func (s *Service) publish(ctx context.Context, typ string, o *model.Order) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, queue.NewOrderEvent(typ, o)); err != nil {
		s.log.Warn("order event publish failed",
			zap.String("type", typ),
			zap.String("order_id", o.ID.String()),
			zap.Error(err))
	}
}
