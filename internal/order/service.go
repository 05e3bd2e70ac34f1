// Package order 下单与订单查询。
// 下单：校验 → 同一事务内条件扣减库存 + 写订单，任何一步失败整体回滚。
package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pc_store/internal/apperr"
	"pc_store/internal/inventory"
	"pc_store/internal/model"
	"pc_store/internal/queue"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProductLookup 下单校验需要的商品读取（catalog.Service 实现）。
type ProductLookup interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error)
}

// EventPublisher 订单事件出口，失败不影响已提交的订单。
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.OrderEvent) error
}

// fulfillment 管理员可执行的履约迁移；取消只能由支付对账触发。
var fulfillment = map[model.OrderStatus]model.OrderStatus{
	model.OrderProcessing: model.OrderShipped,
	model.OrderShipped:    model.OrderDelivered,
}

type Service struct {
	db       *gorm.DB
	products ProductLookup
	ledger   *inventory.Ledger
	events   EventPublisher
	log      *zap.Logger

	now       func() time.Time
	newNumber func(time.Time) string
}

func NewService(db *gorm.DB, products ProductLookup, ledger *inventory.Ledger, events EventPublisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:        db,
		products:  products,
		ledger:    ledger,
		events:    events,
		log:       log,
		now:       time.Now,
		newNumber: NewOrderNumber,
	}
}

// NewOrderNumber ORD-<yyyymmddHHMMSS>-<6 位随机>。
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102150405"), suffix)
}

// PlaceOrder 校验购物车并原子地扣减库存、写入订单。
func (s *Service) PlaceOrder(ctx context.Context, caller model.Caller, req PlaceOrderRequest) (*model.Order, error) {
	if caller.UserID == "" {
		return nil, apperr.New(http.StatusUnauthorized, apperr.CodeUnauthorized, "authentication required")
	}

	v, err := s.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &model.Order{
		OrderNumber:     s.newNumber(now),
		UserID:          caller.UserID,
		Items:           v.items,
		ItemsPrice:      v.subtotal,
		ShippingPrice:   v.shipping,
		TotalPrice:      v.total,
		ShippingAddress: v.address,
		PaymentMethod:   v.method,
		Status:          model.OrderPending,
		PaymentStatus:   model.PaymentPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ledger.Reserve(ctx, tx, v.lines); err != nil {
			return err
		}
		return tx.Create(order).Error
	})
	if err != nil {
		return nil, s.placementError(ctx, err)
	}

	s.log.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", order.UserID),
		zap.String("total", order.TotalPrice.String()),
		zap.Int("items", len(order.Items)))
	s.publish(ctx, queue.EventOrderPlaced, order)
	return order, nil
}

// placementError 事务内的失败：库存竞争输掉转业务错误，其余一律 500。
func (s *Service) placementError(ctx context.Context, err error) error {
	var se *inventory.StockError
	if errors.As(err, &se) {
		name := se.ProductID.String()
		if products, lookupErr := s.products.FindByIDs(ctx, []uuid.UUID{se.ProductID}); lookupErr == nil {
			if p, ok := products[se.ProductID]; ok {
				name = p.Name
			}
		}
		return insufficientStock(se.ProductID, name, se.Available, se.Requested)
	}
	if errors.Is(err, inventory.ErrProductNotFound) {
		return apperr.New(http.StatusNotFound, apperr.CodeProductNotFound, "product not found")
	}
	s.log.Error("order placement failed", zap.Error(err))
	return apperr.Internal(err)
}

// Get 订单本人或管理员可查看。
func (s *Service) Get(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(o) {
		return nil, apperr.New(http.StatusForbidden, apperr.CodeForbidden, "not allowed to view this order")
	}
	return o, nil
}

// ListByUser 当前用户的订单，新的在前。
func (s *Service) ListByUser(ctx context.Context, userID string, q model.PageQuery) ([]model.Order, model.Pagination, error) {
	return s.list(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}, q)
}

// ListAll 管理员订单列表，可按订单/支付状态过滤。
func (s *Service) ListAll(ctx context.Context, f Filter, q model.PageQuery) ([]model.Order, model.Pagination, error) {
	var (
		status  model.OrderStatus
		payment model.PaymentStatus
	)
	if f.Status != "" {
		status = model.OrderStatus(strings.ToLower(f.Status))
		if !status.Valid() {
			return nil, model.Pagination{}, apperr.BadRequest(apperr.CodeInvalidRequest, "unknown order status").
				With("status", f.Status)
		}
	}
	if f.PaymentStatus != "" {
		payment = model.PaymentStatus(strings.ToLower(f.PaymentStatus))
		switch payment {
		case model.PaymentPending, model.PaymentCompleted, model.PaymentFailed, model.PaymentRefunded:
		default:
			return nil, model.Pagination{}, apperr.BadRequest(apperr.CodeInvalidRequest, "unknown payment status").
				With("paymentStatus", f.PaymentStatus)
		}
	}
	return s.list(ctx, func(db *gorm.DB) *gorm.DB {
		if status != "" {
			db = db.Where("status = ?", status)
		}
		if payment != "" {
			db = db.Where("payment_status = ?", payment)
		}
		return db
	}, q)
}

func (s *Service) list(ctx context.Context, scope func(*gorm.DB) *gorm.DB, q model.PageQuery) ([]model.Order, model.Pagination, error) {
	q = q.Normalize()
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Order{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, model.Pagination{}, apperr.Internal(err)
	}
	orders := make([]model.Order, 0, q.Limit)
	err := s.db.WithContext(ctx).
		Scopes(scope).
		Preload("Items").
		Order("created_at DESC").Order("id DESC").
		Limit(q.Limit).Offset(q.Offset()).
		Find(&orders).Error
	if err != nil {
		return nil, model.Pagination{}, apperr.Internal(err)
	}
	return orders, model.NewPagination(q, total), nil
}

// UpdateFulfillment 管理员推进履约状态：processing→shipped→delivered。
func (s *Service) UpdateFulfillment(ctx context.Context, id uuid.UUID, to model.OrderStatus) (*model.Order, error) {
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	invalid := apperr.BadRequest(apperr.CodeInvalidStatusChange, "status transition is not allowed").
		With("from", o.Status).
		With("to", to)
	if next, ok := fulfillment[o.Status]; !ok || next != to {
		return nil, invalid
	}

	res := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND status = ?", o.ID, o.Status).
		Update("status", to)
	if res.Error != nil {
		return nil, apperr.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		// 并发修改：状态已被别人推进或取消
		return nil, invalid
	}

	o, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("order status updated",
		zap.String("order_id", o.ID.String()),
		zap.String("status", string(o.Status)))
	s.publish(ctx, queue.EventFulfillmentUpdate, o)
	return o, nil
}

// ListEvents 订单事件日志，按发生时间升序。
func (s *Service) ListEvents(ctx context.Context, id uuid.UUID) ([]model.OrderEvent, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	events := make([]model.OrderEvent, 0)
	err := s.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order("occurred_at ASC").Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return events, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*model.Order, error) {
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
