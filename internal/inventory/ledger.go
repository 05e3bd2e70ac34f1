// Package inventory 商品库存账本：只提供条件原子扣减与回补，
// 必须在调用方的事务内使用，与订单写入同生共死。
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"pc_store/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
)

// Line 一次扣减/回补的单个商品数量。
type Line struct {
	ProductID uuid.UUID
	Quantity  int64
}

// StockError 扣减失败时携带的现场数据，Available 为事务内重新读到的库存。
type StockError struct {
	ProductID uuid.UUID
	Requested int64
	Available int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

type Ledger struct {
	log *zap.Logger
}

func NewLedger(log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{log: log}
}

// Reserve 逐个商品执行 UPDATE ... WHERE stock >= qty。
// 判断与扣减在同一条语句里完成，并发下单不会超卖；
// 按商品 ID 排序加锁，避免两个事务交叉持锁死锁。
// 任何一行失败都返回错误，由调用方回滚整个事务。
func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, lines []Line) error {
	for _, ln := range normalize(lines) {
		res := tx.WithContext(ctx).
			Model(&model.Product{}).
			Where("id = ? AND stock >= ?", ln.ProductID, ln.Quantity).
			Update("stock", gorm.Expr("stock - ?", ln.Quantity))
		if res.Error != nil {
			return fmt.Errorf("reserve %s: %w", ln.ProductID, res.Error)
		}
		if res.RowsAffected == 1 {
			continue
		}

		available, err := l.Available(ctx, tx, ln.ProductID)
		if err != nil {
			return err
		}
		return &StockError{ProductID: ln.ProductID, Requested: ln.Quantity, Available: available}
	}
	return nil
}

// Release 回补库存（Reserve 的逆操作）。
// 商品已被软删除时照样回补；商品行彻底不存在时只记日志，不阻断对账。
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, lines []Line) error {
	for _, ln := range normalize(lines) {
		res := tx.WithContext(ctx).
			Unscoped().
			Model(&model.Product{}).
			Where("id = ?", ln.ProductID).
			Update("stock", gorm.Expr("stock + ?", ln.Quantity))
		if res.Error != nil {
			return fmt.Errorf("release %s: %w", ln.ProductID, res.Error)
		}
		if res.RowsAffected == 0 {
			l.log.Warn("stock release skipped, product missing",
				zap.String("product_id", ln.ProductID.String()),
				zap.Int64("quantity", ln.Quantity))
		}
	}
	return nil
}

// Available 读取当前库存。
func (l *Ledger) Available(ctx context.Context, db *gorm.DB, productID uuid.UUID) (int64, error) {
	var p model.Product
	err := db.WithContext(ctx).Select("id", "stock").Where("id = ?", productID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read stock %s: %w", productID, err)
	}
	return p.Stock, nil
}

// LinesOf 订单行项目 → 账本行。
func LinesOf(items []model.OrderItem) []Line {
	out := make([]Line, 0, len(items))
	for _, it := range items {
		out = append(out, Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// normalize 合并同一商品的多行并按 ID 排序，忽略非正数量。
func normalize(lines []Line) []Line {
	sum := make(map[uuid.UUID]int64, len(lines))
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			continue
		}
		sum[ln.ProductID] += ln.Quantity
	}
	out := make([]Line, 0, len(sum))
	for id, qty := range sum {
		out = append(out, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ProductID.String() < out[j].ProductID.String()
	})
	return out
}
