// Package catalog 下单流程依赖的最小商品目录：列表、库存查询、管理员录入。
package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pc_store/internal/apperr"
	"pc_store/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateProductRequest 管理员录入商品。
type CreateProductRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int64           `json:"stock"`
	Image string          `json:"image"`
}

// StockView 单个商品的可售库存。
type StockView struct {
	ID    uuid.UUID       `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int64           `json:"stock"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, log: log}
}

// List 按名称排序分页。
func (s *Service) List(ctx context.Context, q model.PageQuery) ([]model.Product, model.Pagination, error) {
	q = q.Normalize()
	var total int64
	if err := s.db.WithContext(ctx).Model(&model.Product{}).Count(&total).Error; err != nil {
		return nil, model.Pagination{}, apperr.Internal(err)
	}
	products := make([]model.Product, 0, q.Limit)
	err := s.db.WithContext(ctx).
		Order("name ASC").Order("id ASC").
		Limit(q.Limit).Offset(q.Offset()).
		Find(&products).Error
	if err != nil {
		return nil, model.Pagination{}, apperr.Internal(err)
	}
	return products, model.NewPagination(q, total), nil
}

// Stock 查询单个商品库存。
func (s *Service) Stock(ctx context.Context, id uuid.UUID) (StockView, error) {
	var p model.Product
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StockView{}, apperr.New(http.StatusNotFound, apperr.CodeProductNotFound, "product not found")
	}
	if err != nil {
		return StockView{}, apperr.Internal(err)
	}
	return StockView{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock}, nil
}

// Create 录入商品，价格保留两位小数。
func (s *Service) Create(ctx context.Context, req CreateProductRequest) (*model.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.BadRequest(apperr.CodeInvalidRequest, "product name is required")
	}
	if !req.Price.IsPositive() {
		return nil, apperr.BadRequest(apperr.CodeInvalidPrice, "price must be positive")
	}
	if req.Stock < 0 {
		return nil, apperr.BadRequest(apperr.CodeInvalidQuantity, "stock must not be negative")
	}

	p := &model.Product{
		Name:  name,
		Price: req.Price.Round(2),
		Stock: req.Stock,
		Image: strings.TrimSpace(req.Image),
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, apperr.Internal(err)
	}
	s.log.Info("product created",
		zap.String("product_id", p.ID.String()),
		zap.String("price", p.Price.String()),
		zap.Int64("stock", p.Stock))
	return p, nil
}

// FindByIDs 下单校验用：一次查出购物车涉及的全部商品。
func (s *Service) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Product, error) {
	out := make(map[uuid.UUID]model.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []model.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}
