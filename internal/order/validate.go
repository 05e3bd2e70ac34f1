package order

import (
	"context"
	"net/http"
	"strings"

	"pc_store/internal/apperr"
	"pc_store/internal/inventory"
	"pc_store/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	fieldValidator = validator.New()

	// 允许的支付方式
	paymentMethods = map[string]bool{
		"wompi": true,
		"card":  true,
		"pse":   true,
		"nequi": true,
	}
)

const minPhoneDigits = 7

// validated 通过校验的订单草稿：行项目已是服务端快照，金额已重算。
type validated struct {
	items    []model.OrderItem
	lines    []inventory.Line
	subtotal decimal.Decimal
	shipping decimal.Decimal
	total    decimal.Decimal
	address  model.ShippingAddress
	method   string
}

// validate 按固定顺序逐项校验，遇到第一个错误立即返回，不做任何写入。
func (s *Service) validate(ctx context.Context, req PlaceOrderRequest) (*validated, error) {
	if len(req.OrderItems) == 0 && !req.itemsMalformed {
		return nil, apperr.BadRequest(apperr.CodeEmptyCart, "cart is empty")
	}

	addr := normalizeAddress(req.ShippingAddress)
	if missing := missingShippingFields(addr); len(missing) > 0 {
		return nil, apperr.BadRequest(apperr.CodeMissingShippingFields, "missing required shipping fields").
			With("missingFields", missing)
	}
	if fieldValidator.Var(addr.Email, "email") != nil {
		return nil, apperr.BadRequest(apperr.CodeInvalidEmail, "email address is not valid")
	}
	if countDigits(addr.Phone) < minPhoneDigits {
		return nil, apperr.BadRequest(apperr.CodeInvalidPhone, "phone number must have at least 7 digits")
	}

	if req.itemsMalformed {
		return nil, apperr.BadRequest(apperr.CodeInvalidItem, "orderItems must be a list of cart items").
			With("index", 0)
	}

	// 先批量查出能解析的商品，再按购物车顺序逐行校验
	lookup := make([]uuid.UUID, 0, len(req.OrderItems))
	for _, it := range req.OrderItems {
		if id, err := uuid.Parse(strings.TrimSpace(it.Product)); err == nil {
			lookup = append(lookup, id)
		}
	}
	products, err := s.products.FindByIDs(ctx, lookup)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	out := &validated{
		items:    make([]model.OrderItem, 0, len(req.OrderItems)),
		lines:    make([]inventory.Line, 0, len(req.OrderItems)),
		subtotal: decimal.Zero,
		address:  addr,
	}
	for i, it := range req.OrderItems {
		if it.malformed || strings.TrimSpace(it.Product) == "" || !it.Quantity.Valid || !it.Price.Valid {
			return nil, apperr.BadRequest(apperr.CodeInvalidItem, "cart item must include product, quantity and price").
				With("index", i)
		}
		id, err := uuid.Parse(strings.TrimSpace(it.Product))
		if err != nil {
			return nil, apperr.BadRequest(apperr.CodeInvalidProductID, "product id is not valid").
				With("product", it.Product)
		}
		qty := it.Quantity.Decimal
		if !qty.IsInteger() || !qty.IsPositive() {
			return nil, apperr.BadRequest(apperr.CodeInvalidQuantity, "quantity must be a positive integer").
				With("product", id.String())
		}
		price := it.Price.Decimal
		if !price.IsPositive() {
			return nil, apperr.BadRequest(apperr.CodeInvalidPrice, "price must be positive").
				With("product", id.String())
		}
		p, ok := products[id]
		if !ok {
			return nil, apperr.New(http.StatusNotFound, apperr.CodeProductNotFound, "product not found").
				With("product", id.String())
		}
		if qty.GreaterThan(decimal.NewFromInt(p.Stock)) {
			return nil, insufficientStock(p.ID, p.Name, p.Stock, qty)
		}
		requested := qty.IntPart()
		if !price.Equal(p.Price) {
			return nil, apperr.New(http.StatusConflict, apperr.CodePriceMismatch, "product price has changed, refresh your cart").
				With("product", p.ID.String()).
				With("productName", p.Name).
				With("currentPrice", p.Price).
				With("receivedPrice", price)
		}

		image := p.Image
		if image == "" {
			image = strings.TrimSpace(it.Image)
		}
		out.items = append(out.items, model.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  requested,
			Image:     image,
		})
		out.lines = append(out.lines, inventory.Line{ProductID: p.ID, Quantity: requested})
		out.subtotal = out.subtotal.Add(p.Price.Mul(decimal.NewFromInt(requested)))
	}

	if req.shippingMalformed || req.ShippingPrice.IsNegative() {
		return nil, apperr.BadRequest(apperr.CodeInvalidShippingPrice, "shipping price must be a non-negative number")
	}
	out.shipping = req.ShippingPrice
	out.total = out.subtotal.Add(out.shipping)
	if req.totalMalformed || !out.total.Equal(req.TotalPrice) {
		var received any = req.TotalPrice
		if req.totalMalformed {
			received = nil
		}
		return nil, apperr.BadRequest(apperr.CodeTotalMismatch, "order total does not match items and shipping").
			With("calculatedTotal", out.total).
			With("receivedTotal", received).
			With("itemsPrice", out.subtotal).
			With("shippingPrice", out.shipping)
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if !paymentMethods[method] {
		return nil, apperr.BadRequest(apperr.CodeInvalidPaymentMethod, "payment method is not supported").
			With("allowed", allowedMethods())
	}
	out.method = method
	return out, nil
}

func insufficientStock(id uuid.UUID, name string, available int64, requested any) *apperr.Error {
	return apperr.New(http.StatusConflict, apperr.CodeInsufficientStock, "not enough stock for "+name).
		With("product", id.String()).
		With("productName", name).
		With("available", available).
		With("requested", requested)
}

func normalizeAddress(in ShippingInput) model.ShippingAddress {
	return model.ShippingAddress{
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		Address:     strings.TrimSpace(in.Address),
		City:        strings.TrimSpace(in.City),
		State:       strings.TrimSpace(in.State),
		Phone:       strings.TrimSpace(in.Phone),
		PostalCode:  strings.TrimSpace(in.PostalCode),
		LegalID:     strings.TrimSpace(in.LegalID),
		LegalIDType: strings.TrimSpace(in.LegalIDType),
	}
}

func missingShippingFields(a model.ShippingAddress) []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", a.Name},
		{"address", a.Address},
		{"city", a.City},
		{"phone", a.Phone},
		{"email", a.Email},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

func allowedMethods() []string {
	return []string{"card", "nequi", "pse", "wompi"}
}
