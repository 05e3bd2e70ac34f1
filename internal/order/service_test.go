package order

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"pc_store/internal/apperr"
	"pc_store/internal/catalog"
	"pc_store/internal/database/dbtest"
	"pc_store/internal/inventory"
	"pc_store/internal/model"
	"pc_store/internal/queue"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

var buyer = model.Caller{UserID: "user-1"}

func setup(t *testing.T) (*gorm.DB, *Service, *recordingPublisher) {
	t.Helper()
	db := dbtest.Open(t)
	events := &recordingPublisher{}
	svc := NewService(db, catalog.NewService(db, nil), inventory.NewLedger(nil), events, nil)
	return db, svc, events
}

func product(t *testing.T, db *gorm.DB, price string, stock int64) model.Product {
	t.Helper()
	p := model.Product{Name: "SSD " + uuid.NewString()[:4], Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func stockOf(t *testing.T, db *gorm.DB, id uuid.UUID) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, db.First(&p, "id = ?", id).Error)
	return p.Stock
}

func num(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func item(p model.Product, qty string) CartItem {
	return CartItem{Product: p.ID.String(), Name: p.Name, Price: decimal.NewNullDecimal(p.Price), Quantity: num(qty)}
}

func request(shipping, total string, items ...CartItem) PlaceOrderRequest {
	return PlaceOrderRequest{
		OrderItems: items,
		ShippingAddress: ShippingInput{
			Name:    "Ana Gomez",
			Email:   "ana@example.co",
			Address: "Calle 1 # 2-3",
			City:    "Bogota",
			Phone:   "+57 300 123 4567",
		},
		PaymentMethod: "wompi",
		ShippingPrice: decimal.RequireFromString(shipping),
		TotalPrice:    decimal.RequireFromString(total),
	}
}

func codeAndStatus(t *testing.T, err error) (string, int) {
	t.Helper()
	e, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	return e.Code, e.Status
}

func TestPlaceOrder_EndToEndScenario(t *testing.T) {
	db, svc, events := setup(t)
	p := product(t, db, "100", 5)

	o, err := svc.PlaceOrder(context.Background(), buyer, request("10", "210", item(p, "2")))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, o.ID)
	assert.Regexp(t, `^ORD-\d{14}-[0-9A-F]{6}$`, o.OrderNumber)
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(210)))
	assert.True(t, o.ItemsPrice.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, model.OrderPending, o.Status)
	assert.Equal(t, model.PaymentPending, o.PaymentStatus)
	assert.Equal(t, "user-1", o.UserID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, p.Name, o.Items[0].Name)
	assert.Equal(t, int64(2), o.Items[0].Quantity)
	assert.Equal(t, int64(3), stockOf(t, db, p.ID))

	require.Len(t, events.events, 1)
	assert.Equal(t, queue.EventOrderPlaced, events.events[0].Type)
}

func TestPlaceOrder_ValidationPipeline(t *testing.T) {
	db, svc, _ := setup(t)
	p := product(t, db, "100", 5)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(r *PlaceOrderRequest)
		code   string
		status int
	}{
		{"empty cart", func(r *PlaceOrderRequest) { r.OrderItems = nil }, apperr.CodeEmptyCart, http.StatusBadRequest},
		{"missing city", func(r *PlaceOrderRequest) { r.ShippingAddress.City = " " }, apperr.CodeMissingShippingFields, http.StatusBadRequest},
		{"bad email", func(r *PlaceOrderRequest) { r.ShippingAddress.Email = "ana@example" }, apperr.CodeInvalidEmail, http.StatusBadRequest},
		{"short phone", func(r *PlaceOrderRequest) { r.ShippingAddress.Phone = "(12) 34-5" }, apperr.CodeInvalidPhone, http.StatusBadRequest},
		{"missing price", func(r *PlaceOrderRequest) { r.OrderItems[0].Price = decimal.NullDecimal{} }, apperr.CodeInvalidItem, http.StatusBadRequest},
		{"bad product id", func(r *PlaceOrderRequest) { r.OrderItems[0].Product = "abc" }, apperr.CodeInvalidProductID, http.StatusBadRequest},
		{"fractional qty", func(r *PlaceOrderRequest) { r.OrderItems[0].Quantity = num("1.5") }, apperr.CodeInvalidQuantity, http.StatusBadRequest},
		{"zero qty", func(r *PlaceOrderRequest) { r.OrderItems[0].Quantity = num("0") }, apperr.CodeInvalidQuantity, http.StatusBadRequest},
		{"negative price", func(r *PlaceOrderRequest) { r.OrderItems[0].Price = num("-1") }, apperr.CodeInvalidPrice, http.StatusBadRequest},
		{"unknown product", func(r *PlaceOrderRequest) { r.OrderItems[0].Product = uuid.NewString() }, apperr.CodeProductNotFound, http.StatusNotFound},
		{"too many", func(r *PlaceOrderRequest) { r.OrderItems[0].Quantity = num("6") }, apperr.CodeInsufficientStock, http.StatusConflict},
		{"huge qty", func(r *PlaceOrderRequest) { r.OrderItems[0].Quantity = num("100000000000000000000") }, apperr.CodeInsufficientStock, http.StatusConflict},
		{"stale price", func(r *PlaceOrderRequest) { r.OrderItems[0].Price = num("90") }, apperr.CodePriceMismatch, http.StatusConflict},
		{"negative shipping", func(r *PlaceOrderRequest) { r.ShippingPrice = decimal.NewFromInt(-10); r.TotalPrice = decimal.NewFromInt(190) }, apperr.CodeInvalidShippingPrice, http.StatusBadRequest},
		{"wrong total", func(r *PlaceOrderRequest) { r.TotalPrice = decimal.NewFromInt(200) }, apperr.CodeTotalMismatch, http.StatusBadRequest},
		{"bad method", func(r *PlaceOrderRequest) { r.PaymentMethod = "bitcoin" }, apperr.CodeInvalidPaymentMethod, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := request("10", "210", item(p, "2"))
			tc.mutate(&req)

			_, err := svc.PlaceOrder(ctx, buyer, req)
			code, status := codeAndStatus(t, err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, int64(5), stockOf(t, db, p.ID))
		})
	}

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPlaceOrder_ItemsCheckedInCartOrder(t *testing.T) {
	db, svc, _ := setup(t)
	p := product(t, db, "100", 5)

	bad := item(p, "0")
	_, err := svc.PlaceOrder(context.Background(), buyer,
		request("0", "100", bad, CartItem{Product: "not-a-uuid", Price: num("1"), Quantity: num("1")}))
	code, _ := codeAndStatus(t, err)
	assert.Equal(t, apperr.CodeInvalidQuantity, code)
}

func TestPlaceOrder_ErrorDetails(t *testing.T) {
	db, svc, _ := setup(t)
	p := product(t, db, "100", 5)
	ctx := context.Background()

	req := request("10", "210", item(p, "2"))
	req.ShippingAddress.Phone = ""
	req.ShippingAddress.Email = ""
	_, err := svc.PlaceOrder(ctx, buyer, req)
	e, _ := apperr.As(err)
	assert.Equal(t, []string{"phone", "email"}, e.Details["missingFields"])

	_, err = svc.PlaceOrder(ctx, buyer, request("10", "710", item(p, "7")))
	e, _ = apperr.As(err)
	assert.Equal(t, int64(5), e.Details["available"])

	stale := item(p, "2")
	stale.Price = num("95.50")
	_, err = svc.PlaceOrder(ctx, buyer, request("10", "201", stale))
	e, _ = apperr.As(err)
	assert.True(t, decimal.NewFromInt(100).Equal(e.Details["currentPrice"].(decimal.Decimal)))
	assert.True(t, decimal.RequireFromString("95.5").Equal(e.Details["receivedPrice"].(decimal.Decimal)))

	_, err = svc.PlaceOrder(ctx, buyer, request("10", "999", item(p, "2")))
	e, _ = apperr.As(err)
	assert.True(t, decimal.NewFromInt(210).Equal(e.Details["calculatedTotal"].(decimal.Decimal)))
	assert.True(t, decimal.NewFromInt(999).Equal(e.Details["receivedTotal"].(decimal.Decimal)))
}

func TestPlaceOrder_DecimalPrices(t *testing.T) {
	db, svc, _ := setup(t)
	a := product(t, db, "19.99", 10)
	b := product(t, db, "0.01", 10)

	o, err := svc.PlaceOrder(context.Background(), buyer, request("5.5", "65.48", item(a, "3"), item(b, "1")))
	require.NoError(t, err)
	assert.True(t, o.ItemsPrice.Equal(decimal.RequireFromString("59.98")))
	assert.Equal(t, int64(7), stockOf(t, db, a.ID))
	assert.Equal(t, int64(9), stockOf(t, db, b.ID))
}

func TestPlaceOrder_RollsBackWhenOrderInsertFails(t *testing.T) {
	db, svc, _ := setup(t)
	a := product(t, db, "100", 5)
	b := product(t, db, "50", 5)
	svc.newNumber = func(time.Time) string { return "ORD-FIXED" }
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx, buyer, request("0", "100", item(a, "1")))
	require.NoError(t, err)

	// 订单号唯一索引冲突：库存已在事务内扣减，必须整体回滚
	_, err = svc.PlaceOrder(ctx, buyer, request("0", "300", item(a, "2"), item(b, "2")))
	code, status := codeAndStatus(t, err)
	assert.Equal(t, apperr.CodeInternal, code)
	assert.Equal(t, http.StatusInternalServerError, status)

	assert.Equal(t, int64(4), stockOf(t, db, a.ID))
	assert.Equal(t, int64(5), stockOf(t, db, b.ID))
}

func TestPlaceOrder_DuplicateLinesExceedingStock(t *testing.T) {
	db, svc, _ := setup(t)
	p := product(t, db, "100", 3)

	_, err := svc.PlaceOrder(context.Background(), buyer, request("0", "400", item(p, "2"), item(p, "2")))
	code, _ := codeAndStatus(t, err)
	assert.Equal(t, apperr.CodeInsufficientStock, code)
	assert.Equal(t, int64(3), stockOf(t, db, p.ID))
}

func TestPlaceOrder_ConcurrentOversell(t *testing.T) {
	db, svc, _ := setup(t)
	p := product(t, db, "100", 3)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(context.Background(), model.Caller{UserID: uuid.NewString()},
				request("0", "200", item(p, "2")))
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if apperr.CodeOf(err) == apperr.CodeInsufficientStock {
			short++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, int64(1), stockOf(t, db, p.ID))
}

func TestPlaceOrder_RequiresUser(t *testing.T) {
	_, svc, _ := setup(t)
	_, err := svc.PlaceOrder(context.Background(), model.Caller{}, PlaceOrderRequest{})
	assert.Equal(t, apperr.CodeUnauthorized, apperr.CodeOf(err))
}

func TestGetAndList(t *testing.T) {
	db, svc, _ := setup(t)
	p := product(t, db, "10", 100)
	ctx := context.Background()

	var mine []*model.Order
	for i := 0; i < 3; i++ {
		o, err := svc.PlaceOrder(ctx, buyer, request("0", "10", item(p, "1")))
		require.NoError(t, err)
		mine = append(mine, o)
	}
	_, err := svc.PlaceOrder(ctx, model.Caller{UserID: "user-2"}, request("0", "10", item(p, "1")))
	require.NoError(t, err)

	got, err := svc.Get(ctx, buyer, mine[0].ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)

	_, err = svc.Get(ctx, model.Caller{UserID: "user-2"}, mine[0].ID)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	_, err = svc.Get(ctx, model.Caller{Role: model.RoleAdmin}, mine[0].ID)
	assert.NoError(t, err)

	_, err = svc.Get(ctx, buyer, uuid.New())
	assert.Equal(t, apperr.CodeOrderNotFound, apperr.CodeOf(err))

	list, page, err := svc.ListByUser(ctx, "user-1", model.PageQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, model.Pagination{Page: 1, Pages: 2, Total: 3, Limit: 2}, page)

	all, page, err := svc.ListAll(ctx, Filter{Status: "PENDING"}, model.PageQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, int64(4), page.Total)

	none, _, err := svc.ListAll(ctx, Filter{PaymentStatus: "completed"}, model.PageQuery{})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, _, err = svc.ListAll(ctx, Filter{Status: "lost"}, model.PageQuery{})
	assert.Equal(t, apperr.CodeInvalidRequest, apperr.CodeOf(err))
}

func TestUpdateFulfillment(t *testing.T) {
	db, svc, events := setup(t)
	p := product(t, db, "10", 10)
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, buyer, request("0", "10", item(p, "1")))
	require.NoError(t, err)

	// 未支付的订单不能发货
	_, err = svc.UpdateFulfillment(ctx, o.ID, model.OrderShipped)
	assert.Equal(t, apperr.CodeInvalidStatusChange, apperr.CodeOf(err))

	require.NoError(t, db.Model(&model.Order{}).Where("id = ?", o.ID).
		Updates(map[string]any{"status": model.OrderProcessing, "payment_status": model.PaymentCompleted}).Error)

	_, err = svc.UpdateFulfillment(ctx, o.ID, model.OrderDelivered)
	assert.Equal(t, apperr.CodeInvalidStatusChange, apperr.CodeOf(err))

	_, err = svc.UpdateFulfillment(ctx, o.ID, model.OrderCancelled)
	assert.Equal(t, apperr.CodeInvalidStatusChange, apperr.CodeOf(err))

	shipped, err := svc.UpdateFulfillment(ctx, o.ID, model.OrderShipped)
	require.NoError(t, err)
	assert.Equal(t, model.OrderShipped, shipped.Status)

	delivered, err := svc.UpdateFulfillment(ctx, o.ID, model.OrderDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.OrderDelivered, delivered.Status)

	_, err = svc.UpdateFulfillment(ctx, o.ID, model.OrderShipped)
	assert.Equal(t, apperr.CodeInvalidStatusChange, apperr.CodeOf(err))

	assert.Len(t, events.events, 3)
}

func TestListEvents(t *testing.T) {
	db, svc, _ := setup(t)
	p := product(t, db, "10", 10)
	ctx := context.Background()

	o, err := svc.PlaceOrder(ctx, buyer, request("0", "10", item(p, "1")))
	require.NoError(t, err)

	for i, typ := range []string{queue.EventOrderPlaced, queue.EventPaymentUpdated} {
		rec := queue.NewOrderEvent(typ, o).Record()
		rec.OccurredAt = time.Unix(int64(1700000000+i), 0).UTC()
		require.NoError(t, db.Create(&rec).Error)
	}

	evs, err := svc.ListEvents(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, queue.EventOrderPlaced, evs[0].Type)
	assert.Equal(t, queue.EventPaymentUpdated, evs[1].Type)

	_, err = svc.ListEvents(ctx, uuid.New())
	assert.Equal(t, apperr.CodeOrderNotFound, apperr.CodeOf(err))
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	a := NewOrderNumber(now)
	b := NewOrderNumber(now)
	assert.Regexp(t, `^ORD-20240309140507-[0-9A-F]{6}$`, a)
	assert.NotEqual(t, a, b)
}
