package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"pc_store/internal/apperr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shippingJSON = `{"name": "Ana", "email": "ana@example.co", "address": "Calle 1", "city": "Bogota", "phone": "3001234567"}`

func body(items, shipping, total string) []byte {
	return []byte(fmt.Sprintf(`{
		"orderItems": %s,
		"shippingAddress": %s,
		"paymentMethod": "wompi",
		"itemsPrice": 200,
		"shippingPrice": %s,
		"totalPrice": %s
	}`, items, shippingJSON, shipping, total))
}

func TestPlaceOrderRequest_Decode(t *testing.T) {
	var req PlaceOrderRequest
	require.NoError(t, json.Unmarshal(body(`[{"product": "p-1", "price": "100", "quantity": 2}]`, "10", "210"), &req))
	require.Len(t, req.OrderItems, 1)
	assert.False(t, req.OrderItems[0].malformed)
	assert.True(t, req.OrderItems[0].Price.Decimal.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "Bogota", req.ShippingAddress.City)
	assert.True(t, req.TotalPrice.Equal(decimal.NewFromInt(210)))

	for _, raw := range []string{`[1, 2]`, `"cart"`, `null`, `{"orderItems": `} {
		assert.Error(t, json.Unmarshal([]byte(raw), &req), raw)
	}

	var addr ShippingInput
	require.NoError(t, json.Unmarshal([]byte(`{"name": 7, "city": "Cali"}`), &addr))
	assert.Empty(t, addr.Name)
	assert.Equal(t, "Cali", addr.City)

	var it CartItem
	require.NoError(t, json.Unmarshal([]byte(`{"product": "p-1", "price": 100}`), &it))
	assert.False(t, it.malformed)
	assert.False(t, it.Quantity.Valid)
}

func TestPlaceOrder_MalformedFieldsFollowPipeline(t *testing.T) {
	db, svc, _ := setup(t)
	p := product(t, db, "100", 5)
	line := fmt.Sprintf(`{"product": %q, "name": "GPU", "price": 100, "quantity": 2}`, p.ID.String())

	cases := []struct {
		name     string
		items    string
		shipping string
		total    string
		code     string
	}{
		{"items not a list", `"nope"`, "10", "210", apperr.CodeInvalidItem},
		{"line not an object", `[1]`, "10", "210", apperr.CodeInvalidItem},
		{"boolean quantity", fmt.Sprintf(`[{"product": %q, "price": 100, "quantity": true}]`, p.ID.String()), "10", "210", apperr.CodeInvalidItem},
		{"numeric product", `[{"product": 12, "price": 100, "quantity": 1}]`, "10", "210", apperr.CodeInvalidItem},
		{"array product id on second line", "[" + line + `, {"product": [], "price": 1, "quantity": 1}]`, "10", "210", apperr.CodeInvalidItem},
		{"empty cart wins over bad shipping", `[]`, `"ten"`, "210", apperr.CodeEmptyCart},
		{"shipping not a number", "[" + line + "]", `"ten"`, "210", apperr.CodeInvalidShippingPrice},
		{"total not a number", "[" + line + "]", "10", `{}`, apperr.CodeTotalMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var req PlaceOrderRequest
			require.NoError(t, json.Unmarshal(body(tc.items, tc.shipping, tc.total), &req))

			_, err := svc.PlaceOrder(context.Background(), buyer, req)
			code, status := codeAndStatus(t, err)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, int64(5), stockOf(t, db, p.ID))
		})
	}

	t.Run("bad line reports its index", func(t *testing.T) {
		var req PlaceOrderRequest
		require.NoError(t, json.Unmarshal(body("["+line+`, "x"]`, "10", "410"), &req))
		_, err := svc.PlaceOrder(context.Background(), buyer, req)
		e, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, apperr.CodeInvalidItem, e.Code)
		assert.Equal(t, 1, e.Details["index"])
	})
}
