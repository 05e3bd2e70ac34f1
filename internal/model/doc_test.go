package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyIsEncodedAsNumber(t *testing.T) {
	b, err := json.Marshal(Product{Name: "Ryzen 9", Price: decimal.RequireFromString("899.50"), Stock: 2})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, 899.5, out["price"])

	b, err = json.Marshal(Order{ItemsPrice: decimal.NewFromInt(200), TotalPrice: decimal.NewFromInt(210)})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, float64(210), out["totalPrice"])

	var p Product
	require.NoError(t, json.Unmarshal([]byte(`{"price": "12.30"}`), &p))
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.3")))
}
