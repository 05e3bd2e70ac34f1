package order

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

var errNotObject = errors.New("request body must be a JSON object")

// CartItem 客户端提交的购物车行。Price/Quantity 缺失视为结构错误。
type CartItem struct {
	Product  string              `json:"product"`
	Name     string              `json:"name"`
	Price    decimal.NullDecimal `json:"price"`
	Quantity decimal.NullDecimal `json:"quantity"`
	Image    string              `json:"image,omitempty"`

	// 解码时字段类型不对，校验阶段报 INVALID_ITEM
	malformed bool
}

// UnmarshalJSON 不返回错误：类型不符的行只做标记，交给 validate 按顺序报错。
func (it *CartItem) UnmarshalJSON(data []byte) error {
	*it = CartItem{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		it.malformed = true
		return nil
	}
	ok := rawString(raw["product"], &it.Product)
	ok = rawString(raw["name"], &it.Name) && ok
	ok = rawString(raw["image"], &it.Image) && ok
	ok = rawDecimal(raw["price"], &it.Price) && ok
	ok = rawDecimal(raw["quantity"], &it.Quantity) && ok
	it.malformed = !ok
	return nil
}

// ShippingInput 收货信息。
type ShippingInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Phone       string `json:"phone"`
	PostalCode  string `json:"postalCode"`
	LegalID     string `json:"legalId"`
	LegalIDType string `json:"legalIdType"`
}

// UnmarshalJSON 非字符串字段按空值处理，由必填字段校验报 MISSING_SHIPPING_FIELDS。
func (in *ShippingInput) UnmarshalJSON(data []byte) error {
	*in = ShippingInput{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for key, dst := range map[string]*string{
		"name":        &in.Name,
		"email":       &in.Email,
		"address":     &in.Address,
		"city":        &in.City,
		"state":       &in.State,
		"phone":       &in.Phone,
		"postalCode":  &in.PostalCode,
		"legalId":     &in.LegalID,
		"legalIdType": &in.LegalIDType,
	} {
		if !rawString(raw[key], dst) {
			*dst = ""
		}
	}
	return nil
}

// PlaceOrderRequest POST /api/orders 请求体。
type PlaceOrderRequest struct {
	OrderItems      []CartItem      `json:"orderItems"`
	ShippingAddress ShippingInput   `json:"shippingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	ItemsPrice      decimal.Decimal `json:"itemsPrice"`
	ShippingPrice   decimal.Decimal `json:"shippingPrice"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`

	itemsMalformed    bool
	shippingMalformed bool
	totalMalformed    bool
}

// UnmarshalJSON 只有请求体不是 JSON 对象时才失败；
// 其余类型错误保留到 validate 中，按校验顺序映射成对应错误码。
func (r *PlaceOrderRequest) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errNotObject
	}
	*r = PlaceOrderRequest{}

	if items, ok := raw["orderItems"]; ok && !isNull(items) {
		if err := json.Unmarshal(items, &r.OrderItems); err != nil {
			r.OrderItems = nil
			r.itemsMalformed = true
		}
	}
	if addr, ok := raw["shippingAddress"]; ok {
		_ = json.Unmarshal(addr, &r.ShippingAddress)
	}
	if !rawString(raw["paymentMethod"], &r.PaymentMethod) {
		r.PaymentMethod = ""
	}

	// itemsPrice 服务端会重算，解析失败按 0 处理
	var money decimal.NullDecimal
	if rawDecimal(raw["itemsPrice"], &money) {
		r.ItemsPrice = money.Decimal
	}
	money = decimal.NullDecimal{}
	r.shippingMalformed = !rawDecimal(raw["shippingPrice"], &money)
	r.ShippingPrice = money.Decimal
	money = decimal.NullDecimal{}
	r.totalMalformed = !rawDecimal(raw["totalPrice"], &money)
	r.TotalPrice = money.Decimal
	return nil
}

func isNull(msg json.RawMessage) bool {
	return len(msg) == 0 || string(msg) == "null"
}

// rawString 缺失或 null 记为空串；类型不是字符串时返回 false。
func rawString(msg json.RawMessage, dst *string) bool {
	if isNull(msg) {
		return true
	}
	return json.Unmarshal(msg, dst) == nil
}

// rawDecimal 缺失或 null 记为无效值；数字或数字字符串之外的类型返回 false。
func rawDecimal(msg json.RawMessage, dst *decimal.NullDecimal) bool {
	if isNull(msg) {
		*dst = decimal.NullDecimal{}
		return true
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(msg); err != nil {
		*dst = decimal.NullDecimal{}
		return false
	}
	*dst = decimal.NullDecimal{Decimal: d, Valid: true}
	return true
}

// Filter 管理员订单列表过滤条件，空值表示不过滤。
type Filter struct {
	Status        string
	PaymentStatus string
}

// StatusUpdateRequest PUT /api/admin/orders/:id/status 请求体。
type StatusUpdateRequest struct {
	Status string `json:"status"`
}
