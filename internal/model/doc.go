// Package model 数据库实体与跨包共享的状态枚举。
//
// 导入本包会把 decimal.MarshalJSONWithoutQuotes 置为 true：进程内所有
// decimal.Decimal 都按 JSON 数字输出（如 "price": 899.5），客户端按数字读取金额。
// 反序列化同时接受数字和数字字符串。
package model

import "github.com/shopspring/decimal"

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}
