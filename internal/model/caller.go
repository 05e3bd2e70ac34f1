package model

// RoleAdmin 管理员角色，来自鉴权 token 的 role claim。
const RoleAdmin = "admin"

// Caller 已鉴权的调用方。
type Caller struct {
	UserID string
	Role   string
}

func (c Caller) Admin() bool { return c.Role == RoleAdmin }

// CanAccess 订单本人或管理员。
func (c Caller) CanAccess(o *Order) bool {
	return c.Admin() || o.Owned(c.UserID)
}
