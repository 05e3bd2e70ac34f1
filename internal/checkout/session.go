package checkout

import (
	"context"
	"time"

	"pc_store/internal/model"
	"pc_store/internal/wompi"

	"github.com/google/uuid"
)

// AcceptanceTokens 取商户当前的 acceptance token（wompi.Client 实现）。
type AcceptanceTokens interface {
	AcceptanceToken(ctx context.Context) (string, error)
}

// LocalSigner 在本地持有完整性密钥并签名，适用于受信任的运行环境（命令行工具）。
//
// Deprecated: 完整性密钥不应离开服务端，新代码使用 ServerSession。
type LocalSigner struct {
	config wompi.SessionConfig
	tokens AcceptanceTokens
	now    func() time.Time
}

// NewLocalSigner tokens 可为空，此时跳转地址不带 acceptance-token。
func NewLocalSigner(config wompi.SessionConfig, tokens AcceptanceTokens) *LocalSigner {
	return &LocalSigner{config: config, tokens: tokens, now: time.Now}
}

func (s *LocalSigner) Ready() error { return s.config.Validate() }

// Build 每次调用都生成新的 reference，签名不会被复用到另一笔金额上。
func (s *LocalSigner) Build(ctx context.Context, o *model.Order) (wompi.Session, error) {
	if err := s.config.Validate(); err != nil {
		return wompi.Session{}, err
	}
	var token string
	if s.tokens != nil {
		t, err := s.tokens.AcceptanceToken(ctx)
		if err != nil {
			return wompi.Session{}, err
		}
		token = t
	}
	addr := o.ShippingAddress
	return s.config.Build(o.ID, o.TotalPrice, token, wompi.Customer{
		Email:       addr.Email,
		FullName:    addr.Name,
		PhoneNumber: addr.Phone,
		LegalID:     addr.LegalID,
		LegalIDType: addr.LegalIDType,
	}, s.now())
}

// CheckoutCreator 服务端生成会话（APIClient 实现）。
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, orderID uuid.UUID) (wompi.Session, error)
}

// ServerSession 由服务端签名，密钥不出服务端。
type ServerSession struct {
	api CheckoutCreator
}

func NewServerSession(api CheckoutCreator) *ServerSession {
	return &ServerSession{api: api}
}

func (s *ServerSession) Ready() error { return nil }

func (s *ServerSession) Build(ctx context.Context, o *model.Order) (wompi.Session, error) {
	return s.api.CreateCheckout(ctx, o.ID)
}
