package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrVerificationPending 轮询次数用完仍未到终态，界面应提供“立即核对”入口。
var ErrVerificationPending = errors.New("checkout: payment verification still pending")

// Verifier 支付核对接口（APIClient 实现）。
type Verifier interface {
	Verify(ctx context.Context, orderID uuid.UUID, transactionID string) (VerifyResult, error)
}

// PollPolicy 固定间隔、有限次数。
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: 5 * time.Second, MaxAttempts: 24}
}

type Poller struct {
	verifier Verifier
	policy   PollPolicy
	log      *zap.Logger
}

func NewPoller(verifier Verifier, policy PollPolicy, log *zap.Logger) *Poller {
	def := DefaultPollPolicy()
	if policy.Interval <= 0 {
		policy.Interval = def.Interval
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{verifier: verifier, policy: policy, log: log}
}

// Poll 直到支付进入终态、遇到不可重试的错误、次数用完或 ctx 取消。
// 次数用完时返回最后一次结果和 ErrVerificationPending。
func (p *Poller) Poll(ctx context.Context, orderID uuid.UUID, transactionID string) (VerifyResult, error) {
	var last VerifyResult
	for attempt := 1; attempt <= p.policy.MaxAttempts; attempt++ {
		res, err := p.verifier.Verify(ctx, orderID, transactionID)
		switch {
		case err == nil:
			last = res
			if res.PaymentStatus.Terminal() {
				return res, nil
			}
		case ctx.Err() != nil:
			return last, ctx.Err()
		default:
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Retryable() {
				return last, err
			}
			// 网关超时/网络抖动不代表支付失败，继续轮询
			p.log.Warn("payment verification failed, will retry",
				zap.String("order_id", orderID.String()),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}

		if attempt == p.policy.MaxAttempts {
			break
		}
		timer := time.NewTimer(p.policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}
	}
	return last, ErrVerificationPending
}
