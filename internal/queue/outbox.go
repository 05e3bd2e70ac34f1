package queue

import (
	"context"
	"fmt"

	rd "github.com/redis/go-redis/v9"
)

// StreamOutbox 事务提交后把事件追加到 Redis Stream，由 Relay 异步转发 Kafka。
// 请求路径只多一次 XADD，不直接依赖 Kafka 可用性。
type StreamOutbox struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

func NewStreamOutbox(rdb *rd.Client, stream string) *StreamOutbox {
	return &StreamOutbox{rdb: rdb, stream: stream, maxLen: 100000}
}

// Publish 追加一条事件。
func (o *StreamOutbox) Publish(ctx context.Context, ev OrderEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	err := o.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: o.stream,
		MaxLen: o.maxLen,
		Approx: true,
		Values: ev.streamValues(),
	}).Err()
	if err != nil {
		return fmt.Errorf("outbox xadd: %w", err)
	}
	return nil
}
