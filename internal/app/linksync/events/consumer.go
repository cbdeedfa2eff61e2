package events

import (
	"context"
	"log/slog"
	"time"

	"elnksync.local/internal/app/linksync"
)

// Apply 把一条事件派发到对应的对账路径。后台语义：任何错误在这里
// 记日志后终结，绝不上抛回事件源。
func Apply(ctx context.Context, rec *linksync.Reconciler, e Event) {
	item := &linksync.ContentItem{
		ID:        e.ItemID,
		Type:      e.Type,
		Status:    e.Status,
		Permalink: e.Permalink,
	}

	var err error
	switch e.Kind {
	case KindPublished:
		err = rec.ReconcileCreation(ctx, item, linksync.TriggerPublish)
	case KindInserted:
		err = rec.ReconcileCreation(ctx, item, linksync.TriggerInsert)
	case KindVisited:
		err = rec.ReconcileCreation(ctx, item, linksync.TriggerVisit)
	case KindDeleted, KindTrashed:
		err = rec.ReconcileDeletion(ctx, e.ItemID, linksync.TriggerDelete)
	case KindBulkDelete:
		err = rec.ReconcileDeletion(ctx, e.ItemID, linksync.TriggerBulkAdmin)
	case KindRESTDelete:
		err = rec.ReconcileDeletion(ctx, e.ItemID, linksync.TriggerRESTDelete)
	case KindUntrashed:
		err = rec.ReconcileRestore(ctx, e.ItemID)
	default:
		slog.Warn("unknown lifecycle event kind", "kind", e.Kind, "item_id", e.ItemID)
		return
	}
	if err != nil {
		slog.Error("lifecycle event reconcile failed", "kind", e.Kind, "item_id", e.ItemID, "err", err)
	}
}

// Consumer 消费 channel 收集器里的事件
type Consumer struct {
	reconciler *linksync.Reconciler
	collector  *ChannelCollector
	timeout    time.Duration
}

func NewConsumer(reconciler *linksync.Reconciler, collector *ChannelCollector) *Consumer {
	return &Consumer{
		reconciler: reconciler,
		collector:  collector,
		timeout:    60 * time.Second, //一次对账涉及多次远端调用
	}
}

// 阻塞 消费循环
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-c.collector.Events():
			if !ok {
				return
			}
			// 每条事件独立超时，不继承请求上下文
			evctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			Apply(evctx, c.reconciler, event)
			cancel()
		}
	}
}
