package linksync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// itemGuard 是进程内的 per-item 重入保护：同一逻辑事件会触发多个
// 生命周期信号（发布时既有状态迁移又有 insert/update），第一个拿到
// 标记的继续，其余直接退出。创建和删除各用一把，互不阻塞。
type itemGuard struct {
	mu       sync.Mutex
	inflight map[int64]struct{}
}

func newItemGuard() *itemGuard {
	return &itemGuard{inflight: make(map[int64]struct{})}
}

func (g *itemGuard) tryAcquire(itemID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inflight[itemID]; busy {
		return false
	}
	g.inflight[itemID] = struct{}{}
	return true
}

func (g *itemGuard) release(itemID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, itemID)
}

// VisitGuard 是跨请求/跨实例的创建标记，只给 first-visit 路径用：
// 多个访客同时打开一篇没有短链的文章，只允许一个实例发起创建。
// 固定 TTL 兜底——创建调用卡死超过 TTL 后，下一次访问可能重复尝试，
// 这是接受的竞态：重复插入会落在 short_url 唯一约束上被吞掉。
type VisitGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewVisitGuard(client *redis.Client, ttl time.Duration) *VisitGuard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &VisitGuard{client: client, ttl: ttl}
}

func visitGuardKey(itemID int64) string {
	return fmt.Sprintf("elnk:creating:%d", itemID)
}

// Acquire 返回 false 表示别的请求正在创建。redis 不可用时放行，
// 退化成仅进程内保护（唯一约束仍然兜底）。
func (v *VisitGuard) Acquire(ctx context.Context, itemID int64) bool {
	if v == nil || v.client == nil {
		return true
	}
	ok, err := v.client.SetNX(ctx, visitGuardKey(itemID), 1, v.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

func (v *VisitGuard) Release(ctx context.Context, itemID int64) {
	if v == nil || v.client == nil {
		return
	}
	v.client.Del(ctx, visitGuardKey(itemID))
}
