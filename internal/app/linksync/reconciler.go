package linksync

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"elnksync.local/internal/platform/metrics"
)

// Trigger 标识一次对账是被哪个生命周期信号触发的，只进日志和指标。
type Trigger string

const (
	TriggerPublish    Trigger = "publish"     // 状态迁移到已发布
	TriggerInsert     Trigger = "insert"      // 插入/更新且已发布（发布信号的兜底）
	TriggerVisit      Trigger = "visit"       // 首次访问兜底创建
	TriggerDelete     Trigger = "delete"      // 删除（before-delete / deleted 等都算）
	TriggerTrash      Trigger = "trash"       // 移入回收站
	TriggerBulkAdmin  Trigger = "bulk_admin"  // 后台批量操作
	TriggerRESTDelete Trigger = "rest_delete" // REST 删除
	TriggerManual     Trigger = "manual"      // 管理接口手动操作
	TriggerBus        Trigger = "bus"         // Kafka 事件总线
)

// Policy 是对账用到的那部分配置（从 config.Config 摘出来，便于测试）。
type Policy struct {
	AutoGenerate  bool
	APIKeySet     bool
	ContentTypes  []string
	MirrorMeta    bool
	CreateOnVisit bool
}

func (p Policy) typeEnabled(contentType string) bool {
	for _, t := range p.ContentTypes {
		if t == contentType {
			return true
		}
	}
	return false
}

// Reconciler 保证本地记录和远端短链在生命周期事件下的一致性。
//
// 核心约定：触发信号是多对一的（一次发布/删除会打进来好几个信号），
// 但每个逻辑事件的创建或删除只发生一次。进程内 per-item guard 把同
// 一事件的重复信号串行化；first-visit 再加一层带 TTL 的 redis 标记
// 挡跨请求的并发访客。
type Reconciler struct {
	policy     Policy
	api        LinkAPI
	records    RecordStore
	meta       MetaStore
	resolver   *Resolver
	content    ContentSource
	visitGuard *VisitGuard

	creating *itemGuard
	deleting *itemGuard
}

func NewReconciler(policy Policy, api LinkAPI, records RecordStore, meta MetaStore, resolver *Resolver, content ContentSource, visitGuard *VisitGuard) *Reconciler {
	return &Reconciler{
		policy:     policy,
		api:        api,
		records:    records,
		meta:       meta,
		resolver:   resolver,
		content:    content,
		visitGuard: visitGuard,
		creating:   newItemGuard(),
		deleting:   newItemGuard(),
	}
}

// ReconcileCreation 是所有后台创建信号的唯一入口。
//
// 门槛按顺序短路：自动创建开关 → API key → 内容类型 → 已有短链。
// 任何一个不过都静默退出——后台触发不报错，报错只属于手动路径。
// 返回值只用于日志/测试，调用方不得把它抛回触发它的生命周期信号。
func (r *Reconciler) ReconcileCreation(ctx context.Context, item *ContentItem, trig Trigger) error {
	if item == nil {
		return nil
	}
	if !r.policy.AutoGenerate || !r.policy.APIKeySet {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "skipped").Inc()
		return nil
	}
	if trig == TriggerVisit && !r.policy.CreateOnVisit {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "skipped").Inc()
		return nil
	}
	if !r.policy.typeEnabled(item.Type) {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "skipped").Inc()
		return nil
	}
	// 发布信号本身已经带了状态语义；insert/visit 兜底信号要自己确认已发布。
	if (trig == TriggerInsert || trig == TriggerVisit) && item.Status != StatusPublished {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "skipped").Inc()
		return nil
	}

	if !r.creating.tryAcquire(item.ID) {
		metrics.GuardRejectionsTotal.WithLabelValues("create").Inc()
		return nil
	}
	defer r.creating.release(item.ID)

	if trig == TriggerVisit {
		if !r.visitGuard.Acquire(ctx, item.ID) {
			metrics.GuardRejectionsTotal.WithLabelValues("visit").Inc()
			return nil
		}
		defer r.visitGuard.Release(ctx, item.ID)
	}

	// 查重在拿到 guard 之后做：guard 先挡掉同一事件的并发信号，
	// 剩下的串行信号在这里看到已有记录然后退出。
	exists, err := r.resolver.HasShortURL(ctx, item)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "failed").Inc()
		return err
	}
	if exists {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "skipped").Inc()
		return nil
	}

	// 后台自动创建从不带自定义别名。
	if err := r.createAndPersist(ctx, item.Permalink, "", item.ID, trig); err != nil {
		return err
	}
	metrics.ReconcileTotal.WithLabelValues(string(trig), "created").Inc()
	return nil
}

// createAndPersist 走完 创建 → 解析展示短链 → 落库 → 镜像 的主干。
// 解析失败时不落任何记录（宁可没有短链，不能存一条死的）。
func (r *Reconciler) createAndPersist(ctx context.Context, destination, alias string, itemID int64, trig Trigger) error {
	linkID, err := r.api.CreateLink(ctx, destination, alias)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "failed").Inc()
		slog.Warn("short url create failed", "trigger", trig, "destination", destination, "err", err)
		return err
	}

	shortURL, err := r.resolver.ResolveDisplayURL(ctx, linkID)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "failed").Inc()
		slog.Warn("short url resolution failed, record not persisted", "trigger", trig, "link_id", linkID, "err", err)
		return err
	}

	rec := &UrlRecord{
		OriginalURL: destination,
		ShortURL:    shortURL,
		CustomAlias: alias,
		LinkID:      linkID,
	}
	if err := r.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrShortURLExists) {
			// 两把 guard 都被绕过（比如 TTL 过期撞上慢请求）时的最后防线：
			// 撞唯一约束说明别人已经建好了，当成功处理。
			slog.Info("duplicate short url insert swallowed", "short_url", shortURL)
			return nil
		}
		metrics.ReconcileTotal.WithLabelValues(string(trig), "failed").Inc()
		return err
	}

	if r.policy.MirrorMeta && itemID != 0 && r.meta != nil {
		if err := r.meta.SetMirror(ctx, itemID, shortURL, linkID); err != nil {
			slog.Warn("meta mirror write failed", "item_id", itemID, "err", err)
		}
	}
	return nil
}

// ReconcileDeletion 是所有删除信号（before-delete / deleted / trash /
// 批量 / REST）的漏斗，按 item id 幂等。
//
// 不管远端删除成不成功，本地行和镜像都要删掉：用户眼里这条链接已经
// 没了，本地绝不能继续端出一条假装新鲜的短链。
func (r *Reconciler) ReconcileDeletion(ctx context.Context, itemID int64, trig Trigger) error {
	if !r.deleting.tryAcquire(itemID) {
		metrics.GuardRejectionsTotal.WithLabelValues("delete").Inc()
		return nil
	}
	defer r.deleting.release(itemID)

	permalink := ""
	item, err := r.content.Get(ctx, itemID)
	switch {
	case err == nil && item != nil:
		if !r.policy.typeEnabled(item.Type) {
			// 不参与同步的类型根本不会有我们的记录，没什么可删。
			metrics.ReconcileTotal.WithLabelValues(string(trig), "skipped").Inc()
			return nil
		}
		permalink = item.Permalink
	default:
		// 宿主已经把条目清掉了，从 id 重建长链接接着删。
		permalink = r.content.FallbackPermalink(itemID)
	}

	rec, err := r.records.FindByOriginalURL(ctx, permalink)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			metrics.ReconcileTotal.WithLabelValues(string(trig), "skipped").Inc()
			return nil
		}
		metrics.ReconcileTotal.WithLabelValues(string(trig), "failed").Inc()
		return err
	}

	if rec.LinkID != "" && r.policy.APIKeySet {
		if err := r.api.DeleteLink(ctx, rec.LinkID); err != nil {
			slog.Warn("remote link delete failed, removing local record anyway",
				"link_id", rec.LinkID, "err", err)
		}
	}

	if err := r.records.DeleteByID(ctx, rec.ID); err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(trig), "failed").Inc()
		return err
	}
	if r.meta != nil {
		if err := r.meta.DeleteMirror(ctx, itemID); err != nil {
			slog.Warn("meta mirror delete failed", "item_id", itemID, "err", err)
		}
	}
	r.resolver.Invalidate(itemID)

	metrics.ReconcileTotal.WithLabelValues(string(trig), "deleted").Inc()
	return nil
}

// ReconcileRestore 占位：出回收站不复活旧记录。条目下次满足发布
// 门槛时会重新走创建路径。
func (r *Reconciler) ReconcileRestore(ctx context.Context, itemID int64) error {
	return nil
}

// ManualCreate 是管理接口的单条创建：错误要原样报给调用方。
func (r *Reconciler) ManualCreate(ctx context.Context, destination, alias string) (*UrlRecord, error) {
	if !r.policy.APIKeySet {
		return nil, ErrNotConfigured
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, ErrNoDestinations
	}
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}

	linkID, err := r.api.CreateLink(ctx, destination, alias)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(TriggerManual), "failed").Inc()
		return nil, err
	}
	shortURL, err := r.resolver.ResolveDisplayURL(ctx, linkID)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues(string(TriggerManual), "failed").Inc()
		return nil, err
	}

	rec := &UrlRecord{
		OriginalURL: destination,
		ShortURL:    shortURL,
		CustomAlias: alias,
		LinkID:      linkID,
	}
	if err := r.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrShortURLExists) {
			if existing, findErr := r.records.FindByOriginalURL(ctx, destination); findErr == nil {
				return existing, nil
			}
			return rec, nil
		}
		return nil, err
	}
	metrics.ReconcileTotal.WithLabelValues(string(TriggerManual), "created").Inc()
	return rec, nil
}

// ManualDelete 按本地记录 id 删除。localOnly 时只清库；否则先删远端，
// 远端明确失败会中止（和后台漏斗相反——用户亲手点的删除值得知道真相）。
// 行里没存 link_id 的老记录先用 slug 去远端列表回填。
func (r *Reconciler) ManualDelete(ctx context.Context, recordID int64, localOnly bool) error {
	rec, err := r.records.FindByID(ctx, recordID)
	if err != nil {
		return err
	}

	if !localOnly && r.policy.APIKeySet {
		linkID := rec.LinkID
		if linkID == "" {
			if slug := slugFromShortURL(rec.ShortURL); slug != "" {
				if found, err := r.api.FindLinkIDBySlug(ctx, slug); err == nil {
					linkID = found
				}
			}
		}
		if linkID != "" {
			if err := r.api.DeleteLink(ctx, linkID); err != nil {
				return err
			}
		}
	}

	if err := r.records.DeleteByID(ctx, rec.ID); err != nil {
		return err
	}
	metrics.ReconcileTotal.WithLabelValues(string(TriggerManual), "deleted").Inc()
	return nil
}

// slugFromShortURL 从完整短链里抠出路径段。
func slugFromShortURL(shortURL string) string {
	u, err := url.Parse(shortURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
