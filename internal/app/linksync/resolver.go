package linksync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"elnksync.local/internal/app/linksync/cache"
)

// DefaultDomain 是 domain_id 为 0/缺失时的兜底域名。
const DefaultDomain = "https://elnk.pro"

// Resolver 负责两件事：
// 1. 从远端 link id 拼出对外可见的完整短链
// 2. 回答“这条内容有没有短链了”——展示走缓存/镜像，创建门槛只认库
type Resolver struct {
	api     LinkAPI
	records RecordStore
	meta    MetaStore
	display *cache.DisplayCache // 可空
}

func NewResolver(api LinkAPI, records RecordStore, meta MetaStore, display *cache.DisplayCache) *Resolver {
	return &Resolver{
		api:     api,
		records: records,
		meta:    meta,
		display: display,
	}
}

// ResolveDisplayURL 取 link 详情拼短链。
//
// - slug 缺失是整个创建流程的硬失败（绝不落一条指向死链的记录）
// - domain_id 为 0/缺失 → https://elnk.pro/<slug>，不发 domain 查询
// - domain 查询失败 → 退回默认域名形态。能用的非自定义短链好过没有。
func (r *Resolver) ResolveDisplayURL(ctx context.Context, linkID string) (string, error) {
	details, err := r.api.GetLinkDetails(ctx, linkID)
	if err != nil {
		return "", err
	}
	if details.Slug == "" {
		return "", fmt.Errorf("%w: link %s has no slug", ErrResolutionFailed, linkID)
	}

	if details.DomainID == 0 {
		return DefaultDomain + "/" + details.Slug, nil
	}

	domain, err := r.api.GetDomainDetails(ctx, details.DomainID)
	if err != nil {
		slog.Warn("domain lookup failed, falling back to default domain",
			"link_id", linkID, "domain_id", details.DomainID, "err", err)
		return DefaultDomain + "/" + details.Slug, nil
	}
	return domain.Scheme + domain.Host + "/" + details.Slug, nil
}

// HasShortURL 是创建路径的权威查重：只认库里按 permalink 的查询。
// 镜像/缓存可能和库不一致，不一致时它们只配用于展示。
func (r *Resolver) HasShortURL(ctx context.Context, item *ContentItem) (bool, error) {
	_, err := r.records.FindByOriginalURL(ctx, item.Permalink)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// ShortURLFor 是展示查询：本地缓存 → 元数据镜像 → 库。
// 查不到返回空串，不报错（主题/插件侧的 has_short_url 语义）。
func (r *Resolver) ShortURLFor(ctx context.Context, item *ContentItem) string {
	if r.display != nil {
		if shortURL, ok := r.display.Get(item.ID); ok {
			return shortURL
		}
	}

	if r.meta != nil {
		if shortURL, _, err := r.meta.GetMirror(ctx, item.ID); err == nil && shortURL != "" {
			if r.display != nil {
				r.display.Set(item.ID, shortURL)
			}
			return shortURL
		}
	}

	rec, err := r.records.FindByOriginalURL(ctx, item.Permalink)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			slog.Error("short url lookup failed", "item_id", item.ID, "err", err)
		}
		return ""
	}
	if r.display != nil {
		r.display.Set(item.ID, rec.ShortURL)
	}
	return rec.ShortURL
}

// Invalidate 删除后清掉展示缓存，避免读到已删的短链。
func (r *Resolver) Invalidate(itemID int64) {
	if r.display != nil {
		r.display.Del(itemID)
	}
}
