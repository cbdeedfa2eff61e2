package linksync

import (
	"context"
	"time"

	"elnksync.local/internal/elnk"
)

// UrlRecord 是本地落库的短链映射行。
//
// 说明：
// - OriginalURL：内容的 canonical 长链接，对账时按它查重（schema 层不唯一）
// - ShortURL：对外可达的完整短链，库里唯一——远端保证短链唯一，长链接在重试下可能重复
// - LinkID：远端主键，删除远端链接时需要；老数据行可能没有
type UrlRecord struct {
	ID          int64     `json:"id"`
	OriginalURL string    `json:"original_url"`
	ShortURL    string    `json:"short_url"`
	CustomAlias string    `json:"custom_alias,omitempty"`
	LinkID      string    `json:"link_id,omitempty"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContentItem 是宿主 CMS 的内容条目（只读引用，不归本服务管）。
type ContentItem struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Permalink string `json:"permalink"`
}

const StatusPublished = "publish"

// LinkAPI 是对账逻辑依赖的远端能力。用接口表达，测试里换 fake。
type LinkAPI interface {
	CreateLink(ctx context.Context, destinationURL, alias string) (string, error)
	CreateBulkLinks(ctx context.Context, destinationURLs []string, alias string) ([]string, error)
	GetLinkDetails(ctx context.Context, linkID string) (elnk.LinkDetails, error)
	GetDomainDetails(ctx context.Context, domainID int64) (elnk.DomainDetails, error)
	DeleteLink(ctx context.Context, linkID string) error
	FindLinkIDBySlug(ctx context.Context, slug string) (string, error)
}

// RecordStore 是短链映射表的持久化能力。
type RecordStore interface {
	Insert(ctx context.Context, rec *UrlRecord) error
	FindByOriginalURL(ctx context.Context, originalURL string) (*UrlRecord, error)
	FindByID(ctx context.Context, id int64) (*UrlRecord, error)
	DeleteByID(ctx context.Context, id int64) error
	ListRecent(ctx context.Context, limit int) ([]UrlRecord, error)
}

// MetaStore 把 short_url/link_id 镜像到内容元数据（可选开关）。
type MetaStore interface {
	SetMirror(ctx context.Context, itemID int64, shortURL, linkID string) error
	GetMirror(ctx context.Context, itemID int64) (shortURL, linkID string, err error)
	DeleteMirror(ctx context.Context, itemID int64) error
}

// ContentSource 从宿主 CMS 取内容详情。
// 条目已被宿主清掉时 Get 会失败，这时用 FallbackPermalink 从 id 重建长链接。
type ContentSource interface {
	Get(ctx context.Context, itemID int64) (*ContentItem, error)
	FallbackPermalink(itemID int64) string
}
