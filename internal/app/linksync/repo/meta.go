package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContentMetaRepo 维护 content_meta 镜像表：item id → 短链/远端 id。
// 镜像只服务展示查询，权威判定永远走 short_urls。
type ContentMetaRepo struct {
	db *pgxpool.Pool
}

func NewContentMetaRepo(db *pgxpool.Pool) *ContentMetaRepo {
	return &ContentMetaRepo{db: db}
}

func (m *ContentMetaRepo) SetMirror(ctx context.Context, itemID int64, shortURL, linkID string) error {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := m.db.Exec(dbctx,
		"INSERT INTO content_meta (item_id, short_url, link_id) VALUES ($1,$2,$3) ON CONFLICT (item_id) DO UPDATE SET short_url=EXCLUDED.short_url, link_id=EXCLUDED.link_id, updated_at=now()",
		itemID, shortURL, linkID,
	)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}

// GetMirror 查不到时返回空串不报错，和展示路径的语义对齐。
func (m *ContentMetaRepo) GetMirror(ctx context.Context, itemID int64) (string, string, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var shortURL, linkID string
	err := m.db.QueryRow(dbctx,
		"SELECT short_url, COALESCE(link_id,'') FROM content_meta WHERE item_id=$1",
		itemID,
	).Scan(&shortURL, &linkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", nil
		}
		slog.Error(err.Error())
		return "", "", err
	}
	return shortURL, linkID, nil
}

func (m *ContentMetaRepo) DeleteMirror(ctx context.Context, itemID int64) error {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if _, err := m.db.Exec(dbctx, "DELETE FROM content_meta WHERE item_id=$1", itemID); err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}
