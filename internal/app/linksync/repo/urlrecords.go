package repo

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"elnksync.local/internal/app/linksync"
)

// UrlRecordsRepo 管理 short_urls 表，是短链存在性的唯一权威来源。
type UrlRecordsRepo struct {
	db *pgxpool.Pool
}

func NewUrlRecordsRepo(db *pgxpool.Pool) *UrlRecordsRepo {
	return &UrlRecordsRepo{db: db}
}

// Insert 落一条新记录。short_url 撞唯一约束时返回
// linksync.ErrShortURLExists，由调用方决定吞还是报。
func (r *UrlRecordsRepo) Insert(ctx context.Context, rec *linksync.UrlRecord) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := r.db.QueryRow(dbctx,
		"INSERT INTO short_urls (original_url, short_url, custom_alias, link_id) VALUES ($1,$2,$3,$4) RETURNING id, created_at",
		rec.OriginalURL, rec.ShortURL, rec.CustomAlias, rec.LinkID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return linksync.ErrShortURLExists
		}
		slog.Error(err.Error())
		return err
	}
	return nil
}

// FindByOriginalURL 按长链接查最新一条记录。创建门槛和删除漏斗都走这里。
func (r *UrlRecordsRepo) FindByOriginalURL(ctx context.Context, originalURL string) (*linksync.UrlRecord, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var rec linksync.UrlRecord
	err := r.db.QueryRow(dbctx,
		"SELECT id, original_url, short_url, COALESCE(custom_alias,''), COALESCE(link_id,''), clicks, created_at FROM short_urls WHERE original_url=$1 ORDER BY id DESC LIMIT 1",
		originalURL,
	).Scan(&rec.ID, &rec.OriginalURL, &rec.ShortURL, &rec.CustomAlias, &rec.LinkID, &rec.Clicks, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, linksync.ErrRecordNotFound
		}
		slog.Error(err.Error())
		return nil, err
	}
	return &rec, nil
}

func (r *UrlRecordsRepo) FindByID(ctx context.Context, id int64) (*linksync.UrlRecord, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var rec linksync.UrlRecord
	err := r.db.QueryRow(dbctx,
		"SELECT id, original_url, short_url, COALESCE(custom_alias,''), COALESCE(link_id,''), clicks, created_at FROM short_urls WHERE id=$1",
		id,
	).Scan(&rec.ID, &rec.OriginalURL, &rec.ShortURL, &rec.CustomAlias, &rec.LinkID, &rec.Clicks, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, linksync.ErrRecordNotFound
		}
		slog.Error(err.Error())
		return nil, err
	}
	return &rec, nil
}

// DeleteByID 删行。行已不存在时也算成功（删除漏斗是幂等的）。
func (r *UrlRecordsRepo) DeleteByID(ctx context.Context, id int64) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := r.db.Exec(dbctx, "DELETE FROM short_urls WHERE id=$1", id); err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}

func (r *UrlRecordsRepo) ListRecent(ctx context.Context, limit int) ([]linksync.UrlRecord, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx,
		"SELECT id, original_url, short_url, COALESCE(custom_alias,''), COALESCE(link_id,''), clicks, created_at FROM short_urls ORDER BY id DESC LIMIT $1",
		limit,
	)
	if err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	defer rows.Close()

	var result []linksync.UrlRecord
	for rows.Next() {
		var rec linksync.UrlRecord
		if err := rows.Scan(&rec.ID, &rec.OriginalURL, &rec.ShortURL, &rec.CustomAlias, &rec.LinkID, &rec.Clicks, &rec.CreatedAt); err != nil {
			slog.Error(err.Error())
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		slog.Error(err.Error())
		return nil, err
	}
	return result, nil
}

// BackfillLinkID 给没存 link_id 的老记录补值。
func (r *UrlRecordsRepo) BackfillLinkID(ctx context.Context, id int64, linkID string) error {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if _, err := r.db.Exec(dbctx, "UPDATE short_urls SET link_id=$1 WHERE id=$2 AND (link_id IS NULL OR link_id='')", linkID, id); err != nil {
		slog.Error(err.Error())
		return err
	}
	return nil
}
