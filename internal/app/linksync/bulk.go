package linksync

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"elnksync.local/internal/platform/metrics"
)

// BulkItem 是批量提交里单个目的地的结果。
type BulkItem struct {
	Destination string `json:"destination"`
	ShortURL    string `json:"short_url,omitempty"`
	LinkID      string `json:"link_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// BulkResult 汇总一次批量提交。
type BulkResult struct {
	BatchID string     `json:"batch_id"`
	Items   []BulkItem `json:"items"`
	Created int        `json:"created"`
	Failed  int        `json:"failed"`
}

// SubmitBatch 把多个目的地打包成一次远端批量创建。
//
// 远端一次调用返回一批 id，按下标和目的地配对；远端返回的 id 数和
// 提交数不一致时只处理重叠的前缀，多出来的目的地记为失败而不是
// 整批报错。单个条目解析或落库失败只影响它自己。
func (r *Reconciler) SubmitBatch(ctx context.Context, destinations []string, alias string) (*BulkResult, error) {
	if !r.policy.APIKeySet {
		return nil, ErrNotConfigured
	}
	if len(destinations) == 0 {
		return nil, ErrNoDestinations
	}
	if err := ValidateAlias(alias); err != nil {
		return nil, err
	}

	res := &BulkResult{
		BatchID: uuid.NewString(),
		Items:   make([]BulkItem, len(destinations)),
	}
	for i, dest := range destinations {
		res.Items[i].Destination = dest
	}

	linkIDs, err := r.api.CreateBulkLinks(ctx, destinations, alias)
	if err != nil {
		// 整批远端失败照样返回结果体，调用方能拿到 batch id 和逐条状态。
		for i := range res.Items {
			res.Items[i].Error = err.Error()
			metrics.BulkItemsTotal.WithLabelValues("failed").Inc()
		}
		res.Failed = len(res.Items)
		return res, err
	}

	n := len(linkIDs)
	if n != len(destinations) {
		slog.Warn("bulk create returned mismatched id count",
			"batch_id", res.BatchID, "submitted", len(destinations), "returned", n)
		if n > len(destinations) {
			n = len(destinations)
		}
	}

	for i := 0; i < n; i++ {
		item := &res.Items[i]
		item.LinkID = linkIDs[i]

		shortURL, err := r.resolver.ResolveDisplayURL(ctx, linkIDs[i])
		if err != nil {
			item.Error = err.Error()
			res.Failed++
			metrics.BulkItemsTotal.WithLabelValues("failed").Inc()
			continue
		}
		item.ShortURL = shortURL

		rec := &UrlRecord{
			OriginalURL: item.Destination,
			ShortURL:    shortURL,
			CustomAlias: alias,
			LinkID:      linkIDs[i],
		}
		if err := r.records.Insert(ctx, rec); err != nil && !errors.Is(err, ErrShortURLExists) {
			item.Error = err.Error()
			res.Failed++
			metrics.BulkItemsTotal.WithLabelValues("failed").Inc()
			continue
		}
		res.Created++
		metrics.BulkItemsTotal.WithLabelValues("created").Inc()
	}

	for i := n; i < len(res.Items); i++ {
		res.Items[i].Error = "no link id returned for this destination"
		res.Failed++
		metrics.BulkItemsTotal.WithLabelValues("unpaired").Inc()
	}

	return res, nil
}
