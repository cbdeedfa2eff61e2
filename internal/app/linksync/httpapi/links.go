package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"elnksync.local/internal/app/linksync"
	"elnksync.local/internal/app/linksync/repo"
	"elnksync.local/internal/elnk"
)

type createLinkRequest struct {
	URL     string   `json:"url"`
	URLs    []string `json:"urls,omitempty"`     // 多条目的地走批量路径
	URLsRaw string   `json:"urls_raw,omitempty"` // 按行分隔的目的地文本（表单粘贴）
	Alias   string   `json:"alias,omitempty"`
}

type createLinkResponse struct {
	ID       int64  `json:"id"`
	ShortURL string `json:"short_url"`
	URL      string `json:"url"`
}

// writeDomainError 把领域错误映射成 HTTP 状态。手动路径的错误文案
// 原样透传给调用方，包括远端校验失败的消息。
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, linksync.ErrNotConfigured):
		abortWithError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, linksync.ErrAliasTooShort),
		errors.Is(err, linksync.ErrNoDestinations):
		abortWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, linksync.ErrRecordNotFound):
		abortWithError(w, http.StatusNotFound, err.Error())
	case elnk.IsRemoteValidation(err):
		abortWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		abortWithError(w, http.StatusBadGateway, err.Error())
	}
}

// NewCreateLinkHandler 手动创建：单条直接建，urls 多于一条走批量协调。
func NewCreateLinkHandler(rec *linksync.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest
		if err := decodeJSON(r, &req); err != nil {
			abortWithError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		destinations := req.URLs
		if len(destinations) == 0 && req.URLsRaw != "" {
			destinations = linksync.SplitDestinations(req.URLsRaw)
		}
		if len(destinations) > 0 {
			result, err := rec.SubmitBatch(r.Context(), destinations, req.Alias)
			if err != nil && result == nil {
				writeDomainError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
			return
		}

		record, err := rec.ManualCreate(r.Context(), req.URL, req.Alias)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, createLinkResponse{
			ID:       record.ID,
			ShortURL: record.ShortURL,
			URL:      record.OriginalURL,
		})
	}
}

// NewDeleteLinkHandler 手动删除本地记录。?remote=false 时只清库。
func NewDeleteLinkHandler(rec *linksync.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			abortWithError(w, http.StatusBadRequest, "invalid record id")
			return
		}
		localOnly := r.URL.Query().Get("remote") == "false"

		if err := rec.ManualDelete(r.Context(), id, localOnly); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// NewListLinksHandler 最近记录列表，默认 50 条，上限 200。
func NewListLinksHandler(records *repo.UrlRecordsRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
				limit = n
			}
		}

		result, err := records.ListRecent(r.Context(), limit)
		if err != nil {
			abortWithError(w, http.StatusInternalServerError, "list failed")
			return
		}
		if result == nil {
			result = []linksync.UrlRecord{}
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type shortURLResponse struct {
	ItemID   int64  `json:"item_id"`
	Has      bool   `json:"has_short_url"`
	ShortURL string `json:"short_url,omitempty"`
}

// NewContentShortURLHandler 查某条内容的短链（展示语义：查不到不报错）。
func NewContentShortURLHandler(resolver *linksync.Resolver, content linksync.ContentSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		itemID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			abortWithError(w, http.StatusBadRequest, "invalid item id")
			return
		}

		item := lookupItem(r.Context(), content, itemID)
		shortURL := resolver.ShortURLFor(r.Context(), item)
		writeJSON(w, http.StatusOK, shortURLResponse{
			ItemID:   itemID,
			Has:      shortURL != "",
			ShortURL: shortURL,
		})
	}
}

func lookupItem(ctx context.Context, content linksync.ContentSource, itemID int64) *linksync.ContentItem {
	if item, err := content.Get(ctx, itemID); err == nil && item != nil {
		return item
	}
	return &linksync.ContentItem{
		ID:        itemID,
		Permalink: content.FallbackPermalink(itemID),
	}
}
