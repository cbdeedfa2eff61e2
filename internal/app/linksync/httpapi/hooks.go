package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"elnksync.local/internal/app/linksync/events"
)

// webhook 的 HTTP 语义：收到即成功。事件进收集器异步处理，
// 对账结果从不影响 webhook 的响应码，宿主端绝不能因为远端
// API 抖动而看到 5xx。

type hookRequest struct {
	ItemID    int64  `json:"item_id"`
	Kind      string `json:"kind"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Permalink string `json:"permalink"`
}

// NewContentHookHandler 接收内容生命周期 webhook（发布/更新/删除等）。
func NewContentHookHandler(collector events.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req hookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			abortWithError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.ItemID <= 0 || req.Kind == "" {
			abortWithError(w, http.StatusBadRequest, "item_id and kind are required")
			return
		}

		collector.Collect(events.Event{
			ItemID:     req.ItemID,
			Kind:       req.Kind,
			Type:       req.Type,
			Status:     req.Status,
			Permalink:  req.Permalink,
			OccurredAt: time.Now(),
		})
		w.WriteHeader(http.StatusAccepted)
	}
}

// NewVisitHookHandler 接收前台访问通知，作为 first-visit 兜底创建的入口。
// 这是唯一承接公网流量的 hook，挂在限流后面。
func NewVisitHookHandler(collector events.Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req hookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			abortWithError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.ItemID <= 0 {
			abortWithError(w, http.StatusBadRequest, "item_id is required")
			return
		}

		collector.Collect(events.Event{
			ItemID:     req.ItemID,
			Kind:       events.KindVisited,
			Type:       req.Type,
			Status:     req.Status,
			Permalink:  req.Permalink,
			OccurredAt: time.Now(),
		})
		w.WriteHeader(http.StatusAccepted)
	}
}
