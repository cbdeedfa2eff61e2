package httpapi

import (
	"net/http"
	"time"

	"elnksync.local/internal/app/linksync"
	"elnksync.local/internal/app/linksync/events"
	"elnksync.local/internal/app/linksync/repo"
	"elnksync.local/internal/platform/auth"
	"elnksync.local/internal/platform/httpmiddleware"
	"elnksync.local/internal/platform/ratelimit"
)

// RegisterRoutes 把所有业务路由挂到 mux 上。
//
// 设计原因：
// - cmd/api 只负责组装和挂载，路由定义归业务模块自己，避免散落在 main.go
// - hooks 用共享密钥（JWT）认证宿主，管理接口额外要求 admin 角色
func RegisterRoutes(
	mux *http.ServeMux,
	rec *linksync.Reconciler,
	resolver *linksync.Resolver,
	records *repo.UrlRecordsRepo,
	content linksync.ContentSource,
	collector events.Collector,
	ts auth.TokenService,
	limiter *ratelimit.Limiter,
) {
	authed := func(h http.Handler) http.Handler {
		return httpmiddleware.AuthRequired(ts)(h)
	}
	admin := func(h http.Handler) http.Handler {
		return httpmiddleware.AuthRequired(ts)(httpmiddleware.RequireRole("admin")(h))
	}

	// 生命周期 webhook：宿主 CMS 调用
	mux.Handle("POST /hooks/content", authed(NewContentHookHandler(collector)))
	// visit hook 由前台流量驱动，限 100 次/分钟
	mux.Handle("POST /hooks/visit",
		authed(httpmiddleware.RateLimit(limiter, "visit", 100, time.Minute)(NewVisitHookHandler(collector))))

	// 管理接口
	mux.Handle("POST /api/v1/links", admin(NewCreateLinkHandler(rec)))
	mux.Handle("DELETE /api/v1/links/{id}", admin(NewDeleteLinkHandler(rec)))
	mux.Handle("GET /api/v1/links", admin(NewListLinksHandler(records)))
	mux.Handle("GET /api/v1/content/{id}/shorturl", authed(NewContentShortURLHandler(resolver, content)))
}
