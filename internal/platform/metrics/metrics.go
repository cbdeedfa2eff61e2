package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 用来保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// HTTPRequestsTotal：累计请求数（Counter）。
	//
	// labels：
	// - method：HTTP 方法
	// - route：路由模板（不要用带 id 的真实 path，否则会产生无限 label）
	// - status：HTTP 状态码字符串
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "HTTP请求的总数",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds：请求耗时分布（Histogram），用于算 P95/P99。
	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ReconcileTotal：对账结果计数。
	//
	// labels：
	// - trigger：触发源（publish/insert/visit/delete/trash/bulk_admin/rest_delete/manual/bus）
	// - outcome：created/deleted/skipped/failed
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linksync_reconcile_total",
			Help: "创建/删除对账的结果计数",
		},
		[]string{"trigger", "outcome"},
	)

	// ElnkAPIRequestsTotal：elnk.pro 远端调用计数。
	//
	// labels：
	// - op：create/create_bulk/get_link/get_domain/delete/list
	// - status：ok/error
	ElnkAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linksync_elnk_api_requests_total",
			Help: "elnk.pro API 调用计数",
		},
		[]string{"op", "status"},
	)

	// ElnkAPIDurationSeconds：远端调用耗时，30s 超时下桶要够宽。
	ElnkAPIDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linksync_elnk_api_duration_seconds",
			Help:    "elnk.pro API latency distributions.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	// GuardRejectionsTotal：重入保护拒绝次数（同一内容的重复信号被挡下）。
	GuardRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linksync_guard_rejections_total",
			Help: "per-item 重入保护拒绝计数",
		},
		[]string{"kind"}, // create / delete / visit
	)

	// BulkItemsTotal：批量提交的逐项结果。
	BulkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linksync_bulk_items_total",
			Help: "批量创建逐项结果计数",
		},
		[]string{"outcome"}, // created / failed / unpaired
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			ReconcileTotal,
			ElnkAPIRequestsTotal,
			ElnkAPIDurationSeconds,
			GuardRejectionsTotal,
			BulkItemsTotal,
		)
	})
}
