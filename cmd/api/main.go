package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"elnksync.local/internal/app/linksync"
	lscache "elnksync.local/internal/app/linksync/cache"
	"elnksync.local/internal/app/linksync/events"
	linksynchttpapi "elnksync.local/internal/app/linksync/httpapi"
	"elnksync.local/internal/app/linksync/repo"
	"elnksync.local/internal/cms"
	"elnksync.local/internal/elnk"
	"elnksync.local/internal/platform/auth"
	platformcache "elnksync.local/internal/platform/cache"
	"elnksync.local/internal/platform/config"
	"elnksync.local/internal/platform/db"
	"elnksync.local/internal/platform/httpmiddleware"
	"elnksync.local/internal/platform/httpserver"
	"elnksync.local/internal/platform/metrics"
	"elnksync.local/internal/platform/migrate"
	"elnksync.local/internal/platform/ratelimit"
	"elnksync.local/internal/platform/trace"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	slog.SetDefault(slog.New(h))

	//DB
	dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dbPool, errDB := db.New(dbCtx, cfg.DBDSN)
	if errDB != nil {
		log.Fatal(errDB)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(dbCtx); err != nil {
		log.Fatal(err)
	}
	slog.Info("数据库连接成功")

	//建表/升级
	migCtx, migCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer migCancel()
	if res, err := migrate.Up(migCtx, dbPool, migrate.Options{}); err != nil {
		log.Fatal(err)
	} else if len(res.AppliedFiles) > 0 {
		slog.Info("migrations applied", "files", res.AppliedFiles)
	}

	//Redis
	redisClient, errRedis := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if errRedis != nil {
		log.Fatal(errRedis)
	}
	defer redisClient.Close()
	//限流器
	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewLimiter(redisClient)
	} else {
		slog.Warn("RateLimit disabled by config", "RATELIMIT_ENABLED", false)
	}

	//展示缓存
	displayCache, errCache := lscache.NewDisplayCache(100000, 100000) // 10万条目
	if errCache != nil {
		log.Fatal(errCache)
	}
	defer displayCache.Close()

	//elnk.pro 客户端
	if cfg.ElnkAPIKey == "" {
		slog.Warn("ELNK_API_KEY 未配置，自动创建全部跳过")
	}
	elnkClient := elnk.NewClient(cfg.ElnkAPIKey, cfg.ElnkBaseURL,
		elnk.WithDomainID(cfg.ElnkDomainID),
		elnk.WithProjectID(cfg.ElnkProjectID),
		elnk.WithTimeout(cfg.ElnkTimeout),
	)

	//宿主 CMS 客户端
	contentSource := cms.New(cfg.CMSBaseURL, cfg.CMSRequestTimeout)

	recordsRepo := repo.NewUrlRecordsRepo(dbPool)
	metaRepo := repo.NewContentMetaRepo(dbPool)

	resolver := linksync.NewResolver(elnkClient, recordsRepo, metaRepo, displayCache)
	visitGuard := linksync.NewVisitGuard(redisClient, cfg.VisitGuardTTL)

	reconciler := linksync.NewReconciler(
		linksync.Policy{
			AutoGenerate:  cfg.AutoGenerate,
			APIKeySet:     cfg.ElnkAPIKey != "",
			ContentTypes:  cfg.ContentTypes,
			MirrorMeta:    cfg.MirrorMeta,
			CreateOnVisit: cfg.CreateOnVisit,
		},
		elnkClient, recordsRepo, metaRepo, resolver, contentSource, visitGuard,
	)

	//事件收集器（根据配置选择 Channel 或 Kafka）
	var collector events.Collector
	var kafkaConsumer *events.KafkaConsumer
	var channelConsumer *events.Consumer
	if cfg.KafkaEnabled {
		slog.Info("使用 Kafka 收集生命周期事件", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = events.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, reconciler)
	} else {
		slog.Info("使用 Channel 收集生命周期事件")
		channelCollector := events.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = events.NewConsumer(reconciler, channelCollector)
	}

	// JWT
	ts, jwtErr := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if jwtErr != nil {
		log.Fatal(jwtErr)
	}

	metrics.Init()

	var shutdown func(context.Context) error
	if cfg.TracingEnabled {
		shutdown = trace.InitTrace(cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if shutdown == nil {
			slog.Error("Trace init failed")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error(err.Error())
				}
			}()
		}
	} else {
		slog.Warn("Tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	mux := http.NewServeMux()
	linksynchttpapi.RegisterRoutes(mux, reconciler, resolver, recordsRepo, contentSource, collector, ts, limiter)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	handler := httpmiddleware.Chain(mux,
		httpmiddleware.Recover,
		httpmiddleware.ReqID,
		httpmiddleware.AccessLog,
		httpmiddleware.Metrics,
	)
	publicHandler := handler
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(handler, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	// 数据库连接状态检测
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		dbCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := dbPool.Ping(dbCtx); err != nil {
			w.WriteHeader(500)
			w.Write([]byte("DB Ping Err"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("DB ready"))
	})

	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	adminSrv := &http.Server{
		Addr:              cfg.AdminAddr, // 推荐：127.0.0.1:6061
		Handler:           adminMux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errch := make(chan error, 2)

	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
	}()
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()

	// 启动事件消费（Kafka 或 Channel）
	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	defer collector.Close()

	err := <-errch
	if err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		log.Fatal(err)
	}

	stop()
	<-errch
}
