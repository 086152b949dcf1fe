package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-bank-ledger/pkg/logger"
)

// RouterOption 定義 NewRouter 的配置選項函數
type RouterOption func(*routerConfig)

type routerConfig struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// WithLogger 設定請求日誌
func WithLogger(l *zap.Logger) RouterOption {
	return func(c *routerConfig) {
		c.logger = logger.OrNop(l)
	}
}

// WithRegistry 註冊 HTTP metrics 並開放 GET /metrics
func WithRegistry(reg *prometheus.Registry) RouterOption {
	return func(c *routerConfig) {
		if reg != nil {
			c.registerer = reg
			c.gatherer = reg
		}
	}
}

// NewRouter 建立 REST API
//
//	POST /accounts?cf={owner}                      建立帳戶，body 為初始餘額
//	POST /accounts/{id}/deposits                   存款
//	POST /accounts/{id}/withdraws                  提款
//	GET  /accounts/{id}/balance                    查詢餘額 (Last-Modified, ETag)
//	PUT  /accounts/{id}/balance                    設定餘額 (If-Match 或 If-Unmodified-Since)
//	POST /accounts/transfers?source=&destination=  轉帳
//
// 金額一律以 text/plain 的十進位字串傳遞。
func NewRouter(core usecase.Ledger, opts ...RouterOption) http.Handler {
	cfg := routerConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &handler{core: core, logger: cfg.logger.Named("http")}
	r := mux.NewRouter()
	r.Use(observe(h.logger, newHTTPMetrics(cfg.registerer)))

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if cfg.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.HandleFunc("/accounts", h.createAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/", h.createAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/transfers", h.transfer).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id:[0-9]+}/deposits", h.deposit).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id:[0-9]+}/withdraws", h.withdraw).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id:[0-9]+}/balance", h.getBalance).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/accounts/{id:[0-9]+}/balance", h.setBalance).Methods(http.MethodPut)

	return r
}

// httpMetrics nil registerer 時不記錄
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	if reg == nil {
		return nil
	}
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledger",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ledger",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
	reg.MustRegister(m.requests, m.duration)
	return m
}

// observe 記錄每個請求的日誌與 metrics
func observe(l *zap.Logger, m *httpMetrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			srw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(srw, r)

			duration := time.Since(start)
			endpoint := endpointOf(r)
			if m != nil {
				m.requests.WithLabelValues(r.Method, endpoint, http.StatusText(srw.statusCode)).Inc()
				m.duration.WithLabelValues(r.Method, endpoint).Observe(duration.Seconds())
			}
			l.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", srw.statusCode),
				zap.Duration("duration", duration),
			)
		})
	}
}

// statusResponseWriter 攔截狀態碼
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// endpointOf 以路由樣板作為 metrics label，避免帳戶 ID 造成 label 爆炸
func endpointOf(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return r.URL.Path
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return r.URL.Path
	}
	return tpl
}
