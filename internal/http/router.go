package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（Go 1.22 起支持方法和路径参数）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口（/metrics）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterIngestRoutes 上传与任务查询
func (r *Router) RegisterIngestRoutes(h *IngestHandler) {
	r.Handle("POST /api/v1/ingest", h.Ingest)
	r.Handle("GET /api/v1/ingest/jobs/{id}", h.GetJob)
	r.Handle("GET /api/v1/ingest/jobs/{id}/report.xlsx", h.ExportReport)
}

// RegisterOpsRoutes 健康检查与监控指标
func (r *Router) RegisterOpsRoutes(metrics http.Handler) {
	r.Handle("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
	if metrics != nil {
		r.HandleHandler("GET /metrics", metrics)
	}
}
