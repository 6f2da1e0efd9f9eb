// Package api 提供本地控制接口：健康检查、指标与主循环启停。
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
	"github.com/fachebot/wecom-sync-bot/internal/loop"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// controller 主循环启停
type controller interface {
	StartLoop()
	StopLoopAndGoHome()
}

// statusSource 主循环状态
type statusSource interface {
	Status() loop.Status
}

// pinger 去重存储连通性
type pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ctrl   controller
	status statusSource
	store  pinger
}

// Check 单项健康检查结果
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status string           `json:"status"`
	Checks map[string]Check `json:"checks"`
	Loop   loop.Status      `json:"loop"`
}

// NewRouter 创建控制接口路由
func NewRouter(ctrl controller, status statusSource, store pinger) *chi.Mux {
	h := &Handler{ctrl: ctrl, status: status, store: store}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.Health)

	r.Route("/loop", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Post("/start", h.Start)
		r.Post("/stop", h.Stop)
	})
	return r
}

// Health 检查去重存储连通性并附带主循环状态
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status: "healthy",
		Checks: make(map[string]Check),
		Loop:   h.status.Status(),
	}

	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		logger.Warnf("[API] 存储健康检查失败: %v", err)
		resp.Checks["store"] = Check{Status: "fail", Message: "connection failed"}
		resp.Status = "degraded"
	} else {
		resp.Checks["store"] = Check{Status: "pass", Latency: time.Since(start).String()}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Status())
}

// Start 启动主循环，重复调用无副作用
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	logger.Infof("[API] 收到启动指令")
	h.ctrl.StartLoop()
	writeJSON(w, http.StatusAccepted, h.status.Status())
}

// Stop 停止主循环并回到首页
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	logger.Infof("[API] 收到停止指令")
	h.ctrl.StopLoopAndGoHome()
	writeJSON(w, http.StatusAccepted, h.status.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("[API] 写入响应失败: %v", err)
	}
}

// requestLogger 记录每个请求的方法、路径、状态码与耗时
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debugf("[API] %s %s %d %v", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
