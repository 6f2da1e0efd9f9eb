package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fachebot/wecom-sync-bot/internal/logger"
)

// Server 控制接口 HTTP 服务
type Server struct {
	srv *http.Server
}

func NewServer(listen string, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start 在后台监听，监听失败只记录日志
func (s *Server) Start() {
	go func() {
		logger.Infof("[API] 控制接口已启动: %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("[API] 控制接口异常退出: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
