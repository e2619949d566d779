package server

import (
	"context"

	"github.com/stardustagi/gptshell/libs/logs"
	"github.com/stardustagi/gptshell/utils"
	"go.uber.org/zap"
)

// Server 进程级生命周期：收到 SIGINT/SIGTERM 后取消 Ctx
type Server struct {
	Ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	doneCh chan struct{}
}

func NewServer(parent context.Context) *Server {
	ctx, cancel := context.WithCancel(parent)

	return &Server{
		Ctx:    ctx,
		cancel: cancel,
		logger: logs.GetLogger("Server"),
		doneCh: utils.MakeShutdownCh(),
	}
}

// HandleSignal blocks until a shutdown signal arrives or Ctx ends.
func (m *Server) HandleSignal() {
	select {
	case <-m.doneCh:
		m.logger.Info("server shutting...")
	case <-m.Ctx.Done():
	}
	m.cancel()
	m.logger.Info("server shutdown completed")
}

func (m *Server) Stop() {
	m.cancel()
}
