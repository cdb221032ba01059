package server

import (
	"context"

	"github.com/stardustagi/ChatRelay/libs/logs"
	"github.com/stardustagi/ChatRelay/utils"
	"go.uber.org/zap"
)

// Server owns the process lifetime: Ctx is cancelled on SIGINT or SIGTERM.
type Server struct {
	Ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	doneCh chan struct{}
}

func NewServer() *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Ctx:    ctx,
		cancel: cancel,
		logger: logs.GetLogger("Server"),
		doneCh: utils.MakeShutdownCh(),
	}
}

// HandleSignal blocks until a shutdown signal arrives or Stop is called.
func (m *Server) HandleSignal() {
	select {
	case <-m.doneCh:
		m.logger.Info("shutdown signal received")
	case <-m.Ctx.Done():
	}
	m.cancel()
}

func (m *Server) Stop() {
	m.cancel()
}
