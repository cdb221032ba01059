package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/stardustagi/ChatRelay/libs/logs"
	"go.uber.org/zap"
)

// Service 统一所有长驻组件的生命周期
type Service interface {
	Name() string
	// Start blocks until ctx is cancelled or the service fails.
	Start(ctx context.Context) error
	// Stop is called once every Start has returned, in reverse registration order.
	Stop(ctx context.Context) error
}

// BaseService adapts a pair of functions to Service. A nil start waits for
// ctx, a nil stop does nothing.
type BaseService struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

func NewService(name string, start, stop func(ctx context.Context) error) *BaseService {
	return &BaseService{name: name, start: start, stop: stop}
}

func (s *BaseService) Name() string {
	return s.name
}

func (s *BaseService) Start(ctx context.Context) error {
	if s.start == nil {
		<-ctx.Done()
		return nil
	}
	return s.start(ctx)
}

func (s *BaseService) Stop(ctx context.Context) error {
	if s.stop == nil {
		return nil
	}
	return s.stop(ctx)
}

// Group runs services together: the first one to return ends the group.
type Group struct {
	services        []Service
	shutdownTimeout time.Duration
	logger          *zap.Logger
	running         atomic.Bool
}

func NewGroup(shutdownTimeout time.Duration, logger *zap.Logger) *Group {
	if logger == nil {
		logger = logs.GetLogger("services")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &Group{shutdownTimeout: shutdownTimeout, logger: logger}
}

func (g *Group) Add(services ...Service) *Group {
	g.services = append(g.services, services...)
	return g
}

func (g *Group) IsRunning() bool {
	return g.running.Load()
}

// Run starts every service and blocks until ctx is cancelled or any service
// returns. It then stops all services and reports the first error seen.
func (g *Group) Run(ctx context.Context) error {
	if !g.running.CompareAndSwap(false, true) {
		return errors.New("service group is already running")
	}
	defer g.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	record := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for _, s := range g.services {
		wg.Add(1)
		go func(s Service) {
			defer wg.Done()
			defer cancel()
			g.logger.Info("service started", logs.String("service", s.Name()))
			if err := s.Start(runCtx); err != nil {
				g.logger.Error("service failed", logs.String("service", s.Name()), logs.ErrorInfo(err))
				record(errors.Wrapf(err, "service %s", s.Name()))
			}
		}(s)
	}
	wg.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), g.shutdownTimeout)
	defer stopCancel()
	for i := len(g.services) - 1; i >= 0; i-- {
		s := g.services[i]
		if err := s.Stop(stopCtx); err != nil {
			g.logger.Warn("service stop failed", logs.String("service", s.Name()), logs.ErrorInfo(err))
			record(errors.Wrapf(err, "stop service %s", s.Name()))
			continue
		}
		g.logger.Info("service stopped", logs.String("service", s.Name()))
	}
	return firstErr
}
