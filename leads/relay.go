package leads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stardustagi/ChatRelay/libs/logs"
	"go.uber.org/zap"
)

type RelayConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds every single sink delivery.
	Timeout time.Duration
}

// Relay hands leads to a fixed set of sink workers so the chat request never
// waits on, or hears about, lead delivery.
type Relay struct {
	sinks   []Sink
	queue   chan Event
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewRelay(cfg RelayConfig, logger *zap.Logger, sinks ...Sink) *Relay {
	if logger == nil {
		logger = logs.GetLogger("leads")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	r := &Relay{
		sinks:   sinks,
		queue:   make(chan Event, cfg.QueueSize),
		timeout: cfg.Timeout,
		logger:  logger,
		now:     time.Now,
	}
	if len(sinks) == 0 {
		return r
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.sendPump()
	}
	return r
}

// Enabled reports whether at least one sink is configured.
func (r *Relay) Enabled() bool {
	return len(r.sinks) > 0
}

// Submit stamps the lead and queues it without blocking. It returns false
// when the lead was not queued (no sinks, queue full, or relay closed).
func (r *Relay) Submit(lead Lead) bool {
	if !r.Enabled() {
		r.logger.Debug("lead dropped, no sink configured")
		return false
	}
	event := Event{Ts: r.now().UnixMilli(), Lead: lead}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("lead dropped, relay is closed")
		return false
	}
	select {
	case r.queue <- event:
		return true
	default:
		r.logger.Warn("lead dropped, relay queue is full", logs.Int("capacity", cap(r.queue)))
		return false
	}
}

// Close stops accepting leads and waits for queued ones to be delivered,
// or for ctx to expire.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) sendPump() {
	defer r.wg.Done()
	for event := range r.queue {
		for _, sink := range r.sinks {
			if err := r.deliver(sink, event); err != nil {
				r.logger.Warn("lead relay failed",
					logs.String("sink", sink.Name()),
					logs.ErrorInfo(err))
				continue
			}
			r.logger.Debug("lead relayed", logs.String("sink", sink.Name()))
		}
	}
}

func (r *Relay) deliver(sink Sink, event Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sink panicked: %v", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return sink.Send(ctx, event)
}
