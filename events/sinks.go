package events

import (
	"context"
	"fmt"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// LogObserver writes every event to a zap logger. Failure events are
// logged at warn level.
type LogObserver struct {
	logger *zap.Logger
}

func NewLogObserver(logger *zap.Logger) *LogObserver {
	if logger == nil {
		logger = Logger()
	}
	return &LogObserver{logger: logger}
}

func (o *LogObserver) ObserverID() string {
	return "log"
}

func (o *LogObserver) OnEvent(_ context.Context, event cloudevents.Event) error {
	fields := []zap.Field{
		zap.String("type", event.Type()),
		zap.String("id", event.ID()),
	}
	if data, err := Decode(event); err == nil {
		if data.Handle != 0 {
			fields = append(fields, zap.Uint64("handle", data.Handle))
		}
		if data.Ticks != 0 {
			fields = append(fields, zap.Uint64("ticks", data.Ticks))
		}
		if data.Error != "" {
			fields = append(fields, zap.String("error", data.Error))
		}
	}

	switch event.Type() {
	case TypeModuleLoadFailed, TypeStartupFailed, TypeTickFailed, TypeHalted:
		o.logger.Warn("lifecycle event", fields...)
	default:
		o.logger.Info("lifecycle event", fields...)
	}
	return nil
}

// DefaultSinkBuffer is the number of events an HTTPSink queues before dropping.
const DefaultSinkBuffer = 64

// HTTPSink forwards events to a CloudEvents HTTP endpoint. Events are sent
// from a background goroutine so a slow endpoint never blocks the emitter.
type HTTPSink struct {
	client  cloudevents.Client
	logger  *zap.Logger
	queue   chan cloudevents.Event
	done    chan struct{}
	target  string
	dropped uint64
	mu      sync.Mutex
	closed  bool
}

// NewHTTPSink creates a sink posting to target and starts its sender.
func NewHTTPSink(target string, logger *zap.Logger) (*HTTPSink, error) {
	if logger == nil {
		logger = Logger()
	}
	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(target))
	if err != nil {
		return nil, fmt.Errorf("create cloudevents client: %w", err)
	}

	s := &HTTPSink{
		client: client,
		logger: logger.With(zap.String("target", target)),
		queue:  make(chan cloudevents.Event, DefaultSinkBuffer),
		done:   make(chan struct{}),
		target: target,
	}
	go s.run()
	return s, nil
}

func (s *HTTPSink) ObserverID() string {
	return "http:" + s.target
}

// OnEvent queues event for delivery, dropping it when the queue is full.
func (s *HTTPSink) OnEvent(_ context.Context, event cloudevents.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink closed")
	}
	select {
	case s.queue <- event:
		return nil
	default:
		s.dropped++
		return fmt.Errorf("sink queue full, dropped %d events", s.dropped)
	}
}

func (s *HTTPSink) run() {
	defer close(s.done)
	for event := range s.queue {
		result := s.client.Send(context.Background(), event)
		if !cloudevents.IsACK(result) {
			s.logger.Warn("event delivery failed",
				zap.String("type", event.Type()),
				zap.Error(result))
		}
	}
}

// Close stops accepting events and waits until queued ones are sent or
// ctx is done.
func (s *HTTPSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Observer = (*LogObserver)(nil)
	_ Observer = (*HTTPSink)(nil)
)
