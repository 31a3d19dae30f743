package events

import (
	"context"
	"sort"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// Observer is notified of events it subscribed to.
type Observer interface {
	// OnEvent handles one event. It runs on the emitter's goroutine and
	// should return quickly.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID identifies the registration.
	ObserverID() string
}

// ObserverInfo describes a registration.
type ObserverInfo struct {
	RegisteredAt time.Time `json:"registeredAt"`
	ID           string    `json:"id"`
	EventTypes   []string  `json:"eventTypes"`
}

type registration struct {
	registeredAt time.Time
	observer     Observer
	eventTypes   map[string]bool
}

// Bus fans events out to registered observers in registration order.
// Delivery is synchronous so observers see events in emission order.
type Bus struct {
	logger    *zap.Logger
	observers []*registration
	source    string
	mu        sync.RWMutex
}

// NewBus creates an empty bus. A nil logger uses Logger().
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = Logger()
	}
	return &Bus{logger: logger, source: Source}
}

// RegisterObserver subscribes observer to eventTypes, or to all events when
// none are given. Registering an ID again replaces the earlier registration.
func (b *Bus) RegisterObserver(observer Observer, eventTypes ...string) {
	types := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		types[t] = true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	reg := &registration{observer: observer, eventTypes: types, registeredAt: time.Now()}
	for i, r := range b.observers {
		if r.observer.ObserverID() == observer.ObserverID() {
			b.observers[i] = reg
			return
		}
	}
	b.observers = append(b.observers, reg)
	b.logger.Debug("observer registered",
		zap.String("observer", observer.ObserverID()),
		zap.Strings("types", eventTypes))
}

// UnregisterObserver removes observer. Unknown observers are ignored.
func (b *Bus) UnregisterObserver(observer Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, r := range b.observers {
		if r.observer.ObserverID() == observer.ObserverID() {
			b.observers = append(b.observers[:i], b.observers[i+1:]...)
			return
		}
	}
}

// Observers lists current registrations.
func (b *Bus) Observers() []ObserverInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	info := make([]ObserverInfo, 0, len(b.observers))
	for _, r := range b.observers {
		types := make([]string, 0, len(r.eventTypes))
		for t := range r.eventTypes {
			types = append(types, t)
		}
		sort.Strings(types)
		info = append(info, ObserverInfo{
			ID:           r.observer.ObserverID(),
			EventTypes:   types,
			RegisteredAt: r.registeredAt,
		})
	}
	return info
}

// NotifyObservers validates event and delivers it. Observer errors and
// panics are logged, never returned.
func (b *Bus) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := Validate(event); err != nil {
		b.logger.Error("dropping invalid event", zap.String("type", event.Type()), zap.Error(err))
		return err
	}

	b.mu.RLock()
	regs := make([]*registration, len(b.observers))
	copy(regs, b.observers)
	b.mu.RUnlock()

	for _, r := range regs {
		if len(r.eventTypes) > 0 && !r.eventTypes[event.Type()] {
			continue
		}
		b.deliver(ctx, r.observer, event)
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, o Observer, event cloudevents.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("observer panicked",
				zap.String("observer", o.ObserverID()),
				zap.String("type", event.Type()),
				zap.Any("panic", r))
		}
	}()

	if err := o.OnEvent(ctx, event); err != nil {
		b.logger.Warn("observer failed",
			zap.String("observer", o.ObserverID()),
			zap.String("type", event.Type()),
			zap.Error(err))
	}
}

// Emit builds a CloudEvent from data and notifies observers.
func (b *Bus) Emit(ctx context.Context, eventType string, data any) {
	_ = b.NotifyObservers(ctx, NewCloudEvent(eventType, b.source, data, nil))
}

// FuncObserver adapts a function to Observer.
type FuncObserver struct {
	handler func(ctx context.Context, event cloudevents.Event) error
	id      string
}

func NewFuncObserver(id string, handler func(ctx context.Context, event cloudevents.Event) error) *FuncObserver {
	return &FuncObserver{id: id, handler: handler}
}

func (f *FuncObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return f.handler(ctx, event)
}

func (f *FuncObserver) ObserverID() string {
	return f.id
}

var (
	_ Emitter  = (*Bus)(nil)
	_ Emitter  = Nop{}
	_ Observer = (*FuncObserver)(nil)
)
