package events

import (
	"context"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Source is the CloudEvents source attribute for events emitted by tickhost.
const Source = "tickhost"

// Lifecycle event types, in reverse domain notation.
const (
	TypeModuleLoaded       = "io.tickhost.module.loaded"
	TypeModuleLoadFailed   = "io.tickhost.module.load_failed"
	TypeApplicationCreated = "io.tickhost.application.created"
	TypeStartupFailed      = "io.tickhost.application.startup_failed"
	TypeTickingStarted     = "io.tickhost.scheduler.started"
	TypeTickFailed         = "io.tickhost.scheduler.tick_failed"
	TypeHalted             = "io.tickhost.scheduler.halted"
	TypeStopped            = "io.tickhost.scheduler.stopped"
)

// Lifecycle is the data payload of every lifecycle event.
type Lifecycle struct {
	Source   string `json:"source,omitempty"`
	Handle   uint64 `json:"handle,omitempty"`
	Ticks    uint64 `json:"ticks,omitempty"`
	Failures uint64 `json:"failures,omitempty"`
	Period   string `json:"period,omitempty"`
	Error    string `json:"error,omitempty"`
	Pending  bool   `json:"pending,omitempty"`
}

// Emitter accepts lifecycle notifications.
type Emitter interface {
	Emit(ctx context.Context, eventType string, data any)
}

// Nop is an Emitter that drops everything.
type Nop struct{}

func (Nop) Emit(context.Context, string, any) {}

// NewCloudEvent builds a CloudEvent with a time-ordered ID and JSON data.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()

	event.SetID(newEventID())
	event.SetSource(source)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)

	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}

	for key, value := range metadata {
		event.SetExtension(key, value)
	}

	return event
}

// newEventID returns a UUIDv7, falling back to v4.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Validate checks event against the CloudEvents specification.
func Validate(event cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid cloudevent: %w", err)
	}
	return nil
}

// Decode extracts the Lifecycle payload of event.
func Decode(event cloudevents.Event) (Lifecycle, error) {
	var data Lifecycle
	if err := event.DataAs(&data); err != nil {
		return data, fmt.Errorf("decode %s: %w", event.Type(), err)
	}
	return data, nil
}
