package events

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/client"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
	"dbupdater/pkg/logging"
)

// Recorder stores an Event against an object.
type Recorder interface {
	CreateEvent(ctx context.Context, obj client.Object, reason, message, eventType string) error
}

// EventGenerator renders and records DatabaseUpdate events.
type EventGenerator struct {
	recorder  Recorder
	templates *MessageTemplateEngine
}

// NewEventGenerator creates a new EventGenerator writing to recorder.
func NewEventGenerator(recorder Recorder) *EventGenerator {
	return &EventGenerator{
		recorder:  recorder,
		templates: NewMessageTemplateEngine(),
	}
}

// DatabaseUpdateEvent generates an event for a DatabaseUpdate.
func (g *EventGenerator) DatabaseUpdateEvent(ctx context.Context, obj *dbupdatev1.DatabaseUpdate, reason EventReason, data EventData) error {
	data.Name = obj.Name
	data.Namespace = obj.Namespace

	message := g.templates.Render(reason, data)
	eventType := string(getEventType(reason))

	logging.Debug("events", "Generating DatabaseUpdate event: reason=%s, message=%s, type=%s",
		string(reason), message, eventType)

	return g.recorder.CreateEvent(ctx, obj, string(reason), message, eventType)
}

// SetTemplate allows customizing the message template for a specific event reason.
func (g *EventGenerator) SetTemplate(reason EventReason, template string) error {
	return g.templates.SetTemplate(reason, template)
}

// GetTemplate returns the template for a specific event reason.
func (g *EventGenerator) GetTemplate(reason EventReason) (string, bool) {
	return g.templates.GetTemplate(reason)
}
