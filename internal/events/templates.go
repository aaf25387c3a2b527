package events

import (
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"dbupdater/pkg/logging"
)

// maxMessageLength keeps rendered messages well below the Event size limit.
const maxMessageLength = 1024

var defaultTemplates = map[EventReason]string{
	ReasonMigrationStarted:       `Started migration job {{.TaskName}} for version {{.Version}}{{if .CurrentVersion}} (from {{.CurrentVersion}}){{end}}`,
	ReasonMigrationSucceeded:     `Migration job {{.TaskName}} succeeded{{if .Attempts}} after {{.Attempts}} {{if eq .Attempts 1}}check{{else}}checks{{end}}{{end}}`,
	ReasonMigrationFailed:        `Migration to version {{.Version}} failed{{if .TaskName}} in job {{.TaskName}}{{end}}{{if .Error}}: {{.Error | trunc 512}}{{end}}`,
	ReasonMigrationTimedOut:      `Migration job {{.TaskName}} still running after {{.Attempts}} checks, will keep waiting`,
	ReasonDownstreamUpdated:      `Deployment {{.Deployment | default "downstream"}} now uses database version {{.Version}}`,
	ReasonDownstreamUpdateFailed: `Failed to update deployment {{.Deployment | default "downstream"}} to version {{.Version}}{{if .Error}}: {{.Error | trunc 512}}{{end}}`,
	ReasonVersionConverged:       `Database {{.Name}} is at version {{.Version}}{{if .Duration}} ({{.Duration}}){{end}}`,
}

// MessageTemplateEngine provides message generation for events.
type MessageTemplateEngine struct {
	mu        sync.RWMutex
	templates map[EventReason]*template.Template
	sources   map[EventReason]string
}

// NewMessageTemplateEngine creates a new message template engine with default templates.
func NewMessageTemplateEngine() *MessageTemplateEngine {
	engine := &MessageTemplateEngine{
		templates: make(map[EventReason]*template.Template),
		sources:   make(map[EventReason]string),
	}
	for reason, text := range defaultTemplates {
		if err := engine.SetTemplate(reason, text); err != nil {
			panic(fmt.Sprintf("invalid default template for %s: %v", reason, err))
		}
	}
	return engine
}

// Render generates a message for the given event reason and data.
func (e *MessageTemplateEngine) Render(reason EventReason, data EventData) string {
	e.mu.RLock()
	tmpl, exists := e.templates[reason]
	e.mu.RUnlock()

	if !exists {
		return fmt.Sprintf("Event: %s for %s/%s", string(reason), data.Namespace, data.Name)
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		logging.Warn("events", "Failed to render template for %s: %v", reason, err)
		return fmt.Sprintf("Event: %s for %s/%s", string(reason), data.Namespace, data.Name)
	}

	msg := b.String()
	if len(msg) > maxMessageLength {
		msg = msg[:maxMessageLength]
	}
	return msg
}

// SetTemplate replaces the message template for a reason.
func (e *MessageTemplateEngine) SetTemplate(reason EventReason, text string) error {
	tmpl, err := template.New(string(reason)).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(text)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[reason] = tmpl
	e.sources[reason] = text
	return nil
}

// GetTemplate returns the template for a specific event reason.
func (e *MessageTemplateEngine) GetTemplate(reason EventReason) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	text, exists := e.sources[reason]
	return text, exists
}
