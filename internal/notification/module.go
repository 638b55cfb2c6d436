// Package notification reacts to lead events: it tells the property's sales
// contact about new and escalated leads over WhatsApp and forwards integration
// events to RabbitMQ.
package notification

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"chable_leads_backend/internal/events"
	"chable_leads_backend/internal/properties"
	"chable_leads_backend/platform/logger"
)

// WhatsAppSender sends WhatsApp text messages.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to, text string) error
}

// Catalog resolves property keys to their sales contact.
type Catalog interface {
	Current() *properties.Catalog
}

var (
	dispatchedTemplate = template.Must(template.New("dispatched").Parse(
		`Nuevo lead para {{.Property}} ({{.Tier}})
Nombre: {{.Name}}
Teléfono: {{.Phone}}
{{- if .Summary}}
Resumen: {{.Summary}}{{end}}`))

	escalatedTemplate = template.Must(template.New("escalated").Parse(
		`Lead escalado a {{.Tier}} en {{.Property}} (antes {{.FromTier}})
Nombre: {{.Name}}
Teléfono: {{.Phone}}
{{- if .Summary}}
Resumen: {{.Summary}}{{end}}`))
)

type messageData struct {
	Property string
	Tier     string
	FromTier string
	Name     string
	Phone    string
	Summary  string
}

// LeadEventData is the data section of lead integration events.
type LeadEventData struct {
	LeadID         string `json:"lead_id"`
	PropertyKey    string `json:"property_key"`
	CRMLeadID      string `json:"crm_lead_id,omitempty"`
	Phone          string `json:"phone"`
	Name           string `json:"name,omitempty"`
	Tier           string `json:"tier"`
	PreviousTier   string `json:"previous_tier,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Module handles the lead event subscriptions.
type Module struct {
	catalog   Catalog
	whatsapp  WhatsAppSender
	publisher Publisher
	log       *logger.Logger
}

// New creates the module. whatsapp and publisher may be nil.
func New(catalog Catalog, whatsapp WhatsAppSender, publisher Publisher, log *logger.Logger) *Module {
	return &Module{catalog: catalog, whatsapp: whatsapp, publisher: publisher, log: log}
}

// RegisterHandlers subscribes the module to the lead events it reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadDispatched{}.EventName(), m)
	bus.Subscribe(events.LeadEscalated{}.EventName(), m)
	bus.Subscribe(events.LeadDispatchFailed{}.EventName(), m)
	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadDispatched:
		return m.handleLeadDispatched(ctx, e)
	case events.LeadEscalated:
		return m.handleLeadEscalated(ctx, e)
	case events.LeadDispatchFailed:
		m.log.WithContext(ctx).Warn("lead dispatch failed",
			"lead_id", e.LeadID, "property_key", e.PropertyKey, "error_kind", e.ErrorKind, "error", e.Error)
		return nil
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleLeadDispatched(ctx context.Context, e events.LeadDispatched) error {
	data := messageData{Tier: e.Tier, Name: e.Name, Phone: e.Phone, Summary: e.Summary}
	notifyErr := m.notifyContact(ctx, e.PropertyKey, dispatchedTemplate, data)

	pubErr := m.publish(ctx, TypeLeadDispatched, e.ConversationID, LeadEventData{
		LeadID:         e.LeadID.String(),
		PropertyKey:    e.PropertyKey,
		CRMLeadID:      e.CRMLeadID,
		Phone:          e.Phone,
		Name:           e.Name,
		Tier:           e.Tier,
		ConversationID: e.ConversationID,
	})
	return firstErr(notifyErr, pubErr)
}

func (m *Module) handleLeadEscalated(ctx context.Context, e events.LeadEscalated) error {
	data := messageData{Tier: e.ToTier, FromTier: e.FromTier, Name: e.Name, Phone: e.Phone, Summary: e.Summary}
	notifyErr := m.notifyContact(ctx, e.PropertyKey, escalatedTemplate, data)

	pubErr := m.publish(ctx, TypeLeadEscalated, e.ConversationID, LeadEventData{
		LeadID:         e.LeadID.String(),
		PropertyKey:    e.PropertyKey,
		Phone:          e.Phone,
		Name:           e.Name,
		Tier:           e.ToTier,
		PreviousTier:   e.FromTier,
		ConversationID: e.ConversationID,
	})
	return firstErr(notifyErr, pubErr)
}

func (m *Module) notifyContact(ctx context.Context, propertyKey string, tpl *template.Template, data messageData) error {
	if m.whatsapp == nil {
		return nil
	}
	prop, ok := m.catalog.Current().Get(propertyKey)
	if !ok || prop.SalesContact == nil || strings.TrimSpace(prop.SalesContact.Phone) == "" {
		return nil
	}

	data.Property = prop.DisplayName
	if data.Name == "" {
		data.Name = "sin nombre"
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render sales notification: %w", err)
	}
	if err := m.whatsapp.SendMessage(ctx, prop.SalesContact.Phone, buf.String()); err != nil {
		m.log.WithContext(ctx).Error("sales contact notification failed",
			"property_key", propertyKey, "contact", prop.SalesContact.Name, "error", err)
		return err
	}
	return nil
}

func (m *Module) publish(ctx context.Context, eventType, correlationID string, data LeadEventData) error {
	if m.publisher == nil {
		return nil
	}
	if err := m.publisher.Publish(ctx, eventType, NewEnvelope(eventType, correlationID, data)); err != nil {
		m.log.WithContext(ctx).Error("integration event publish failed", "type", eventType, "error", err)
		return err
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
