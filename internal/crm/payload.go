package crm

import (
	"fmt"
	"strings"
	"time"

	"chable_leads_backend/internal/leads/domain"
)

const (
	sourceWhatsApp   = "WhatsApp"
	leadSourceBot    = "WhatsApp Bot"
	placeholderFirst = "Cliente"
	placeholderLast  = "WhatsApp"
)

// Payload is the lead document sent to a property's CRM.
type Payload struct {
	PropertyID  int         `json:"property_id"`
	Contact     Contact     `json:"contact"`
	LeadDetails LeadDetails `json:"lead_details"`
	Metadata    Metadata    `json:"metadata"`
}

// Contact identifies the prospect. Names are never empty.
type Contact struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Source     string `json:"source"`
	LeadSource string `json:"lead_source"`
	Notes      string `json:"notes,omitempty"`
}

// LeadDetails is the qualification as the CRM sees it.
type LeadDetails struct {
	InterestLevel        string   `json:"interest_level"`
	BudgetMin            *float64 `json:"budget_min"`
	BudgetMax            *float64 `json:"budget_max"`
	PropertyType         string   `json:"property_type"`
	CityInterest         string   `json:"city_interest"`
	ProjectInterest      string   `json:"project_interest,omitempty"`
	Urgency              string   `json:"urgency,omitempty"`
	VisitRequested       bool     `json:"visit_requested"`
	CallRequested        bool     `json:"call_requested"`
	InformationRequested bool     `json:"information_requested"`
}

// Metadata ties the lead back to its conversation. CreatedAt is RFC 3339 UTC.
type Metadata struct {
	CreatedAt           string `json:"created_at"`
	Platform            string `json:"platform"`
	ThreadID            string `json:"thread_id"`
	ConversationSummary string `json:"conversation_summary"`
}

// BuildPayload serializes lead for a property. First and last name are
// always non-empty: placeholders stand in for an unknown name.
func BuildPayload(lead domain.Lead, propertyID int, summary string, now time.Time) Payload {
	first, last := splitName(lead.Name)
	ex := lead.Extracted

	return Payload{
		PropertyID: propertyID,
		Contact: Contact{
			FirstName:  first,
			LastName:   last,
			Email:      strings.TrimSpace(lead.Email),
			Phone:      lead.Phone,
			Source:     sourceWhatsApp,
			LeadSource: leadSourceBot,
			Notes:      notes(lead),
		},
		LeadDetails: LeadDetails{
			InterestLevel:        lead.Tier.InterestLevel(),
			BudgetMin:            ex.BudgetMin,
			BudgetMax:            ex.BudgetMax,
			PropertyType:         ex.PropertyType,
			CityInterest:         ex.CityInterest,
			ProjectInterest:      ex.ProjectInterest,
			Urgency:              ex.Urgency,
			VisitRequested:       ex.WantsVisit,
			CallRequested:        ex.WantsCall,
			InformationRequested: ex.WantsInfo,
		},
		Metadata: Metadata{
			CreatedAt:           now.UTC().Format(time.RFC3339),
			Platform:            sourceWhatsApp,
			ThreadID:            lead.ConversationID,
			ConversationSummary: summary,
		},
	}
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return placeholderFirst, placeholderLast
	case 1:
		return parts[0], placeholderLast
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func notes(lead domain.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tier: %s. Confidence: %d.", lead.Tier, lead.Confidence)
	if lead.Extracted.Urgency != "" {
		fmt.Fprintf(&b, " Urgency: %s.", lead.Extracted.Urgency)
	}
	return b.String()
}
