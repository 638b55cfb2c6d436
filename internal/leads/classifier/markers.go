package classifier

import (
	"regexp"

	"chable_leads_backend/internal/leads/domain"
)

// marker is one row of the declarative marker table. A category contributes
// its weight once, however many of its patterns match.
type marker struct {
	category domain.Category
	weight   int
	patterns []*regexp.Regexp
}

// Patterns run against normalized text: lower-case, accent-folded, single spaces.
var markerTable = []marker{
	{
		category: domain.CategoryInformation,
		weight:   45,
		patterns: compile(
			`\b(informacion|info|informes|detalles|quiero saber|mas datos)\b`,
			`\b(information|details)\b`,
		),
	},
	{
		category: domain.CategoryBudget,
		weight:   25,
		patterns: compile(
			`\b(presupuesto|precios?|cuanto (cuesta|cuestan|vale|valen)|costos?|financiamiento|credito|enganche|mensualidad(es)?|formas? de pago|pagos?)\b`,
			`\$\s?\d`,
			`\b\d+([.,]\d+)?\s?(millones|millon|mdp|mdd)\b`,
			`\b(budget|price|pricing)\b`,
		),
	},
	{
		category: domain.CategoryVisit,
		weight:   30,
		patterns: compile(
			`\b(visitar(los)?|visita|agendar|cita|recorrido|deseo ver|ir a ver|me gustaria ver)\b`,
			`\bconocer (el|la) (proyecto|desarrollo|lugar|propiedad)\b`,
			`\b(visit|tour|showing)\b`,
		),
	},
	{
		category: domain.CategoryContact,
		weight:   30,
		patterns: compile(
			`\b(asesora?|agente|vendedor|ejecutivo|llamada|llamar(me)?|llamen|llamame|marcar(me)?)\b`,
			`\b(contactar(me)?|contacten|contactenme|comuniquen|hablar con)\b`,
			`\b(call me|advisor|agent)\b`,
		),
	},
	{
		category: domain.CategoryPurchase,
		weight:   30,
		patterns: compile(
			`\b(comprar|compra|adquirir|invertir|inversion|apartar|reservar)\b`,
			`\b(estoy interesad[oa]|me interesa)\b`,
			`\b(buy|purchase|invest)\b`,
		),
	},
	{
		category: domain.CategoryLocation,
		weight:   15,
		patterns: compile(
			`\bdonde (esta|queda|se ubica|se encuentra)\b`,
			`\b(ubicacion|ubicado|recamaras|habitaciones|cuartos|banos|metros|m2|amenidades|alberca|piscina|superficie)\b`,
			`\b(vista|frente) al mar\b`,
			`\b(location|bedrooms|amenities)\b`,
		),
	},
	{
		category: domain.CategoryBrochure,
		weight:   20,
		patterns: compile(
			`\b(brochure|catalogo|folleto|fotos|fotografias|imagenes|planos|pdf|presentacion|video|renders?)\b`,
		),
	},
	{
		category: domain.CategoryUrgency,
		weight:   25,
		patterns: compile(
			`\b(urgente|urgencia|cuanto antes|lo antes posible|de inmediato|inmediato|inmediatamente|pronto|hoy|manana|asap)\b`,
			`\b(esta semana|este fin de semana|este mes)\b`,
			`\b(urgent|this week|today|tomorrow)\b`,
		),
	},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		out = append(out, regexp.MustCompile(expr))
	}
	return out
}

func (m marker) matches(text string) bool {
	for _, p := range m.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
