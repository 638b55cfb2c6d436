package classifier

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/platform/sanitize"
)

// Vocabulary lists the city and project phrases the extractor recognizes.
// Phrases are normalized on construction; longer phrases win over shorter ones.
type Vocabulary struct {
	cities   []phrase
	projects []phrase
}

type phrase struct {
	text    string
	pattern *regexp.Regexp
}

// DefaultCities are the regions prospects usually name when asking about the developments.
var DefaultCities = []string{
	"merida", "yucatan", "riviera maya", "cancun", "playa del carmen", "tulum", "cozumel",
	"quintana roo", "caribe", "guadalajara", "puerto vallarta", "vallarta", "jalisco",
	"costalegre", "costa alegre", "valle de guadalupe", "ensenada", "baja california",
	"los cabos", "mar de cortes", "ciudad de mexico", "cdmx", "monterrey",
}

// NewVocabulary builds a vocabulary from raw city and project phrases.
func NewVocabulary(cities, projects []string) Vocabulary {
	return Vocabulary{cities: compilePhrases(cities), projects: compilePhrases(projects)}
}

func compilePhrases(raw []string) []phrase {
	seen := make(map[string]bool, len(raw))
	out := make([]phrase, 0, len(raw))
	for _, r := range raw {
		text := sanitize.Normalize(r)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		out = append(out, phrase{text: text, pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(text) + `\b`)})
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].text) > len(out[j].text) })
	return out
}

func findPhrase(phrases []phrase, text string) string {
	for _, p := range phrases {
		if p.pattern.MatchString(text) {
			return p.text
		}
	}
	return ""
}

var (
	amountPattern = regexp.MustCompile(`(\$\s*)?(\d+(?:[.,]\d+)*)\s*(millones|millon|mdp|mdd|mil|k)?\b`)

	propertyTypes = []struct {
		value   string
		pattern *regexp.Regexp
	}{
		{"penthouse", regexp.MustCompile(`\b(penthouse|ph)\b`)},
		{"departamento", regexp.MustCompile(`\b(departamentos?|depas?|deptos?|apartamentos?|condos?|condominios?)\b`)},
		{"villa", regexp.MustCompile(`\bvillas?\b`)},
		{"terreno", regexp.MustCompile(`\b(terrenos?|lotes?)\b`)},
		{"residencia", regexp.MustCompile(`\bresidencias?\b`)},
		{"casa", regexp.MustCompile(`\b(casas?|house)\b`)},
	}

	urgencyLevels = []struct {
		value   string
		pattern *regexp.Regexp
	}{
		{"inmediata", regexp.MustCompile(`\b(urgente|urgencia|cuanto antes|lo antes posible|de inmediato|inmediato|inmediatamente|hoy|manana|asap|urgent|today|tomorrow)\b`)},
		{"esta_semana", regexp.MustCompile(`\b(esta semana|este fin de semana|this week)\b`)},
		{"este_mes", regexp.MustCompile(`\b(este mes|pronto)\b`)},
	}
)

// extract pulls attributes out of normalized text. Anything not found stays empty.
func (v Vocabulary) extract(text string, categories map[domain.Category]bool) domain.Extraction {
	var out domain.Extraction

	if categories[domain.CategoryBudget] {
		amounts := extractAmounts(text)
		switch {
		case len(amounts) == 1:
			out.BudgetMax = &amounts[0]
		case len(amounts) >= 2:
			lo, hi := amounts[0], amounts[1]
			if lo > hi {
				lo, hi = hi, lo
			}
			out.BudgetMin = &lo
			out.BudgetMax = &hi
		}
	}

	out.CityInterest = findPhrase(v.cities, text)
	out.ProjectInterest = findPhrase(v.projects, text)

	for _, pt := range propertyTypes {
		if pt.pattern.MatchString(text) {
			out.PropertyType = pt.value
			break
		}
	}
	for _, u := range urgencyLevels {
		if u.pattern.MatchString(text) {
			out.Urgency = u.value
			break
		}
	}

	out.WantsVisit = categories[domain.CategoryVisit]
	out.WantsCall = categories[domain.CategoryContact]
	out.WantsInfo = categories[domain.CategoryInformation] || categories[domain.CategoryBrochure]
	return out
}

// extractAmounts returns up to two money amounts in order of appearance.
// A bare number counts only when it is large enough to be a price and
// short enough not to be a phone number.
func extractAmounts(text string) []float64 {
	var out []float64
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		hasCurrency := m[1] != ""
		raw, suffix := m[2], m[3]

		value, ok := parseAmount(raw)
		if !ok || value <= 0 {
			continue
		}
		switch suffix {
		case "millones", "millon", "mdp", "mdd":
			value *= 1_000_000
		case "mil", "k":
			value *= 1_000
		}

		plainDigits := !strings.ContainsAny(raw, ".,")
		if suffix == "" && !hasCurrency {
			if value < 10_000 || (plainDigits && len(raw) >= 8) {
				continue
			}
		}

		out = append(out, value)
		if len(out) == 2 {
			break
		}
	}
	return out
}

// parseAmount reads numbers written with thousands separators ("1,500,000"),
// decimals ("2.5") or both ("1.500.000,50").
func parseAmount(raw string) (float64, bool) {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '.' })
	if len(parts) == 0 {
		return 0, false
	}
	intParts, decimal := parts, ""
	if last := parts[len(parts)-1]; len(parts) > 1 && len(last) != 3 {
		intParts, decimal = parts[:len(parts)-1], last
	}
	number := strings.Join(intParts, "")
	if decimal != "" {
		number += "." + decimal
	}
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
