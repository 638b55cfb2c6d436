package domain

// Category is one family of purchase-intent markers.
type Category string

const (
	CategoryInformation Category = "information"
	CategoryBudget      Category = "budget"
	CategoryVisit       Category = "visit"
	CategoryContact     Category = "contact"
	CategoryPurchase    Category = "purchase"
	CategoryLocation    Category = "location"
	CategoryBrochure    Category = "brochure"
	CategoryUrgency     Category = "urgency"
)

// Categories lists every category in a fixed order.
var Categories = []Category{
	CategoryInformation,
	CategoryBudget,
	CategoryVisit,
	CategoryContact,
	CategoryPurchase,
	CategoryLocation,
	CategoryBrochure,
	CategoryUrgency,
}

// TierFor returns the tier a category signals on its own.
func TierFor(c Category) Tier {
	switch c {
	case CategoryVisit, CategoryContact, CategoryUrgency:
		return TierHot
	case CategoryBudget, CategoryPurchase, CategoryLocation:
		return TierWarm
	default:
		return TierCold
	}
}

// Extraction holds the attributes pulled out of free text. Nil pointers and
// empty strings mean "not mentioned".
type Extraction struct {
	BudgetMin       *float64 `json:"budget_min"`
	BudgetMax       *float64 `json:"budget_max"`
	CityInterest    string   `json:"city_interest,omitempty"`
	PropertyType    string   `json:"property_type,omitempty"`
	ProjectInterest string   `json:"project_interest,omitempty"`
	Urgency         string   `json:"urgency,omitempty"`
	WantsVisit      bool     `json:"wants_visit"`
	WantsCall       bool     `json:"wants_call"`
	WantsInfo       bool     `json:"wants_info"`
}

// Merge overlays newer onto e: set values in newer win, request flags accumulate.
func (e Extraction) Merge(newer Extraction) Extraction {
	out := e
	if newer.BudgetMin != nil {
		out.BudgetMin = newer.BudgetMin
	}
	if newer.BudgetMax != nil {
		out.BudgetMax = newer.BudgetMax
	}
	if newer.CityInterest != "" {
		out.CityInterest = newer.CityInterest
	}
	if newer.PropertyType != "" {
		out.PropertyType = newer.PropertyType
	}
	if newer.ProjectInterest != "" {
		out.ProjectInterest = newer.ProjectInterest
	}
	if newer.Urgency != "" {
		out.Urgency = newer.Urgency
	}
	out.WantsVisit = e.WantsVisit || newer.WantsVisit
	out.WantsCall = e.WantsCall || newer.WantsCall
	out.WantsInfo = e.WantsInfo || newer.WantsInfo
	return out
}

// Equal reports whether two extractions carry the same values.
func (e Extraction) Equal(other Extraction) bool {
	return floatPtrEqual(e.BudgetMin, other.BudgetMin) &&
		floatPtrEqual(e.BudgetMax, other.BudgetMax) &&
		e.CityInterest == other.CityInterest &&
		e.PropertyType == other.PropertyType &&
		e.ProjectInterest == other.ProjectInterest &&
		e.Urgency == other.Urgency &&
		e.WantsVisit == other.WantsVisit &&
		e.WantsCall == other.WantsCall &&
		e.WantsInfo == other.WantsInfo
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// InterestSignal is the result of classifying a message or transcript.
type InterestSignal struct {
	ShowsInterest bool       `json:"shows_interest"`
	Confidence    int        `json:"confidence"`
	Categories    []Category `json:"categories"`
	Extracted     Extraction `json:"extracted"`
}

// Tier returns the strongest tier among the signal's categories.
// Hot markers dominate warm ones found in the same evaluation.
func (s InterestSignal) Tier() Tier {
	tier := TierCold
	for _, c := range s.Categories {
		tier = tier.Max(TierFor(c))
	}
	return tier
}

// Has reports whether the signal contains category c.
func (s InterestSignal) Has(c Category) bool {
	for _, got := range s.Categories {
		if got == c {
			return true
		}
	}
	return false
}
