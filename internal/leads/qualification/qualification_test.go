package qualification

import (
	"testing"

	"chable_leads_backend/internal/leads/domain"
)

func signalOf(cats ...domain.Category) domain.InterestSignal {
	return domain.InterestSignal{Categories: cats, Confidence: 10 * len(cats), ShowsInterest: len(cats) > 0}
}

func TestEvaluateTransitions(t *testing.T) {
	cases := []struct {
		name    string
		current domain.Tier
		signal  domain.InterestSignal
		want    domain.Tier
		changed bool
	}{
		{"cold stays cold on info", domain.TierCold, signalOf(domain.CategoryInformation), domain.TierCold, false},
		{"cold to warm on budget", domain.TierCold, signalOf(domain.CategoryBudget), domain.TierWarm, true},
		{"warm to hot on visit", domain.TierWarm, signalOf(domain.CategoryVisit), domain.TierHot, true},
		{"cold skips to hot", domain.TierCold, signalOf(domain.CategoryUrgency), domain.TierHot, true},
		{"hot dominates warm", domain.TierCold, signalOf(domain.CategoryPurchase, domain.CategoryContact), domain.TierHot, true},
		{"hot never demotes", domain.TierHot, signalOf(domain.CategoryInformation), domain.TierHot, false},
		{"empty signal", domain.TierWarm, domain.InterestSignal{}, domain.TierWarm, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.current, tc.signal.Tier(), ReasonMessage)
			if got.To != tc.want || got.Changed != tc.changed {
				t.Fatalf("expected %s (changed=%v), got %s (changed=%v)", tc.want, tc.changed, got.To, got.Changed)
			}
		})
	}
}

func TestEvaluateNeverRegressesOverSequences(t *testing.T) {
	// Every sequence of three single-category evaluations.
	for _, a := range domain.Categories {
		for _, b := range domain.Categories {
			for _, c := range domain.Categories {
				tier := domain.TierCold
				for _, cat := range []domain.Category{a, b, c} {
					next := Evaluate(tier, signalOf(cat).Tier(), ReasonMessage).To
					if next.Rank() < tier.Rank() {
						t.Fatalf("sequence %s,%s,%s regressed from %s to %s", a, b, c, tier, next)
					}
					tier = next
				}
			}
		}
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	observed := signalOf(domain.CategoryBudget).Tier()
	first := Evaluate(domain.TierCold, observed, ReasonConversation)
	second := Evaluate(first.To, observed, ReasonConversation)
	if second.Changed || second.To != first.To {
		t.Fatalf("re-evaluation changed tier: %+v", second)
	}
}

func TestResetIsTheOnlyWayDown(t *testing.T) {
	got, err := Reset(domain.TierHot, domain.TierCold)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != domain.TierCold || !got.Changed || got.Reason != ReasonReset {
		t.Fatalf("unexpected reset transition: %+v", got)
	}
	if _, err := Reset(domain.TierHot, domain.Tier("lukewarm")); err == nil {
		t.Fatalf("expected error for unknown tier")
	}
}

func TestInitialDefaultsToCold(t *testing.T) {
	if got := Initial(""); got != domain.TierCold {
		t.Fatalf("expected cold for empty tier, got %s", got)
	}
	if got := Initial(signalOf(domain.CategoryVisit).Tier()); got != domain.TierHot {
		t.Fatalf("expected hot, got %s", got)
	}
}
