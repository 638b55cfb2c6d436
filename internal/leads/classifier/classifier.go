// Package classifier detects purchase-intent markers in prospect messages and
// scores them. It is pure pattern matching: the same input always yields the
// same signal.
package classifier

import (
	"chable_leads_backend/internal/leads/domain"
	"chable_leads_backend/platform/sanitize"
)

const (
	maxConfidence = 100
	// volumeBonus is added per extra inbound message carrying markers in conversation mode.
	volumeBonus    = 5
	maxVolumeBonus = 15
)

// Message is the slice of a conversation message the classifier reads.
type Message struct {
	Inbound bool
	Body    string
}

// Options tunes conversation mode.
type Options struct {
	// SkipOpeningMessage ignores the first inbound message, which is
	// usually an ad-generated greeting rather than something the prospect typed.
	SkipOpeningMessage bool
}

// Classifier scores text against the marker table.
type Classifier struct {
	vocab Vocabulary
	opts  Options
}

// New creates a classifier.
func New(vocab Vocabulary, opts Options) *Classifier {
	return &Classifier{vocab: vocab, opts: opts}
}

// ClassifyMessage analyzes one message in isolation.
// Empty or unreadable input yields a zero signal.
func (c *Classifier) ClassifyMessage(text string) domain.InterestSignal {
	normalized := sanitize.Normalize(text)
	if normalized == "" {
		return domain.InterestSignal{}
	}

	found := detect(normalized)
	return c.signal(found, 0, c.vocab.extract(normalized, found))
}

// ClassifyConversation analyzes the inbound side of a transcript. Categories
// are unioned across messages; each additional marker-bearing message adds a
// small bonus. Attributes mentioned later override earlier ones.
func (c *Classifier) ClassifyConversation(messages []Message) domain.InterestSignal {
	found := make(map[domain.Category]bool)
	var extracted domain.Extraction
	markerMessages := 0
	openingSeen := !c.opts.SkipOpeningMessage

	for _, m := range messages {
		if !m.Inbound {
			continue
		}
		if !openingSeen {
			openingSeen = true
			continue
		}
		normalized := sanitize.Normalize(m.Body)
		if normalized == "" {
			continue
		}
		cats := detect(normalized)
		extracted = extracted.Merge(c.vocab.extract(normalized, cats))
		if len(cats) == 0 {
			continue
		}
		markerMessages++
		for cat := range cats {
			found[cat] = true
		}
	}

	bonus := 0
	if markerMessages > 1 {
		bonus = min((markerMessages-1)*volumeBonus, maxVolumeBonus)
	}
	return c.signal(found, bonus, extracted)
}

func (c *Classifier) signal(found map[domain.Category]bool, bonus int, extracted domain.Extraction) domain.InterestSignal {
	score := 0
	categories := make([]domain.Category, 0, len(found))
	for _, m := range markerTable {
		if found[m.category] {
			score += m.weight
			categories = append(categories, m.category)
		}
	}
	if len(categories) == 0 {
		return domain.InterestSignal{}
	}

	score = min(score+bonus, maxConfidence)
	return domain.InterestSignal{
		ShowsInterest: score > 0,
		Confidence:    score,
		Categories:    categories,
		Extracted:     extracted,
	}
}

func detect(normalized string) map[domain.Category]bool {
	found := make(map[domain.Category]bool)
	for _, m := range markerTable {
		if m.matches(normalized) {
			found[m.category] = true
		}
	}
	return found
}
