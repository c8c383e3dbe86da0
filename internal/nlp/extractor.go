package nlp

import (
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantpulse/quantpulse/internal/models"
)

// confidenceK is the hit count at which sentiment confidence saturates at 1.
const confidenceK = 5.0

// Extractor runs lexicon sentiment scoring and event detection over article
// text. It is stateless and deterministic on the input text.
type Extractor struct{}

// NewExtractor creates a lexicon extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Analyze scores one article and detects its events. The title is scanned
// together with the body. An article matching N event-type keyword sets
// yields exactly N event records.
func (e *Extractor) Analyze(article *models.Article) (*models.SentimentScore, []models.Event, error) {
	tokens := Tokenize(article.Title + " " + article.Body)

	score := e.scoreSentiment(article, tokens)
	if err := score.Validate(); err != nil {
		return nil, nil, err
	}

	events := e.detectEvents(article, tokens)
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return nil, nil, err
		}
	}

	log.Debug().
		Str("article_id", article.ID).
		Float64("score", score.Score).
		Float64("confidence", score.Confidence).
		Int("events", len(events)).
		Msg("Article analyzed")

	return score, events, nil
}

func (e *Extractor) scoreSentiment(article *models.Article, tokens []string) *models.SentimentScore {
	var pos, neg int
	var posHits, negHits []string

	for i, tok := range tokens {
		_, isPos := positiveWords[tok]
		_, isNeg := negativeWords[tok]
		if !isPos && !isNeg {
			continue
		}
		if negatedAt(tokens, i) {
			isPos, isNeg = isNeg, isPos
		}
		if isPos {
			pos++
			posHits = append(posHits, tok)
		} else {
			neg++
			negHits = append(negHits, tok)
		}
	}

	total := pos + neg
	denom := total
	if denom < 1 {
		denom = 1
	}
	raw := float64(pos-neg) / float64(denom)

	return &models.SentimentScore{
		ArticleID:        article.ID,
		Score:            clamp(raw, -1, 1),
		Confidence:       clamp(float64(total)/confidenceK, 0, 1),
		KeywordsPositive: posHits,
		KeywordsNegative: negHits,
		Timestamp:        article.PublishedAt,
	}
}

// negatedAt reports whether a negation word appears within negationWindow
// tokens before position i.
func negatedAt(tokens []string, i int) bool {
	start := i - negationWindow
	if start < 0 {
		start = 0
	}
	for j := start; j < i; j++ {
		if _, ok := negationWords[tokens[j]]; ok {
			return true
		}
	}
	return false
}

func (e *Extractor) detectEvents(article *models.Article, tokens []string) []models.Event {
	modifier := severityModifier(tokens)

	var events []models.Event
	for _, eventType := range models.EventTypes() {
		keywords := eventKeywords[eventType]
		var matched []string
		count := 0
		seen := make(map[string]struct{})
		for _, tok := range tokens {
			if _, ok := keywords[tok]; !ok {
				continue
			}
			count++
			if _, dup := seen[tok]; !dup {
				seen[tok] = struct{}{}
				matched = append(matched, tok)
			}
		}
		if count == 0 {
			continue
		}
		sort.Strings(matched)

		severity := eventBaseSeverity[eventType] + min(float64(count)/5.0, 0.2) + modifier
		severity = clamp(severity, 0, 1)

		events = append(events, models.Event{
			ID:           uuid.NewString(),
			ArticleID:    article.ID,
			Type:         eventType,
			Severity:     severity,
			Keywords:     matched,
			Timestamp:    article.PublishedAt,
			HighPriority: severity >= models.HighPriorityThreshold,
		})
	}
	return events
}

// severityModifier sums intensifier and dampener adjustments, each side
// capped independently.
func severityModifier(tokens []string) float64 {
	var up, down float64
	for _, tok := range tokens {
		if _, ok := intensifierWords[tok]; ok {
			up += intensifierStep
		}
		if _, ok := dampenerWords[tok]; ok {
			down += dampenerStep
		}
	}
	if up > intensifierCap {
		up = intensifierCap
	}
	if down > dampenerCap {
		down = dampenerCap
	}
	return up - down
}

// Tokenize lowercases the text and splits on anything that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
