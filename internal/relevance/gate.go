// Package relevance implements the zero-cost heuristic filter that decides
// whether a transcript batch has enough substance to invoke any agent, and
// assigns coarse topic tags used to skip irrelevant agents cheaply.
package relevance

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MinSubstanceRatio is the minimum content-word ratio for a batch to count
	// as substantive.
	MinSubstanceRatio = 0.3

	// MinContentWords is the minimum number of content words for a batch to
	// count as substantive.
	MinContentWords = 3

	// shortBatchWords is the word count at or below which an all-filler batch
	// is rejected outright.
	shortBatchWords = 6
)

// TagGeneral is attached to every substantive batch.
const TagGeneral = "general"

// Assessment is the ephemeral verdict for one batch. It is computed per batch
// and never persisted.
type Assessment struct {
	Substantive    bool
	Tags           []string
	SubstanceRatio float64
}

// Gate is the relevance pre-filter. Assess is a pure function with no failure
// mode other than the "not substantive" verdict; the zero value is usable.
type Gate struct{}

// NewGate creates a relevance gate.
func NewGate() *Gate {
	return &Gate{}
}

// stopWords carry no meeting substance on their own.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {},
	"of": {}, "to": {}, "in": {}, "on": {}, "at": {}, "by": {}, "for": {},
	"with": {}, "about": {}, "as": {}, "is": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "been": {}, "being": {}, "it": {}, "its": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "i": {}, "we": {},
	"you": {}, "he": {}, "she": {}, "they": {}, "them": {}, "my": {},
	"our": {}, "your": {}, "their": {}, "me": {}, "us": {}, "do": {},
	"does": {}, "did": {}, "have": {}, "has": {}, "had": {}, "not": {},
	"no": {}, "yes": {}, "just": {}, "very": {}, "really": {}, "there": {},
	"then": {}, "than": {}, "also": {}, "too": {}, "can": {}, "will": {},
	"would": {}, "could": {}, "should": {},
}

// fillerWords are conversational noise; a short batch made entirely of these
// is dropped before any ratio math.
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "uhm": {}, "hmm": {}, "mhm": {}, "mm": {},
	"yeah": {}, "yep": {}, "yes": {}, "no": {}, "okay": {}, "ok": {},
	"right": {}, "sure": {}, "like": {}, "so": {}, "well": {}, "anyway": {},
	"cool": {}, "great": {}, "nice": {}, "alright": {}, "good": {},
}

// fillerPhrases are matched as substrings of the normalized batch.
var fillerPhrases = []string{
	"you know",
	"i mean",
	"sounds good",
	"uh huh",
	"makes sense",
	"got it",
}

// topicKeywords maps each coarse topic tag to substring patterns matched
// against the normalized batch text. Order here fixes tag order in the output.
var topicOrder = []string{"action", "risk", "claim", "concept", "question", "decision"}

var topicKeywords = map[string][]string{
	"action": {
		"need to", "needs to", "have to", "will do", "follow up", "followup",
		"finalize", "deadline", "due ", "assign", "todo", "to do",
		"action item", "schedule", "must ", "by monday", "by tuesday",
		"by wednesday", "by thursday", "by friday", "next week", "take care of",
	},
	"risk": {
		"risk", "concern", "worried", "worry", "blocker", "blocked",
		"problem", "issue", "danger", "threat", "might fail", "could break",
		"vulnerab", "exposure",
	},
	"claim": {
		"according to", "data shows", "statistic", "percent", "%", "revenue",
		"evidence", "study", "numbers show", "grew", "growth", "declined",
		"increased", "decreased", "claim",
	},
	"concept": {
		"concept", "architecture", "framework", "approach", "design",
		"strategy", "definition", "in other words", "basically", "model",
		"pattern", "principle",
	},
	"question": {
		"?", "question", "how do", "how would", "what if", "why ",
		"wondering", "unclear", "not sure how", "does anyone know",
	},
	"decision": {
		"decide", "decision", "agreed", "agree on", "we will", "consensus",
		"go with", "approved", "settled on", "chosen", "choose",
	},
}

// foldTransformer strips diacritics: NFD decomposition, drop combining marks,
// recompose.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases and strips diacritics from the batch text.
func normalize(text string) string {
	folded, _, err := transform.String(foldTransformer, text)
	if err != nil {
		folded = text
	}
	return strings.ToLower(folded)
}

// tokenize splits normalized text into word tokens.
func tokenize(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Assess tokenizes the batch, measures its substance ratio, and tags it.
// A non-substantive verdict means no agent is ever invoked for this batch.
func (g *Gate) Assess(batchText string) Assessment {
	normalized := normalize(batchText)
	words := tokenize(normalized)

	if len(words) == 0 {
		return Assessment{}
	}

	// Short all-filler batches are rejected before ratio math.
	if len(words) <= shortBatchWords && allFiller(words) {
		return Assessment{}
	}
	for _, phrase := range fillerPhrases {
		if len(words) <= shortBatchWords && strings.Contains(normalized, phrase) {
			return Assessment{}
		}
	}

	contentWords := 0
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, filler := fillerWords[w]; filler {
			continue
		}
		contentWords++
	}

	ratio := float64(contentWords) / float64(len(words))
	if contentWords < MinContentWords || ratio < MinSubstanceRatio {
		return Assessment{SubstanceRatio: ratio}
	}

	tags := []string{TagGeneral}
	for _, topic := range topicOrder {
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(normalized, kw) {
				tags = append(tags, topic)
				break
			}
		}
	}

	return Assessment{
		Substantive:    true,
		Tags:           tags,
		SubstanceRatio: ratio,
	}
}

// allFiller reports whether every word is filler or stop noise.
func allFiller(words []string) bool {
	for _, w := range words {
		_, filler := fillerWords[w]
		_, stop := stopWords[w]
		if !filler && !stop {
			return false
		}
	}
	return true
}

// HasTag reports whether an assessment carries the given tag.
func (a Assessment) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
