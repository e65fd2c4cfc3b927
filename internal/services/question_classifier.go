package services

import (
	"sort"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

// QuestionKind buckets a project-level question by the retrieval strategy
// it needs
type QuestionKind string

const (
	// QuestionSpecific asks about a concrete fact, likely in one transcript
	QuestionSpecific QuestionKind = "specific"
	// QuestionThematic asks about topics or patterns across transcripts
	QuestionThematic QuestionKind = "thematic"
	// QuestionComparative asks how transcripts differ or agree
	QuestionComparative QuestionKind = "comparative"
)

// Cue words checked against the question's tokens
var (
	comparativeCues = map[string]bool{
		"compare": true, "comparison": true, "difference": true, "differences": true,
		"differ": true, "versus": true, "vs": true, "contrast": true, "between": true,
		"agree": true, "disagree": true, "consistent": true, "change": true, "changed": true,
	}
	thematicCues = map[string]bool{
		"theme": true, "themes": true, "overall": true, "general": true, "generally": true,
		"common": true, "pattern": true, "patterns": true, "trend": true, "trends": true,
		"summary": true, "summarize": true, "across": true, "throughout": true,
		"recurring": true, "main": true, "key": true, "topics": true,
	}
)

// QuestionClassifier classifies project-level questions and extracts their
// salient keywords using part-of-speech tagging
type QuestionClassifier struct {
	stopWords map[string]bool
	minLength int
}

// NewQuestionClassifier creates a new question classifier
func NewQuestionClassifier() *QuestionClassifier {
	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
		"be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
		"does": true, "did": true, "will": true, "would": true, "could": true, "should": true,
		"this": true, "that": true, "these": true, "those": true, "i": true, "you": true,
		"he": true, "she": true, "it": true, "we": true, "they": true, "my": true,
		"your": true, "his": true, "her": true, "its": true, "our": true, "their": true,
		"what": true, "who": true, "when": true, "where": true, "how": true, "why": true,
	}

	return &QuestionClassifier{
		stopWords: stopWords,
		minLength: 2,
	}
}

// QuestionAnalysis is the classification result for one question
type QuestionAnalysis struct {
	Kind     QuestionKind `json:"kind"`
	Keywords []string     `json:"keywords,omitempty"`
}

// Classify buckets the question and extracts its top keywords. Comparative
// cues win over thematic cues; a question with neither is specific.
func (qc *QuestionClassifier) Classify(question string) QuestionAnalysis {
	analysis := QuestionAnalysis{Kind: QuestionSpecific}

	doc, err := prose.NewDocument(question)
	if err != nil {
		// Tagging failure degrades to the default bucket with crude keywords
		analysis.Keywords = qc.fallbackKeywords(question)
		analysis.Kind = qc.kindFromTokens(strings.Fields(strings.ToLower(question)))
		return analysis
	}

	type scored struct {
		word  string
		score float64
	}
	wordScores := make(map[string]*scored)
	lowered := make([]string, 0, len(doc.Tokens()))

	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		lowered = append(lowered, word)

		if qc.shouldSkipWord(word, tok.Tag) {
			continue
		}
		score := qc.tagScore(tok.Tag)
		if existing, exists := wordScores[word]; exists {
			existing.score += score
		} else {
			wordScores[word] = &scored{word: word, score: score}
		}
	}

	// Named entities are strong retrieval anchors
	for _, ent := range doc.Entities() {
		word := strings.ToLower(ent.Text)
		if len(word) >= qc.minLength && !qc.stopWords[word] {
			if existing, exists := wordScores[word]; exists {
				existing.score += 2.0
			} else {
				wordScores[word] = &scored{word: word, score: 2.0}
			}
		}
	}

	ranked := make([]scored, 0, len(wordScores))
	for _, entry := range wordScores {
		ranked = append(ranked, *entry)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].word < ranked[j].word
	})

	for i := 0; i < len(ranked) && i < 8; i++ {
		analysis.Keywords = append(analysis.Keywords, ranked[i].word)
	}
	analysis.Kind = qc.kindFromTokens(lowered)
	return analysis
}

// kindFromTokens applies the cue-word heuristics over the token stream
func (qc *QuestionClassifier) kindFromTokens(tokens []string) QuestionKind {
	for _, tok := range tokens {
		if comparativeCues[tok] {
			return QuestionComparative
		}
	}
	for _, tok := range tokens {
		if thematicCues[tok] {
			return QuestionThematic
		}
	}
	// "all" / "every" over transcripts reads as thematic even without a
	// topic cue
	for i, tok := range tokens {
		if (tok == "all" || tok == "every" || tok == "each") && i+1 < len(tokens) {
			next := tokens[i+1]
			if strings.HasPrefix(next, "transcript") || strings.HasPrefix(next, "conversation") ||
				strings.HasPrefix(next, "meeting") || strings.HasPrefix(next, "recording") {
				return QuestionThematic
			}
		}
	}
	return QuestionSpecific
}

func (qc *QuestionClassifier) shouldSkipWord(word, posTag string) bool {
	if len(word) < qc.minLength {
		return true
	}
	if qc.stopWords[word] {
		return true
	}
	if isPureNumber(word) || isPunctuation(word) {
		return true
	}

	skipTags := map[string]bool{
		"DT":   true, // determiner
		"IN":   true, // preposition
		"TO":   true,
		"CC":   true, // coordinating conjunction
		"PRP":  true, // personal pronoun
		"PRP$": true,
		"WP":   true, // wh-pronoun
		"WDT":  true,
	}
	return skipTags[posTag]
}

// tagScore weights tokens by part of speech: nouns and proper nouns anchor
// retrieval, verbs and adjectives help, adverbs barely matter
func (qc *QuestionClassifier) tagScore(posTag string) float64 {
	scores := map[string]float64{
		"NN": 1.5, "NNS": 1.5,
		"NNP": 2.0, "NNPS": 2.0,
		"VB": 1.2, "VBD": 1.2, "VBG": 1.2, "VBN": 1.2, "VBP": 1.2, "VBZ": 1.2,
		"JJ": 1.3, "JJR": 1.3, "JJS": 1.3,
		"RB": 0.8, "RBR": 0.8, "RBS": 0.8,
	}
	if score, exists := scores[posTag]; exists {
		return score
	}
	return 1.0
}

// fallbackKeywords is the no-NLP path: lowercase words minus stop words
func (qc *QuestionClassifier) fallbackKeywords(question string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(question)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if len(word) >= qc.minLength && !qc.stopWords[word] {
			keywords = append(keywords, word)
		}
		if len(keywords) == 8 {
			break
		}
	}
	return keywords
}

func isPureNumber(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

func isPunctuation(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return len(s) > 0
}
