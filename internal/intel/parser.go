package intel

import (
	"regexp"
	"strings"

	"threatScope/internal/model"
)

// Parser turns a free-text intelligence answer into a RiskAnalysis.
// It returns nil when the answer carries no usable content.
type Parser interface {
	Parse(result SearchResult) *model.RiskAnalysis
}

type scoredPhrases struct {
	score   float64
	phrases *regexp.Regexp
}

func phrases(words ...string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

var (
	rugPullTerms   = phrases("rug pull", "rugpull", "rug-pull", "rug pulls")
	flashLoanTerms = phrases("flash loan", "flashloan", "flash-loan", "flash loans")
	mevTerms       = phrases("mev", "front-running", "frontrunning", "front-run", "frontrun", "sandwich")

	categoryScale = []scoredPhrases{
		{0.9, phrases("high risk", "critical")},
		{0.6, phrases("medium risk", "moderate")},
		{0.3, phrases("low risk", "minimal")},
		{0.7, phrases("suspicious", "concerning")},
		{0.1, phrases("no risk", "safe")},
	}
	overallScale = []scoredPhrases{
		{0.8, phrases("high risk", "dangerous")},
		{0.5, phrases("medium risk")},
		{0.2, phrases("low risk")},
	}
	confidenceScale = []scoredPhrases{
		{0.9, phrases("confident", "certain")},
		{0.7, phrases("likely", "probable")},
		{0.5, phrases("possible", "might")},
		{0.3, phrases("uncertain", "unclear")},
	}
)

const (
	categoryMentionedRisk = 0.5
	defaultOverallRisk    = 0.3
	defaultConfidence     = 0.6
	maxSummaryLen         = 500
)

// KeywordParser scores answers by case-insensitive whole-word phrase matching.
type KeywordParser struct{}

func (KeywordParser) Parse(result SearchResult) *model.RiskAnalysis {
	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil
	}

	return &model.RiskAnalysis{
		RugPull:     categoryRisk(text, rugPullTerms),
		FlashLoan:   categoryRisk(text, flashLoanTerms),
		MEV:         categoryRisk(text, mevTerms),
		OverallRisk: firstScore(text, overallScale, defaultOverallRisk),
		Confidence:  firstScore(text, confidenceScale, defaultConfidence),
		Summary:     summarize(text),
		DataSources: result.DataSources,
	}
}

func categoryRisk(text string, terms *regexp.Regexp) model.CategoryRisk {
	if !terms.MatchString(text) {
		return model.CategoryRisk{}
	}
	return model.CategoryRisk{
		Present: true,
		Risk:    firstScore(text, categoryScale, categoryMentionedRisk),
	}
}

func firstScore(text string, scale []scoredPhrases, fallback float64) float64 {
	for _, level := range scale {
		if level.phrases.MatchString(text) {
			return level.score
		}
	}
	return fallback
}

func summarize(text string) string {
	runes := []rune(text)
	if len(runes) <= maxSummaryLen {
		return text
	}
	return string(runes[:maxSummaryLen])
}
