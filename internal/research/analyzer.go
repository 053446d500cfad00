package research

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/montanaflynn/stats"

	"ai-trading-floor/internal/types"
)

const (
	SentimentPositive = "POSITIVE"
	SentimentNegative = "NEGATIVE"
	SentimentNeutral  = "NEUTRAL"

	// brief scores beyond this are called positive or negative
	sentimentThreshold = 0.15
)

var defaultPositive = map[string]float64{
	"beat": 1, "beats": 1, "surge": 1, "surges": 1, "soar": 1, "soars": 1, "rally": 1, "rallies": 1,
	"record": 0.5, "upgrade": 1, "upgraded": 1, "outperform": 1, "growth": 0.5, "gain": 0.5, "gains": 0.5,
	"profit": 0.5, "profits": 0.5, "strong": 0.5, "raises": 0.5, "raised": 0.5, "buyback": 0.5,
	"bullish": 1, "jump": 0.5, "jumps": 0.5, "tops": 0.5, "approval": 0.5, "approved": 0.5, "dividend": 0.3,
}

var defaultNegative = map[string]float64{
	"miss": 1, "misses": 1, "plunge": 1, "plunges": 1, "slump": 1, "slumps": 1, "tumble": 1, "tumbles": 1,
	"downgrade": 1, "downgraded": 1, "underperform": 1, "loss": 0.5, "losses": 0.5, "weak": 0.5,
	"cuts": 0.5, "cut": 0.5, "lawsuit": 1, "inquiry": 0.5, "investigation": 0.5, "recall": 0.5,
	"bearish": 1, "fall": 0.5, "falls": 0.5, "drop": 0.5, "drops": 0.5, "layoffs": 0.5, "fraud": 1,
	"bankruptcy": 1, "warning": 0.5, "resigns": 0.5,
}

var negators = map[string]bool{"not": true, "no": true, "never": true, "without": true}

// Analyzer scores text against a finance keyword lexicon.
type Analyzer struct {
	positive map[string]float64
	negative map[string]float64
	now      func() time.Time
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{positive: defaultPositive, negative: defaultNegative, now: time.Now}
}

// Score returns a value in [-1, 1]. Text with no lexicon hits scores 0.
// A negator flips the weight of the word right after it.
func (a *Analyzer) Score(text string) float64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	})
	var pos, neg float64
	flip := false
	for _, w := range words {
		if negators[w] {
			flip = true
			continue
		}
		p, n := a.positive[w], a.negative[w]
		if flip {
			p, n = n, p
		}
		pos += p
		neg += n
		flip = false
	}
	if pos+neg == 0 {
		return 0
	}
	return (pos - neg) / (pos + neg)
}

// Brief aggregates the per-headline scores for one symbol.
func (a *Analyzer) Brief(symbol string, headlines []types.Headline) types.ResearchBrief {
	b := types.ResearchBrief{
		Symbol:    symbol,
		Sentiment: SentimentNeutral,
		Headlines: headlines,
		Timestamp: a.now().Unix(),
	}
	if len(headlines) == 0 {
		b.Summary = "No headlines found"
		return b
	}

	scores := make(stats.Float64Data, 0, len(headlines))
	counts := map[string]int{}
	for _, h := range headlines {
		sc := a.Score(h.Title + " " + h.Summary)
		scores = append(scores, sc)
		counts[label(sc)]++
	}
	mean, _ := scores.Mean()
	b.Score, _ = stats.Round(mean, 3)
	b.Sentiment = label(mean)
	b.Summary = fmt.Sprintf("Analyzed %d headlines: %d positive, %d negative, %d neutral.",
		len(headlines), counts[SentimentPositive], counts[SentimentNegative], counts[SentimentNeutral])
	return b
}

func label(score float64) string {
	switch {
	case score > sentimentThreshold:
		return SentimentPositive
	case score < -sentimentThreshold:
		return SentimentNegative
	}
	return SentimentNeutral
}
