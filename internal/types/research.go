package types

type Headline struct {
	Symbol      string `json:"symbol"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Summary     string `json:"summary,omitempty"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
}

// ResearchBrief is what the research step hands to a decider for one symbol.
type ResearchBrief struct {
	Symbol    string     `json:"symbol"`
	Sentiment string     `json:"sentiment"` // POSITIVE, NEGATIVE or NEUTRAL
	Score     float64    `json:"score"`     // -1..1
	Headlines []Headline `json:"headlines,omitempty"`
	Summary   string     `json:"summary"`
	Timestamp int64      `json:"timestamp"`
}
