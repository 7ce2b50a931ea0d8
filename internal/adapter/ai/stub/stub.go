// Package stub is a fast, deterministic analyzer for local runs and tests.
package stub

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

// Client derives insights from the review text with trivial keyword rules.
// It never fails and never leaves the process, which makes it usable when
// no analyzer API key is configured.
type Client struct{}

func New() *Client { return &Client{} }

// Analyze returns deterministic insights keyed off the rating and a few
// keyword checks, so repeated runs produce identical rows.
func (c *Client) Analyze(_ domain.Context, review domain.Review) (domain.Insights, error) {
	if strings.TrimSpace(review.Text) == "" {
		return domain.Insights{}, fmt.Errorf("%w: empty review text", domain.ErrAnalyzerPermanent)
	}

	sentiment := "neutral"
	score := 0.0
	switch {
	case strings.HasPrefix(review.Rating, "5") || strings.HasPrefix(review.Rating, "4"):
		sentiment, score = "positive", 0.8
	case strings.HasPrefix(review.Rating, "1") || strings.HasPrefix(review.Rating, "2"):
		sentiment, score = "negative", -0.8
	}

	topics := []string{"general"}
	problems := []string{}
	lower := strings.ToLower(review.Text)
	if strings.Contains(lower, "delivery") || strings.Contains(lower, "shipping") {
		topics = append(topics, "delivery")
	}
	if strings.Contains(lower, "quality") {
		topics = append(topics, "product quality")
	}
	if sentiment == "negative" {
		problems = append(problems, "customer dissatisfaction")
	}

	return domain.Insights{
		OverallSentiment:      sentiment,
		SentimentScore:        score,
		TopicsMentioned:       topics,
		ProblemsIdentified:    problems,
		SuggestedImprovements: []string{},
		KeyPhrases:            []string{firstWords(review.Text, 6)},
		Metadata:              map[string]string{"analyzer": "stub"},
	}, nil
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

var _ domain.Analyzer = (*Client)(nil)
