package stub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

func TestAnalyzeDeterministic(t *testing.T) {
	c := New()
	review := domain.Review{ReviewID: "R1", Rating: "5 stars", Text: "Great delivery and quality."}

	first, err := c.Analyze(context.Background(), review)
	require.NoError(t, err)
	second, err := c.Analyze(context.Background(), review)
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, "positive", first.OverallSentiment)
	require.Contains(t, first.TopicsMentioned, "delivery")
	require.Contains(t, first.TopicsMentioned, "product quality")
}

func TestAnalyzeNegativeRating(t *testing.T) {
	c := New()
	ins, err := c.Analyze(context.Background(), domain.Review{ReviewID: "R2", Rating: "1 star", Text: "Terrible."})
	require.NoError(t, err)
	require.Equal(t, "negative", ins.OverallSentiment)
	require.NotEmpty(t, ins.ProblemsIdentified)
}

func TestAnalyzeEmptyText(t *testing.T) {
	c := New()
	_, err := c.Analyze(context.Background(), domain.Review{ReviewID: "R3", Rating: "3", Text: " "})
	require.ErrorIs(t, err, domain.ErrAnalyzerPermanent)
}
