package ai

import (
	"fmt"

	"github.com/fairyhunter13/review-insights/internal/domain"
)

func buildSystemPrompt() string {
	return "You are an AI expert in analyzing customer reviews for e-commerce platforms. " +
		"You extract structured insights from customer reviews and return ONLY valid compact JSON, " +
		"no markdown, no code fences."
}

func buildUserPrompt(review domain.Review) string {
	return fmt.Sprintf(`Analyze the following customer review and extract structured insights.

Review Data:
- Review ID: %s
- Date: %s
- Rating: %s
- Review Text: %q

Instructions:
1. Determine the overall sentiment (positive, negative, neutral) and a sentiment score from -1.0 to 1.0
2. Identify main topics mentioned (e.g., product quality, delivery, customer service, app functionality, pricing)
3. List specific problems or issues identified in the review
4. Extract any suggested improvements or solutions mentioned
5. Identify key phrases that capture the essence of the review

Be thorough but concise. Focus on actionable insights for product and operations teams.

Return JSON with exactly these keys:
{"overall_sentiment": string, "sentiment_score": number, "topics_mentioned": [string], "problems_identified": [string], "suggested_improvements": [string], "key_phrases": [string]}`,
		review.ReviewID, review.Date, review.Rating, review.Text)
}
