package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/review-insights/internal/config"
	"github.com/fairyhunter13/review-insights/internal/domain"
)

func testReview() domain.Review {
	return domain.Review{ReviewID: "R1", Date: "2025-01-02", Rating: "1 star", Text: "App crashes at checkout."}
}

func chatReply(t *testing.T, content string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"content": content}},
		},
	})
	require.NoError(t, err)
	return b
}

func clientFor(srv *httptest.Server) *Client {
	return New(config.Config{
		AnalyzerAPIKey:                 "test-key",
		AnalyzerBaseURL:                srv.URL,
		AnalyzerModel:                  "deepseek-chat",
		AnalyzerTimeout:                5 * time.Second,
		AnalyzerBackoffMaxElapsedTime:  2 * time.Second,
		AnalyzerBackoffInitialInterval: 10 * time.Millisecond,
		AnalyzerBackoffMaxInterval:     50 * time.Millisecond,
	})
}

func TestAnalyzeSuccess(t *testing.T) {
	insightsJSON := `{"overall_sentiment":"Negative","sentiment_score":-0.9,` +
		`"topics_mentioned":["app functionality"],"problems_identified":["checkout crash"],` +
		`"suggested_improvements":["fix the crash"],"key_phrases":["crashes at checkout"]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "deepseek-chat", body["model"])
		_, _ = w.Write(chatReply(t, "```json\n"+insightsJSON+"\n```"))
	}))
	defer srv.Close()

	ins, err := clientFor(srv).Analyze(context.Background(), testReview())
	require.NoError(t, err)
	require.Equal(t, "negative", ins.OverallSentiment)
	require.InDelta(t, -0.9, ins.SentimentScore, 0.001)
	require.Equal(t, []string{"checkout crash"}, ins.ProblemsIdentified)
}

func TestAnalyzeRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write(chatReply(t, `{"overall_sentiment":"neutral","sentiment_score":0}`))
	}))
	defer srv.Close()

	ins, err := clientFor(srv).Analyze(context.Background(), testReview())
	require.NoError(t, err)
	require.Equal(t, "neutral", ins.OverallSentiment)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAnalyzeRetriesServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(chatReply(t, `{"overall_sentiment":"positive","sentiment_score":0.5}`))
	}))
	defer srv.Close()

	_, err := clientFor(srv).Analyze(context.Background(), testReview())
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAnalyzeClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := clientFor(srv).Analyze(context.Background(), testReview())
	require.ErrorIs(t, err, domain.ErrAnalyzerPermanent)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestAnalyzeExhaustedRetriesIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := clientFor(srv).Analyze(context.Background(), testReview())
	require.ErrorIs(t, err, domain.ErrAnalyzerTransient)
}

func TestAnalyzeUnparseableReplyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(chatReply(t, "I am sorry, I cannot produce JSON today."))
	}))
	defer srv.Close()

	_, err := clientFor(srv).Analyze(context.Background(), testReview())
	require.ErrorIs(t, err, domain.ErrAnalyzerPermanent)
}

func TestAnalyzeMissingAPIKey(t *testing.T) {
	c := New(config.Config{AnalyzerBaseURL: "http://localhost:0"})
	_, err := c.Analyze(context.Background(), testReview())
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAnalyzeEmptyTextIsPermanent(t *testing.T) {
	c := New(config.Config{AnalyzerAPIKey: "k", AnalyzerBaseURL: "http://localhost:0"})
	r := testReview()
	r.Text = "   "
	_, err := c.Analyze(context.Background(), r)
	require.ErrorIs(t, err, domain.ErrAnalyzerPermanent)
}

func TestParseInsightsClampsScore(t *testing.T) {
	ins, err := parseInsights(`{"overall_sentiment":"positive","sentiment_score":3.5}`)
	require.NoError(t, err)
	require.Equal(t, 1.0, ins.SentimentScore)

	ins, err = parseInsights(`{"overall_sentiment":"negative","sentiment_score":-2}`)
	require.NoError(t, err)
	require.Equal(t, -1.0, ins.SentimentScore)
}
