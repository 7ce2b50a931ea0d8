// Package ai implements the external review analyzer over an
// OpenAI-compatible chat completions API.
package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/review-insights/internal/adapter/observability"
	"github.com/fairyhunter13/review-insights/internal/config"
	"github.com/fairyhunter13/review-insights/internal/domain"
)

// Client calls the analyzer's chat completions endpoint and parses the
// structured insights out of the model reply.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs an analyzer client with the configured request timeout.
func New(cfg config.Config) *Client {
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: cfg.AnalyzerTimeout},
	}
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = c.cfg.AnalyzerBackoffMaxElapsedTime
	expo.InitialInterval = c.cfg.AnalyzerBackoffInitialInterval
	expo.MaxInterval = c.cfg.AnalyzerBackoffMaxInterval
	return expo
}

// Analyze sends the review to the analyzer and returns parsed insights.
// Rate limits and 5xx responses are retried with exponential backoff;
// 4xx responses and unparseable replies fail permanently.
func (c *Client) Analyze(ctx domain.Context, review domain.Review) (domain.Insights, error) {
	tracer := otel.Tracer("adapter.ai")
	ctx, span := tracer.Start(ctx, "analyzer.Analyze")
	defer span.End()

	if c.cfg.AnalyzerAPIKey == "" {
		return domain.Insights{}, fmt.Errorf("%w: ANALYZER_API_KEY missing", domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(review.Text) == "" {
		return domain.Insights{}, fmt.Errorf("%w: empty review text", domain.ErrAnalyzerPermanent)
	}

	body := map[string]any{
		"model":       c.cfg.AnalyzerModel,
		"temperature": 0.2,
		"messages": []map[string]string{
			{"role": "system", "content": buildSystemPrompt()},
			{"role": "user", "content": buildUserPrompt(review)},
		},
	}
	b, _ := json.Marshal(body)

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	endpoint := c.cfg.AnalyzerBaseURL + "/chat/completions"
	op := func() error {
		start := time.Now()
		// Recreate the request each attempt to avoid reusing consumed bodies.
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.AnalyzerAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.AnalyzerRequestDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			observability.AnalyzerRequestsTotal.WithLabelValues("error").Inc()
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			observability.AnalyzerRequestsTotal.WithLabelValues("rate_limited").Inc()
			slog.Warn("analyzer rate limited",
				slog.Int("status", resp.StatusCode),
				slog.String("review_id", review.ReviewID))
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			observability.AnalyzerRequestsTotal.WithLabelValues("client_error").Inc()
			slog.Warn("analyzer 4xx",
				slog.Int("status", resp.StatusCode),
				slog.String("endpoint", endpoint),
				slog.String("body", snippet(bodyBytes, 512)))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			observability.AnalyzerRequestsTotal.WithLabelValues("server_error").Inc()
			slog.Error("analyzer non-2xx",
				slog.Int("status", resp.StatusCode),
				slog.String("endpoint", endpoint),
				slog.String("body", snippet(bodyBytes, 512)))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("analyzer decode error", slog.Any("error", err))
			return err
		}
		observability.AnalyzerRequestsTotal.WithLabelValues("ok").Inc()
		return nil
	}

	bo := backoff.WithContext(c.backoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return domain.Insights{}, fmt.Errorf("op=analyzer.chat: %w: %w", domain.ErrAnalyzerPermanent, err)
		}
		return domain.Insights{}, fmt.Errorf("op=analyzer.chat: %w: %w", domain.ErrAnalyzerTransient, err)
	}
	if len(out.Choices) == 0 {
		return domain.Insights{}, fmt.Errorf("op=analyzer.chat: %w: empty choices", domain.ErrAnalyzerTransient)
	}
	return parseInsights(out.Choices[0].Message.Content)
}

// parseInsights decodes the model reply into Insights after stripping
// markdown decoration and normalizing the sentiment label.
func parseInsights(raw string) (domain.Insights, error) {
	cleaned := cleanJSONResponse(raw)
	var ins domain.Insights
	if err := json.Unmarshal([]byte(cleaned), &ins); err != nil {
		slog.Error("analyzer returned unparseable insights",
			slog.Any("error", err),
			slog.String("raw", snippet([]byte(raw), 256)))
		return domain.Insights{}, fmt.Errorf("op=analyzer.parse: %w: %w", domain.ErrAnalyzerPermanent, err)
	}
	ins.OverallSentiment = normalizeSentiment(ins.OverallSentiment)
	if ins.SentimentScore < -1 {
		ins.SentimentScore = -1
	}
	if ins.SentimentScore > 1 {
		ins.SentimentScore = 1
	}
	return ins, nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

var _ domain.Analyzer = (*Client)(nil)
