// Package llm wraps an OpenAI-compatible chat-completions endpoint behind a
// two-tier reasoning service. The fast tier handles clarification and
// per-source summaries; the strong tier handles planning, evaluation and
// report synthesis.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/probelabs/deepscout/internal/circuitbreaker"
	"github.com/probelabs/deepscout/internal/config"
	"github.com/probelabs/deepscout/internal/metrics"
	"github.com/probelabs/deepscout/internal/models"
)

type Tier string

const (
	TierFast   Tier = "fast"
	TierStrong Tier = "strong"
)

// Service is the reasoning client shared by all activities.
type Service struct {
	client      *openai.Client
	fastModel   string
	strongModel string
	timeout     time.Duration
	maxRetries  int
	breaker     *circuitbreaker.Breaker
	logger      *zap.Logger
}

func NewService(cfg config.LLMConfig, logger *zap.Logger) *Service {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Service{
		client:      openai.NewClientWithConfig(clientCfg),
		fastModel:   cfg.FastModel,
		strongModel: cfg.StrongModel,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		breaker:     circuitbreaker.New("llm", circuitbreaker.DefaultConfig(), logger),
		logger:      logger,
	}
}

func (s *Service) model(tier Tier) string {
	if tier == TierStrong {
		return s.strongModel
	}
	return s.fastModel
}

// Complete sends one system+user exchange and returns the assistant text and
// total token usage. Transient failures are retried; an empty completion is
// an error.
func (s *Service) Complete(ctx context.Context, tier Tier, op, system, user string) (string, int, error) {
	model := s.model(tier)
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	var (
		content string
		tokens  int
		lastErr error
	)
	start := time.Now()
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			if lastErr == context.Canceled || lastErr == context.DeadlineExceeded {
				break
			}
		}
		lastErr = s.breaker.Do(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			resp, err := s.client.CreateChatCompletion(callCtx, req)
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
				return fmt.Errorf("empty completion from %s", model)
			}
			content = resp.Choices[0].Message.Content
			tokens = resp.Usage.TotalTokens
			return nil
		})
		if lastErr == nil {
			break
		}
		s.logger.Warn("reasoning call failed",
			zap.String("op", op),
			zap.String("tier", string(tier)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
	}

	metrics.LLMCallDuration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())
	if lastErr != nil {
		metrics.LLMCalls.WithLabelValues(string(tier), "error").Inc()
		return "", 0, &models.ReasoningError{Tier: string(tier), Op: op, Err: lastErr}
	}
	metrics.LLMCalls.WithLabelValues(string(tier), "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(string(tier)).Add(float64(tokens))
	return content, tokens, nil
}
