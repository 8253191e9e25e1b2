// internal/llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"insight-orchestrator/internal/common/config"
	"insight-orchestrator/internal/common/logger"
)

var (
	ErrGenerationTimeout = errors.New("LLM_GENERATION_TIMEOUT")
	ErrGenerationFailed  = errors.New("LLM_GENERATION_FAILED")
)

// Usage accumulates token counts and estimated cost for a session.
type Usage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	EstimatedCost    float64 `json:"estimatedCost"` // USD
}

// Client calls the external text-generation provider. The provider is an
// opaque text-in/text-out service; only token accounting crosses the boundary.
type Client struct {
	config *config.LLMConfig
	client *http.Client
	logger logger.Logger

	mu      sync.Mutex
	session Usage
}

func NewClient(cfg *config.LLMConfig, log logger.Logger) *Client {
	return &Client{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
		},
		logger: log.With(map[string]interface{}{
			"component": "llm-client",
		}),
	}
}

type generateRequest struct {
	Model       string  `json:"model,omitempty"`
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate sends one prompt pair and returns the generated text with the
// call's token usage. Failures are returned, never swallowed; the caller
// decides whether to degrade to a rule-based path.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error) {
	reqBody := generateRequest{
		Model:       c.config.Model,
		System:      systemPrompt,
		Prompt:      userPrompt,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	body, _ := json.Marshal(reqBody)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", Usage{}, ErrGenerationTimeout
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/api/ai/generate", bytes.NewBuffer(body))
		if err != nil {
			return "", Usage{}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(req)

		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			return "", Usage{}, ErrGenerationTimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				lastErr = fmt.Errorf("rate limited")
				resp = nil
				continue
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		return "", Usage{}, fmt.Errorf("%w: %v", ErrGenerationFailed, lastErr)
	}
	if resp == nil {
		return "", Usage{}, fmt.Errorf("%w: no successful response after retries", ErrGenerationFailed)
	}
	defer resp.Body.Close()

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", Usage{}, fmt.Errorf("%w: decode response: %v", ErrGenerationFailed, err)
	}

	usage := Usage{
		PromptTokens:     apiResp.Usage.PromptTokens,
		CompletionTokens: apiResp.Usage.CompletionTokens,
	}
	usage.EstimatedCost = float64(usage.PromptTokens)/1000.0*c.config.PromptCostPer1K +
		float64(usage.CompletionTokens)/1000.0*c.config.OutputCostPer1K

	c.recordUsage(usage)

	c.logger.Info("generation completed", map[string]interface{}{
		"promptTokens":     usage.PromptTokens,
		"completionTokens": usage.CompletionTokens,
		"estimatedCost":    usage.EstimatedCost,
	})

	return apiResp.Text, usage, nil
}

func (c *Client) recordUsage(u Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.PromptTokens += u.PromptTokens
	c.session.CompletionTokens += u.CompletionTokens
	c.session.EstimatedCost += u.EstimatedCost
}

// SessionUsage returns the accumulated token counts and estimated cost.
func (c *Client) SessionUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
