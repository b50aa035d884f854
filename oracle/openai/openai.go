// Package openai implements the oracle port over an OpenAI-compatible
// chat completion API.
package openai

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You estimate how likely an automated remediation is to succeed. " +
	"Reply with a single number between 0 and 1 and nothing else."

// Config holds oracle client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// MaxPromptTokens bounds the snippet sent per call; longer prompts
	// are truncated, never rejected.
	MaxPromptTokens int
}

// DefaultConfig returns the standard oracle settings.
func DefaultConfig() Config {
	return Config{
		Model:           openai.GPT4oMini,
		MaxPromptTokens: 2048,
	}
}

// Oracle calls an OpenAI-compatible endpoint for likelihood estimates.
type Oracle struct {
	client  *openai.Client
	model   string
	budget  int
	encoder *tiktoken.Tiktoken
}

// New creates an oracle client.
func New(cfg Config) (*Oracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("oracle API key is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.MaxPromptTokens <= 0 {
		cfg.MaxPromptTokens = DefaultConfig().MaxPromptTokens
	}

	// cl100k_base covers the chat models we target; fall back to
	// byte-length truncation when the encoding is unavailable
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoder = nil
	}

	return &Oracle{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		budget:  cfg.MaxPromptTokens,
		encoder: encoder,
	}, nil
}

// Predict makes one chat completion round trip and parses the returned
// likelihood. Callers bound the call with their context deadline.
func (o *Oracle) Predict(ctx context.Context, prompt string) (float64, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: o.truncate(prompt)},
		},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return 0, fmt.Errorf("oracle chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("oracle returned no choices")
	}
	return parseScore(resp.Choices[0].Message.Content)
}

// truncate keeps the prompt within the token budget.
func (o *Oracle) truncate(prompt string) string {
	if o.encoder == nil {
		if len(prompt) > o.budget*4 { // rough 4 bytes per token
			return prompt[:o.budget*4]
		}
		return prompt
	}
	tokens := o.encoder.Encode(prompt, nil, nil)
	if len(tokens) <= o.budget {
		return prompt
	}
	return o.encoder.Decode(tokens[:o.budget])
}

func parseScore(content string) (float64, error) {
	content = strings.TrimSpace(content)
	// tolerate answers like "0.85." or "score: 0.85"
	if i := strings.LastIndexByte(content, ' '); i >= 0 {
		content = content[i+1:]
	}
	content = strings.Trim(content, ".,")

	score, err := strconv.ParseFloat(content, 64)
	if err != nil {
		return 0, fmt.Errorf("oracle returned unparsable score %q", content)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
