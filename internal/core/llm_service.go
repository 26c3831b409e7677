package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const defaultChatModel = openai.GPT4oMini

// LLMService streams chat completions from an OpenAI-compatible provider.
// The consumer's context is the cancellation boundary: when it is done, the
// provider stream is abandoned and no further fragments are produced.
type LLMService struct {
	client *openai.Client
	model  string
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewLLMService(cfg LLMConfig) *LLMService {
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = defaultChatModel
	}
	return &LLMService{client: openai.NewClientWithConfig(cc), model: model}
}

// StreamChat dispatches the message list as a streamed completion and
// forwards the deltas on the returned channel. The channel is closed after
// the final fragment; a provider error mid-stream arrives as a fragment with
// Err set.
func (s *LLMService) StreamChat(ctx context.Context, messages []ChatMessage) (<-chan Fragment, error) {
	req := openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: toProviderMessages(messages),
		Stream:   true,
	}
	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case out <- Fragment{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- Fragment{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func toProviderMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return converted
}
