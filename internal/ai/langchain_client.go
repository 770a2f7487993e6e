package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/huggingface"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LangchainClient adapts a langchaingo model to LLMClient.
type LangchainClient struct {
	model llms.Model
	// singlePrompt folds the system prompt into one text prompt for models
	// that do not accept role-tagged messages.
	singlePrompt bool
}

// NewLangchainClient wraps an existing langchaingo model.
func NewLangchainClient(model llms.Model, singlePrompt bool) *LangchainClient {
	if model == nil {
		panic("ai: langchain model cannot be nil")
	}
	return &LangchainClient{model: model, singlePrompt: singlePrompt}
}

// NewOllamaClient talks to a local Ollama server.
func NewOllamaClient(serverURL, model string) (*LangchainClient, error) {
	if strings.TrimSpace(model) == "" {
		model = "llama3.2:1b"
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if strings.TrimSpace(serverURL) != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ai: create ollama model: %w", err)
	}
	return NewLangchainClient(llm, false), nil
}

// NewHuggingFaceClient talks to the hosted HuggingFace inference API.
func NewHuggingFaceClient(token, model string) (*LangchainClient, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("ai: huggingface token is required")
	}
	if strings.TrimSpace(model) == "" {
		model = "meta-llama/Llama-3.2-1B-Instruct"
	}
	llm, err := huggingface.New(huggingface.WithToken(token), huggingface.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("ai: create huggingface model: %w", err)
	}
	return NewLangchainClient(llm, true), nil
}

// Complete runs the request through the wrapped model.
func (c *LangchainClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(int(req.MaxTokens)))
	}
	if req.Temperature >= 0 {
		opts = append(opts, llms.WithTemperature(float64(req.Temperature)))
	}
	if req.TopP > 0 {
		opts = append(opts, llms.WithTopP(float64(req.TopP)))
	}

	if c.singlePrompt {
		text, err := llms.GenerateFromSinglePrompt(ctx, c.model, foldPrompt(req), opts...)
		if err != nil {
			return LLMResponse{}, fmt.Errorf("ai: langchain completion failed: %w", err)
		}
		return LLMResponse{Text: strings.TrimSpace(text)}, nil
	}

	messages := make([]llms.MessageContent, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, block))
	}
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case ChatRoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, content))
		case ChatRoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, content))
		default:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, content))
		}
	}
	if len(messages) == 0 {
		return LLMResponse{}, errors.New("ai: langchain requires at least one message")
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("ai: langchain completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New("ai: langchain returned no choices")
	}
	choice := resp.Choices[0]
	return LLMResponse{
		Text:       strings.TrimSpace(choice.Content),
		StopReason: choice.StopReason,
	}, nil
}

// foldPrompt flattens system and user turns into a single instruction prompt.
func foldPrompt(req LLMRequest) string {
	var b strings.Builder
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		b.WriteString(strings.TrimSpace(block))
		b.WriteString("\n\n")
	}
	b.WriteString("User message: ")
	b.WriteString(lastUserMessage(req.Messages))
	b.WriteString("\nReply:")
	return b.String()
}
