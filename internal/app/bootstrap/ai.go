package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/jarvis-scheduler/internal/ai"
	appconfig "github.com/wolfman30/jarvis-scheduler/internal/config"
	"github.com/wolfman30/jarvis-scheduler/internal/observability/metrics"
	"github.com/wolfman30/jarvis-scheduler/pkg/logging"
)

// AWSConfigLoader supplies SDK config when the bedrock backend is enabled.
type AWSConfigLoader func(ctx context.Context) (aws.Config, error)

// BuildAIChain builds backends in AI_BACKENDS order. A backend that is
// unknown or missing credentials is skipped with a warning; an empty chain is
// valid and makes every caller use its canned text.
func BuildAIChain(ctx context.Context, cfg *appconfig.Config, loadAWS AWSConfigLoader, logger *logging.Logger, m *metrics.AIMetrics) (*ai.Chain, []func() error, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var (
		backends []ai.Backend
		closers  []func() error
	)
	for _, name := range cfg.AIBackends {
		backend, closer, err := buildBackend(ctx, strings.ToLower(strings.TrimSpace(name)), cfg, loadAWS)
		if err != nil {
			logger.Warn("ai backend disabled", "backend", name, "error", err)
			continue
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		backends = append(backends, backend)
		logger.Info("ai backend enabled", "backend", backend.Name, "model", backend.Model)
	}
	if len(backends) == 0 {
		logger.Warn("no ai backends available; using keyword classification and canned replies")
	}

	chain := ai.NewChain(backends, logger,
		ai.WithAttemptTimeout(cfg.AITimeout),
		ai.WithMaxTokens(cfg.AIMaxTokens),
		ai.WithMetrics(m),
	)
	return chain, closers, nil
}

func buildBackend(ctx context.Context, name string, cfg *appconfig.Config, loadAWS AWSConfigLoader) (ai.Backend, func() error, error) {
	switch name {
	case "ollama":
		client, err := ai.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel)
		if err != nil {
			return ai.Backend{}, nil, err
		}
		return ai.Backend{Name: name, Model: cfg.OllamaModel, Client: client}, nil, nil
	case "huggingface", "hf":
		client, err := ai.NewHuggingFaceClient(cfg.HFToken, cfg.HFModel)
		if err != nil {
			return ai.Backend{}, nil, err
		}
		return ai.Backend{Name: "huggingface", Model: cfg.HFModel, Client: client}, nil, nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return ai.Backend{}, nil, fmt.Errorf("bootstrap: GEMINI_API_KEY is not set")
		}
		client, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return ai.Backend{}, nil, err
		}
		return ai.Backend{Name: name, Model: cfg.GeminiModel, Client: client}, client.Close, nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return ai.Backend{}, nil, fmt.Errorf("bootstrap: BEDROCK_MODEL_ID is not set")
		}
		if loadAWS == nil {
			return ai.Backend{}, nil, fmt.Errorf("bootstrap: no aws config loader")
		}
		awsCfg, err := loadAWS(ctx)
		if err != nil {
			return ai.Backend{}, nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		client := ai.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
		return ai.Backend{Name: name, Model: cfg.BedrockModelID, Client: client}, nil, nil
	default:
		return ai.Backend{}, nil, fmt.Errorf("bootstrap: unknown ai backend %q", name)
	}
}
