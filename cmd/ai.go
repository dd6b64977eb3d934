package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/ai"
	"github.com/spigell/driver-screener/internal/ai/gemini"
	"github.com/spigell/driver-screener/internal/secrets"
)

const apiKeyEnv = "GEMINI_API_KEY"

func newGenerator(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Generator, error) {
	if cfg == nil || cfg.Gemini == nil {
		return nil, errors.New("ai.gemini section is required")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != "gemini" {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		File:  cfg.Gemini.APIKeyFile,
		Env:   apiKeyEnv,
		Value: cfg.Gemini.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (or set ai.gemini.api-key-file)", err)
	}

	return gemini.NewGenerator(ctx, gemini.Config{
		APIKey:            apiKey,
		Model:             cfg.Gemini.Model,
		MaxRetries:        cfg.Gemini.MaxRetries,
		MaxLogLength:      cfg.Gemini.MaxLogLength,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		Breaker:           cfg.Gemini.Breaker,
	}, logger.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
}
