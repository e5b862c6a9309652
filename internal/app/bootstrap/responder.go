package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/NJ44/Boltcall-sub001/internal/config"
	"github.com/NJ44/Boltcall-sub001/internal/responder"
	"github.com/NJ44/Boltcall-sub001/pkg/logging"
)

// BuildResponder assembles the reply generator from config. Preference order:
// dedicated AI gateway, then Bedrock with Gemini as the fallback provider,
// then template-only. The result is always wrapped in the deadline guard so
// the pipeline can never stall on generation.
func BuildResponder(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (responder.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	inner, err := buildGenerationClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}

	return responder.NewGuard(
		inner,
		cfg.GenerateDeadline,
		cfg.ResponderBreakerTrips,
		cfg.ResponderBreakerCooldown,
		logger,
	), nil
}

func buildGenerationClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (responder.Client, error) {
	if cfg.ResponderURL != "" {
		logger.Info("responder: using AI gateway", "url", cfg.ResponderURL)
		return responder.NewHTTPGateway(cfg.ResponderURL, cfg.ResponderAPIKey), nil
	}

	if cfg.BedrockModelID != "" {
		primary := responder.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))

		var fallback responder.LLMClient
		if cfg.GeminiAPIKey != "" {
			gemini, err := responder.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				logger.Warn("responder: gemini fallback unavailable", "error", err)
			} else {
				fallback = gemini
			}
		}

		llm := responder.NewFallbackLLMClient(primary, fallback, logger)
		logger.Info("responder: using bedrock", "model", cfg.BedrockModelID, "gemini_fallback", fallback != nil)
		return responder.NewLLMResponder(llm, cfg.BedrockModelID, logger), nil
	}

	logger.Warn("responder: no generation backend configured, replies are template-only")
	return responder.TemplateClient{}, nil
}
