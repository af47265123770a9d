package cli

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agency/config"
	"github.com/hupe1980/agency/model"
	"github.com/hupe1980/agency/model/anthropic"
	"github.com/hupe1980/agency/model/openai"
)

// ModelFactory builds the decision capability for a provider section.
type ModelFactory func(cfg config.ProviderConfig) (model.Model, error)

// NewModel builds an Anthropic or OpenAI backed model. Empty API keys fall
// back to the SDKs' environment variables.
func NewModel(cfg config.ProviderConfig) (model.Model, error) {
	switch cfg.Name {
	case "", "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "openai":
		var clientOpts []option.RequestOption
		if cfg.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
		}

		client := openaisdk.NewClient(clientOpts...)

		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// agentModels builds the per-agent overrides of agents declaring their own
// model name.
func agentModels(def *config.Definition, newModel ModelFactory) (map[string]model.Model, error) {
	models := map[string]model.Model{}

	for _, a := range def.Agents {
		if a.Model == "" {
			continue
		}

		cfg := def.Provider
		cfg.Model = a.Model

		m, err := newModel(cfg)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.Name, err)
		}
		models[a.Name] = m
	}

	return models, nil
}
