package cmd

import (
	"fmt"
	"log/slog"

	"github.com/streamchat/streamchat/internal/completion"
	"github.com/streamchat/streamchat/internal/config"
	"github.com/streamchat/streamchat/internal/prompt"
	"github.com/streamchat/streamchat/internal/provider"
	"github.com/streamchat/streamchat/internal/session"
)

// providerBaseURLs maps OpenAI-compatible provider names to their base URLs.
var providerBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com",
	"minimax":  "https://api.minimax.chat/v1",
	"kimi":     "https://api.moonshot.cn/v1",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"glm":      "https://open.bigmodel.cn/api/paas/v4/",
	"doubao":   "https://ark.cn-beijing.volces.com/api/v3",
	"groq":     "https://api.groq.com/openai/v1",
}

// buildProvider creates a Provider instance based on configuration.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY",
			name, name,
		)
	}

	model := cfg.EffectiveModel()

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, pc.BaseURL, model), nil
	default:
		// All other providers use OpenAI-compatible API
		baseURL := pc.BaseURL
		if baseURL == "" {
			u, ok := providerBaseURLs[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
			baseURL = u
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, model), nil
	}
}

// buildStore opens the snapshot store selected by cfg.Store.Driver.
func buildStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return session.NewMemoryStore(), nil

	case config.DriverFile:
		dir := cfg.Store.Path
		if dir == "" {
			d, err := session.DefaultFileDir()
			if err != nil {
				return nil, fmt.Errorf("snapshot dir: %w", err)
			}
			dir = d
		}
		return session.NewFileStore(dir, cfg.Profile)

	case config.DriverRedis:
		r := cfg.Store.Redis
		return session.NewRedisStore(session.RedisOptions{
			Addr:     r.Addr,
			Username: r.Username,
			Password: r.Password,
			DB:       r.DB,
		}, cfg.Profile)

	default:
		path := cfg.Store.Path
		if path == "" {
			p, err := session.DefaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("session db path: %w", err)
			}
			path = p
		}
		return session.NewSQLiteStore(path, cfg.Profile)
	}
}

// buildPromptSource resolves where the system prompt comes from.
func buildPromptSource(cfg *config.Config) (prompt.Source, error) {
	sp := cfg.SystemPrompt
	if sp.Text != "" {
		return prompt.Static(sp.Text), nil
	}
	return prompt.New(prompt.Config{
		Path:    sp.Path,
		BaseURL: sp.BaseURL,
		Root:    sp.Root,
	})
}

// buildCore wires a session core on top of store. The core owns store and
// closes it on Close.
func buildCore(cfg *config.Config, store session.Store, logger *slog.Logger, observer session.Observer) (*session.Core, error) {
	source, err := buildPromptSource(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	client := completion.New(
		func() (provider.Provider, error) { return buildProvider(cfg) },
		completion.WithModel(cfg.EffectiveModel()),
		completion.WithMaxTokens(cfg.MaxTokens),
	)
	writer := session.NewWriter(store,
		session.WithMinWriteInterval(cfg.Store.MinWriteInterval),
		session.WithWriterLogger(logger.With("component", "writer")),
	)

	return session.New(client, writer,
		session.WithLimit(cfg.Limit),
		session.WithLogger(logger.With("component", "session")),
		session.WithObserver(observer),
		session.WithPromptSource(source),
		session.WithRequestTimeout(cfg.RequestTimeout),
	), nil
}

// modelLabel is the model name shown to the user.
func modelLabel(cfg *config.Config) string {
	if m := cfg.EffectiveModel(); m != "" {
		return m
	}
	return "default"
}
