// Package config 负责加载和管理 streamchat 的配置。
// 配置来源优先级（从高到低）：
// 1. 命令行 flag（由 cmd 层覆盖）
// 2. 环境变量（LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, STREAMCHAT_* 等）
// 3. --config flag 指定的配置文件路径（.yaml / .yml / .toml）
// 4. ~/.config/streamchat/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ProviderConfig 单个 provider 的配置
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
}

// PromptConfig system prompt 文档的位置
type PromptConfig struct {
	// Path 文档路径，默认 "/llms.md"；也可以是完整的 http(s) URL
	Path string `yaml:"path" toml:"path"`

	// BaseURL 非空时通过 HTTP 获取 BaseURL + Path
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// Root 本地读取时 Path 相对的目录，默认当前目录
	Root string `yaml:"root" toml:"root"`

	// Text 内联 prompt，非空时忽略 Path/BaseURL
	Text string `yaml:"text" toml:"text"`
}

// RedisConfig redis 连接参数（store.driver = "redis" 时使用）
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
}

// StoreConfig 本地快照存储配置
type StoreConfig struct {
	// Driver: "sqlite"（默认）| "file" | "redis" | "memory"
	Driver string `yaml:"driver" toml:"driver"`

	// Path sqlite 数据库文件或 file 驱动的目录，空则使用默认位置
	Path string `yaml:"path" toml:"path"`

	// MinWriteInterval 两次写入之间的最小间隔（默认 100ms）
	MinWriteInterval time.Duration `yaml:"min_write_interval" toml:"min_write_interval"`

	Redis RedisConfig `yaml:"redis" toml:"redis"`
}

// LogConfig 日志配置。TUI 占用终端，所以日志写入文件。
type LogConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Level string `yaml:"level" toml:"level"`
}

// Config 是 streamchat 的完整配置结构
type Config struct {
	// Provider 当前使用的 provider 名称（如 "openai", "anthropic", "deepseek"）
	Provider string `yaml:"provider" toml:"provider"`

	// Model 当前使用的模型（覆盖 provider 默认模型）
	Model string `yaml:"model" toml:"model"`

	// Providers 各 provider 的具体配置
	Providers map[string]*ProviderConfig `yaml:"providers" toml:"providers"`

	// Limit 发送前允许的历史消息条数上限（默认 10）
	Limit int `yaml:"limit" toml:"limit"`

	// MaxTokens 单次回复的 token 上限，0 = provider 默认
	MaxTokens int `yaml:"max_tokens" toml:"max_tokens"`

	// RequestTimeout 单轮请求超时，0 = 不限制
	RequestTimeout time.Duration `yaml:"request_timeout" toml:"request_timeout"`

	// Profile 快照的命名空间，不同 profile 互不影响
	Profile string `yaml:"profile" toml:"profile"`

	SystemPrompt PromptConfig `yaml:"system_prompt" toml:"system_prompt"`
	Store        StoreConfig  `yaml:"store" toml:"store"`
	Log          LogConfig    `yaml:"log" toml:"log"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Limit:     10,
		Profile:   "default",
		SystemPrompt: PromptConfig{
			Path: "/llms.md",
			Root: ".",
		},
		Store: StoreConfig{
			Driver:           DriverSQLite,
			MinWriteInterval: 100 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath 返回默认配置文件路径 (~/.config/streamchat/config.yaml)
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "streamchat", "config.yaml")
}

// Load 加载配置文件，合并环境变量覆盖
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath()
	}

	// 读取配置文件（默认路径不存在时使用默认配置；显式指定的路径必须存在）
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := decode(configPath, data, cfg); err != nil {
				return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
			}
		case explicit:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// 初始化 providers map
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	// 环境变量覆盖
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.Decode(string(data), cfg)
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	if c.Limit < 0 {
		return fmt.Errorf("limit must be >= 0, got %d", c.Limit)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0, got %d", c.MaxTokens)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must be >= 0, got %s", c.RequestTimeout)
	}
	switch c.Store.Driver {
	case DriverSQLite, DriverFile, DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q (want sqlite, file, redis or memory)", c.Store.Driver)
	}
	if c.Profile == "" {
		return fmt.Errorf("profile must not be empty")
	}
	return nil
}

// GetProviderConfig 获取指定 provider 的配置，不存在时返回空配置
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// EffectiveModel 返回实际使用的模型：全局 model 优先，其次 provider 配置
func (c *Config) EffectiveModel() string {
	if c.Model != "" {
		return c.Model
	}
	return c.GetProviderConfig(c.Provider).Model
}

func (c *Config) providerEntry(name string) *ProviderConfig {
	if c.Providers[name] == nil {
		c.Providers[name] = &ProviderConfig{}
	}
	return c.Providers[name]
}

// applyEnvOverrides 将环境变量覆盖到配置中
func applyEnvOverrides(cfg *Config) error {
	// Provider 选择先于通用覆盖，LLM_API_KEY 才会落到正确的 provider 上
	if v := os.Getenv("STREAMCHAT_PROVIDER"); v != "" {
		cfg.Provider = v
	}

	// 通用覆盖
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.providerEntry(cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.providerEntry(cfg.Provider).BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	// Anthropic 专用
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.providerEntry("anthropic").APIKey = v
	}

	if v := os.Getenv("STREAMCHAT_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("STREAMCHAT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid STREAMCHAT_LIMIT %q: %w", v, err)
		}
		cfg.Limit = n
	}
	if v := os.Getenv("STREAMCHAT_PROFILE"); v != "" {
		cfg.Profile = v
	}
	return nil
}
