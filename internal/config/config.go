package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	OpenAI   OpenAIConfig   `yaml:"openai" mapstructure:"openai"`
	DocIntel DocIntelConfig `yaml:"docintel" mapstructure:"docintel"`
	Agent    AgentConfig    `yaml:"agent" mapstructure:"agent"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Ingest   IngestConfig   `yaml:"ingest" mapstructure:"ingest"`
	Extract  ExtractConfig  `yaml:"extract" mapstructure:"extract"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Defaults DefaultsConfig `yaml:"defaults" mapstructure:"defaults"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// OpenAIConfig holds OpenAI-style completion endpoint settings. Deployments
// are model deployment names on the endpoint, not raw model ids.
type OpenAIConfig struct {
	Endpoint               string `yaml:"endpoint" mapstructure:"endpoint"`
	Key                    string `yaml:"key" mapstructure:"key"`
	APIVersion             string `yaml:"api_version" mapstructure:"api_version"`
	ReasoningDeployment    string `yaml:"reasoning_deployment" mapstructure:"reasoning_deployment"`
	NonReasoningDeployment string `yaml:"nonreasoning_deployment" mapstructure:"nonreasoning_deployment"`
}

// DocIntelConfig holds the document layout-extraction service settings.
type DocIntelConfig struct {
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	Key        string `yaml:"key" mapstructure:"key"`
	APIVersion string `yaml:"api_version" mapstructure:"api_version"`
}

// AgentConfig holds the agent/code-interpreter service settings.
type AgentConfig struct {
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	Key             string `yaml:"key" mapstructure:"key"`
	APIVersion      string `yaml:"api_version" mapstructure:"api_version"`
	ModelDeployment string `yaml:"model_deployment" mapstructure:"model_deployment"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// IngestConfig configures document retrieval and layout extraction.
type IngestConfig struct {
	MaxDocsPerProduct int `yaml:"max_docs_per_product" mapstructure:"max_docs_per_product"`
	FetchTimeoutSecs  int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	FetchRetries      int `yaml:"fetch_retries" mapstructure:"fetch_retries"`
	Concurrency       int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExtractConfig configures answer extraction behavior.
type ExtractConfig struct {
	MaxContextChars int `yaml:"max_context_chars" mapstructure:"max_context_chars"`
	Retries         int `yaml:"retries" mapstructure:"retries"`
	RetryDelaySecs  int `yaml:"retry_delay_secs" mapstructure:"retry_delay_secs"`
	Concurrency     int `yaml:"concurrency" mapstructure:"concurrency"`
	MaxTokens       int `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DataConfig configures on-disk data locations.
type DataConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	SettingsPath  string `yaml:"settings_path" mapstructure:"settings_path"`
	QuestionsPath string `yaml:"questions_path" mapstructure:"questions_path"`
	ExportDir     string `yaml:"export_dir" mapstructure:"export_dir"`
}

// DefaultProduct is a demo product preconfigured via environment.
type DefaultProduct struct {
	Name string `yaml:"name" mapstructure:"name"`
	URLs string `yaml:"urls" mapstructure:"urls"`
}

// DefaultsConfig holds demo seed data: up to ten products plus sample
// categories and questions used to steer taxonomy suggestion.
type DefaultsConfig struct {
	Products         []DefaultProduct `yaml:"products" mapstructure:"products"`
	SampleCategories string           `yaml:"sample_categories" mapstructure:"sample_categories"`
	SampleQuestions  string           `yaml:"sample_questions" mapstructure:"sample_questions"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// maxDefaultProducts caps how many demo product slots are read from env.
const maxDefaultProducts = 10

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("POLICY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("openai.api_version", "2024-12-01-preview")
	v.SetDefault("openai.reasoning_deployment", "o4-mini")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/policy-compare.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("ingest.max_docs_per_product", 2)
	v.SetDefault("ingest.fetch_timeout_secs", 30)
	v.SetDefault("ingest.fetch_retries", 3)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("extract.max_context_chars", 280000)
	v.SetDefault("extract.retries", 3)
	v.SetDefault("extract.retry_delay_secs", 5)
	v.SetDefault("extract.concurrency", 4)
	v.SetDefault("extract.max_tokens", 32000)
	v.SetDefault("docintel.api_version", "2024-11-30")
	v.SetDefault("agent.api_version", "2025-05-01")
	v.SetDefault("agent.model_deployment", "gpt-4o")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.settings_path", "data/settings.json")
	v.SetDefault("data.questions_path", "data/questions_config.json")
	v.SetDefault("data.export_dir", "data/extracted_data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Demo product slots resolved from POLICY_DEFAULTS_PRODUCT_<N>_NAME/_URLS.
	for i := 1; i <= maxDefaultProducts; i++ {
		v.SetDefault(fmt.Sprintf("defaults.product_%d_name", i), "")
		v.SetDefault(fmt.Sprintf("defaults.product_%d_urls", i), "")
	}

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// Non-reasoning deployment falls back to the reasoning one.
	if cfg.OpenAI.NonReasoningDeployment == "" {
		cfg.OpenAI.NonReasoningDeployment = cfg.OpenAI.ReasoningDeployment
	}

	// Collect populated demo product slots, keeping slot order.
	if len(cfg.Defaults.Products) == 0 {
		for i := 1; i <= maxDefaultProducts; i++ {
			name := v.GetString(fmt.Sprintf("defaults.product_%d_name", i))
			urls := v.GetString(fmt.Sprintf("defaults.product_%d_urls", i))
			if name == "" || urls == "" {
				continue
			}
			cfg.Defaults.Products = append(cfg.Defaults.Products, DefaultProduct{Name: name, URLs: urls})
		}
	}

	return &cfg, nil
}

// URLList splits the comma-separated URL string, dropping empty entries.
// Colons escaped as %3A in env values are restored.
func (p DefaultProduct) URLList() []string {
	var urls []string
	for _, u := range strings.Split(p.URLs, ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		urls = append(urls, strings.ReplaceAll(u, "%3A", ":"))
	}
	return urls
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
