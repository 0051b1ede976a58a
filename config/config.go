package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the attention engine.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Databases  DatabasesConfig  `mapstructure:"databases"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	DocService DocServiceConfig `mapstructure:"doc_service"`
	Anchor     AnchorConfig     `mapstructure:"anchor"`
	Rollup     RollupConfig     `mapstructure:"rollup"`
	WebImport  WebImportConfig  `mapstructure:"web_import"`
	Search     SearchConfig     `mapstructure:"search"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("databases.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("databases.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds a Postgres connection string from the configured parts.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", r.Host, port)
}

// ProvidersConfig holds external generation providers.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	CompletionModel string        `mapstructure:"completion_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// DocServiceConfig points at the external document service that owns
// document storage and edit history.
type DocServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func (d DocServiceConfig) Validate() error {
	if strings.TrimSpace(d.BaseURL) == "" {
		return fmt.Errorf("doc_service.base_url required")
	}
	return nil
}

// AnchorConfig carries the empirically chosen matching constants. They are
// configuration, not law: the defaults come from observed edit patterns and
// may be retuned per deployment.
type AnchorConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	KeyPrefixChars      int     `mapstructure:"key_prefix_chars"`
	ProbePrefixChars    int     `mapstructure:"probe_prefix_chars"`
	SnippetMaxChars     int     `mapstructure:"snippet_max_chars"`
}

type RollupConfig struct {
	Cron      string        `mapstructure:"cron"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
	Lookback  time.Duration `mapstructure:"lookback"`
}

type WebImportConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	UseBrowser bool          `mapstructure:"use_browser"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxChars   int           `mapstructure:"max_chars"`
}

type SearchConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// LoadConfig loads config from file, with ATTENTRA_* env overrides.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.listen", ":10010")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("doc_service.timeout", "15s")
	viper.SetDefault("anchor.similarity_threshold", 0.62)
	viper.SetDefault("anchor.key_prefix_chars", 32)
	viper.SetDefault("anchor.probe_prefix_chars", 16)
	viper.SetDefault("anchor.snippet_max_chars", 256)
	viper.SetDefault("rollup.cron", "@hourly")
	viper.SetDefault("rollup.lock_ttl", "2m")
	viper.SetDefault("rollup.lookback", "24h")
	viper.SetDefault("web_import.timeout", "20s")
	viper.SetDefault("web_import.max_chars", 200000)
	viper.SetDefault("search.cache_size", 64)
	viper.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.temperature", 0.3)
	viper.SetDefault("providers.openai.timeout", "45s")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ATTENTRA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Databases.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
