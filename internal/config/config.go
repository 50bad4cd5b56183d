package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Text       TextConfig       `mapstructure:"text"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Doubao     DoubaoConfig     `mapstructure:"doubao"`
	Qwen       QwenConfig       `mapstructure:"qwen"`
	Image      ImageConfig      `mapstructure:"image"`
	Cloudflare CloudflareConfig `mapstructure:"cloudflare"`
	Assets     AssetsConfig     `mapstructure:"assets"`
	Client     ClientConfig     `mapstructure:"client"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	Domain         string        `mapstructure:"domain"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// StorageConfig selects the chat store. Type is one of memory, disk, sqlite, postgres.
type StorageConfig struct {
	Type      string `mapstructure:"type"`
	DataDir   string `mapstructure:"data_dir"`
	CacheSize int    `mapstructure:"cache_size"`
	DSN       string `mapstructure:"dsn"`

	// BackupInterval of zero disables periodic backups.
	BackupInterval time.Duration `mapstructure:"backup_interval"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// TextConfig picks the streaming text provider: gemini, openai, doubao or qwen.
type TextConfig struct {
	Provider           string `mapstructure:"provider"`
	SystemPrompt       string `mapstructure:"system_prompt"`
	MaxHistoryMessages int    `mapstructure:"max_history_messages"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	ImageModel string `mapstructure:"image_model"`
}

type DoubaoConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type QwenConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

// ImageConfig picks the image generation provider: cloudflare or openai.
type ImageConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type CloudflareConfig struct {
	AccountID string `mapstructure:"account_id"`
	APIToken  string `mapstructure:"api_token"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
}

// AssetsConfig describes the local asset store standing in for the object storage provider.
type AssetsConfig struct {
	Dir        string        `mapstructure:"dir"`
	URLPrefix  string        `mapstructure:"url_prefix"`
	PublicKey  string        `mapstructure:"public_key"`
	PrivateKey string        `mapstructure:"private_key"`
	UploadTTL  time.Duration `mapstructure:"upload_ttl"`
	MaxUpload  int64         `mapstructure:"max_upload_bytes"`
}

// ClientConfig is read by the chat CLI.
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	AutoRunDelay   time.Duration `mapstructure:"auto_run_delay"`
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.domain", "localhost")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000", "http://localhost"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Requested-With"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 30)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.cache_size", 100)
	v.SetDefault("storage.backup_interval", 0)

	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("text.provider", "gemini")
	v.SetDefault("text.max_history_messages", 40)
	v.SetDefault("gemini.model", "gemini-1.5-flash-latest")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.image_model", "dall-e-3")
	v.SetDefault("doubao.timeout", 2*time.Minute)
	v.SetDefault("doubao.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("qwen.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("qwen.model", "qwen-plus")
	v.SetDefault("qwen.max_tokens", 2048)
	v.SetDefault("qwen.temperature", 0.7)
	v.SetDefault("qwen.top_p", 0.9)
	v.SetDefault("qwen.timeout", 2*time.Minute)

	v.SetDefault("image.provider", "cloudflare")
	v.SetDefault("image.timeout", 120*time.Second)
	v.SetDefault("cloudflare.model", "@cf/stabilityai/stable-diffusion-xl-base-1.0")
	v.SetDefault("cloudflare.base_url", "https://api.cloudflare.com/client/v4")

	v.SetDefault("assets.dir", "./data/assets")
	v.SetDefault("assets.url_prefix", "/assets")
	v.SetDefault("assets.upload_ttl", 30*time.Minute)
	v.SetDefault("assets.max_upload_bytes", 10<<20)

	v.SetDefault("client.base_url", "http://localhost:3000")
	v.SetDefault("client.timeout", 3*time.Minute)
	v.SetDefault("client.poll_interval", 50*time.Millisecond)
	v.SetDefault("client.confirm_timeout", 3*time.Second)
	v.SetDefault("client.auto_run_delay", 100*time.Millisecond)
}

// Load reads the YAML file at configPath. A missing file is not an error: defaults
// and environment variables are enough to boot a development server.
func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MYGPT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, err
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}

	applyEnvFallbacks(c)

	cfg = c
	return c, nil
}

// The config file wins; well-known provider variables fill whatever it left empty.
func applyEnvFallbacks(c *Config) {
	fill := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if val := os.Getenv(k); val != "" {
				*dst = val
				return
			}
		}
	}

	fill(&c.Gemini.APIKey, "GEMINI_API_KEY")
	fill(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&c.Doubao.APIKey, "DOUBAO_API_KEY", "ARK_API_KEY")
	fill(&c.Qwen.APIKey, "DASHSCOPE_API_KEY")
	fill(&c.Cloudflare.AccountID, "CLOUDFLARE_ACCOUNT_ID")
	fill(&c.Cloudflare.APIToken, "CLOUDFLARE_AI_API_TOKEN")
	fill(&c.Auth.JWTSecret, "JWT_SECRET")
	fill(&c.Assets.PublicKey, "UPLOAD_PUBLIC_KEY")
	fill(&c.Assets.PrivateKey, "UPLOAD_PRIVATE_KEY")
	fill(&c.Client.Token, "MYGPT_TOKEN")
}

func Get() *Config {
	return cfg
}
