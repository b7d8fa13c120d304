package config

import (
	"fmt"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

type Config struct {
	Port      string    `mapstructure:"port"`
	Frontend  Frontend  `mapstructure:"frontend"`
	Database  Database  `mapstructure:"database"`
	Webpay    Webpay    `mapstructure:"webpay"`
	Redis     Redis     `mapstructure:"redis"`
	Store     Store     `mapstructure:"store"`
	Reconcile Reconcile `mapstructure:"reconcile"`
}

type Frontend struct {
	URL            string   `mapstructure:"url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type Database struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Schema   string `mapstructure:"schema"`
}

// DSN builds the pgx connection string the same way for every command.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Name, d.Schema,
	)
}

type Webpay struct {
	Environment    string        `mapstructure:"environment"`
	CommerceCode   string        `mapstructure:"commerce_code"`
	APIKey         string        `mapstructure:"api_key"`
	ReturnURL      string        `mapstructure:"return_url"`
	MethodID       int64         `mapstructure:"method_id"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Store holds the fallbacks used when an order row leaves a reference empty.
type Store struct {
	DefaultBranchID   int64 `mapstructure:"default_branch_id"`
	DefaultCurrencyID int64 `mapstructure:"default_currency_id"`
}

type Reconcile struct {
	Interval  time.Duration `mapstructure:"interval"`
	OlderThan time.Duration `mapstructure:"older_than"`
}

const (
	EnvIntegration = "integration"
	EnvProduction  = "production"
	EnvMock        = "mock"
)

// Transbank's public integration credentials for Webpay Plus.
const (
	IntegrationCommerceCode = "597055555532"
	IntegrationAPIKey       = "579B532A7440BB0C9079DED94D31EA1615BACEB56610332264630D42D0A36B1C"
)

var envBindings = map[string]string{
	"port":                      "PORT",
	"frontend.url":              "FRONTEND_URL",
	"frontend.allowed_origins":  "CORS_ALLOWED_ORIGINS",
	"database.host":             "BLUEPRINT_DB_HOST",
	"database.port":             "BLUEPRINT_DB_PORT",
	"database.name":             "BLUEPRINT_DB_DATABASE",
	"database.username":         "BLUEPRINT_DB_USERNAME",
	"database.password":         "BLUEPRINT_DB_PASSWORD",
	"database.schema":           "BLUEPRINT_DB_SCHEMA",
	"webpay.environment":        "WEBPAY_ENVIRONMENT",
	"webpay.commerce_code":      "WEBPAY_COMMERCE_CODE",
	"webpay.api_key":            "WEBPAY_API_KEY",
	"webpay.return_url":         "WEBPAY_RETURN_URL",
	"webpay.method_id":          "WEBPAY_METHOD_ID",
	"webpay.confirm_timeout":    "WEBPAY_CONFIRM_TIMEOUT",
	"redis.addr":                "REDIS_ADDR",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"store.default_branch_id":   "DEFAULT_BRANCH_ID",
	"store.default_currency_id": "DEFAULT_CURRENCY_ID",
	"reconcile.interval":        "RECONCILE_INTERVAL",
	"reconcile.older_than":      "RECONCILE_OLDER_THAN",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("frontend.url", "http://localhost:5173")
	v.SetDefault("frontend.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.schema", "public")
	v.SetDefault("webpay.environment", EnvIntegration)
	v.SetDefault("webpay.commerce_code", IntegrationCommerceCode)
	v.SetDefault("webpay.api_key", IntegrationAPIKey)
	v.SetDefault("webpay.return_url", "http://localhost:8080/api/pagos/webpay/retorno")
	v.SetDefault("webpay.method_id", 4)
	v.SetDefault("webpay.confirm_timeout", 10*time.Second)
	v.SetDefault("store.default_branch_id", 1)
	v.SetDefault("store.default_currency_id", 1)
	v.SetDefault("reconcile.interval", time.Minute)
	v.SetDefault("reconcile.older_than", 5*time.Minute)
}

// Load reads defaults, then the optional YAML file at path, then the
// process environment. Later sources win.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Webpay.Environment {
	case EnvIntegration, EnvProduction, EnvMock:
	default:
		return fmt.Errorf("unknown webpay environment %q", c.Webpay.Environment)
	}
	if c.Webpay.ReturnURL == "" {
		return fmt.Errorf("webpay return url is required")
	}
	if c.Frontend.URL == "" {
		return fmt.Errorf("frontend url is required")
	}
	if c.Webpay.ConfirmTimeout <= 0 {
		return fmt.Errorf("webpay confirm timeout must be positive")
	}
	return nil
}
