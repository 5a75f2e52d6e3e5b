package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// GetVersionInfo returns a formatted version string
func GetVersionInfo() string {
	return fmt.Sprintf("auth-gateway version %s, commit %s, built at %s", version, commit, date)
}

// devSecretPlaceholder is rejected at load time so a deployment can never
// ship with the secret from the sample config.
const devSecretPlaceholder = "dev-secret-change-me"

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Frontend  FrontendConfig            `mapstructure:"frontend"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	JWT       JWTConfig                 `mapstructure:"jwt"`
	Storage   StorageConfig             `mapstructure:"storage"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"`
	Color             bool   `mapstructure:"color"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
	OutputPath        string `mapstructure:"output_path"`
	AppendToFile      bool   `mapstructure:"append_to_file"`
	DisableConsole    bool   `mapstructure:"disable_console"`
}

// FrontendConfig describes where the browser is sent after a login attempt.
// CallbackPath receives credentials on success; ErrorPath receives an error
// code on failure. Both are resolved against BaseURL.
type FrontendConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	CallbackPath string `mapstructure:"callback_path"`
	ErrorPath    string `mapstructure:"error_path"`
}

// ProviderConfig holds the per-provider OAuth client registration.
type ProviderConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// JWTConfig configures session token issuance. Secret is the HS256 signing
// key shared by all gateway instances; there is no built-in default.
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Issuer     string        `mapstructure:"issuer"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	StateTTL   time.Duration `mapstructure:"state_ttl"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// InitFlags initializes command line flags (without parsing)
func InitFlags() {
	pflag.String("host", "", "Server host")
	pflag.Int("port", 0, "Server port")
	pflag.String("storage-path", "", "Path to the SQLite database file")
	// Note: no pflag.Parse() here as it's called in main.go
}

func Load() (*Config, error) {
	viper.Reset() // Ensure clean state

	viper.SetEnvPrefix("CODEMURF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout", 5*time.Second)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("frontend.callback_path", "/auth/callback")
	viper.SetDefault("frontend.error_path", "/auth")
	viper.SetDefault("jwt.issuer", "codemurf-auth-gateway")
	viper.SetDefault("jwt.access_ttl", 15*time.Minute)
	viper.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)
	viper.SetDefault("jwt.state_ttl", 10*time.Minute)
	viper.SetDefault("storage.path", "auth-gateway.db")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/auth-gateway")

	if err := viper.ReadInConfig(); err != nil {
		// Env-only deployments carry no config file at all.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if host := viper.GetString("host"); host != "" {
		config.Server.Host = host
	}
	if port := viper.GetInt("port"); port != 0 {
		config.Server.Port = port
	}
	if path := viper.GetString("storage-path"); path != "" {
		config.Storage.Path = path
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the gateway must not start with. Signing
// with a missing or placeholder secret would mint credentials anyone can
// forge, so both are load-time failures rather than runtime fallbacks.
func (c *Config) Validate() error {
	if c.Frontend.BaseURL == "" {
		return fmt.Errorf("frontend.base_url is required, please adjust the config or set CODEMURF_FRONTEND_BASE_URL")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required, please adjust the config or set CODEMURF_JWT_SECRET")
	}
	if c.JWT.Secret == devSecretPlaceholder {
		return fmt.Errorf("jwt.secret is set to the sample placeholder, generate a real secret")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured under providers")
	}
	for name, p := range c.Providers {
		if p.ClientID == "" || p.ClientSecret == "" {
			return fmt.Errorf("providers.%s: client_id and client_secret are required", name)
		}
		if p.RedirectURL == "" {
			return fmt.Errorf("providers.%s: redirect_url is required", name)
		}
	}
	return nil
}
