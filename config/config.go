// Package config loads service settings from an optional YAML file, a .env
// file and W9_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"w9-uploads/core"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const envPrefix = "W9"

type (
	Config struct {
		Listen       string          `mapstructure:"listen"`
		PublicURL    string          `mapstructure:"public_url"`
		ReferrerPath string          `mapstructure:"referrer_path"`
		Upload       UploadConfig    `mapstructure:"upload"`
		Owners       []int           `mapstructure:"owners"`
		Storage      StorageConfig   `mapstructure:"storage"`
		Auth         AuthConfig      `mapstructure:"auth"`
		CORS         CORSConfig      `mapstructure:"cors"`
		RateLimit    RateLimitConfig `mapstructure:"ratelimit"`
		Users        []core.User     `mapstructure:"users"`
		Menu         []core.MenuItem `mapstructure:"menu"`
	}

	UploadConfig struct {
		BaseDir       string `mapstructure:"base_dir"`
		DirName       string `mapstructure:"dir_name"`
		LegacyDirName string `mapstructure:"legacy_dir_name"`
		MaxBytes      int64  `mapstructure:"max_bytes"`
	}

	StorageConfig struct {
		Type   string `mapstructure:"type"`
		Path   string `mapstructure:"path"`
		DSN    string `mapstructure:"dsn"`
		Bucket string `mapstructure:"bucket"`
		Prefix string `mapstructure:"prefix"`
	}

	AuthConfig struct {
		JWTSecret  string         `mapstructure:"jwt_secret"`
		CookieName string         `mapstructure:"cookie_name"`
		GitHub     ProviderConfig `mapstructure:"github"`
		OIDC       ProviderConfig `mapstructure:"oidc"`
	}

	ProviderConfig struct {
		IssuerURL    string `mapstructure:"issuer_url"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		RedirectURL  string `mapstructure:"redirect_url"`
	}

	CORSConfig struct {
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	}

	RateLimitConfig struct {
		RPS   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":3002")
	v.SetDefault("public_url", "http://localhost:3002")
	v.SetDefault("referrer_path", "/grants-artist-calls/w-9-upload")
	v.SetDefault("upload.base_dir", "./data/uploads")
	v.SetDefault("upload.dir_name", "w9-uploads")
	v.SetDefault("upload.legacy_dir_name", "pdf-uploads")
	v.SetDefault("upload.max_bytes", 32<<20)
	v.SetDefault("owners", []int{4, 13})
	v.SetDefault("storage.type", "filesystem")
	v.SetDefault("storage.path", "./data/options")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.prefix", "options/")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.cookie_name", "w9_session")
	for _, p := range []string{"github", "oidc"} {
		v.SetDefault("auth."+p+".issuer_url", "")
		v.SetDefault("auth."+p+".client_id", "")
		v.SetDefault("auth."+p+".client_secret", "")
		v.SetDefault("auth."+p+".redirect_url", "")
	}
	v.SetDefault("cors.allowed_origins", []string{"https://*", "http://*"})
	v.SetDefault("ratelimit.rps", 1.0)
	v.SetDefault("ratelimit.burst", 5)
}

// Load reads configuration. An empty path looks for w9uploads.yaml in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("w9uploads")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Auth.JWTSecret == "" {
		logrus.Warn("auth.jwt_secret is not set. Sessions and form tokens will not survive a restart, and -token-for is disabled.")
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Owners) == 0 {
		return errors.New("config: at least one owner id is required")
	}
	if c.Upload.BaseDir == "" || c.Upload.DirName == "" {
		return errors.New("config: upload.base_dir and upload.dir_name are required")
	}
	switch c.Storage.Type {
	case "memory", "filesystem", "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("config: storage.dsn is required for postgres storage")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("config: storage.bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("config: unknown storage type %q", c.Storage.Type)
	}
	return nil
}

// UploadDir is the flat directory holding stored files.
func (c *Config) UploadDir() string {
	return filepath.Join(c.Upload.BaseDir, c.Upload.DirName)
}

// LegacyUploadDir is drained into UploadDir once at startup.
func (c *Config) LegacyUploadDir() string {
	if c.Upload.LegacyDirName == "" {
		return ""
	}
	return filepath.Join(c.Upload.BaseDir, c.Upload.LegacyDirName)
}

// Referrer is the public page submissions are redirected back to.
func (c *Config) Referrer() string {
	return strings.TrimRight(c.PublicURL, "/") + c.ReferrerPath
}
