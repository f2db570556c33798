package core

import (
	"net/url"
	"strings"
	"time"
)

const (
	DefaultConnectPath  = "/init/connect"
	DefaultCallbackPath = "/init/callback"
	DefaultTempTokenTTL = 15 * time.Minute
	DefaultHookTimeout  = 30 * time.Second
)

// Parameter names as they appear in configuration errors.
const (
	ParamAppID      = "cluestrAppId"
	ParamAppSecret  = "cluestrAppSecret"
	ParamConnectURL = "connectUrl"
)

type Config struct {
	CluestrAppID     string        `koanf:"cluestr_app_id" mapstructure:"cluestr_app_id"`
	CluestrAppSecret string        `koanf:"cluestr_app_secret" mapstructure:"cluestr_app_secret"`
	ConnectURL       string        `koanf:"connect_url" mapstructure:"connect_url"`
	ConnectPath      string        `koanf:"connect_path" mapstructure:"connect_path"`
	CallbackPath     string        `koanf:"callback_path" mapstructure:"callback_path"`
	TempTokenTTL     time.Duration `koanf:"temp_token_ttl" mapstructure:"temp_token_ttl"`
	HookTimeout      time.Duration `koanf:"hook_timeout" mapstructure:"hook_timeout"`

	// Hooks is supplied at runtime only and never read from config sources.
	Hooks Hooks `koanf:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		ConnectPath:  DefaultConnectPath,
		CallbackPath: DefaultCallbackPath,
		TempTokenTTL: DefaultTempTokenTTL,
		HookTimeout:  DefaultHookTimeout,
	}
}

// Validate checks the shape of values that are set. Required hooks and
// parameters are checked by ValidateConfig.
func (c Config) Validate() error {
	if value := strings.TrimSpace(c.ConnectURL); value != "" {
		parsed, err := url.Parse(value)
		if err != nil || !parsed.IsAbs() || parsed.Host == "" {
			return badConfigError(ParamConnectURL, "must be an absolute URL")
		}
	}
	if path := strings.TrimSpace(c.ConnectPath); path != "" && !strings.HasPrefix(path, "/") {
		return badConfigError("connectPath", "must start with /")
	}
	if path := strings.TrimSpace(c.CallbackPath); path != "" && !strings.HasPrefix(path, "/") {
		return badConfigError("callbackPath", "must start with /")
	}
	if strings.TrimSpace(c.ConnectPath) != "" && strings.TrimSpace(c.ConnectPath) == strings.TrimSpace(c.CallbackPath) {
		return badConfigError("callbackPath", "must differ from connectPath")
	}
	if c.TempTokenTTL < 0 {
		return badConfigError("tempTokenTtl", "must not be negative")
	}
	if c.HookTimeout < 0 {
		return badConfigError("hookTimeout", "must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.ConnectPath) == "" {
		c.ConnectPath = DefaultConnectPath
	}
	if strings.TrimSpace(c.CallbackPath) == "" {
		c.CallbackPath = DefaultCallbackPath
	}
	if c.TempTokenTTL == 0 {
		c.TempTokenTTL = DefaultTempTokenTTL
	}
	return c
}
