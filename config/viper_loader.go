// Package config reads engine configuration from files and the environment
// with viper and hands it to core as a raw map.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-provider-link/core"
	"github.com/spf13/viper"
)

const DefaultEnvPrefix = "PROVIDER_LINK"

var (
	stringKeys   = []string{"cluestr_app_id", "cluestr_app_secret", "connect_url", "connect_path", "callback_path"}
	durationKeys = []string{"temp_token_ttl", "hook_timeout"}
)

// ViperLoader implements core.RawConfigLoader. Environment variables take
// precedence over the file, e.g. PROVIDER_LINK_CONNECT_URL.
type ViperLoader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	read       bool
}

type ViperOption func(*ViperLoader)

func WithConfigFile(path string) ViperOption {
	return func(l *ViperLoader) {
		l.configFile = strings.TrimSpace(path)
	}
}

func WithEnvPrefix(prefix string) ViperOption {
	return func(l *ViperLoader) {
		l.envPrefix = strings.TrimSpace(prefix)
	}
}

// WithViper shares an instance, typically one with CLI flags bound.
func WithViper(v *viper.Viper) ViperOption {
	return func(l *ViperLoader) {
		if v != nil {
			l.v = v
		}
	}
}

func NewViperLoader(opts ...ViperOption) *ViperLoader {
	loader := &ViperLoader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(loader)
		}
	}
	if loader.v == nil {
		loader.v = viper.New()
	}
	loader.v.SetEnvPrefix(loader.envPrefix)
	loader.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	loader.v.AutomaticEnv()
	return loader
}

func (l *ViperLoader) Viper() *viper.Viper {
	return l.v
}

// ReadConfig loads the config file into the viper instance once. Callers
// sharing the instance use it to see file values before LoadRaw runs.
func (l *ViperLoader) ReadConfig() error {
	if l.read || l.configFile == "" {
		return nil
	}
	l.v.SetConfigFile(l.configFile)
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: read %s: %w", l.configFile, err)
	}
	l.read = true
	return nil
}

func (l *ViperLoader) LoadRaw(_ context.Context) (map[string]any, error) {
	if err := l.ReadConfig(); err != nil {
		return nil, err
	}
	raw := map[string]any{}
	for _, key := range append(append([]string{}, stringKeys...), durationKeys...) {
		if err := l.v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", key, err)
		}
	}
	for _, key := range stringKeys {
		if l.v.IsSet(key) {
			raw[key] = strings.TrimSpace(l.v.GetString(key))
		}
	}
	for _, key := range durationKeys {
		if !l.v.IsSet(key) {
			continue
		}
		value := strings.TrimSpace(l.v.GetString(key))
		duration := l.v.GetDuration(key)
		if duration == 0 && value != "" && value != "0" && value != "0s" {
			return nil, fmt.Errorf("config: %s: invalid duration %q", key, value)
		}
		raw[key] = duration
	}
	return raw, nil
}

var _ core.RawConfigLoader = (*ViperLoader)(nil)
