package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/berabot/feedguard/secret"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FEEDGUARD"

// Load reads configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, resolves secret references and
// validates the result.
func Load(ctx context.Context, path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	setDefaults(v, "", tree(&defaults))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	resolver := secret.NewResolver(cfg.Secrets.Strict,
		secret.EnvProvider{},
		secret.FileProvider{Dir: cfg.Secrets.Dir},
	)
	defer resolver.Close()
	if err := cfg.ResolveSecrets(ctx, resolver); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolveSecrets expands environment variables and secret references in the
// values that may carry credentials.
func (c *Config) ResolveSecrets(ctx context.Context, r *secret.Resolver) error {
	return r.ResolveAll(ctx,
		&c.Redis.Addr,
		&c.Redis.Username,
		&c.Redis.Password,
		&c.Stream.URL,
	)
}

// setDefaults registers every leaf of t so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, prefix string, t map[string]any) {
	for k, val := range t {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}
