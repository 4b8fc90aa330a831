// Package envloader layers TASKFARM_* environment variables, and optionally a
// config file, over the defaults using viper.
package envloader

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/ahrav/taskfarm/internal/config"
)

var _ config.Loader = (*EnvLoader)(nil)

// EnvPrefix prefixes every environment variable the loader reads, e.g.
// TASKFARM_TRANSPORT_LISTEN_ADDR.
const EnvPrefix = "TASKFARM"

// EnvLoader resolves configuration from defaults, an optional file and the
// environment, in increasing precedence.
type EnvLoader struct {
	v *viper.Viper
}

// Option configures an EnvLoader.
type Option func(*EnvLoader)

// WithFile reads path as the middle layer. Its format is taken from the
// extension.
func WithFile(path string) Option {
	return func(l *EnvLoader) {
		if path != "" {
			l.v.SetConfigFile(path)
		}
	}
}

// New creates an EnvLoader.
func New(opts ...Option) *EnvLoader {
	l := &EnvLoader{v: viper.New()}
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Viper exposes the underlying instance so callers can bind CLI flags over the
// environment.
func (l *EnvLoader) Viper() *viper.Viper { return l.v }

// Load resolves the configuration.
func (l *EnvLoader) Load(ctx context.Context) (*config.Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Unmarshal only sees keys viper knows about, so every default is
	// registered; that also makes each one overridable from the environment.
	setDefaults(l.v, "", reflect.ValueOf(config.Default()))

	if l.v.ConfigFileUsed() != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config.Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		key := field.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}
