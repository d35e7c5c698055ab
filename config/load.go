package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// EnvPrefix prefixes environment variables overriding file settings,
// e.g. SCRIPTBRIDGE_ASYNC_TIMEOUT=10s.
const EnvPrefix = "SCRIPTBRIDGE_"

// Load reads the engine configuration. Values start from Defaults, are
// overlaid by the YAML file at path (skipped when path is empty), then by
// EnvPrefix environment variables. The result is validated.
func Load(path string) (Engine, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Engine{}, &errors.ConfigError{Err: fmt.Errorf("load %s: %w", path, err)}
		}
	}

	envKey := func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Engine{}, &errors.ConfigError{Err: fmt.Errorf("load environment: %w", err)}
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Engine{}, &errors.ConfigError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}
