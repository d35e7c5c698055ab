// Package config holds the engine configuration: sandbox limits, timeouts
// and feature switches.
package config

import (
	stdErrors "errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/cotw-fabier/rhai-dart-sub001/domain/errors"
)

// Secure defaults.
const (
	DefaultMaxOperations      = 1_000_000
	DefaultMaxStackDepth      = 100
	DefaultMaxStringLength    = 10 * 1024 * 1024
	DefaultTimeout            = 5 * time.Second
	DefaultAsyncTimeout       = 30 * time.Second
	DefaultMaxConcurrentEvals = 64
)

// validate is a package-level singleton; creating a validator is expensive.
var validate = validator.New()

// Engine configures one engine handle. A zero limit means unlimited, except
// AsyncTimeout where zero means DefaultAsyncTimeout.
type Engine struct {
	// ModuleRoot is the directory require() resolves against when modules are enabled.
	ModuleRoot string `koanf:"module_root" json:"module_root,omitempty" validate:"omitempty,dir"`

	// MaxOperations is recorded for callers; the interpreter has no
	// instruction counter, so Timeout is the enforced execution bound.
	MaxOperations uint64 `koanf:"max_operations" json:"max_operations"`

	// MaxStackDepth bounds the script call stack.
	MaxStackDepth int `koanf:"max_stack_depth" json:"max_stack_depth" validate:"gte=0,lte=100000"`

	// MaxStringLength bounds strings crossing the boundary, in bytes.
	MaxStringLength int `koanf:"max_string_length" json:"max_string_length" validate:"gte=0"`

	// Timeout bounds the time one evaluation spends running script code.
	// An asynchronous evaluation is not charged while it waits on the host.
	Timeout time.Duration `koanf:"timeout" json:"timeout" validate:"gte=0"`

	// AsyncTimeout bounds every request/response and future-completion wait.
	AsyncTimeout time.Duration `koanf:"async_timeout" json:"async_timeout" validate:"gte=0"`

	// MaxConcurrentEvals bounds the async worker goroutines of the engine.
	MaxConcurrentEvals int64 `koanf:"max_concurrent_evals" json:"max_concurrent_evals" validate:"gte=0"`

	// StrictPayloads validates boundary payloads against their JSON schema.
	StrictPayloads bool `koanf:"strict_payloads" json:"strict_payloads"`

	DisableFileIO  bool `koanf:"disable_file_io" json:"disable_file_io"`
	DisableEval    bool `koanf:"disable_eval" json:"disable_eval"`
	DisableModules bool `koanf:"disable_modules" json:"disable_modules"`
}

// Defaults returns the secure default configuration.
func Defaults() Engine {
	return Engine{
		MaxOperations:      DefaultMaxOperations,
		MaxStackDepth:      DefaultMaxStackDepth,
		MaxStringLength:    DefaultMaxStringLength,
		Timeout:            DefaultTimeout,
		AsyncTimeout:       DefaultAsyncTimeout,
		MaxConcurrentEvals: DefaultMaxConcurrentEvals,
		DisableFileIO:      true,
		DisableEval:        true,
		DisableModules:     true,
	}
}

// Unlimited returns a configuration with every limit lifted and every
// feature enabled, with modules resolved against the working directory.
// Intended for trusted scripts only.
func Unlimited() Engine {
	return Engine{AsyncTimeout: DefaultAsyncTimeout, ModuleRoot: "."}
}

// EffectiveAsyncTimeout returns AsyncTimeout, or the default when unset.
func (c Engine) EffectiveAsyncTimeout() time.Duration {
	if c.AsyncTimeout <= 0 {
		return DefaultAsyncTimeout
	}
	return c.AsyncTimeout
}

// Validate checks the configuration.
func (c Engine) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stdErrors.As(err, &verrs) && len(verrs) > 0 {
			return &errors.ConfigError{Field: verrs[0].Field(), Err: err}
		}
		return &errors.ConfigError{Err: err}
	}
	if !c.DisableModules && c.ModuleRoot == "" {
		return &errors.ConfigError{Field: "ModuleRoot", Err: stdErrors.New("required when modules are enabled")}
	}
	return nil
}
